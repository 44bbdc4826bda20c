package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// CatalogRepository reads the event catalog the organisers maintain. The
// inventory takes an event's capacity from here when it is published.
type CatalogRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewCatalogRepository(db *mongo.Database, logger observability.Logger) *CatalogRepository {
	return &CatalogRepository{
		coll:   db.Collection("events"),
		logger: logger,
	}
}

type EventDoc struct {
	ID        string    `bson:"_id"`
	Name      string    `bson:"name"`
	Venue     string    `bson:"venue"`
	StartsAt  time.Time `bson:"starts_at"`
	Capacity  int       `bson:"capacity"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"created_at"`
	UpdatedAt time.Time `bson:"updated_at"`
}

func (c *CatalogRepository) GetEvent(ctx context.Context, id uuid.UUID) (*EventDoc, error) {
	var event EventDoc
	err := c.coll.FindOne(ctx, bson.M{"_id": id.String()}).Decode(&event)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(domain.ErrEventNotFound, "catalog event %s", id)
	}
	if err != nil {
		c.logger.WithError(err).Error("failed to get event")
		return nil, err
	}
	return &event, nil
}

// EventCapacity returns the capacity the catalog lists for the event.
func (c *CatalogRepository) EventCapacity(ctx context.Context, id uuid.UUID) (int, error) {
	event, err := c.GetEvent(ctx, id)
	if err != nil {
		return 0, err
	}
	return event.Capacity, nil
}

func (c *CatalogRepository) CreateEvent(ctx context.Context, event EventDoc) error {
	now := time.Now().UTC()
	event.CreatedAt = now
	event.UpdatedAt = now
	if event.Status == "" {
		event.Status = string(domain.EventOpen)
	}
	_, err := c.coll.InsertOne(ctx, event)
	if err != nil {
		c.logger.WithError(err).Error("failed to create event")
		return err
	}
	return nil
}

// SetEventStatus mirrors an inventory status change into the catalog.
func (c *CatalogRepository) SetEventStatus(ctx context.Context, id uuid.UUID, status domain.EventStatus) error {
	_, err := c.coll.UpdateOne(
		ctx,
		bson.M{"_id": id.String()},
		bson.M{"$set": bson.M{"status": string(status), "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		c.logger.WithError(err).Error("failed to update event status")
		return err
	}
	return nil
}
