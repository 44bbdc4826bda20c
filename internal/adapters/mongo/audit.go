package mongo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// AuditLogger appends ticket events to the audit trail. It is a notifier so
// the ledger feeds it directly.
type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID        string    `bson:"_id"`
	Action    string    `bson:"action"`
	UserID    string    `bson:"user_id"`
	Timestamp time.Time `bson:"timestamp"`
	Data      bson.M    `bson:"data"`
}

func (a *AuditLogger) LogEvent(ctx context.Context, log AuditLog) error {
	_, err := a.coll.InsertOne(ctx, log)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		a.logger.WithError(err).Error("failed to insert audit log")
		return err
	}
	return nil
}

func (a *AuditLogger) Notify(ctx context.Context, ev domain.Event) error {
	return a.LogEvent(ctx, AuditFromEvent(ev))
}

// AuditFromEvent builds the audit entry for a ticket event.
func AuditFromEvent(ev domain.Event) AuditLog {
	data := bson.M{
		"ticket_id": ev.TicketID.String(),
		"event_id":  ev.EventID.String(),
		"quantity":  ev.Quantity,
	}
	if ev.Actor != uuid.Nil {
		data["actor"] = ev.Actor.String()
	}
	return AuditLog{
		ID:        ev.ID.String(),
		Action:    string(ev.Type),
		UserID:    ev.UserID.String(),
		Timestamp: ev.OccurredAt,
		Data:      data,
	}
}
