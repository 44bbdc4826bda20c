package outbox

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-inventory/internal/adapters/crdb"
	"github.com/robertarktes/ticket-inventory/internal/observability"
)

type Store interface {
	Relay(ctx context.Context, limit int, fn func(ctx context.Context, rec crdb.OutboxRecord) error) (int, error)
	OldestPending(ctx context.Context) (time.Time, bool, error)
}

type Broker interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

const batchSize = 50

// Publisher relays pending outbox records to the broker.
type Publisher struct {
	store  Store
	broker Broker
	logger observability.Logger
}

func NewPublisher(store Store, broker Broker, logger observability.Logger) *Publisher {
	return &Publisher{store: store, broker: broker, logger: logger}
}

func (p *Publisher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.RunOnce(ctx); err != nil {
				p.logger.WithError(err).Error("outbox relay failed")
			}
		}
	}
}

// RunOnce publishes one batch and returns how many records went out.
func (p *Publisher) RunOnce(ctx context.Context) (int, error) {
	published, err := p.store.Relay(ctx, batchSize, func(ctx context.Context, rec crdb.OutboxRecord) error {
		msg := amqp.Publishing{
			MessageId:    rec.DedupeKey,
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    rec.CreatedAt,
			Type:         rec.EventType,
			Body:         rec.Payload,
		}
		if err := p.broker.Publish(ctx, rec.EventType, msg); err != nil {
			observability.RabbitPublishFailures.Inc()
			p.logger.WithError(err).WithField("outbox_id", rec.ID).Warn("publish failed, will retry")
			return err
		}
		return nil
	})
	if err != nil {
		return published, err
	}

	oldest, pending, err := p.store.OldestPending(ctx)
	if err != nil {
		return published, err
	}
	if pending {
		observability.OutboxLag.Set(time.Since(oldest).Seconds())
	} else {
		observability.OutboxLag.Set(0)
	}
	if published > 0 {
		p.logger.WithField("published", published).Debug("outbox batch relayed")
	}
	return published, nil
}
