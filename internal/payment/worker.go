package payment

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/observability"
)

type Applier interface {
	Apply(ctx context.Context, out domain.PaymentOutcome) (domain.Ticket, error)
}

// Worker consumes payment outcomes from the queue. Outcomes that can never
// apply are acknowledged or rejected; anything else is requeued.
type Worker struct {
	applier Applier
	logger  observability.Logger
}

func NewWorker(applier Applier, logger observability.Logger) *Worker {
	return &Worker{applier: applier, logger: logger}
}

func (w *Worker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			w.Handle(ctx, d)
		}
	}
}

// Handle applies a single delivery and settles it with the broker.
func (w *Worker) Handle(ctx context.Context, d amqp.Delivery) {
	log := w.logger.WithField("message_id", d.MessageId)

	var out domain.PaymentOutcome
	if err := json.Unmarshal(d.Body, &out); err != nil {
		log.WithError(err).Error("malformed payment outcome")
		w.settle(log, d.Reject(false))
		return
	}

	_, err := w.applier.Apply(ctx, out)
	switch {
	case err == nil:
		w.settle(log, d.Ack(false))
	case errors.Is(err, domain.ErrInvalidInput):
		w.settle(log, d.Reject(false))
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidTransition):
		// Terminal for this outcome; the reconciler already logged why.
		w.settle(log, d.Ack(false))
	default:
		log.WithError(err).Warn("payment outcome requeued")
		w.settle(log, d.Nack(false, true))
	}
}

func (w *Worker) settle(log observability.Logger, err error) {
	if err != nil {
		log.WithError(err).Error("failed to settle delivery")
	}
}
