// Package ledger owns ticket records and is the only writer of ticket status.
package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-inventory/internal/clock"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/notify"
	"github.com/robertarktes/ticket-inventory/internal/observability"
)

type Ledger struct {
	store    Store
	clock    clock.Clock
	notifier notify.Notifier
	logger   observability.Logger
}

func New(store Store, clk clock.Clock, notifier notify.Notifier, logger observability.Logger) *Ledger {
	if notifier == nil {
		notifier = notify.Nop()
	}
	return &Ledger{store: store, clock: clk, notifier: notifier, logger: logger}
}

// CreateReserved records a pending ticket for a reservation that has already
// been granted by the inventory.
func (l *Ledger) CreateReserved(ctx context.Context, userID uuid.UUID, res domain.Reservation) (domain.Ticket, error) {
	t, err := domain.NewReservedTicket(userID, res, l.clock.Now())
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := l.store.Insert(ctx, t); err != nil {
		return domain.Ticket{}, err
	}
	return t, nil
}

func (l *Ledger) Get(ctx context.Context, id uuid.UUID) (domain.Ticket, error) {
	return l.store.Get(ctx, id)
}

func (l *Ledger) ByReservation(ctx context.Context, reservationID uuid.UUID) (domain.Ticket, error) {
	return l.store.ByReservation(ctx, reservationID)
}

func (l *Ledger) ByUser(ctx context.Context, userID uuid.UUID) ([]domain.Ticket, error) {
	return l.store.ByUser(ctx, userID)
}

// Apply runs one lifecycle event against the ticket. A replay that requests
// the state the ticket is already in returns the ticket and no error.
func (l *Ledger) Apply(ctx context.Context, ticketID uuid.UUID, event domain.TicketEvent, actor uuid.UUID) (domain.Ticket, error) {
	var (
		changed bool
		from    domain.TicketStatus
		emitted []domain.Event
	)
	t, err := l.store.Update(ctx, ticketID, func(t *domain.Ticket) ([]domain.Event, error) {
		from = t.Status
		emitted = nil
		var err error
		changed, err = t.Apply(event, l.clock.Now(), actor)
		if err != nil || !changed {
			return nil, err
		}
		if ev, ok := domain.EventFor(*t, actor); ok {
			emitted = append(emitted, ev)
		}
		return emitted, nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	if !changed {
		return t, nil
	}

	observability.TicketTransitions.WithLabelValues(string(from), string(t.Status)).Inc()
	l.logger.WithFields(map[string]interface{}{
		"ticket_id": t.ID,
		"from":      from,
		"to":        t.Status,
		"event":     event,
	}).Info("ticket transition")

	// The outbox already holds emitted; notifiers are best effort.
	for _, ev := range emitted {
		if err := l.notifier.Notify(ctx, ev); err != nil {
			observability.NotifyFailures.Inc()
			l.logger.WithError(err).WithField("ticket_id", t.ID).Warn("notify failed")
		}
	}
	return t, nil
}
