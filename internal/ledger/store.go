package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-inventory/internal/domain"
)

type Store interface {
	Insert(ctx context.Context, t domain.Ticket) error
	Get(ctx context.Context, id uuid.UUID) (domain.Ticket, error)
	ByReservation(ctx context.Context, reservationID uuid.UUID) (domain.Ticket, error)
	ByUser(ctx context.Context, userID uuid.UUID) ([]domain.Ticket, error)
	// Update runs fn with exclusive access to the ticket. If fn returns nil the
	// ticket and the events fn returned are persisted atomically, the events
	// into the outbox. It returns the ticket as stored afterwards.
	Update(ctx context.Context, id uuid.UUID, fn func(t *domain.Ticket) ([]domain.Event, error)) (domain.Ticket, error)
}
