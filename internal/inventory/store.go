package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-inventory/internal/domain"
)

// EventTx is a unit of work over one event's inventory row and its
// reservations. Nothing is persisted unless the enclosing WithEvent callback
// returns nil.
type EventTx interface {
	Inventory() *domain.EventInventory
	Reservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error)
	SaveReservation(r domain.Reservation)
}

type Store interface {
	CreateEvent(ctx context.Context, inv domain.EventInventory) error
	Event(ctx context.Context, eventID uuid.UUID) (domain.EventInventory, error)
	Reservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error)
	// WithEvent runs fn while holding exclusive access to the event. Calls for
	// different events must not block each other.
	WithEvent(ctx context.Context, eventID uuid.UUID, fn func(ctx context.Context, tx EventTx) error) error
	// Expired lists held reservations whose deadline is at or before now, oldest first.
	Expired(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
}
