package domain

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type EventStatus string

const (
	EventOpen      EventStatus = "OPEN"
	EventCancelled EventStatus = "CANCELLED"
)

// EventInventory is the per-event capacity record. Sold+Reserved never exceeds Capacity.
type EventInventory struct {
	EventID     uuid.UUID
	Capacity    int
	Sold        int
	Reserved    int
	Status      EventStatus
	PublishedAt time.Time
	UpdatedAt   time.Time
}

func NewEventInventory(eventID uuid.UUID, capacity int, now time.Time) (EventInventory, error) {
	if capacity < 0 {
		return EventInventory{}, ErrInvalidCapacity
	}
	return EventInventory{
		EventID:     eventID,
		Capacity:    capacity,
		Status:      EventOpen,
		PublishedAt: now,
		UpdatedAt:   now,
	}, nil
}

func (e EventInventory) Available() int {
	return e.Capacity - e.Sold - e.Reserved
}

// Hold takes qty out of the free pool into Reserved.
func (e *EventInventory) Hold(qty int, now time.Time) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	if e.Status != EventOpen {
		return ErrEventNotAvailable
	}
	if qty > e.Available() {
		return errors.Wrapf(ErrCapacityExceeded, "requested %d, available %d", qty, e.Available())
	}
	e.Reserved += qty
	e.UpdatedAt = now
	return nil
}

// Commit moves qty from Reserved to Sold.
func (e *EventInventory) Commit(qty int, now time.Time) error {
	if qty <= 0 || qty > e.Reserved {
		return errors.Wrapf(ErrInvalidTransition, "commit %d with %d reserved", qty, e.Reserved)
	}
	e.Reserved -= qty
	e.Sold += qty
	e.UpdatedAt = now
	return nil
}

// Return gives qty back from Reserved to the free pool.
func (e *EventInventory) Return(qty int, now time.Time) error {
	if qty <= 0 || qty > e.Reserved {
		return errors.Wrapf(ErrInvalidTransition, "return %d with %d reserved", qty, e.Reserved)
	}
	e.Reserved -= qty
	e.UpdatedAt = now
	return nil
}

func (e EventInventory) CheckInvariant() error {
	if e.Capacity < 0 || e.Sold < 0 || e.Reserved < 0 || e.Sold+e.Reserved > e.Capacity {
		return errors.AssertionFailedf("inventory %s broken: capacity=%d sold=%d reserved=%d",
			e.EventID, e.Capacity, e.Sold, e.Reserved)
	}
	return nil
}

type ReservationStatus string

const (
	ReservationHeld      ReservationStatus = "HELD"
	ReservationConfirmed ReservationStatus = "CONFIRMED"
	ReservationReleased  ReservationStatus = "RELEASED"
	ReservationExpired   ReservationStatus = "EXPIRED"
)

// Reservation is a temporary hold on event capacity.
type Reservation struct {
	ID        uuid.UUID
	EventID   uuid.UUID
	Quantity  int
	Status    ReservationStatus
	ExpiresAt time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewReservation(eventID uuid.UUID, qty int, now time.Time, ttl time.Duration) Reservation {
	return Reservation{
		ID:        uuid.New(),
		EventID:   eventID,
		Quantity:  qty,
		Status:    ReservationHeld,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (r *Reservation) IsHeld() bool {
	return r.Status == ReservationHeld
}

// Lapsed reports whether a held reservation has passed its deadline.
func (r *Reservation) Lapsed(now time.Time) bool {
	return r.Status == ReservationHeld && !now.Before(r.ExpiresAt)
}
