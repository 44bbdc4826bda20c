package inventory

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-inventory/internal/clock"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/observability"
)

const DefaultReservationTTL = 15 * time.Minute

// Service owns the capacity counters of every published event.
type Service struct {
	store  Store
	clock  clock.Clock
	ttl    time.Duration
	logger observability.Logger
}

type Option func(*Service)

// WithReservationTTL overrides how long a reservation holds capacity.
func WithReservationTTL(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.ttl = d
		}
	}
}

func WithLogger(l observability.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

func NewService(store Store, clk clock.Clock, opts ...Option) *Service {
	s := &Service{
		store:  store,
		clock:  clk,
		ttl:    DefaultReservationTTL,
		logger: observability.NewNopLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) TTL() time.Duration {
	return s.ttl
}

// Publish creates the inventory record for an event. Publishing the same
// event again with the same capacity is a no-op.
func (s *Service) Publish(ctx context.Context, eventID uuid.UUID, capacity int) (domain.EventInventory, error) {
	inv, err := domain.NewEventInventory(eventID, capacity, s.clock.Now())
	if err != nil {
		return domain.EventInventory{}, err
	}
	err = s.store.CreateEvent(ctx, inv)
	if errors.Is(err, domain.ErrConflict) {
		existing, getErr := s.store.Event(ctx, eventID)
		if getErr != nil {
			return domain.EventInventory{}, getErr
		}
		if existing.Capacity != capacity {
			return domain.EventInventory{}, errors.Wrapf(domain.ErrCapacityImmutable,
				"event %s published with capacity %d", eventID, existing.Capacity)
		}
		return existing, nil
	}
	if err != nil {
		return domain.EventInventory{}, err
	}
	s.logger.WithFields(map[string]interface{}{"event_id": eventID, "capacity": capacity}).Info("event published")
	return inv, nil
}

// CancelEvent stops further reservations. Outstanding reservations can still
// be confirmed or released.
func (s *Service) CancelEvent(ctx context.Context, eventID uuid.UUID) error {
	return s.store.WithEvent(ctx, eventID, func(ctx context.Context, tx EventTx) error {
		inv := tx.Inventory()
		if inv.Status == domain.EventCancelled {
			return nil
		}
		inv.Status = domain.EventCancelled
		inv.UpdatedAt = s.clock.Now()
		return nil
	})
}

// Reserve holds qty tickets for the event. It never waits for capacity.
func (s *Service) Reserve(ctx context.Context, eventID uuid.UUID, qty int) (domain.Reservation, error) {
	if qty <= 0 {
		return domain.Reservation{}, domain.ErrInvalidQuantity
	}
	var res domain.Reservation
	err := s.store.WithEvent(ctx, eventID, func(ctx context.Context, tx EventTx) error {
		now := s.clock.Now()
		if err := tx.Inventory().Hold(qty, now); err != nil {
			return err
		}
		res = domain.NewReservation(eventID, qty, now, s.ttl)
		tx.SaveReservation(res)
		return tx.Inventory().CheckInvariant()
	})
	observability.Reservations.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		return domain.Reservation{}, err
	}
	return res, nil
}

type confirmOptions struct {
	ignoreDeadline bool
}

type ConfirmOption func(*confirmOptions)

// IgnoreDeadline confirms a still-held reservation even when its deadline has
// passed. The capacity was never released, so the invariant is unaffected.
func IgnoreDeadline() ConfirmOption {
	return func(o *confirmOptions) { o.ignoreDeadline = true }
}

// Confirm turns the reserved quantity into sold tickets. Confirming an already
// confirmed reservation succeeds without effect.
func (s *Service) Confirm(ctx context.Context, reservationID uuid.UUID, opts ...ConfirmOption) error {
	var o confirmOptions
	for _, opt := range opts {
		opt(&o)
	}
	return s.mutate(ctx, reservationID, func(tx EventTx, r *domain.Reservation, now time.Time) error {
		switch r.Status {
		case domain.ReservationConfirmed:
			return nil
		case domain.ReservationReleased, domain.ReservationExpired:
			return errors.Wrapf(domain.ErrInvalidTransition, "confirm %s reservation %s", r.Status, r.ID)
		}
		if !o.ignoreDeadline && r.Lapsed(now) {
			return errors.Wrapf(domain.ErrReservationExpired, "reservation %s expired at %s", r.ID, r.ExpiresAt.Format(time.RFC3339))
		}
		if err := tx.Inventory().Commit(r.Quantity, now); err != nil {
			return err
		}
		r.Status = domain.ReservationConfirmed
		r.UpdatedAt = now
		tx.SaveReservation(*r)
		return nil
	})
}

// Release returns the reserved quantity to the pool. Releasing an already
// released or expired reservation succeeds without effect.
func (s *Service) Release(ctx context.Context, reservationID uuid.UUID) error {
	return s.mutate(ctx, reservationID, func(tx EventTx, r *domain.Reservation, now time.Time) error {
		switch r.Status {
		case domain.ReservationReleased, domain.ReservationExpired:
			return nil
		case domain.ReservationConfirmed:
			return errors.Wrapf(domain.ErrInvalidTransition, "release confirmed reservation %s", r.ID)
		}
		return s.giveBack(tx, r, domain.ReservationReleased, now)
	})
}

// ReleaseExpired releases the reservation only if it is still held past its
// deadline. It reports whether capacity was returned; losing a race against
// Confirm or Release is not an error.
func (s *Service) ReleaseExpired(ctx context.Context, reservationID uuid.UUID) (bool, error) {
	released := false
	err := s.mutate(ctx, reservationID, func(tx EventTx, r *domain.Reservation, now time.Time) error {
		if !r.Lapsed(now) {
			return nil
		}
		released = true
		return s.giveBack(tx, r, domain.ReservationExpired, now)
	})
	if err != nil {
		return false, err
	}
	return released, nil
}

func (s *Service) giveBack(tx EventTx, r *domain.Reservation, to domain.ReservationStatus, now time.Time) error {
	if err := tx.Inventory().Return(r.Quantity, now); err != nil {
		return err
	}
	r.Status = to
	r.UpdatedAt = now
	tx.SaveReservation(*r)
	return nil
}

func (s *Service) mutate(ctx context.Context, reservationID uuid.UUID, fn func(EventTx, *domain.Reservation, time.Time) error) error {
	// The event a reservation belongs to never changes, so it is safe to look
	// it up before taking the event lock and re-read the row inside.
	res, err := s.store.Reservation(ctx, reservationID)
	if err != nil {
		return err
	}
	return s.store.WithEvent(ctx, res.EventID, func(ctx context.Context, tx EventTx) error {
		r, err := tx.Reservation(ctx, reservationID)
		if err != nil {
			return err
		}
		if err := fn(tx, r, s.clock.Now()); err != nil {
			return err
		}
		return tx.Inventory().CheckInvariant()
	})
}

// Available returns capacity - sold - reserved.
func (s *Service) Available(ctx context.Context, eventID uuid.UUID) (int, error) {
	inv, err := s.store.Event(ctx, eventID)
	if err != nil {
		return 0, err
	}
	return inv.Available(), nil
}

func (s *Service) Event(ctx context.Context, eventID uuid.UUID) (domain.EventInventory, error) {
	return s.store.Event(ctx, eventID)
}

func (s *Service) Reservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	return s.store.Reservation(ctx, id)
}

// Expired lists held reservations past their deadline.
func (s *Service) Expired(ctx context.Context, limit int) ([]domain.Reservation, error) {
	return s.store.Expired(ctx, s.clock.Now(), limit)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "reserved"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return "capacity_exceeded"
	case errors.Is(err, domain.ErrEventNotAvailable):
		return "event_unavailable"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
