package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/ledger"
)

type TicketStore struct {
	locks *keyedMutex

	mu            sync.RWMutex
	tickets       map[uuid.UUID]domain.Ticket
	byReservation map[uuid.UUID]uuid.UUID
	outbox        []domain.Event
}

func NewTicketStore() *TicketStore {
	return &TicketStore{
		locks:         newKeyedMutex(),
		tickets:       make(map[uuid.UUID]domain.Ticket),
		byReservation: make(map[uuid.UUID]uuid.UUID),
	}
}

var _ ledger.Store = (*TicketStore)(nil)

func (s *TicketStore) Insert(_ context.Context, t domain.Ticket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickets[t.ID]; ok {
		return domain.ErrConflict
	}
	if _, ok := s.byReservation[t.ReservationID]; ok {
		return domain.ErrConflict
	}
	s.tickets[t.ID] = clone(t)
	s.byReservation[t.ReservationID] = t.ID
	return nil
}

func (s *TicketStore) Get(_ context.Context, id uuid.UUID) (domain.Ticket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tickets[id]
	if !ok {
		return domain.Ticket{}, domain.ErrNotFound
	}
	return clone(t), nil
}

func (s *TicketStore) ByReservation(ctx context.Context, reservationID uuid.UUID) (domain.Ticket, error) {
	s.mu.RLock()
	id, ok := s.byReservation[reservationID]
	s.mu.RUnlock()
	if !ok {
		return domain.Ticket{}, domain.ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *TicketStore) ByUser(_ context.Context, userID uuid.UUID) ([]domain.Ticket, error) {
	s.mu.RLock()
	var out []domain.Ticket
	for _, t := range s.tickets {
		if t.UserID == userID {
			out = append(out, clone(t))
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *TicketStore) Update(ctx context.Context, id uuid.UUID, fn func(t *domain.Ticket) ([]domain.Event, error)) (domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return domain.Ticket{}, err
	}
	unlock := s.locks.lock(id)
	defer unlock()

	t, err := s.Get(ctx, id)
	if err != nil {
		return domain.Ticket{}, err
	}
	events, err := fn(&t)
	if err != nil {
		return domain.Ticket{}, err
	}

	s.mu.Lock()
	s.tickets[id] = clone(t)
	s.outbox = append(s.outbox, events...)
	s.mu.Unlock()
	return clone(t), nil
}

// Outbox returns the events committed together with ticket updates, oldest first.
func (s *TicketStore) Outbox() []domain.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.Event(nil), s.outbox...)
}

// clone detaches the pointer fields so callers cannot mutate stored state.
func clone(t domain.Ticket) domain.Ticket {
	if t.UsedAt != nil {
		v := *t.UsedAt
		t.UsedAt = &v
	}
	if t.CheckedInBy != nil {
		v := *t.CheckedInBy
		t.CheckedInBy = &v
	}
	return t
}
