// Package memory keeps inventory and tickets in process memory. It gives the
// same isolation guarantees as the crdb adapter but nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/inventory"
)

type InventoryStore struct {
	locks *keyedMutex

	mu           sync.RWMutex
	events       map[uuid.UUID]domain.EventInventory
	reservations map[uuid.UUID]domain.Reservation
}

func NewInventoryStore() *InventoryStore {
	return &InventoryStore{
		locks:        newKeyedMutex(),
		events:       make(map[uuid.UUID]domain.EventInventory),
		reservations: make(map[uuid.UUID]domain.Reservation),
	}
}

var _ inventory.Store = (*InventoryStore)(nil)

func (s *InventoryStore) CreateEvent(_ context.Context, inv domain.EventInventory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[inv.EventID]; ok {
		return domain.ErrConflict
	}
	s.events[inv.EventID] = inv
	return nil
}

func (s *InventoryStore) Event(_ context.Context, eventID uuid.UUID) (domain.EventInventory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.events[eventID]
	if !ok {
		return domain.EventInventory{}, domain.ErrEventNotFound
	}
	return inv, nil
}

func (s *InventoryStore) Reservation(_ context.Context, id uuid.UUID) (domain.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reservations[id]
	if !ok {
		return domain.Reservation{}, domain.ErrUnknownReservation
	}
	return r, nil
}

func (s *InventoryStore) WithEvent(ctx context.Context, eventID uuid.UUID, fn func(ctx context.Context, tx inventory.EventTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := s.locks.lock(eventID)
	defer unlock()

	inv, err := s.Event(ctx, eventID)
	if err != nil {
		return err
	}
	tx := &eventTx{store: s, inv: inv, staged: make(map[uuid.UUID]domain.Reservation)}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	s.mu.Lock()
	s.events[eventID] = tx.inv
	for id, r := range tx.staged {
		s.reservations[id] = r
	}
	s.mu.Unlock()
	return nil
}

func (s *InventoryStore) Expired(_ context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	s.mu.RLock()
	var out []domain.Reservation
	for _, r := range s.reservations {
		if r.Lapsed(now) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type eventTx struct {
	store  *InventoryStore
	inv    domain.EventInventory
	staged map[uuid.UUID]domain.Reservation
}

func (t *eventTx) Inventory() *domain.EventInventory {
	return &t.inv
}

func (t *eventTx) Reservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	if r, ok := t.staged[id]; ok {
		return &r, nil
	}
	r, err := t.store.Reservation(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.EventID != t.inv.EventID {
		return nil, domain.ErrUnknownReservation
	}
	return &r, nil
}

func (t *eventTx) SaveReservation(r domain.Reservation) {
	t.staged[r.ID] = r
}
