package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/inventory"
)

// InventoryStore persists event counters and reservations. Per-event
// serialization comes from locking the event row for the transaction.
type InventoryStore struct {
	repo *Repository
}

func NewInventoryStore(repo *Repository) *InventoryStore {
	return &InventoryStore{repo: repo}
}

var _ inventory.Store = (*InventoryStore)(nil)

const reservationColumns = `id, event_id, quantity, status, expires_at, created_at, updated_at`

func (s *InventoryStore) CreateEvent(ctx context.Context, inv domain.EventInventory) error {
	_, err := s.repo.pool.Exec(ctx, `
		INSERT INTO event_inventory (event_id, capacity, sold, reserved, status, published_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, inv.EventID, inv.Capacity, inv.Sold, inv.Reserved, inv.Status, inv.PublishedAt, inv.UpdatedAt)
	return mapError(err)
}

func (s *InventoryStore) Event(ctx context.Context, eventID uuid.UUID) (domain.EventInventory, error) {
	return scanEvent(s.repo.pool.QueryRow(ctx, `
		SELECT event_id, capacity, sold, reserved, status, published_at, updated_at
		FROM event_inventory WHERE event_id = $1
	`, eventID))
}

func (s *InventoryStore) Reservation(ctx context.Context, id uuid.UUID) (domain.Reservation, error) {
	return scanReservation(s.repo.pool.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1`, id))
}

func (s *InventoryStore) WithEvent(ctx context.Context, eventID uuid.UUID, fn func(ctx context.Context, tx inventory.EventTx) error) error {
	return s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		inv, err := scanEvent(tx.QueryRow(ctx, `
			SELECT event_id, capacity, sold, reserved, status, published_at, updated_at
			FROM event_inventory WHERE event_id = $1 FOR UPDATE
		`, eventID))
		if err != nil {
			return err
		}

		etx := &eventTx{tx: tx, inv: inv, staged: make(map[uuid.UUID]domain.Reservation)}
		if err := fn(ctx, etx); err != nil {
			return err
		}
		return etx.flush(ctx)
	})
}

func (s *InventoryStore) Expired(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	rows, err := s.repo.pool.Query(ctx, `
		SELECT `+reservationColumns+`
		FROM reservations WHERE status = 'HELD' AND expires_at <= $1
		ORDER BY expires_at ASC LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type eventTx struct {
	tx     pgx.Tx
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
	r, err := scanReservation(t.tx.QueryRow(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE id = $1 AND event_id = $2`, id, t.inv.EventID))
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (t *eventTx) SaveReservation(r domain.Reservation) {
	t.staged[r.ID] = r
}

func (t *eventTx) flush(ctx context.Context) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE event_inventory SET sold = $2, reserved = $3, status = $4, updated_at = $5
		WHERE event_id = $1
	`, t.inv.EventID, t.inv.Sold, t.inv.Reserved, t.inv.Status, t.inv.UpdatedAt)
	if err != nil {
		return err
	}
	for _, r := range t.staged {
		_, err := t.tx.Exec(ctx, `
			UPSERT INTO reservations (`+reservationColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, r.ID, r.EventID, r.Quantity, r.Status, r.ExpiresAt, r.CreatedAt, r.UpdatedAt)
		if err != nil {
			return err
		}
	}
	return nil
}

func scanEvent(row pgx.Row) (domain.EventInventory, error) {
	var inv domain.EventInventory
	err := row.Scan(&inv.EventID, &inv.Capacity, &inv.Sold, &inv.Reserved, &inv.Status, &inv.PublishedAt, &inv.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EventInventory{}, domain.ErrEventNotFound
	}
	if err != nil {
		return domain.EventInventory{}, err
	}
	return inv, nil
}

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var r domain.Reservation
	err := row.Scan(&r.ID, &r.EventID, &r.Quantity, &r.Status, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reservation{}, domain.ErrUnknownReservation
	}
	if err != nil {
		return domain.Reservation{}, err
	}
	return r, nil
}
