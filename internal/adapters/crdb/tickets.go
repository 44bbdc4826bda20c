package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/ledger"
)

// TicketStore persists tickets. Status changes lock the ticket row.
type TicketStore struct {
	repo *Repository
}

func NewTicketStore(repo *Repository) *TicketStore {
	return &TicketStore{repo: repo}
}

var _ ledger.Store = (*TicketStore)(nil)

const ticketColumns = `id, user_id, event_id, reservation_id, quantity, status, created_at, used_at, checked_in_by, updated_at`

func (s *TicketStore) Insert(ctx context.Context, t domain.Ticket) error {
	_, err := s.repo.pool.Exec(ctx, `
		INSERT INTO tickets (`+ticketColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, t.ID, t.UserID, t.EventID, t.ReservationID, t.Quantity, t.Status, t.CreatedAt, t.UsedAt, t.CheckedInBy, t.UpdatedAt)
	return mapError(err)
}

func (s *TicketStore) Get(ctx context.Context, id uuid.UUID) (domain.Ticket, error) {
	return scanTicket(s.repo.pool.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, id))
}

func (s *TicketStore) ByReservation(ctx context.Context, reservationID uuid.UUID) (domain.Ticket, error) {
	return scanTicket(s.repo.pool.QueryRow(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE reservation_id = $1`, reservationID))
}

func (s *TicketStore) ByUser(ctx context.Context, userID uuid.UUID) ([]domain.Ticket, error) {
	rows, err := s.repo.pool.Query(ctx,
		`SELECT `+ticketColumns+` FROM tickets WHERE user_id = $1 ORDER BY created_at ASC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *TicketStore) Update(ctx context.Context, id uuid.UUID, fn func(t *domain.Ticket) ([]domain.Event, error)) (domain.Ticket, error) {
	var out domain.Ticket
	err := s.repo.WithTx(ctx, func(tx pgx.Tx) error {
		t, err := scanTicket(tx.QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		events, err := fn(&t)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE tickets SET status = $2, used_at = $3, checked_in_by = $4, updated_at = $5
			WHERE id = $1
		`, t.ID, t.Status, t.UsedAt, t.CheckedInBy, t.UpdatedAt)
		if err != nil {
			return err
		}
		for _, ev := range events {
			rec, err := OutboxRecordFor(ev)
			if err != nil {
				return err
			}
			if err := s.repo.InsertOutbox(ctx, tx, rec); err != nil {
				return err
			}
		}
		out = t
		return nil
	})
	if err != nil {
		return domain.Ticket{}, err
	}
	return out, nil
}

func scanTicket(row pgx.Row) (domain.Ticket, error) {
	var t domain.Ticket
	err := row.Scan(&t.ID, &t.UserID, &t.EventID, &t.ReservationID, &t.Quantity, &t.Status,
		&t.CreatedAt, &t.UsedAt, &t.CheckedInBy, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Ticket{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Ticket{}, err
	}
	return t, nil
}
