package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/ticket-inventory/internal/domain"
)

type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string // NEW, PUBLISHED, FAILED
	DedupeKey     string
}

// OutboxRecordFor builds the outbox row for a ticket event. The dedupe key
// allows one record per ticket and event type.
func OutboxRecordFor(ev domain.Event) (OutboxRecord, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return OutboxRecord{}, errors.Wrap(err, "marshal event")
	}
	return OutboxRecord{
		ID:            ev.ID,
		AggregateType: "ticket",
		AggregateID:   ev.TicketID,
		EventType:     string(ev.Type),
		Payload:       payload,
		CreatedAt:     ev.OccurredAt,
		Status:        "NEW",
		DedupeKey:     ev.TicketID.String() + ":" + string(ev.Type),
	}, nil
}

// InsertOutbox writes record in the caller's transaction. A record whose
// dedupe key is already stored is skipped.
func (r *Repository) InsertOutbox(ctx context.Context, tx pgx.Tx, record OutboxRecord) error {
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key, created_at)
		VALUES ($1, $2, $3, $4, $5, 'NEW', $6, $7)
		ON CONFLICT (dedupe_key) DO NOTHING
	`, record.ID, record.AggregateType, record.AggregateID, record.EventType, record.Payload, record.DedupeKey, createdAt)
	return err
}

// Relay claims up to limit pending records and hands them to fn in creation
// order. Records fn accepted are marked published in the same transaction; the
// first failure stops the batch so ordering per aggregate is kept.
func (r *Repository) Relay(ctx context.Context, limit int, fn func(ctx context.Context, rec OutboxRecord) error) (int, error) {
	published := 0
	err := r.WithTx(ctx, func(tx pgx.Tx) error {
		published = 0
		records, err := claimOutbox(ctx, tx, limit)
		if err != nil {
			return err
		}
		for _, rec := range records {
			if err := fn(ctx, rec); err != nil {
				return nil
			}
			if err := markPublished(ctx, tx, rec.ID, time.Now().UTC()); err != nil {
				return err
			}
			published++
		}
		return nil
	})
	return published, err
}

// OldestPending returns the creation time of the oldest unpublished record.
func (r *Repository) OldestPending(ctx context.Context) (time.Time, bool, error) {
	var created *time.Time
	err := r.pool.QueryRow(ctx, `SELECT min(created_at) FROM outbox WHERE status = 'NEW'`).Scan(&created)
	if err != nil {
		return time.Time{}, false, err
	}
	if created == nil {
		return time.Time{}, false, nil
	}
	return *created, true, nil
}

func claimOutbox(ctx context.Context, tx pgx.Tx, limit int) ([]OutboxRecord, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC LIMIT $1 FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		err := rows.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func markPublished(ctx context.Context, tx pgx.Tx, id uuid.UUID, publishedAt time.Time) error {
	_, err := tx.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
	`, id, publishedAt)
	return err
}
