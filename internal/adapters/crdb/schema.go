package crdb

import "context"

const schema = `
CREATE TABLE IF NOT EXISTS event_inventory (
	event_id     UUID PRIMARY KEY,
	capacity     INT NOT NULL CHECK (capacity >= 0),
	sold         INT NOT NULL DEFAULT 0 CHECK (sold >= 0),
	reserved     INT NOT NULL DEFAULT 0 CHECK (reserved >= 0),
	status       TEXT NOT NULL CHECK (status IN ('OPEN', 'CANCELLED')),
	published_at TIMESTAMPTZ NOT NULL,
	updated_at   TIMESTAMPTZ NOT NULL,
	CONSTRAINT within_capacity CHECK (sold + reserved <= capacity)
);

CREATE TABLE IF NOT EXISTS reservations (
	id         UUID PRIMARY KEY,
	event_id   UUID NOT NULL REFERENCES event_inventory (event_id),
	quantity   INT NOT NULL CHECK (quantity > 0),
	status     TEXT NOT NULL CHECK (status IN ('HELD', 'CONFIRMED', 'RELEASED', 'EXPIRED')),
	expires_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL,
	INDEX reservations_held_expiry (status, expires_at)
);

CREATE TABLE IF NOT EXISTS tickets (
	id             UUID PRIMARY KEY,
	user_id        UUID NOT NULL,
	event_id       UUID NOT NULL,
	reservation_id UUID NOT NULL UNIQUE,
	quantity       INT NOT NULL CHECK (quantity > 0),
	status         TEXT NOT NULL CHECK (status IN ('RESERVED', 'VALID', 'USED', 'CANCELLED', 'REFUNDED')),
	created_at     TIMESTAMPTZ NOT NULL,
	used_at        TIMESTAMPTZ,
	checked_in_by  UUID,
	updated_at     TIMESTAMPTZ NOT NULL,
	INDEX tickets_by_user (user_id, created_at)
);

CREATE TABLE IF NOT EXISTS outbox (
	id             UUID PRIMARY KEY,
	aggregate_type TEXT NOT NULL,
	aggregate_id   UUID NOT NULL,
	event_type     TEXT NOT NULL,
	payload_json   JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	published_at   TIMESTAMPTZ,
	status         TEXT NOT NULL CHECK (status IN ('NEW', 'PUBLISHED', 'FAILED')),
	dedupe_key     TEXT NOT NULL UNIQUE,
	INDEX outbox_pending (status, created_at)
);
`

// Migrate creates the tables if they do not exist yet.
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, schema)
	return err
}
