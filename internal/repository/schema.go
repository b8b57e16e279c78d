package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const schema = `
CREATE TABLE IF NOT EXISTS airlines (
	id         BIGSERIAL PRIMARY KEY,
	name       TEXT NOT NULL UNIQUE,
	code       VARCHAR(4) NOT NULL UNIQUE,
	country    TEXT NOT NULL DEFAULT '',
	active     BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS flights (
	id               BIGSERIAL PRIMARY KEY,
	name             TEXT NOT NULL,
	airline_id       BIGINT NOT NULL REFERENCES airlines(id),
	distance_km      DOUBLE PRECISION NOT NULL,
	origin           TEXT NOT NULL,
	destination      TEXT NOT NULL,
	departure_time   TIMESTAMPTZ NOT NULL,
	duration_minutes INTEGER NOT NULL CHECK (duration_minutes > 0),
	price_cents      BIGINT NOT NULL CHECK (price_cents > 0),
	total_seats      INTEGER NOT NULL CHECK (total_seats > 0),
	creator_id       BIGINT NOT NULL,
	status           TEXT NOT NULL CHECK (status IN ('PENDING_APPROVAL','APPROVED','REJECTED','IN_PROGRESS','FINISHED','CANCELLED')),
	rejection_reason TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	CHECK (origin <> destination)
);
CREATE INDEX IF NOT EXISTS flights_status_idx ON flights (status);
CREATE INDEX IF NOT EXISTS flights_airline_idx ON flights (airline_id);
CREATE INDEX IF NOT EXISTS flights_creator_idx ON flights (creator_id);

CREATE TABLE IF NOT EXISTS tickets (
	id           BIGSERIAL PRIMARY KEY,
	flight_id    BIGINT NOT NULL REFERENCES flights(id) ON DELETE CASCADE,
	user_id      BIGINT NOT NULL,
	price_cents  BIGINT NOT NULL,
	voided       BOOLEAN NOT NULL DEFAULT FALSE,
	purchased_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS tickets_flight_user_idx ON tickets (flight_id, user_id);
CREATE INDEX IF NOT EXISTS tickets_user_idx ON tickets (user_id);
CREATE UNIQUE INDEX IF NOT EXISTS tickets_one_active_per_user ON tickets (flight_id, user_id) WHERE NOT voided;

CREATE TABLE IF NOT EXISTS ratings (
	id         BIGSERIAL PRIMARY KEY,
	flight_id  BIGINT NOT NULL REFERENCES flights(id) ON DELETE CASCADE,
	user_id    BIGINT NOT NULL,
	score      SMALLINT NOT NULL CHECK (score BETWEEN 1 AND 5),
	comment    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT ratings_flight_user_unique UNIQUE (flight_id, user_id)
);
`

// Migrate creates the tables and indexes when they do not exist yet.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
