package postgres

import (
	"context"
	"database/sql"
	"fmt"
)

// schema is idempotent so it can run on every start.
const schema = `
CREATE TABLE IF NOT EXISTS drivers (
	id                  TEXT PRIMARY KEY,
	lat                 DOUBLE PRECISION,
	lng                 DOUBLE PRECISION,
	location_updated_at TIMESTAMPTZ,
	online              BOOLEAN NOT NULL DEFAULT FALSE,
	available           BOOLEAN NOT NULL DEFAULT FALSE,
	approved            BOOLEAN NOT NULL DEFAULT FALSE,
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL,
	CONSTRAINT drivers_available_requires_online CHECK (NOT available OR online)
);

CREATE TABLE IF NOT EXISTS riders (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	phone      TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ride_requests (
	id                     TEXT PRIMARY KEY,
	rider_id               TEXT NOT NULL,
	pickup_lat             DOUBLE PRECISION NOT NULL,
	pickup_lng             DOUBLE PRECISION NOT NULL,
	pickup_address         TEXT NOT NULL DEFAULT '',
	destination_lat        DOUBLE PRECISION NOT NULL,
	destination_lng        DOUBLE PRECISION NOT NULL,
	destination_address    TEXT NOT NULL DEFAULT '',
	requested_price        DOUBLE PRECISION NOT NULL,
	suggested_price        DOUBLE PRECISION NOT NULL DEFAULT 0,
	final_price            DOUBLE PRECISION,
	distance_km            DOUBLE PRECISION NOT NULL DEFAULT 0,
	estimated_duration_min INTEGER NOT NULL DEFAULT 0,
	search_radius_km       DOUBLE PRECISION NOT NULL,
	status                 TEXT NOT NULL,
	expires_at             TIMESTAMPTZ NOT NULL,
	created_at             TIMESTAMPTZ NOT NULL,
	updated_at             TIMESTAMPTZ NOT NULL,
	accepted_by_driver_id  TEXT,
	accepted_at            TIMESTAMPTZ,
	cancelled_at           TIMESTAMPTZ,
	cancel_reason          TEXT NOT NULL DEFAULT '',
	vehicle_type           TEXT NOT NULL DEFAULT '',
	payment_method         TEXT NOT NULL,
	notes                  TEXT NOT NULL DEFAULT '',
	CONSTRAINT ride_requests_status_check
		CHECK (status IN ('searching', 'pending', 'accepted', 'rejected', 'expired', 'cancelled')),
	CONSTRAINT ride_requests_winner_iff_accepted
		CHECK ((status = 'accepted') = (accepted_by_driver_id IS NOT NULL))
);

CREATE INDEX IF NOT EXISTS ride_requests_open_expiry_idx
	ON ride_requests (expires_at) WHERE status IN ('searching', 'pending');

CREATE TABLE IF NOT EXISTS ride_candidates (
	ride_request_id         TEXT NOT NULL REFERENCES ride_requests (id) ON DELETE CASCADE,
	driver_id               TEXT NOT NULL,
	distance_from_pickup_km DOUBLE PRECISION NOT NULL,
	estimated_arrival_min   INTEGER NOT NULL,
	counter_offer_price     DOUBLE PRECISION,
	status                  TEXT NOT NULL,
	viewed_at               TIMESTAMPTZ NOT NULL,
	responded_at            TIMESTAMPTZ,
	PRIMARY KEY (ride_request_id, driver_id),
	CONSTRAINT ride_candidates_status_check
		CHECK (status IN ('viewed', 'interested', 'counter_offered', 'accepted', 'rejected'))
);

CREATE UNIQUE INDEX IF NOT EXISTS ride_candidates_single_winner_idx
	ON ride_candidates (ride_request_id) WHERE status = 'accepted';

CREATE INDEX IF NOT EXISTS ride_candidates_driver_idx ON ride_candidates (driver_id);

CREATE TABLE IF NOT EXISTS fare_offers (
	id              TEXT PRIMARY KEY,
	ride_request_id TEXT NOT NULL REFERENCES ride_requests (id) ON DELETE CASCADE,
	driver_id       TEXT NOT NULL,
	price           DOUBLE PRECISION NOT NULL CHECK (price > 0),
	status          TEXT NOT NULL CHECK (status IN ('pending', 'accepted', 'rejected')),
	created_at      TIMESTAMPTZ NOT NULL,
	responded_at    TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS fare_offers_single_pending_idx
	ON fare_offers (ride_request_id, driver_id) WHERE status = 'pending';
`

// Migrate creates the tables and indexes the repositories rely on.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
