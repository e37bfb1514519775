package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// The (device_id, observed_at) uniqueness constraint is the safety net
// against duplicate writes from scheduler restarts or races; everything
// upstream may assume at-least-once semantics.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS devices (
		device_id  TEXT PRIMARY KEY,
		name       TEXT NOT NULL,
		location   TEXT,
		endpoint   TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS measurements (
		id           BIGSERIAL PRIMARY KEY,
		device_id    TEXT NOT NULL REFERENCES devices (device_id),
		observed_at  TIMESTAMPTZ NOT NULL,
		depth_mm     DOUBLE PRECISION,
		velocity_mps DOUBLE PRECISION,
		flow_lps     DOUBLE PRECISION,
		created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
		CONSTRAINT measurements_device_observed_key UNIQUE (device_id, observed_at)
	)`,
	`CREATE INDEX IF NOT EXISTS measurements_device_observed_idx
		ON measurements (device_id, observed_at DESC)`,
}

// EnsureSchema creates the tables and indexes if they do not exist yet.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("[DATABASE] failed to apply schema: %w", err)
		}
	}
	return nil
}
