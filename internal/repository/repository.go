package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lismorewater/flowmon/internal/db"
)

var (
	// ErrDuplicateMeasurement marks an append that collided with an
	// existing (device, observation timestamp) pair.
	ErrDuplicateMeasurement = errors.New("measurement already stored for device and timestamp")

	// ErrDeviceConflict marks a device registration whose endpoint
	// disagrees with the one already on record.
	ErrDeviceConflict = errors.New("device already registered with a different endpoint")
)

const pgUniqueViolation = "23505"

// MeasurementRow is a measurement joined with its device's display name,
// as served by the read API.
type MeasurementRow struct {
	db.Measurement
	DeviceName string
}

// DeviceStats summarizes the stored measurements of one device.
type DeviceStats struct {
	DeviceID string    `json:"device_id"`
	Count    int64     `json:"count"`
	FirstAt  time.Time `json:"first_at"`
	LastAt   time.Time `json:"last_at"`
}

// QueryFilter narrows a measurement query. Zero values mean no constraint;
// Limit zero falls back to the repository default.
type QueryFilter struct {
	DeviceID string
	Since    time.Time
	Limit    int
}

const defaultQueryLimit = 1000

// Repository handles database operations
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// RegisterDevice makes sure the device exists. A fresh identifier is
// inserted; a known identifier with the same endpoint has its name and
// location refreshed; a known identifier with a different endpoint returns
// ErrDeviceConflict, because silently repointing a device would mix two
// data streams under one identity.
func (r *Repository) RegisterDevice(ctx context.Context, d *db.Device) error {
	insert := `
		INSERT INTO devices (device_id, name, location, endpoint)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (device_id) DO NOTHING
	`

	tag, err := r.pool.Exec(ctx, insert, d.ID, d.Name, d.Location, d.Endpoint)
	if err != nil {
		return fmt.Errorf("failed to register device %s: %w", d.ID, err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var endpoint string
	err = r.pool.QueryRow(ctx, `SELECT endpoint FROM devices WHERE device_id = $1`, d.ID).Scan(&endpoint)
	if err != nil {
		return fmt.Errorf("failed to query device %s: %w", d.ID, err)
	}
	if endpoint != d.Endpoint {
		return fmt.Errorf("device %s: %w", d.ID, ErrDeviceConflict)
	}

	update := `
		UPDATE devices
		SET name = $2, location = $3
		WHERE device_id = $1
	`
	if _, err := r.pool.Exec(ctx, update, d.ID, d.Name, d.Location); err != nil {
		return fmt.Errorf("failed to update device %s: %w", d.ID, err)
	}
	return nil
}

// AppendMeasurement inserts a measurement. A collision on the storage
// layer's (device, observation timestamp) uniqueness constraint comes back
// as ErrDuplicateMeasurement, which callers treat as already-stored rather
// than failure.
func (r *Repository) AppendMeasurement(ctx context.Context, m *db.Measurement) error {
	query := `
		INSERT INTO measurements (device_id, observed_at, depth_mm, velocity_mps, flow_lps)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`

	err := r.pool.QueryRow(ctx, query,
		m.DeviceID,
		m.ObservedAt,
		m.DepthMM,
		m.VelocityMPS,
		m.FlowLPS,
	).Scan(&m.ID, &m.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return fmt.Errorf("device %s at %s: %w", m.DeviceID, m.ObservedAt, ErrDuplicateMeasurement)
		}
		return fmt.Errorf("failed to insert measurement: %w", err)
	}

	return nil
}

// QueryMeasurements returns measurements newest first, optionally narrowed
// to one device and a lower timestamp bound.
func (r *Repository) QueryMeasurements(ctx context.Context, filter QueryFilter) ([]MeasurementRow, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}

	query := `
		SELECT m.id, m.device_id, d.name, m.observed_at,
		       m.depth_mm, m.velocity_mps, m.flow_lps, m.created_at
		FROM measurements m
		JOIN devices d ON d.device_id = m.device_id
		WHERE ($1 = '' OR m.device_id = $1)
		  AND ($2::timestamptz IS NULL OR m.observed_at >= $2)
		ORDER BY m.observed_at DESC
		LIMIT $3
	`

	var since *time.Time
	if !filter.Since.IsZero() {
		since = &filter.Since
	}

	rows, err := r.pool.Query(ctx, query, filter.DeviceID, since, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query measurements: %w", err)
	}
	defer rows.Close()

	var out []MeasurementRow
	for rows.Next() {
		var m MeasurementRow
		if err := rows.Scan(
			&m.ID,
			&m.DeviceID,
			&m.DeviceName,
			&m.ObservedAt,
			&m.DepthMM,
			&m.VelocityMPS,
			&m.FlowLPS,
			&m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan measurement: %w", err)
		}
		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return out, nil
}

// LatestMeasurement returns the device's newest measurement, or nil when
// none is stored yet.
func (r *Repository) LatestMeasurement(ctx context.Context, deviceID string) (*db.Measurement, error) {
	query := `
		SELECT id, device_id, observed_at, depth_mm, velocity_mps, flow_lps, created_at
		FROM measurements
		WHERE device_id = $1
		ORDER BY observed_at DESC
		LIMIT 1
	`

	var m db.Measurement
	err := r.pool.QueryRow(ctx, query, deviceID).Scan(
		&m.ID,
		&m.DeviceID,
		&m.ObservedAt,
		&m.DepthMM,
		&m.VelocityMPS,
		&m.FlowLPS,
		&m.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest measurement for %s: %w", deviceID, err)
	}

	return &m, nil
}

// ListDevices returns every registered device ordered by identifier.
func (r *Repository) ListDevices(ctx context.Context) ([]db.Device, error) {
	query := `
		SELECT device_id, name, location, endpoint, created_at
		FROM devices
		ORDER BY device_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var out []db.Device
	for rows.Next() {
		var d db.Device
		if err := rows.Scan(&d.ID, &d.Name, &d.Location, &d.Endpoint, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		out = append(out, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return out, nil
}

// Stats returns per-device measurement counts and observation bounds.
func (r *Repository) Stats(ctx context.Context) ([]DeviceStats, error) {
	query := `
		SELECT device_id, count(*), min(observed_at), max(observed_at)
		FROM measurements
		GROUP BY device_id
		ORDER BY device_id
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query stats: %w", err)
	}
	defer rows.Close()

	var out []DeviceStats
	for rows.Next() {
		var s DeviceStats
		if err := rows.Scan(&s.DeviceID, &s.Count, &s.FirstAt, &s.LastAt); err != nil {
			return nil, fmt.Errorf("failed to scan stats: %w", err)
		}
		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return out, nil
}

// DeviceCount returns the number of registered devices.
func (r *Repository) DeviceCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM devices`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count devices: %w", err)
	}
	return count, nil
}

// MeasurementCount returns the total number of stored measurements.
func (r *Repository) MeasurementCount(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM measurements`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count measurements: %w", err)
	}
	return count, nil
}
