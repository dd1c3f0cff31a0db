package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/berlin-traffic-map/roadkpi/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS road_kpi_snapshots (
	snapshot_id   TEXT PRIMARY KEY,
	run_id        TEXT,
	timestamp     TEXT NOT NULL,
	vehicle_type  TEXT NOT NULL,
	kpi_type      TEXT NOT NULL,
	feature_count INTEGER NOT NULL,
	features      JSONB NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (timestamp, vehicle_type, kpi_type)
);
CREATE INDEX IF NOT EXISTS idx_road_kpi_snapshots_filter
	ON road_kpi_snapshots (vehicle_type, kpi_type, timestamp);
`

// PostgresStore keeps snapshots in PostgreSQL with features as JSONB
type PostgresStore struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects a pool and ensures the schema
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Save upserts a snapshot
func (s *PostgresStore) Save(ctx context.Context, snap *models.Snapshot) error {
	features, err := json.Marshal(snap.FeatureCollection().Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}
	if snap.SnapshotID == "" {
		snap.SnapshotID = uuid.New().String()
	}
	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO road_kpi_snapshots (
			snapshot_id, run_id, timestamp, vehicle_type, kpi_type,
			feature_count, features, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (timestamp, vehicle_type, kpi_type) DO UPDATE SET
			snapshot_id = EXCLUDED.snapshot_id,
			run_id = EXCLUDED.run_id,
			feature_count = EXCLUDED.feature_count,
			features = EXCLUDED.features,
			created_at = EXCLUDED.created_at
	`, snap.SnapshotID, snap.RunID, snap.Timestamp, snap.VehicleType, snap.KPIType,
		len(snap.Features), features, createdAt)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// Reset deletes every snapshot
func (s *PostgresStore) Reset(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, "TRUNCATE road_kpi_snapshots"); err != nil {
		return fmt.Errorf("failed to reset snapshots: %w", err)
	}
	return nil
}

// Timestamps lists stored timestamps for a vehicle/kpi combination
func (s *PostgresStore) Timestamps(ctx context.Context, vehicleType, kpiType string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT timestamp FROM road_kpi_snapshots
		WHERE vehicle_type = $1 AND kpi_type = $2
		ORDER BY timestamp
	`, vehicleType, kpiType)
	if err != nil {
		return nil, fmt.Errorf("failed to query timestamps: %w", err)
	}
	defer rows.Close()

	timestamps := []string{}
	for rows.Next() {
		var ts string
		if err := rows.Scan(&ts); err != nil {
			return nil, fmt.Errorf("failed to scan timestamp: %w", err)
		}
		timestamps = append(timestamps, ts)
	}
	return timestamps, rows.Err()
}

// Range returns snapshots in [start, end] ordered by timestamp
func (s *PostgresStore) Range(ctx context.Context, vehicleType, kpiType, start, end string) ([]models.Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT snapshot_id, COALESCE(run_id, ''), timestamp, vehicle_type, kpi_type, features, created_at
		FROM road_kpi_snapshots
		WHERE vehicle_type = $1 AND kpi_type = $2 AND timestamp >= $3 AND timestamp <= $4
		ORDER BY timestamp
	`, vehicleType, kpiType, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.Snapshot
	for rows.Next() {
		snap, err := scanPgSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

// Get returns one snapshot
func (s *PostgresStore) Get(ctx context.Context, key models.Key) (*models.Snapshot, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT snapshot_id, COALESCE(run_id, ''), timestamp, vehicle_type, kpi_type, features, created_at
		FROM road_kpi_snapshots
		WHERE timestamp = $1 AND vehicle_type = $2 AND kpi_type = $3
	`, key.Timestamp, key.VehicleType, key.KPIType)

	snap, err := scanPgSnapshot(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return snap, err
}

// Ping checks the pool
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func scanPgSnapshot(row pgx.Row) (*models.Snapshot, error) {
	var snap models.Snapshot
	var features []byte
	if err := row.Scan(&snap.SnapshotID, &snap.RunID, &snap.Timestamp, &snap.VehicleType, &snap.KPIType, &features, &snap.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	if err := json.Unmarshal(features, &snap.Features); err != nil {
		return nil, fmt.Errorf("failed to decode features of %s: %w", snap.Timestamp, err)
	}
	return &snap, nil
}
