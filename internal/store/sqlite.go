package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/berlin-traffic-map/roadkpi/internal/models"
)

// schemaSQL is the single source of truth for the SQLite schema.
//
//go:embed schema.sql
var schemaSQL string

// SQLiteStore keeps snapshots in a SQLite database with write serialization
type SQLiteStore struct {
	conn    *sql.DB
	writeMu sync.Mutex // Serializes all write operations to prevent transaction conflicts
}

// OpenSQLite opens a SQLite database with WAL mode enabled and ensures the schema
func OpenSQLite(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database dir: %w", err)
		}
	}

	dsn := dbPath + "?_journal=WAL&_fk=1&_busy_timeout=5000"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite supports one writer at a time: a single connection plus writeMu
	// keeps parallel slice workers from starting nested transactions.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 10000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := conn.ExecContext(ctx, pragma); err != nil {
			log.Printf("Warning: failed to set %s: %v", pragma, err)
		}
	}

	s := &SQLiteStore{conn: conn}
	if err := s.EnsureSchema(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	log.Printf("Connected to SQLite database: %s", dbPath)
	return s, nil
}

// EnsureSchema creates tables if they don't exist
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := s.conn.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Save upserts a snapshot
func (s *SQLiteStore) Save(ctx context.Context, snap *models.Snapshot) error {
	features, err := json.Marshal(snap.FeatureCollection().Features)
	if err != nil {
		return fmt.Errorf("failed to encode features: %w", err)
	}
	if snap.SnapshotID == "" {
		snap.SnapshotID = uuid.New().String()
	}
	createdAt := snap.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.conn.ExecContext(ctx, `
		INSERT INTO road_kpi_snapshots (
			snapshot_id, run_id, timestamp, vehicle_type, kpi_type,
			feature_count, features, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (timestamp, vehicle_type, kpi_type) DO UPDATE SET
			snapshot_id = excluded.snapshot_id,
			run_id = excluded.run_id,
			feature_count = excluded.feature_count,
			features = excluded.features,
			created_at = excluded.created_at
	`,
		snap.SnapshotID, snap.RunID, snap.Timestamp, snap.VehicleType, snap.KPIType,
		len(snap.Features), string(features), createdAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

// Reset deletes every snapshot and run record
func (s *SQLiteStore) Reset(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	total := 0
	for _, table := range []string{"road_kpi_snapshots", "snapshot_runs"} {
		result, err := s.conn.ExecContext(ctx, "DELETE FROM "+table)
		if err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
		rows, _ := result.RowsAffected()
		total += int(rows)
	}

	log.Printf("Reset: deleted %d stored records", total)
	return nil
}

// StartRun records the beginning of a generator run
func (s *SQLiteStore) StartRun(ctx context.Context, runID string, startedAt time.Time) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.conn.ExecContext(ctx,
		"INSERT INTO snapshot_runs (run_id, started_at) VALUES (?, ?)",
		runID, startedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// FinishRun stores the outcome counters of a generator run
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, written, skipped, failed int) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err := s.conn.ExecContext(ctx, `
		UPDATE snapshot_runs
		SET finished_at = ?, written = ?, skipped = ?, failed = ?
		WHERE run_id = ?
	`, time.Now().UTC().Format(time.RFC3339), written, skipped, failed, runID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	return nil
}

// Timestamps lists stored timestamps for a vehicle/kpi combination
func (s *SQLiteStore) Timestamps(ctx context.Context, vehicleType, kpiType string) ([]string, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT DISTINCT timestamp FROM road_kpi_snapshots
		WHERE vehicle_type = ? AND kpi_type = ?
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
func (s *SQLiteStore) Range(ctx context.Context, vehicleType, kpiType, start, end string) ([]models.Snapshot, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT snapshot_id, COALESCE(run_id, ''), timestamp, vehicle_type, kpi_type, features, created_at
		FROM road_kpi_snapshots
		WHERE vehicle_type = ? AND kpi_type = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp
	`, vehicleType, kpiType, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.Snapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

// Get returns one snapshot
func (s *SQLiteStore) Get(ctx context.Context, key models.Key) (*models.Snapshot, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT snapshot_id, COALESCE(run_id, ''), timestamp, vehicle_type, kpi_type, features, created_at
		FROM road_kpi_snapshots
		WHERE timestamp = ? AND vehicle_type = ? AND kpi_type = ?
	`, key.Timestamp, key.VehicleType, key.KPIType)

	snap, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return snap, err
}

// Ping checks the connection
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.conn.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSnapshot(row scanner) (*models.Snapshot, error) {
	var snap models.Snapshot
	var features, createdAt string
	if err := row.Scan(&snap.SnapshotID, &snap.RunID, &snap.Timestamp, &snap.VehicleType, &snap.KPIType, &features, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan snapshot: %w", err)
	}
	if err := json.Unmarshal([]byte(features), &snap.Features); err != nil {
		return nil, fmt.Errorf("failed to decode features of %s: %w", snap.Timestamp, err)
	}
	snap.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &snap, nil
}
