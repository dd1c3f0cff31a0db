package store

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/berlin-traffic-map/roadkpi/internal/config"
	"github.com/berlin-traffic-map/roadkpi/internal/models"
)

// ErrNotFound is returned when no snapshot exists for a key
var ErrNotFound = errors.New("snapshot not found")

// Store persists snapshots keyed by (timestamp, vehicle type, kpi type).
// Save replaces an existing snapshot with the same key.
type Store interface {
	Save(ctx context.Context, snap *models.Snapshot) error
	Reset(ctx context.Context) error
	Timestamps(ctx context.Context, vehicleType, kpiType string) ([]string, error)
	// Range returns snapshots with start <= timestamp <= end ordered by timestamp
	Range(ctx context.Context, vehicleType, kpiType, start, end string) ([]models.Snapshot, error)
	Get(ctx context.Context, key models.Key) (*models.Snapshot, error)
	Ping(ctx context.Context) error
	Close() error
}

// Open connects the backend selected in the configuration
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.StoreBackend {
	case "file":
		return NewFileStore(cfg.SnapshotDir)
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLitePath)
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres store")
		}
		return OpenPostgres(ctx, cfg.DatabaseURL)
	case "mongo":
		return OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}

func sortedUnique(values []string) []string {
	sort.Strings(values)
	out := values[:0]
	for i, v := range values {
		if i == 0 || v != values[i-1] {
			out = append(out, v)
		}
	}
	return out
}
