package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/berlin-traffic-map/roadkpi/internal/kpi"
	"github.com/berlin-traffic-map/roadkpi/internal/models"
)

const filePrefix = "road_kpi_"

// FileStore writes one GeoJSON file per snapshot under
// <root>/<vehicle_type>/<kpi_type>/road_kpi_<YYYY-MM-DD HH-00>.geojson
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) dir(vehicleType, kpiType string) string {
	return filepath.Join(s.root, filepath.Base(vehicleType), filepath.Base(kpiType))
}

func (s *FileStore) path(key models.Key) string {
	name := filePrefix + kpi.SafeTimestamp(key.Timestamp) + ".geojson"
	return filepath.Join(s.dir(key.VehicleType, key.KPIType), name)
}

// Save writes the feature collection atomically
func (s *FileStore) Save(ctx context.Context, snap *models.Snapshot) error {
	path := s.path(snap.Key())
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot dir: %w", err)
	}

	data, err := json.Marshal(snap.FeatureCollection())
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// Reset removes every stored snapshot
func (s *FileStore) Reset(ctx context.Context) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return fmt.Errorf("failed to list snapshot dir: %w", err)
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.root, e.Name())); err != nil {
			return fmt.Errorf("failed to remove %s: %w", e.Name(), err)
		}
	}
	return nil
}

// Timestamps lists the stored timestamps of one vehicle/kpi combination
func (s *FileStore) Timestamps(ctx context.Context, vehicleType, kpiType string) ([]string, error) {
	entries, err := os.ReadDir(s.dir(vehicleType, kpiType))
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	timestamps := make([]string, 0, len(entries))
	for _, e := range entries {
		if ts, ok := timestampFromFile(e.Name()); ok {
			timestamps = append(timestamps, ts)
		}
	}
	return sortedUnique(timestamps), nil
}

// Range reads all snapshots between start and end inclusive
func (s *FileStore) Range(ctx context.Context, vehicleType, kpiType, start, end string) ([]models.Snapshot, error) {
	timestamps, err := s.Timestamps(ctx, vehicleType, kpiType)
	if err != nil {
		return nil, err
	}

	var snaps []models.Snapshot
	for _, ts := range timestamps {
		if ts < start || ts > end {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		snap, err := s.Get(ctx, models.Key{Timestamp: ts, VehicleType: vehicleType, KPIType: kpiType})
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, nil
}

// Get reads one snapshot
func (s *FileStore) Get(ctx context.Context, key models.Key) (*models.Snapshot, error) {
	data, err := os.ReadFile(s.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	var fc models.FeatureCollection
	if err := json.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to decode snapshot %s: %w", key.Timestamp, err)
	}
	return &models.Snapshot{
		Timestamp:   key.Timestamp,
		VehicleType: key.VehicleType,
		KPIType:     key.KPIType,
		Features:    fc.Features,
	}, nil
}

// Ping checks that the root directory is reachable
func (s *FileStore) Ping(ctx context.Context) error {
	_, err := os.Stat(s.root)
	return err
}

// Close is a no-op
func (s *FileStore) Close() error {
	return nil
}

// timestampFromFile inverts the file naming: "road_kpi_2024-12-01 08-00.geojson"
func timestampFromFile(name string) (string, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".geojson") {
		return "", false
	}
	safe := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".geojson")
	i := strings.LastIndex(safe, "-")
	if i < 0 {
		return "", false
	}
	ts := safe[:i] + ":" + safe[i+1:]
	if _, err := kpi.ParseTimestamp(ts); err != nil {
		return "", false
	}
	return ts, true
}
