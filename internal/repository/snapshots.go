package repository

import (
	"context"
	"encoding/json"
	"log"

	"github.com/berlin-traffic-map/roadkpi/internal/models"
)

// SnapshotSource is the read half of a snapshot store
type SnapshotSource interface {
	Timestamps(ctx context.Context, vehicleType, kpiType string) ([]string, error)
	Range(ctx context.Context, vehicleType, kpiType, start, end string) ([]models.Snapshot, error)
	Get(ctx context.Context, key models.Key) (*models.Snapshot, error)
	Ping(ctx context.Context) error
}

// SnapshotRepository serves dashboard frames from a store, caching
// encoded results when a cache is configured
type SnapshotRepository struct {
	source SnapshotSource
	cache  Cache
}

// NewSnapshotRepository wraps source; a nil cache disables caching
func NewSnapshotRepository(source SnapshotSource, cache Cache) *SnapshotRepository {
	if cache == nil {
		cache = NoCache{}
	}
	return &SnapshotRepository{source: source, cache: cache}
}

// Timestamps returns the sorted timestamps of one vehicle/kpi combination
func (r *SnapshotRepository) Timestamps(ctx context.Context, vehicleType, kpiType string) ([]string, error) {
	key := CacheKey(vehicleType, kpiType, "timestamps")

	var timestamps []string
	if r.fromCache(ctx, key, &timestamps) {
		return timestamps, nil
	}

	timestamps, err := r.source.Timestamps(ctx, vehicleType, kpiType)
	if err != nil {
		return nil, err
	}
	r.toCache(ctx, key, timestamps)
	return timestamps, nil
}

// Frames returns one frame per stored timestamp in [start, end]
func (r *SnapshotRepository) Frames(ctx context.Context, vehicleType, kpiType, start, end string) ([]models.Frame, error) {
	key := CacheKey(vehicleType, kpiType, "frames", start, end)

	var frames []models.Frame
	if r.fromCache(ctx, key, &frames) {
		return frames, nil
	}

	snaps, err := r.source.Range(ctx, vehicleType, kpiType, start, end)
	if err != nil {
		return nil, err
	}
	frames = make([]models.Frame, 0, len(snaps))
	for i := range snaps {
		frames = append(frames, models.Frame{
			Timestamp: snaps[i].Timestamp,
			GeoJSON:   snaps[i].FeatureCollection(),
		})
	}
	r.toCache(ctx, key, frames)
	return frames, nil
}

// Frame returns the frame of a single snapshot
func (r *SnapshotRepository) Frame(ctx context.Context, key models.Key) (*models.Frame, error) {
	ck := CacheKey(key.VehicleType, key.KPIType, "frame", key.Timestamp)

	var frame models.Frame
	if r.fromCache(ctx, ck, &frame) {
		return &frame, nil
	}

	snap, err := r.source.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	frame = models.Frame{Timestamp: snap.Timestamp, GeoJSON: snap.FeatureCollection()}
	r.toCache(ctx, ck, frame)
	return &frame, nil
}

// Invalidate drops cached responses of one vehicle/kpi combination
func (r *SnapshotRepository) Invalidate(ctx context.Context, vehicleType, kpiType string) error {
	return r.cache.Invalidate(ctx, vehicleType, kpiType)
}

// Ping checks the underlying store
func (r *SnapshotRepository) Ping(ctx context.Context) error {
	return r.source.Ping(ctx)
}

// Cache failures degrade to reading the store
func (r *SnapshotRepository) fromCache(ctx context.Context, key string, dst any) bool {
	data, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		log.Printf("Warning: cache read failed: %v", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dst); err != nil {
		log.Printf("Warning: dropping undecodable cache entry %s: %v", key, err)
		return false
	}
	return true
}

func (r *SnapshotRepository) toCache(ctx context.Context, key string, value any) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, data); err != nil {
		log.Printf("Warning: cache write failed: %v", err)
	}
}
