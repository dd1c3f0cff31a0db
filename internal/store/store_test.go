package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berlin-traffic-map/roadkpi/internal/config"
	"github.com/berlin-traffic-map/roadkpi/internal/models"
)

func feature(name string, value float64) models.Feature {
	return models.Feature{
		Type: "Feature",
		Geometry: models.LineStringGeometry{
			Type:        "LineString",
			Coordinates: [][2]float64{{13.40, 52.52}, {13.41, 52.52}},
		},
		Properties: models.SegmentProperties{NameRoadSegment: name, Value: value},
	}
}

func snapshot(ts string, features ...models.Feature) *models.Snapshot {
	return &models.Snapshot{
		RunID:       "run-1",
		Timestamp:   ts,
		VehicleType: "cars",
		KPIType:     "avg_speed",
		Features:    features,
	}
}

// exerciseStore runs the behaviour every backend must share
func exerciseStore(t *testing.T, s Store) {
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, snapshot("2024-12-01 09:00", feature("Unter den Linden", 31))))
	require.NoError(t, s.Save(ctx, snapshot("2024-12-01 08:00", feature("Unter den Linden", 42), feature("Friedrichstraße", 18.5))))
	require.NoError(t, s.Save(ctx, snapshot("2024-12-01 10:00", feature("Karl-Marx-Allee", 50))))

	other := snapshot("2024-12-01 08:00", feature("Invalidenstraße", 120))
	other.VehicleType = "trucks"
	other.KPIType = "number_of_vehicles"
	require.NoError(t, s.Save(ctx, other))

	timestamps, err := s.Timestamps(ctx, "cars", "avg_speed")
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-12-01 08:00", "2024-12-01 09:00", "2024-12-01 10:00"}, timestamps)

	none, err := s.Timestamps(ctx, "all", "avg_speed")
	require.NoError(t, err)
	assert.Empty(t, none)

	snaps, err := s.Range(ctx, "cars", "avg_speed", "2024-12-01 08:00", "2024-12-01 09:00")
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "2024-12-01 08:00", snaps[0].Timestamp)
	assert.Equal(t, "2024-12-01 09:00", snaps[1].Timestamp)
	assert.Len(t, snaps[0].Features, 2)

	got, err := s.Get(ctx, models.Key{Timestamp: "2024-12-01 08:00", VehicleType: "trucks", KPIType: "number_of_vehicles"})
	require.NoError(t, err)
	require.Len(t, got.Features, 1)
	assert.Equal(t, "Invalidenstraße", got.Features[0].Properties.NameRoadSegment)
	assert.Equal(t, 120.0, got.Features[0].Properties.Value)
	assert.Equal(t, [2]float64{13.40, 52.52}, got.Features[0].Geometry.Coordinates[0])

	// Saving the same key again replaces the snapshot
	require.NoError(t, s.Save(ctx, snapshot("2024-12-01 09:00", feature("Unter den Linden", 12), feature("Torstraße", 7))))
	got, err = s.Get(ctx, models.Key{Timestamp: "2024-12-01 09:00", VehicleType: "cars", KPIType: "avg_speed"})
	require.NoError(t, err)
	assert.Len(t, got.Features, 2)
	timestamps, err = s.Timestamps(ctx, "cars", "avg_speed")
	require.NoError(t, err)
	assert.Len(t, timestamps, 3)

	_, err = s.Get(ctx, models.Key{Timestamp: "2030-01-01 00:00", VehicleType: "cars", KPIType: "avg_speed"})
	assert.True(t, errors.Is(err, ErrNotFound))

	require.NoError(t, s.Ping(ctx))

	require.NoError(t, s.Reset(ctx))
	timestamps, err = s.Timestamps(ctx, "cars", "avg_speed")
	require.NoError(t, err)
	assert.Empty(t, timestamps)
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestFileStore_Layout(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)

	require.NoError(t, s.Save(context.Background(), snapshot("2024-12-01 08:00")))

	path := filepath.Join(root, "cars", "avg_speed", "road_kpi_2024-12-01 08-00.geojson")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"FeatureCollection","features":[]}`, string(data))
}

func TestFileStore_IgnoresForeignFiles(t *testing.T) {
	root := t.TempDir()
	s, err := NewFileStore(root)
	require.NoError(t, err)

	dir := filepath.Join(root, "cars", "avg_speed")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "road_kpi_garbage.geojson"), []byte("{}"), 0644))

	timestamps, err := s.Timestamps(context.Background(), "cars", "avg_speed")
	require.NoError(t, err)
	assert.Empty(t, timestamps)
}

func TestTimestampFromFile(t *testing.T) {
	ts, ok := timestampFromFile("road_kpi_2024-12-01 08-00.geojson")
	assert.True(t, ok)
	assert.Equal(t, "2024-12-01 08:00", ts)

	_, ok = timestampFromFile("road_kpi_2024-12-01 08-00.json")
	assert.False(t, ok)
	_, ok = timestampFromFile("other_2024-12-01 08-00.geojson")
	assert.False(t, ok)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "nested", "traffic.db"))
	require.NoError(t, err)
	defer s.Close()

	exerciseStore(t, s)
}

func TestSQLiteStore_Runs(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "traffic.db"))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.StartRun(ctx, "run-1", time.Now()))
	require.NoError(t, s.FinishRun(ctx, "run-1", 4, 1, 0))

	var written, skipped int
	var finished string
	err = s.conn.QueryRowContext(ctx,
		"SELECT written, skipped, finished_at FROM snapshot_runs WHERE run_id = ?", "run-1",
	).Scan(&written, &skipped, &finished)
	require.NoError(t, err)
	assert.Equal(t, 4, written)
	assert.Equal(t, 1, skipped)
	assert.NotEmpty(t, finished)
}

func TestSQLiteStore_SchemaIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "traffic.db"))
	require.NoError(t, err)
	defer s.Close()

	assert.NoError(t, s.EnsureSchema(ctx))
}

func TestPostgresStore(t *testing.T) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set - skipping integration test")
	}

	s, err := OpenPostgres(context.Background(), databaseURL)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Reset(context.Background()))

	exerciseStore(t, s)
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set - skipping integration test")
	}

	s, err := OpenMongo(context.Background(), uri, "roadkpi_test", "road_kpi_snapshots")
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Reset(context.Background()))

	exerciseStore(t, s)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), &config.Config{StoreBackend: "redis"})
	assert.Error(t, err)

	_, err = Open(context.Background(), &config.Config{StoreBackend: "postgres"})
	assert.Error(t, err)
}

func TestOpen_File(t *testing.T) {
	s, err := Open(context.Background(), &config.Config{StoreBackend: "file", SnapshotDir: t.TempDir()})
	require.NoError(t, err)
	_, ok := s.(*FileStore)
	assert.True(t, ok)
}

func TestSortedUnique(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, sortedUnique([]string{"c", "a", "b", "a", "c"}))
	assert.Empty(t, sortedUnique(nil))
}
