package roadnet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/berlin-traffic-map/roadkpi/internal/config"
)

const sampleOSM = `<?xml version="1.0" encoding="UTF-8"?>
<osm version="0.6" generator="test">
  <node id="1" lat="52.5000" lon="13.4000"/>
  <node id="2" lat="52.5000" lon="13.4100"/>
  <node id="3" lat="52.5000" lon="13.4200"/>
  <node id="4" lat="52.4900" lon="13.4100"/>
  <node id="5" lat="52.5100" lon="13.4100"/>
  <way id="10">
    <nd ref="1"/><nd ref="2"/><nd ref="3"/>
    <tag k="highway" v="residential"/>
    <tag k="name" v="Alpha Straße"/>
  </way>
  <way id="11">
    <nd ref="4"/><nd ref="2"/><nd ref="5"/>
    <tag k="highway" v="primary"/>
    <tag k="name" v="Beta Allee"/>
  </way>
  <way id="12">
    <nd ref="1"/><nd ref="4"/>
    <tag k="highway" v="footway"/>
  </way>
  <way id="13">
    <nd ref="3"/><nd ref="2"/><nd ref="1"/>
    <tag k="highway" v="residential"/>
  </way>
</osm>`

func TestResolveName(t *testing.T) {
	tests := []struct {
		name     string
		names    []string
		fallback string
		want     string
	}{
		{"single", []string{"Karl-Marx-Allee"}, "X", "Karl-Marx-Allee"},
		{"fallback", nil, "Frankfurter Allee", "Frankfurter Allee"},
		{"empty list uses fallback", []string{}, "A100", "A100"},
		{"dedupe and sort", []string{"Zeppelinstraße", "Alexanderplatz", "Zeppelinstraße"}, "", "Alexanderplatz, Zeppelinstraße"},
		{"case sensitive", []string{"Friedrichstraße", "friedrichstraße", "Friedrichstraße"}, "X", "Friedrichstraße, friedrichstraße"},
		{"whitespace is significant", []string{"Friedrichstraße", " Friedrichstraße"}, "X", " Friedrichstraße, Friedrichstraße"},
		{"nothing", nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ResolveName(tt.names, tt.fallback))
		})
	}
}

func TestIsDrivable(t *testing.T) {
	assert.True(t, IsDrivable(osm.Tags{{Key: "highway", Value: "primary"}}))
	assert.False(t, IsDrivable(osm.Tags{{Key: "highway", Value: "footway"}}))
	assert.False(t, IsDrivable(osm.Tags{{Key: "name", Value: "No highway"}}))
	assert.False(t, IsDrivable(osm.Tags{{Key: "highway", Value: "residential"}, {Key: "access", Value: "private"}}))
	assert.False(t, IsDrivable(osm.Tags{{Key: "highway", Value: "unclassified"}, {Key: "motor_vehicle", Value: "no"}}))
}

func TestParseOSMSplitsAtIntersections(t *testing.T) {
	net, err := ParseOSM(context.Background(), strings.NewReader(sampleOSM), "test")
	require.NoError(t, err)

	// ways 10 and 11 cross at node 2; way 13 reverses way 10 and is dropped
	require.Len(t, net.Segments, 4)
	for i, s := range net.Segments {
		assert.Equal(t, i, s.ID)
		assert.Len(t, s.Geometry, 2)
	}

	assert.Equal(t, orb.LineString{{13.40, 52.50}, {13.41, 52.50}}, net.Segments[0].Geometry)
	assert.Equal(t, []string{"Alpha Straße"}, net.Segments[0].Names)
	assert.Equal(t, []string{"Beta Allee"}, net.Segments[2].Names)

	b := net.Bound()
	assert.Equal(t, orb.Point{13.40, 52.49}, b.Min)
	assert.Equal(t, orb.Point{13.42, 52.51}, b.Max)
}

func TestParseOSMEmpty(t *testing.T) {
	_, err := ParseOSM(context.Background(), strings.NewReader(`<osm version="0.6"></osm>`), "empty")
	assert.ErrorIs(t, err, ErrNoRoads)
}

func TestParseGeoJSONNames(t *testing.T) {
	data := `{"type":"FeatureCollection","features":[
	  {"type":"Feature","properties":{"name":"Unter den Linden"},
	   "geometry":{"type":"LineString","coordinates":[[13.38,52.517],[13.39,52.517]]}},
	  {"type":"Feature","properties":{"name":["Torstraße","B 96a"]},
	   "geometry":{"type":"LineString","coordinates":[[13.40,52.529],[13.41,52.529]]}},
	  {"type":"Feature","properties":{},
	   "geometry":{"type":"MultiLineString","coordinates":[[[13.42,52.50],[13.43,52.50]],[[13.44,52.50],[13.45,52.50]]]}}
	]}`

	net, err := ParseGeoJSON(data, "inline")
	require.NoError(t, err)
	require.Len(t, net.Segments, 4)

	assert.Equal(t, []string{"Unter den Linden"}, net.Segments[0].Names)
	assert.Equal(t, []string{"Torstraße", "B 96a"}, net.Segments[1].Names)
	assert.Empty(t, net.Segments[2].Names)
	assert.Equal(t, orb.LineString{{13.44, 52.50}, {13.45, 52.50}}, net.Segments[3].Geometry)
}

func TestGeoJSONProviderMissingFile(t *testing.T) {
	p := &GeoJSONProvider{Path: filepath.Join(t.TempDir(), "none.geojson")}
	_, err := p.Load(context.Background())
	assert.Error(t, err)
}

func TestOverpassProviderCachesDownload(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.FormValue("data"), `area["name"="Berlin"]`)
		w.Write([]byte(sampleOSM))
	}))
	defer srv.Close()

	dir := t.TempDir()
	p := &OverpassProvider{URL: srv.URL, Place: "Berlin, Germany", AreaName: "Berlin", CacheDir: dir, MaxAgeDays: 30}

	net, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, net.Segments, 4)
	assert.FileExists(t, filepath.Join(dir, "berlin-germany.osm"))
	assert.FileExists(t, filepath.Join(dir, "berlin-germany.manifest.json"))

	_, err = p.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestOverpassProviderFallsBackToStaleCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "berlin-germany.osm"), []byte(sampleOSM), 0644))
	old, err := json.Marshal(Manifest{
		GeneratedAt: time.Now().Add(-90 * 24 * time.Hour).UTC().Format(time.RFC3339),
		Version:     cacheVersion,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "berlin-germany.manifest.json"), old, 0644))

	p := &OverpassProvider{URL: srv.URL, Place: "Berlin, Germany", AreaName: "Berlin", CacheDir: dir, MaxAgeDays: 30}
	net, err := p.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, net.Segments, 4)
}

func TestOverpassProviderFailsWithoutCache(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	p := &OverpassProvider{URL: srv.URL, Place: "Berlin, Germany", AreaName: "Berlin", CacheDir: t.TempDir(), MaxAgeDays: 30}
	_, err := p.Load(context.Background())
	assert.Error(t, err)
}

func TestIsStaleOrMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "manifest.json")
	assert.True(t, isStaleOrMissing(path, 7))

	fresh, _ := json.Marshal(Manifest{GeneratedAt: time.Now().UTC().Format(time.RFC3339), Version: cacheVersion})
	require.NoError(t, os.WriteFile(path, fresh, 0644))
	assert.False(t, isStaleOrMissing(path, 7))

	outdated, _ := json.Marshal(Manifest{GeneratedAt: time.Now().UTC().Format(time.RFC3339), Version: "old"})
	require.NoError(t, os.WriteFile(path, outdated, 0644))
	assert.True(t, isStaleOrMissing(path, 7))

	require.NoError(t, os.WriteFile(path, []byte("not json"), 0644))
	assert.True(t, isStaleOrMissing(path, 7))
}

func TestNewProvider(t *testing.T) {
	cfg := &config.Config{NetworkGeoJSON: "roads.geojson"}
	_, ok := NewProvider(cfg).(*GeoJSONProvider)
	assert.True(t, ok)

	cfg = &config.Config{OverpassURL: "http://example.invalid", NetworkPlace: "Berlin, Germany"}
	_, ok = NewProvider(cfg).(*OverpassProvider)
	assert.True(t, ok)
}
