package models

import "time"

// FeatureCollection is the GeoJSON document served for one frame
type FeatureCollection struct {
	Type     string    `json:"type" bson:"type"`
	Features []Feature `json:"features" bson:"features"`
}

// Feature is one road segment with its KPI value
type Feature struct {
	Type       string             `json:"type" bson:"type"`
	Geometry   LineStringGeometry `json:"geometry" bson:"geometry"`
	Properties SegmentProperties  `json:"properties" bson:"properties"`
}

// LineStringGeometry represents LineString geometry in [lon, lat] order
type LineStringGeometry struct {
	Type        string       `json:"type" bson:"type"`
	Coordinates [][2]float64 `json:"coordinates" bson:"coordinates"`
}

// SegmentProperties are exactly the two properties the map reads
type SegmentProperties struct {
	NameRoadSegment string  `json:"name_road_segment" bson:"name_road_segment"`
	Value           float64 `json:"value" bson:"value"`
}

// Snapshot is the stored unit: one feature collection per
// (timestamp, vehicle type, kpi type)
type Snapshot struct {
	SnapshotID  string    `json:"snapshot_id,omitempty" bson:"snapshot_id,omitempty"`
	RunID       string    `json:"run_id,omitempty" bson:"run_id,omitempty"`
	Timestamp   string    `json:"timestamp" bson:"timestamp"`
	VehicleType string    `json:"vehicle_type" bson:"vehicle_type"`
	KPIType     string    `json:"kpi_type" bson:"kpi_type"`
	Features    []Feature `json:"features" bson:"features"`
	CreatedAt   time.Time `json:"created_at,omitempty" bson:"created_at,omitempty"`
}

// Key identifies a snapshot in every store
type Key struct {
	Timestamp   string
	VehicleType string
	KPIType     string
}

// Key returns the snapshot's identity
func (s *Snapshot) Key() Key {
	return Key{Timestamp: s.Timestamp, VehicleType: s.VehicleType, KPIType: s.KPIType}
}

// FeatureCollection wraps the snapshot's features for map rendering
func (s *Snapshot) FeatureCollection() FeatureCollection {
	features := s.Features
	if features == nil {
		features = []Feature{}
	}
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}

// Frame is one animation step returned by the snapshot API
type Frame struct {
	Timestamp string            `json:"timestamp"`
	GeoJSON   FeatureCollection `json:"geojson"`
}
