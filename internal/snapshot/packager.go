package snapshot

import (
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/berlin-traffic-map/roadkpi/internal/aggregate"
	"github.com/berlin-traffic-map/roadkpi/internal/kpi"
	"github.com/berlin-traffic-map/roadkpi/internal/models"
)

// ErrEmptySnapshot tells the caller there is nothing worth storing
var ErrEmptySnapshot = errors.New("snapshot has no features")

// Packager turns aggregated segment KPIs into snapshots
type Packager struct {
	Tolerance float64
	RunID     string
}

// Package builds the feature collection of one (timestamp, descriptor).
// Rows with null or degenerate geometry are skipped. When no feature
// remains the returned snapshot is empty and the error is ErrEmptySnapshot.
func (p *Packager) Package(timestamp string, d kpi.Descriptor, rows []aggregate.SegmentKPI) (*models.Snapshot, error) {
	snap := &models.Snapshot{
		SnapshotID:  uuid.New().String(),
		RunID:       p.RunID,
		Timestamp:   timestamp,
		VehicleType: string(d.Vehicle),
		KPIType:     string(d.Kind),
		Features:    make([]models.Feature, 0, len(rows)),
		CreatedAt:   time.Now().UTC(),
	}

	skipped := 0
	for _, r := range rows {
		if len(r.Geometry) < 2 {
			skipped++
			continue
		}
		line := Simplify(r.Geometry, p.Tolerance)

		coords := make([][2]float64, len(line))
		for i, pt := range line {
			coords[i] = [2]float64{pt[0], pt[1]}
		}
		snap.Features = append(snap.Features, models.Feature{
			Type:     "Feature",
			Geometry: models.LineStringGeometry{Type: "LineString", Coordinates: coords},
			Properties: models.SegmentProperties{
				NameRoadSegment: r.NameRoadSegment,
				Value:           r.Value,
			},
		})
	}

	if skipped > 0 {
		log.Printf("Warning: %s %s: skipped %d segments without geometry", timestamp, d, skipped)
	}
	if len(snap.Features) == 0 {
		return snap, ErrEmptySnapshot
	}
	return snap, nil
}
