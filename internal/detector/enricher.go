package detector

import (
	"sort"

	"github.com/berlin-traffic-map/roadkpi/internal/kpi"
)

// Row is a reading joined to its detector's location
type Row struct {
	kpi.Reading
	Timestamp  string
	Longitude  float64
	Latitude   float64
	StreetName string
	Direction  string
}

// EnrichStats reports the outcome of a join
type EnrichStats struct {
	Joined          int
	MissingMetadata int
}

// Enrich left-joins readings to the catalog; readings whose detector has no
// usable coordinates are dropped.
func Enrich(readings []kpi.Reading, cat *Catalog) ([]Row, EnrichStats) {
	var stats EnrichStats
	rows := make([]Row, 0, len(readings))

	for _, r := range readings {
		meta, ok := cat.Get(r.DetectorID)
		if !ok {
			stats.MissingMetadata++
			continue
		}
		rows = append(rows, Row{
			Reading:    r,
			Timestamp:  r.Timestamp(),
			Longitude:  meta.Longitude,
			Latitude:   meta.Latitude,
			StreetName: meta.StreetName,
			Direction:  meta.Direction,
		})
	}
	stats.Joined = len(rows)

	return rows, stats
}

// Slice is the set of enriched rows sharing one timestamp
type Slice struct {
	Timestamp string
	Rows      []Row
}

// SplitByTimestamp partitions rows into time slices ordered by timestamp
func SplitByTimestamp(rows []Row) []Slice {
	byTS := make(map[string][]Row)
	for _, r := range rows {
		byTS[r.Timestamp] = append(byTS[r.Timestamp], r)
	}

	slices := make([]Slice, 0, len(byTS))
	for ts, rs := range byTS {
		slices = append(slices, Slice{Timestamp: ts, Rows: rs})
	}
	sort.Slice(slices, func(i, j int) bool {
		return slices[i].Timestamp < slices[j].Timestamp
	})
	return slices
}
