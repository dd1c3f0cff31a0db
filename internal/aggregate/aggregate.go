package aggregate

import (
	"errors"
	"fmt"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"

	"github.com/berlin-traffic-map/roadkpi/internal/kpi"
	"github.com/berlin-traffic-map/roadkpi/internal/matcher"
	"github.com/berlin-traffic-map/roadkpi/internal/metrics"
)

// ErrKPINotFound is returned when the source field of a descriptor was not
// among the loaded columns
var ErrKPINotFound = errors.New("kpi field not found")

// ColumnSet reports which KPI columns were loaded
type ColumnSet interface {
	HasColumn(field string) bool
}

// SegmentKPI is the averaged KPI of one (geometry, name) group
type SegmentKPI struct {
	Geometry        orb.LineString
	NameRoadSegment string
	Value           float64
}

type group struct {
	geometry orb.LineString
	name     string
	stats    metrics.WelfordState
}

// Aggregate averages the descriptor's field over rows sharing geometry and
// road name. Missing values are skipped, groups without any value are
// dropped, and rows without a resolved name have no group.
func Aggregate(rows []matcher.Row, columns ColumnSet, d kpi.Descriptor) ([]SegmentKPI, error) {
	if columns == nil || !columns.HasColumn(d.SourceField) {
		return nil, fmt.Errorf("%w: %s", ErrKPINotFound, d.SourceField)
	}

	groups := make(map[string]*group)
	var order []string

	for _, r := range rows {
		if r.NameRoadSegment == "" || len(r.Geometry) == 0 {
			continue
		}
		key := wkt.MarshalString(r.Geometry) + "\x00" + r.NameRoadSegment

		g, ok := groups[key]
		if !ok {
			g = &group{geometry: r.Geometry, name: r.NameRoadSegment}
			groups[key] = g
			order = append(order, key)
		}
		if v, ok := r.Value(d.SourceField); ok {
			g.stats.Update(v)
		}
	}

	out := make([]SegmentKPI, 0, len(groups))
	for _, key := range order {
		g := groups[key]
		if g.stats.GetCount() == 0 {
			continue
		}
		out = append(out, SegmentKPI{
			Geometry:        g.geometry,
			NameRoadSegment: g.name,
			Value:           g.stats.GetMean(),
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].NameRoadSegment < out[j].NameRoadSegment
	})
	return out, nil
}
