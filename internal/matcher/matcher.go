package matcher

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/tidwall/rtree"

	"github.com/berlin-traffic-map/roadkpi/internal/detector"
	"github.com/berlin-traffic-map/roadkpi/internal/geo"
	"github.com/berlin-traffic-map/roadkpi/internal/roadnet"
)

var (
	// ErrMissingCoordinates means a row reached the matcher without a location
	ErrMissingCoordinates = errors.New("row has no valid coordinates")
	// ErrEmptyNetwork means there is nothing to match against
	ErrEmptyNetwork = errors.New("road network is empty")
)

// initial half-width of the search window in metres
const initialRadius = 64.0

// Matcher snaps WGS84 points to the nearest road segment. Distances are
// measured in the projected CRS it was built with. A Matcher is immutable
// after New and safe for concurrent use.
type Matcher struct {
	proj     *geo.Projector
	network  *roadnet.Network
	lines    []orb.LineString // projected, indexed by segment id
	tree     rtree.RTree
	extent   orb.Bound
	maxReach float64
}

// Match is the nearest segment for one point
type Match struct {
	Segment  *roadnet.Segment
	Distance float64 // metres in the projected CRS
}

// New projects the network into crs and indexes it
func New(network *roadnet.Network, crs geo.CRS) (*Matcher, error) {
	if network == nil || len(network.Segments) == 0 {
		return nil, ErrEmptyNetwork
	}
	proj, err := geo.NewProjector(crs)
	if err != nil {
		return nil, err
	}

	m := &Matcher{
		proj:    proj,
		network: network,
		lines:   make([]orb.LineString, len(network.Segments)),
	}
	for i, seg := range network.Segments {
		line := proj.ForwardLine(seg.Geometry)
		m.lines[i] = line

		b := line.Bound()
		m.tree.Insert([2]float64{b.Min[0], b.Min[1]}, [2]float64{b.Max[0], b.Max[1]}, i)
		if i == 0 {
			m.extent = b
		} else {
			m.extent = m.extent.Union(b)
		}
	}
	m.maxReach = math.Hypot(m.extent.Right()-m.extent.Left(), m.extent.Top()-m.extent.Bottom())

	return m, nil
}

// CRS returns the system distances are measured in
func (m *Matcher) CRS() geo.CRS {
	return m.proj.CRS()
}

// Nearest finds the segment closest to a WGS84 point. Equal distances are
// resolved in favour of the lowest segment id.
func (m *Matcher) Nearest(lon, lat float64) (Match, error) {
	if !geo.ValidLonLat(lon, lat) {
		return Match{}, ErrMissingCoordinates
	}
	p := m.proj.Forward(orb.Point{lon, lat})

	// the window must at least reach the network from outside its extent
	limit := m.maxReach + planar.Distance(p, m.extent.Center()) + initialRadius

	for r := initialRadius; ; r *= 2 {
		best, bestDist := -1, math.Inf(1)
		m.tree.Search(
			[2]float64{p[0] - r, p[1] - r},
			[2]float64{p[0] + r, p[1] + r},
			func(_, _ [2]float64, data interface{}) bool {
				id := data.(int)
				d := planar.DistanceFrom(m.lines[id], p)
				if d < bestDist || (d == bestDist && id < best) {
					best, bestDist = id, d
				}
				return true
			},
		)

		// any segment closer than r intersects the window, so this is global
		if best >= 0 && (bestDist <= r || r >= limit) {
			return Match{Segment: &m.network.Segments[best], Distance: bestDist}, nil
		}
		if r >= limit {
			return Match{}, fmt.Errorf("no segment found within %.0f m", limit)
		}
	}
}

// Row is an enriched detector row with its matched segment
type Row struct {
	detector.Row
	SegmentID         int
	Geometry          orb.LineString // WGS84
	NameRoadSegment   string
	DistanceToSegment float64
}

// MatchRows left-joins every row to its nearest segment. The output has
// exactly one row per input row, in input order.
func (m *Matcher) MatchRows(rows []detector.Row) ([]Row, error) {
	out := make([]Row, len(rows))
	for i, r := range rows {
		match, err := m.Nearest(r.Longitude, r.Latitude)
		if err != nil {
			return nil, fmt.Errorf("detector %s: %w", r.DetectorID, err)
		}
		out[i] = Row{
			Row:               r,
			SegmentID:         match.Segment.ID,
			Geometry:          match.Segment.Geometry,
			NameRoadSegment:   roadnet.ResolveName(match.Segment.Names, r.StreetName),
			DistanceToSegment: match.Distance,
		}
	}
	return out, nil
}
