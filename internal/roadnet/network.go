package roadnet

import (
	"context"
	"errors"
	"sort"
	"strings"

	"github.com/paulmach/orb"
)

// ErrNoRoads is returned when a source yields no usable road segments
var ErrNoRoads = errors.New("road network contains no segments")

// Segment is one undirected road edge between two intersections
type Segment struct {
	// ID is the index in the loaded edge set; stable only within one load
	ID       int
	Geometry orb.LineString
	Names    []string
}

// Network is an immutable set of road segments in WGS84
type Network struct {
	Segments []Segment
	Source   string
}

// Bound returns the bounding box of all segments
func (n *Network) Bound() orb.Bound {
	if len(n.Segments) == 0 {
		return orb.Bound{}
	}
	b := n.Segments[0].Geometry.Bound()
	for _, s := range n.Segments[1:] {
		b = b.Union(s.Geometry.Bound())
	}
	return b
}

// Provider loads a road network for one run
type Provider interface {
	Load(ctx context.Context) (*Network, error)
}

// newNetwork assigns sequential ids and drops segments with fewer than two vertices
func newNetwork(source string, segments []Segment) (*Network, error) {
	out := make([]Segment, 0, len(segments))
	for _, s := range segments {
		if len(s.Geometry) < 2 {
			continue
		}
		s.ID = len(out)
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, ErrNoRoads
	}
	return &Network{Segments: out, Source: source}, nil
}

// ResolveName flattens segment names into a single label. Names are
// de-duplicated by exact match, sorted and joined with ", "; a segment
// without names takes the fallback.
func ResolveName(names []string, fallback string) string {
	if len(names) == 0 {
		return fallback
	}
	seen := make(map[string]bool, len(names))
	uniq := make([]string, 0, len(names))
	for _, n := range names {
		if seen[n] {
			continue
		}
		seen[n] = true
		uniq = append(uniq, n)
	}
	sort.Strings(uniq)
	return strings.Join(uniq, ", ")
}
