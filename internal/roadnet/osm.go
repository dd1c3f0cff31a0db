package roadnet

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmxml"
)

// highway values that never carry motor traffic
var excludedHighways = map[string]bool{
	"abandoned": true, "bridleway": true, "bus_guideway": true, "construction": true,
	"corridor": true, "cycleway": true, "elevator": true, "escalator": true,
	"footway": true, "no": true, "path": true, "pedestrian": true, "planned": true,
	"platform": true, "proposed": true, "raceway": true, "razed": true,
	"service": true, "steps": true, "track": true,
}

var excludedService = map[string]bool{
	"alley": true, "driveway": true, "emergency_access": true,
	"parking": true, "parking_aisle": true, "private": true,
}

// IsDrivable reports whether a way's tags describe a public road for cars
func IsDrivable(tags osm.Tags) bool {
	highway := tags.Find("highway")
	if highway == "" || excludedHighways[highway] {
		return false
	}
	if tags.Find("area") == "yes" || tags.Find("access") == "private" {
		return false
	}
	if tags.Find("motor_vehicle") == "no" || tags.Find("motorcar") == "no" {
		return false
	}
	return !excludedService[tags.Find("service")]
}

// ParseOSM reads OSM XML and splits every drivable way at intersection nodes
func ParseOSM(ctx context.Context, r io.Reader, source string) (*Network, error) {
	scanner := osmxml.New(ctx, r)
	defer scanner.Close()

	nodes := make(map[osm.NodeID]orb.Point)
	var ways []*osm.Way

	for scanner.Scan() {
		switch o := scanner.Object().(type) {
		case *osm.Node:
			nodes[o.ID] = orb.Point{o.Lon, o.Lat}
		case *osm.Way:
			if IsDrivable(o.Tags) {
				ways = append(ways, o)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to parse osm xml: %w", err)
	}

	return newNetwork(source, splitWays(ways, nodes))
}

// splitWays cuts ways into edges at nodes used more than once across all
// drivable ways, keeping one edge per distinct node sequence.
func splitWays(ways []*osm.Way, nodes map[osm.NodeID]orb.Point) []Segment {
	usage := make(map[osm.NodeID]int)
	for _, w := range ways {
		for _, wn := range w.Nodes {
			usage[wn.ID]++
		}
	}

	seen := make(map[string]bool)
	var segments []Segment

	for _, w := range ways {
		var names []string
		if name := w.Tags.Find("name"); name != "" {
			names = []string{name}
		}

		// ways from Overpass "out geom" carry coordinates inline
		inline := make(map[osm.NodeID]orb.Point)
		for _, wn := range w.Nodes {
			if wn.Lat != 0 || wn.Lon != 0 {
				inline[wn.ID] = orb.Point{wn.Lon, wn.Lat}
			}
		}

		var ids []osm.NodeID
		flush := func() {
			if len(ids) >= 2 {
				key := edgeKey(ids)
				if !seen[key] {
					seen[key] = true
					if line := buildLine(ids, nodes, inline); len(line) >= 2 {
						segments = append(segments, Segment{Geometry: line, Names: names})
					}
				}
			}
		}

		for i, wn := range w.Nodes {
			ids = append(ids, wn.ID)
			last := i == len(w.Nodes)-1
			if i > 0 && !last && usage[wn.ID] > 1 {
				flush()
				ids = []osm.NodeID{wn.ID}
			}
		}
		flush()
	}

	return segments
}

func buildLine(ids []osm.NodeID, nodes, inline map[osm.NodeID]orb.Point) orb.LineString {
	line := make(orb.LineString, 0, len(ids))
	for _, id := range ids {
		pt, ok := nodes[id]
		if !ok {
			pt, ok = inline[id]
		}
		if !ok {
			continue
		}
		if len(line) > 0 && line[len(line)-1].Equal(pt) {
			continue
		}
		line = append(line, pt)
	}
	return line
}

// edgeKey is direction independent so a reversed duplicate maps to the same edge
func edgeKey(ids []osm.NodeID) string {
	forward := true
	for i, j := 0, len(ids)-1; i < j; i, j = i+1, j-1 {
		if ids[i] != ids[j] {
			forward = ids[i] < ids[j]
			break
		}
	}

	var sb strings.Builder
	for i := range ids {
		id := ids[i]
		if !forward {
			id = ids[len(ids)-1-i]
		}
		fmt.Fprintf(&sb, "%d,", id)
	}
	return sb.String()
}
