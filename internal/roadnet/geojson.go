package roadnet

import (
	"context"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/tidwall/geojson"
	"github.com/tidwall/geojson/geometry"
	"github.com/tidwall/gjson"
)

// GeoJSONProvider loads road segments from a FeatureCollection of
// LineString or MultiLineString features. The "name" property may be a
// string or an array of strings.
type GeoJSONProvider struct {
	Path string
}

// Load implements Provider
func (p *GeoJSONProvider) Load(ctx context.Context) (*Network, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read road network: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return ParseGeoJSON(string(data), p.Path)
}

// ParseGeoJSON converts a GeoJSON document into a network
func ParseGeoJSON(data, source string) (*Network, error) {
	obj, err := geojson.Parse(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to parse road network geojson: %w", err)
	}

	var segments []Segment
	addFeature := func(f *geojson.Feature) {
		names := featureNames(f.Members())
		for _, line := range featureLines(f.Base()) {
			segments = append(segments, Segment{Geometry: line, Names: names})
		}
	}

	switch g := obj.(type) {
	case *geojson.FeatureCollection:
		g.ForEach(func(child geojson.Object) bool {
			if f, ok := child.(*geojson.Feature); ok {
				addFeature(f)
			}
			return true
		})
	case *geojson.Feature:
		addFeature(g)
	default:
		return nil, fmt.Errorf("road network must be a Feature or FeatureCollection")
	}

	return newNetwork(source, segments)
}

func featureNames(members string) []string {
	name := gjson.Get(members, "properties.name")
	if !name.Exists() {
		return nil
	}
	if name.IsArray() {
		var names []string
		for _, v := range name.Array() {
			if s := v.String(); s != "" {
				names = append(names, s)
			}
		}
		return names
	}
	if s := name.String(); s != "" {
		return []string{s}
	}
	return nil
}

func featureLines(obj geojson.Object) []orb.LineString {
	switch g := obj.(type) {
	case *geojson.LineString:
		return []orb.LineString{fromLine(g.Base())}
	case *geojson.MultiLineString:
		var lines []orb.LineString
		g.ForEach(func(child geojson.Object) bool {
			if ls, ok := child.(*geojson.LineString); ok {
				lines = append(lines, fromLine(ls.Base()))
			}
			return true
		})
		return lines
	}
	return nil
}

func fromLine(line *geometry.Line) orb.LineString {
	ls := make(orb.LineString, 0, line.NumPoints())
	for i := 0; i < line.NumPoints(); i++ {
		pt := line.PointAt(i)
		ls = append(ls, orb.Point{pt.X, pt.Y})
	}
	return ls
}
