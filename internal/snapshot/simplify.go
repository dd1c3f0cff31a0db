package snapshot

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
	"github.com/peterstace/simplefeatures/geom"
)

// DefaultTolerance is the Douglas-Peucker distance in degrees
const DefaultTolerance = 0.0001

// Simplify reduces a WGS84 line with Douglas-Peucker. When the reduced line
// is no longer simple and the input was, the input is returned unchanged.
// The input is never modified.
func Simplify(ls orb.LineString, tolerance float64) orb.LineString {
	if len(ls) <= 2 || tolerance <= 0 {
		return ls.Clone()
	}

	simplified := simplify.DouglasPeucker(tolerance).LineString(ls.Clone())
	if len(simplified) < 2 {
		return ls.Clone()
	}
	if !isSimple(simplified) && isSimple(ls) {
		return ls.Clone()
	}
	return simplified
}

// isSimple reports whether the line never crosses or touches itself,
// apart from a closed line meeting at its endpoints.
func isSimple(ls orb.LineString) bool {
	coords := make([]float64, 0, 2*len(ls))
	for _, p := range ls {
		coords = append(coords, p[0], p[1])
	}
	return geom.NewLineString(geom.NewSequence(coords, geom.DimXY)).IsSimple()
}
