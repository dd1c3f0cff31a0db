package geo

import (
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/wroge/wgs84"
)

// CRS identifies a coordinate reference system. Geometries in this module
// never carry their CRS implicitly: every projection step names it.
type CRS struct {
	EPSG int
	Name string

	// zone is only set for UTM systems
	zone  int
	north bool
}

// WGS84 is the geodetic system of all input and output coordinates.
var WGS84 = CRS{EPSG: 4326, Name: "WGS 84"}

// UTM33N is the projected metre system used to match Berlin detectors.
var UTM33N = UTM(33, true)

// UTM returns the Universal Transverse Mercator CRS for a zone.
func UTM(zone int, north bool) CRS {
	epsg := 32600 + zone
	hemi := "N"
	if !north {
		epsg = 32700 + zone
		hemi = "S"
	}
	return CRS{
		EPSG:  epsg,
		Name:  fmt.Sprintf("WGS 84 / UTM zone %d%s", zone, hemi),
		zone:  zone,
		north: north,
	}
}

// IsProjected reports whether coordinates in this CRS are planar metres.
func (c CRS) IsProjected() bool {
	return c.zone != 0
}

func (c CRS) String() string {
	return fmt.Sprintf("EPSG:%d", c.EPSG)
}

// CentralMeridian returns the zone's central meridian in degrees.
func (c CRS) CentralMeridian() float64 {
	return float64(c.zone*6 - 183)
}

// Projector converts between WGS84 and a projected CRS.
type Projector struct {
	crs     CRS
	forward wgs84.Func
	inverse wgs84.Func
}

// NewProjector creates a projector for the target CRS.
func NewProjector(target CRS) (*Projector, error) {
	if !target.IsProjected() {
		return nil, fmt.Errorf("crs %s is not a supported projected system", target)
	}
	if target.zone < 1 || target.zone > 60 {
		return nil, fmt.Errorf("invalid UTM zone %d", target.zone)
	}

	utm := wgs84.UTM(float64(target.zone), target.north)
	return &Projector{
		crs:     target,
		forward: wgs84.LonLat().To(utm),
		inverse: utm.To(wgs84.LonLat()),
	}, nil
}

// CRS returns the target system of the projector.
func (p *Projector) CRS() CRS {
	return p.crs
}

// Forward projects a WGS84 (lon, lat) point to (easting, northing).
func (p *Projector) Forward(pt orb.Point) orb.Point {
	e, n, _ := p.forward(pt[0], pt[1], 0)
	return orb.Point{e, n}
}

// inverseSteps bounds the refinement in Inverse
const inverseSteps = 4

// Inverse converts a projected (easting, northing) point back to WGS84.
// The inverse series alone is off by metres away from the central meridian,
// so its answer is corrected against Forward until both agree.
func (p *Projector) Inverse(pt orb.Point) orb.Point {
	lon0, lat0, _ := p.inverse(pt[0], pt[1], 0)
	lon, lat := lon0, lat0
	for i := 0; i < inverseSteps; i++ {
		e, n, _ := p.forward(lon, lat, 0)
		gotLon, gotLat, _ := p.inverse(e, n, 0)
		lon += lon0 - gotLon
		lat += lat0 - gotLat
	}
	return orb.Point{lon, lat}
}

// ForwardLine projects every vertex of a WGS84 line.
func (p *Projector) ForwardLine(ls orb.LineString) orb.LineString {
	out := make(orb.LineString, len(ls))
	for i, pt := range ls {
		out[i] = p.Forward(pt)
	}
	return out
}

// ValidLonLat reports whether a point is a finite WGS84 coordinate.
func ValidLonLat(lon, lat float64) bool {
	if math.IsNaN(lon) || math.IsNaN(lat) || math.IsInf(lon, 0) || math.IsInf(lat, 0) {
		return false
	}
	return lon >= -180 && lon <= 180 && lat >= -90 && lat <= 90
}
