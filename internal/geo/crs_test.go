package geo

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUTMCodes(t *testing.T) {
	assert.Equal(t, 32633, UTM33N.EPSG)
	assert.Equal(t, "EPSG:32633", UTM33N.String())
	assert.Equal(t, 15.0, UTM33N.CentralMeridian())
	assert.Equal(t, 32733, UTM(33, false).EPSG)
	assert.True(t, UTM33N.IsProjected())
	assert.False(t, WGS84.IsProjected())
}

func TestNewProjectorRejectsGeodetic(t *testing.T) {
	_, err := NewProjector(WGS84)
	assert.Error(t, err)

	_, err = NewProjector(UTM(61, true))
	assert.Error(t, err)
}

func TestForwardCentralMeridian(t *testing.T) {
	p, err := NewProjector(UTM33N)
	require.NoError(t, err)

	got := p.Forward(orb.Point{15, 0})
	assert.InDelta(t, 500000, got[0], 1e-6)
	assert.InDelta(t, 0, got[1], 1e-6)

	// easting stays on the false easting along the central meridian
	got = p.Forward(orb.Point{15, 52.52})
	assert.InDelta(t, 500000, got[0], 1e-6)
}

func TestForwardBerlinIsWestOfCentralMeridian(t *testing.T) {
	p, err := NewProjector(UTM33N)
	require.NoError(t, err)

	got := p.Forward(orb.Point{13.405, 52.52})
	assert.Less(t, got[0], 500000.0)
	assert.Greater(t, got[0], 380000.0)
	assert.Greater(t, got[1], 5800000.0)
	assert.Less(t, got[1], 5840000.0)
}

func TestForwardReferencePoints(t *testing.T) {
	p, err := NewProjector(UTM33N)
	require.NoError(t, err)

	cases := []struct {
		name        string
		lonLat      orb.Point
		east, north float64
	}{
		{"Brandenburger Tor", orb.Point{13.377704, 52.516275}, 389918.04, 5819699.13},
		{"Alexanderplatz", orb.Point{13.405, 52.52}, 391779.26, 5820072.16},
		{"central meridian", orb.Point{15, 52.52}, 500000.00, 5818876.66},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := p.Forward(tc.lonLat)
			assert.InDelta(t, tc.east, got[0], 0.05)
			assert.InDelta(t, tc.north, got[1], 0.05)
		})
	}
}

func TestInverseReferencePoint(t *testing.T) {
	p, err := NewProjector(UTM33N)
	require.NoError(t, err)

	got := p.Inverse(orb.Point{389918.04, 5819699.13})
	// 1e-6 degrees is about 0.1 m
	assert.InDelta(t, 13.377704, got[0], 1e-6)
	assert.InDelta(t, 52.516275, got[1], 1e-6)
}

func TestMeridianScale(t *testing.T) {
	p, err := NewProjector(UTM33N)
	require.NoError(t, err)

	a := p.Forward(orb.Point{15, 52.5})
	b := p.Forward(orb.Point{15, 52.51})

	// meridian arc of 0.01 degree at 52.5N scaled by k0
	assert.InDelta(t, 1112.33, b[1]-a[1], 1.0)
}

func TestRoundTrip(t *testing.T) {
	p, err := NewProjector(UTM33N)
	require.NoError(t, err)

	points := []orb.Point{
		{13.405, 52.52},
		{13.0883, 52.3383},
		{13.7612, 52.6755},
		{12.0, 48.0},
		{17.9, 60.1},
	}
	for _, pt := range points {
		back := p.Inverse(p.Forward(pt))
		assert.InDelta(t, pt[0], back[0], 1e-8, "lon %v", pt)
		assert.InDelta(t, pt[1], back[1], 1e-8, "lat %v", pt)
	}
}

func TestSouthernHemisphereFalseNorthing(t *testing.T) {
	p, err := NewProjector(UTM(33, false))
	require.NoError(t, err)

	got := p.Forward(orb.Point{15, -10})
	assert.Less(t, got[1], 10000000.0)
	assert.Greater(t, got[1], 8800000.0)
}

func TestValidLonLat(t *testing.T) {
	assert.True(t, ValidLonLat(13.4, 52.5))
	assert.False(t, ValidLonLat(math.NaN(), 52.5))
	assert.False(t, ValidLonLat(13.4, math.Inf(1)))
	assert.False(t, ValidLonLat(181, 0))
	assert.False(t, ValidLonLat(0, -91))
}
