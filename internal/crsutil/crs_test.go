package crsutil

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestZoneFor(t *testing.T) {
	assert.Equal(t, 31, ZoneFor(0.5))  // Greenwich meridian, zone boundary at 0
	assert.Equal(t, 1, ZoneFor(-179))  // far west
	assert.Equal(t, 60, ZoneFor(179))  // far east
}

func TestEPSGFor(t *testing.T) {
	// San Francisco: zone 10, northern hemisphere.
	assert.Equal(t, 32610, EPSGFor(-122.4194, 37.7749))
	// Sydney: zone 56, southern hemisphere.
	assert.Equal(t, 32756, EPSGFor(151.2093, -33.8688))
	// London: zone 30, northern hemisphere.
	assert.Equal(t, 32630, EPSGFor(-0.1278, 51.5074))
}

func TestTransformPoint_RoundTrip(t *testing.T) {
	mgr := NewManager()
	cases := []struct {
		name     string
		lon, lat float64
	}{
		{"san-francisco", -122.4194, 37.7749},
		{"sydney", 151.2093, -33.8688},
		{"london", -0.1278, 51.5074},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			epsg := EPSGFor(c.lon, c.lat)
			x, y, err := mgr.TransformPoint(c.lon, c.lat, WGS84EPSG, epsg)
			require.NoError(t, err)

			lon2, lat2, err := mgr.TransformPoint(x, y, epsg, WGS84EPSG)
			require.NoError(t, err)
			assert.InDelta(t, c.lon, lon2, 1e-6)
			assert.InDelta(t, c.lat, lat2, 1e-6)
		})
	}
}

func TestTransformPoint_SameEPSGIsNoop(t *testing.T) {
	mgr := NewManager()
	x, y, err := mgr.TransformPoint(10, 20, 32610, 32610)
	require.NoError(t, err)
	assert.Equal(t, 10.0, x)
	assert.Equal(t, 20.0, y)
}

func TestEPSGForPolygon_UsesCentroid(t *testing.T) {
	// A small square straddling San Francisco, centroid still in zone 10N.
	poly := orb.Polygon{orb.Ring{
		{-122.43, 37.77},
		{-122.41, 37.77},
		{-122.41, 37.79},
		{-122.43, 37.79},
		{-122.43, 37.77},
	}}
	assert.Equal(t, 32610, EPSGForPolygon(poly))
}

func TestAreaAcres_OneSquareKilometer(t *testing.T) {
	// 1000m x 1000m square in a projected CRS == 1,000,000 m^2.
	poly := orb.Polygon{orb.Ring{
		{0, 0},
		{1000, 0},
		{1000, 1000},
		{0, 1000},
		{0, 0},
	}}
	expected := 1_000_000.0 / AcreSquareMeters
	assert.InDelta(t, expected, AreaAcres(poly), 1e-9)
}

func TestAreaAcresWGS84_ProjectsBeforeMeasuring(t *testing.T) {
	mgr := NewManager()
	// Roughly a 1km x 1km square near San Francisco in WGS84 degrees.
	poly := orb.Polygon{orb.Ring{
		{-122.4194, 37.7749},
		{-122.4075, 37.7749},
		{-122.4075, 37.7839},
		{-122.4194, 37.7839},
		{-122.4194, 37.7749},
	}}
	acres, err := mgr.AreaAcresWGS84(poly)
	require.NoError(t, err)
	assert.InDelta(t, 247.0, acres, 30.0, "roughly a square kilometer's worth of acres")
}
