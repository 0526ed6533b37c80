// Package crsutil selects the projected coordinate system for a job and
// transforms geometry and points between it and WGS84.
package crsutil

import (
	"fmt"
	"math"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	proj "github.com/michiho/go-proj/v10"

	"github.com/TheCoderPerson/AutoDroneSegment/internal/pipelineerr"
)

// AcreSquareMeters is the conversion constant used throughout the pipeline:
// 1 acre ≡ 4046.86 m². Carried over verbatim from the source implementation.
const AcreSquareMeters = 4046.86

// WGS84EPSG is the EPSG code of the geographic input/output CRS.
const WGS84EPSG = 4326

// ZoneFor returns the UTM zone number (1-60) for a longitude, independent of
// latitude.
func ZoneFor(lon float64) int {
	return int((lon+180)/6) + 1
}

// EPSGFor returns the UTM EPSG code for a WGS84 point: 32600+zone north of
// the equator, 32700+zone south of it.
func EPSGFor(lon, lat float64) int {
	zone := ZoneFor(lon)
	if lat >= 0 {
		return 32600 + zone
	}
	return 32700 + zone
}

// Manager owns a PROJ context and the transformers built from it. transformer
// creates one *proj.PJ per (from, to) EPSG pair on first use, under a mutex,
// and caches it; every later call for the same pair reuses that cached
// *proj.PJ.
type Manager struct {
	mu      sync.Mutex
	context *proj.Context
	cache   map[[2]int]*proj.PJ
}

// NewManager creates a Manager backed by a fresh PROJ context.
func NewManager() *Manager {
	return &Manager{
		context: proj.NewContext(),
		cache:   make(map[[2]int]*proj.PJ),
	}
}

func (m *Manager) transformer(fromEPSG, toEPSG int) (*proj.PJ, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := [2]int{fromEPSG, toEPSG}
	if pj, ok := m.cache[key]; ok {
		return pj, nil
	}

	pj, err := m.context.NewCRSToCRS(
		fmt.Sprintf("EPSG:%d", fromEPSG),
		fmt.Sprintf("EPSG:%d", toEPSG),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create transform EPSG:%d -> EPSG:%d: %w", fromEPSG, toEPSG, err)
	}

	// PROJ's native axis order for a geographic CRS such as EPSG:4326 is
	// latitude, longitude. Every point and geometry in this package is
	// longitude-first ("always_xy" in pyproj terms), so every transformer is
	// normalized once at construction rather than juggling axis order at
	// every call site.
	pj, err = pj.NormalizeForVisualization()
	if err != nil {
		return nil, fmt.Errorf("normalize transform EPSG:%d -> EPSG:%d: %w", fromEPSG, toEPSG, err)
	}

	m.cache[key] = pj
	return pj, nil
}

// TransformPoint transforms (x, y) from fromEPSG to toEPSG, both in
// longitude-first / easting-first order.
func (m *Manager) TransformPoint(x, y float64, fromEPSG, toEPSG int) (float64, float64, error) {
	if fromEPSG == toEPSG {
		return x, y, nil
	}

	pj, err := m.transformer(fromEPSG, toEPSG)
	if err != nil {
		return 0, 0, err
	}

	out, err := pj.Forward(proj.Coord{x, y, 0, 0})
	if err != nil {
		return 0, 0, pipelineerr.Wrap(pipelineerr.InvalidInput, "coordinate transform failed", err)
	}
	return out[0], out[1], nil
}

// TransformRing transforms every vertex of a ring in place semantics (it
// returns a new ring; the input is not mutated).
func (m *Manager) TransformRing(ring orb.Ring, fromEPSG, toEPSG int) (orb.Ring, error) {
	if fromEPSG == toEPSG {
		out := make(orb.Ring, len(ring))
		copy(out, ring)
		return out, nil
	}
	out := make(orb.Ring, len(ring))
	for i, pt := range ring {
		x, y, err := m.TransformPoint(pt[0], pt[1], fromEPSG, toEPSG)
		if err != nil {
			return nil, err
		}
		out[i] = orb.Point{x, y}
	}
	return out, nil
}

// TransformPolygon transforms every ring (outer and holes) of poly.
func (m *Manager) TransformPolygon(poly orb.Polygon, fromEPSG, toEPSG int) (orb.Polygon, error) {
	if fromEPSG == toEPSG {
		out := make(orb.Polygon, len(poly))
		copy(out, poly)
		return out, nil
	}
	out := make(orb.Polygon, len(poly))
	for i, ring := range poly {
		transformed, err := m.TransformRing(ring, fromEPSG, toEPSG)
		if err != nil {
			return nil, err
		}
		out[i] = transformed
	}
	return out, nil
}

// Centroid returns the planar area-weighted centroid of the full polygon,
// holes included (the same value shapely's Polygon.centroid gives).
func Centroid(poly orb.Polygon) orb.Point {
	c, _ := planar.CentroidArea(poly)
	return c
}

// EPSGForPolygon selects the UTM EPSG for a WGS84 polygon via its centroid,
// per SPEC_FULL.md §4.1.
func EPSGForPolygon(poly orb.Polygon) int {
	c := Centroid(poly)
	return EPSGFor(c[0], c[1])
}

// ProjectSearchPolygon determines the UTM EPSG for poly (in WGS84) and
// returns both the EPSG code and poly transformed into it.
func (m *Manager) ProjectSearchPolygon(poly orb.Polygon) (int, orb.Polygon, error) {
	epsg := EPSGForPolygon(poly)
	projected, err := m.TransformPolygon(poly, WGS84EPSG, epsg)
	if err != nil {
		return 0, nil, err
	}
	return epsg, projected, nil
}

// AreaAcres returns the area of a polygon already in a projected (metric)
// CRS, in acres.
func AreaAcres(poly orb.Polygon) float64 {
	return math.Abs(planar.Area(poly)) / AcreSquareMeters
}

// AreaAcresWGS84 projects poly (assumed WGS84) to its centroid-appropriate
// UTM zone and returns its area in acres, matching
// CRSManager.calculate_area_acres in the source.
func (m *Manager) AreaAcresWGS84(poly orb.Polygon) (float64, error) {
	epsg, projected, err := m.ProjectSearchPolygon(poly)
	if err != nil {
		return 0, err
	}
	_ = epsg
	return AreaAcres(projected), nil
}
