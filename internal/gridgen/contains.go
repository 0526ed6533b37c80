package gridgen

import "github.com/paulmach/orb"

// containmentIndex holds a polygon's rings (no spatial index: every query
// ray-casts against every edge), used to answer the strict
// interior-containment test the
// regular grid relies on (a candidate point must be strictly inside the
// outer ring and strictly outside every hole, matching shapely's
// Polygon.contains(Point) semantics, which excludes the boundary).
type containmentIndex struct {
	poly orb.Polygon
}

func buildContainmentIndex(poly orb.Polygon) *containmentIndex {
	return &containmentIndex{poly: poly}
}

func containsStrict(idx *containmentIndex, x, y float64) bool {
	if len(idx.poly) == 0 {
		return false
	}
	if !strictlyInsideRing(idx.poly[0], x, y) {
		return false
	}
	for _, hole := range idx.poly[1:] {
		if strictlyInsideRing(hole, x, y) || onRing(hole, x, y) {
			return false
		}
	}
	return true
}

// strictlyInsideRing is a ray-casting point-in-polygon test, generalized
// from the teacher's lat/lon ray-casting loop (pkg/s57/cellset.go
// pointInPolygon) to projected x/y, plus an exact on-boundary rejection so
// points lying exactly on an edge are treated as outside.
func strictlyInsideRing(ring orb.Ring, x, y float64) bool {
	if len(ring) < 3 {
		return false
	}
	if onRing(ring, x, y) {
		return false
	}

	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]

		if (yi > y) != (yj > y) &&
			x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

func onRing(ring orb.Ring, x, y float64) bool {
	const eps = 1e-9
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		if onSegment(ring[j], ring[i], x, y, eps) {
			return true
		}
		j = i
	}
	return false
}

func onSegment(a, b orb.Point, x, y, eps float64) bool {
	cross := (b[0]-a[0])*(y-a[1]) - (b[1]-a[1])*(x-a[0])
	if cross*cross > eps*((b[0]-a[0])*(b[0]-a[0])+(b[1]-a[1])*(b[1]-a[1])) {
		return false
	}
	dot := (x-a[0])*(b[0]-a[0]) + (y-a[1])*(b[1]-a[1])
	if dot < 0 {
		return false
	}
	lenSq := (b[0]-a[0])*(b[0]-a[0]) + (b[1]-a[1])*(b[1]-a[1])
	return dot <= lenSq
}
