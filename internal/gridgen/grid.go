// Package gridgen produces candidate launch-point grids inside a projected
// search polygon.
package gridgen

import (
	"math"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
)

// Point is a candidate launch point: its projected coordinate and its
// sequential point_id.
type Point struct {
	ID   int
	X, Y float64
}

// Options configures grid generation. DefaultOptions mirrors the source's
// defaults (max_points=10000, min_spacing_m=25, boundary_spacing_m=50).
type Options struct {
	SpacingM         float64
	MaxPoints        int
	Adaptive         bool
	MinSpacingM      float64
	BoundaryPoints   bool
	BoundarySpacingM float64
}

// DefaultOptions returns the source's verbatim defaults with SpacingM unset;
// callers must set SpacingM.
func DefaultOptions() Options {
	return Options{
		MaxPoints:        10000,
		MinSpacingM:      25.0,
		BoundarySpacingM: 50.0,
	}
}

// Generate produces the candidate point set for poly per SPEC_FULL.md §4.3.
func Generate(poly orb.Polygon, opts Options) []Point {
	pts := generateRegularGrid(poly, opts.SpacingM, opts.MaxPoints)

	if opts.Adaptive && len(pts) < 10 && opts.SpacingM > opts.MinSpacingM {
		pts = generateRegularGrid(poly, opts.MinSpacingM, opts.MaxPoints)
	}

	if opts.BoundaryPoints {
		pts = addBoundaryPoints(poly, pts, opts.BoundarySpacingM)
	}

	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{ID: i, X: p[0], Y: p[1]}
	}
	return out
}

// generateRegularGrid implements the nx/ny + inflation + meshgrid + strict
// point-in-polygon filter from grid_generator.py's generate_grid, operating
// on plain orb.Point values (point_id is assigned once by the caller after
// boundary densification, since the source only assigns index positions
// after all points are combined).
func generateRegularGrid(poly orb.Polygon, spacingM float64, maxPoints int) []orb.Point {
	bound := poly.Bound()
	xRange := bound.Max[0] - bound.Min[0]
	yRange := bound.Max[1] - bound.Min[1]

	nx := int(math.Ceil(xRange/spacingM)) + 1
	ny := int(math.Ceil(yRange/spacingM)) + 1

	if total := nx * ny; total > maxPoints {
		scale := math.Sqrt(float64(total) / float64(maxPoints))
		spacingM *= scale
		nx = int(math.Ceil(xRange/spacingM)) + 1
		ny = int(math.Ceil(yRange/spacingM)) + 1
	}

	xCoords := linspace(bound.Min[0], bound.Max[0], nx)
	yCoords := linspace(bound.Min[1], bound.Max[1], ny)

	index := buildContainmentIndex(poly)

	var inside []orb.Point
	for _, y := range yCoords {
		for _, x := range xCoords {
			if containsStrict(index, x, y) {
				inside = append(inside, orb.Point{x, y})
			}
		}
	}
	return inside
}

func linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := 0; i < n; i++ {
		out[i] = lo + float64(i)*step
	}
	return out
}

// addBoundaryPoints interpolates points along poly's outer-ring perimeter at
// fixed arc-length intervals and merges them with existing points, dropping
// any new point within boundarySpacingM/2 of an already-accepted point. The
// de-duplication scan consults an R-tree instead of the source's O(n^2)
// pairwise loop, which matters once the interior grid is dense.
func addBoundaryPoints(poly orb.Polygon, existing []orb.Point, boundarySpacingM float64) []orb.Point {
	if len(poly) == 0 || boundarySpacingM <= 0 {
		return existing
	}
	ring := poly[0]
	length := ringLength(ring)
	if length == 0 {
		return existing
	}
	numBoundary := int(length / boundarySpacingM)
	if numBoundary == 0 {
		return existing
	}

	minDist := boundarySpacingM / 2
	tree := rtreego.NewTree(2, 25, 50)
	for i, p := range existing {
		tree.Insert(&indexedPoint{id: i, x: p[0], y: p[1]})
	}

	accepted := append([]orb.Point{}, existing...)
	for i := 0; i < numBoundary; i++ {
		dist := (float64(i) / float64(numBoundary)) * length
		pt := interpolateAlongRing(ring, dist)

		if nearestWithin(tree, pt[0], pt[1], minDist) {
			continue
		}
		accepted = append(accepted, pt)
		idxPt := &indexedPoint{id: len(accepted) - 1, x: pt[0], y: pt[1]}
		tree.Insert(idxPt)
	}
	return accepted
}

func ringLength(ring orb.Ring) float64 {
	total := 0.0
	for i := 1; i < len(ring); i++ {
		total += dist(ring[i-1], ring[i])
	}
	return total
}

func dist(a, b orb.Point) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	return math.Hypot(dx, dy)
}

func interpolateAlongRing(ring orb.Ring, targetDist float64) orb.Point {
	travelled := 0.0
	for i := 1; i < len(ring); i++ {
		segLen := dist(ring[i-1], ring[i])
		if travelled+segLen >= targetDist {
			remaining := targetDist - travelled
			t := 0.0
			if segLen > 0 {
				t = remaining / segLen
			}
			x := ring[i-1][0] + t*(ring[i][0]-ring[i-1][0])
			y := ring[i-1][1] + t*(ring[i][1]-ring[i-1][1])
			return orb.Point{x, y}
		}
		travelled += segLen
	}
	return ring[len(ring)-1]
}

// indexedPoint adapts a 2D point to rtreego.Spatial for nearest-neighbor /
// proximity queries, the same adaptation the teacher uses for feature
// bounding boxes in pkg/s57/s57.go.
type indexedPoint struct {
	id   int
	x, y float64
}

func (p *indexedPoint) Bounds() rtreego.Rect {
	const epsilon = 1e-6
	rect, _ := rtreego.NewRect(rtreego.Point{p.x, p.y}, []float64{epsilon, epsilon})
	return rect
}

func nearestWithin(tree *rtreego.Rtree, x, y, radius float64) bool {
	point := rtreego.Point{x - radius, y - radius}
	lengths := []float64{2 * radius, 2 * radius}
	rect, err := rtreego.NewRect(point, lengths)
	if err != nil {
		return false
	}
	for _, result := range tree.SearchIntersect(rect) {
		ip := result.(*indexedPoint)
		if math.Hypot(ip.x-x, ip.y-y) < radius {
			return true
		}
	}
	return false
}
