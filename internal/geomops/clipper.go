// Package geomops wraps the integer-coordinate polygon-clipping library used
// by AccessFilter, PolygonBuilder and the pipeline's search-buffer step for boolean ops
// (union/difference/intersection) and buffering, isolating the
// float-meters <-> int64 scale-factor discipline in one place.
package geomops

import (
	"math"

	clipper "github.com/go-clipper/clipper2"
	"github.com/paulmach/orb"
)

// Scale converts projected meters to clipper2's int64 coordinate space.
// 1e4 preserves sub-millimeter precision (1 unit = 0.1mm) across the
// multi-kilometer extents a search polygon spans, while staying well inside
// int64 range.
const Scale = 1e4

func toPoint64(p orb.Point) clipper.Point64 {
	return clipper.Point64{
		X: int64(math.Round(p[0] * Scale)),
		Y: int64(math.Round(p[1] * Scale)),
	}
}

func fromPoint64(p clipper.Point64) orb.Point {
	return orb.Point{float64(p.X) / Scale, float64(p.Y) / Scale}
}

func toPath(ring orb.Ring) clipper.Path64 {
	path := make(clipper.Path64, len(ring))
	for i, p := range ring {
		path[i] = toPoint64(p)
	}
	return path
}

func fromPath(path clipper.Path64) orb.Ring {
	ring := make(orb.Ring, len(path))
	for i, p := range path {
		ring[i] = fromPoint64(p)
	}
	if len(ring) > 0 && !ring[0].Equal(ring[len(ring)-1]) {
		ring = append(ring, ring[0])
	}
	return ring
}

// ToPaths flattens a MultiPolygon's rings (outer + holes of every part) into
// clipper2 Paths64, the representation every boolean op below consumes.
func ToPaths(mp orb.MultiPolygon) clipper.Paths64 {
	var paths clipper.Paths64
	for _, poly := range mp {
		for _, ring := range poly {
			paths = append(paths, toPath(ring))
		}
	}
	return paths
}

// PolygonToPaths is the single-polygon convenience form of ToPaths.
func PolygonToPaths(poly orb.Polygon) clipper.Paths64 {
	return ToPaths(orb.MultiPolygon{poly})
}

// FromPaths reassembles clipper2's flat Paths64 output into a MultiPolygon,
// using signed area to tell outer rings (positive, clockwise-normalized by
// clipper2) from holes (negative), the convention Clipper2's Union/Difference
// output follows for a PolyPath-free Paths64 result with the NonZero fill
// rule.
func FromPaths(paths clipper.Paths64) orb.MultiPolygon {
	var outers []orb.Ring
	var holes []orb.Ring
	for _, path := range paths {
		ring := fromPath(path)
		if signedArea(ring) >= 0 {
			outers = append(outers, ring)
		} else {
			holes = append(holes, ring)
		}
	}

	mp := make(orb.MultiPolygon, 0, len(outers))
	for _, outer := range outers {
		mp = append(mp, orb.Polygon{outer})
	}
	for _, hole := range holes {
		owner := containingPolygon(mp, hole)
		if owner >= 0 {
			mp[owner] = append(mp[owner], hole)
		}
	}
	return mp
}

func signedArea(ring orb.Ring) float64 {
	sum := 0.0
	for i := 0; i < len(ring); i++ {
		j := (i + 1) % len(ring)
		sum += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	return sum / 2
}

func containingPolygon(mp orb.MultiPolygon, hole orb.Ring) int {
	if len(hole) == 0 {
		return -1
	}
	p := hole[0]
	for i, poly := range mp {
		if ringContainsPoint(poly[0], p) {
			return i
		}
	}
	return -1
}

func ringContainsPoint(ring orb.Ring, p orb.Point) bool {
	inside := false
	j := len(ring) - 1
	for i := 0; i < len(ring); i++ {
		xi, yi := ring[i][0], ring[i][1]
		xj, yj := ring[j][0], ring[j][1]
		if (yi > p[1]) != (yj > p[1]) &&
			p[0] < (xj-xi)*(p[1]-yi)/(yj-yi)+xi {
			inside = !inside
		}
		j = i
	}
	return inside
}

// Union returns the union of all parts of a and b.
func Union(a, b orb.MultiPolygon) orb.MultiPolygon {
	subjects := ToPaths(a)
	clips := ToPaths(b)
	result := clipper.Union(append(append(clipper.Paths64{}, subjects...), clips...), clipper.NonZero)
	return FromPaths(result)
}

// UnionAll unions every part across every input MultiPolygon.
func UnionAll(parts []orb.MultiPolygon) orb.MultiPolygon {
	var all clipper.Paths64
	for _, part := range parts {
		all = append(all, ToPaths(part)...)
	}
	if len(all) == 0 {
		return nil
	}
	return FromPaths(clipper.Union(all, clipper.NonZero))
}

// Difference returns a minus b.
func Difference(a, b orb.MultiPolygon) orb.MultiPolygon {
	subjects := ToPaths(a)
	clips := ToPaths(b)
	if len(clips) == 0 {
		return a
	}
	result := clipper.Difference(subjects, clips, clipper.NonZero)
	return FromPaths(result)
}

// Intersect returns a ∩ b.
func Intersect(a, b orb.MultiPolygon) orb.MultiPolygon {
	subjects := ToPaths(a)
	clips := ToPaths(b)
	result := clipper.Intersect(subjects, clips, clipper.NonZero)
	return FromPaths(result)
}

// Buffer offsets every part of mp outward (positive deltaMeters) or inward
// (negative), using a round join/closed-polygon end type — the shape
// shapely's buffer() produces for polygon inputs.
func Buffer(mp orb.MultiPolygon, deltaMeters float64) orb.MultiPolygon {
	paths := ToPaths(mp)
	if len(paths) == 0 {
		return nil
	}
	result := clipper.InflatePaths(paths, deltaMeters*Scale, clipper.Round, clipper.ClosedPolygon, clipper.OffsetOptions{
		MiterLimit:   2.0,
		ArcTolerance: 0.25 * Scale,
	})
	return FromPaths(result)
}

// BufferLines offsets a set of open line strings outward by deltaMeters with
// round joins and round caps, matching shapely's default buffer() behavior
// for line geometries (used for the road/trail access buffers, as opposed to
// Buffer above which closes each input ring before offsetting).
func BufferLines(lines []orb.LineString, deltaMeters float64) orb.MultiPolygon {
	if len(lines) == 0 || deltaMeters <= 0 {
		return nil
	}
	paths := make(clipper.Paths64, len(lines))
	for i, ls := range lines {
		path := make(clipper.Path64, len(ls))
		for j, p := range ls {
			path[j] = toPoint64(p)
		}
		paths[i] = path
	}
	result := clipper.InflatePaths(paths, deltaMeters*Scale, clipper.Round, clipper.OpenRound, clipper.OffsetOptions{
		MiterLimit:   2.0,
		ArcTolerance: 0.25 * Scale,
	})
	return FromPaths(result)
}

// Area returns the total unsigned area (m²) of mp.
func Area(mp orb.MultiPolygon) float64 {
	total := 0.0
	for _, poly := range mp {
		for i, ring := range poly {
			a := math.Abs(signedArea(ring))
			if i == 0 {
				total += a
			} else {
				total -= a
			}
		}
	}
	return total
}

// LargestPart returns the part of mp (a single orb.Polygon) with the
// greatest absolute area, and that area. Used throughout PolygonBuilder's
// "collapse to largest part" rule.
func LargestPart(mp orb.MultiPolygon) (orb.Polygon, float64) {
	var best orb.Polygon
	bestArea := -1.0
	for _, poly := range mp {
		a := Area(orb.MultiPolygon{poly})
		if a > bestArea {
			bestArea = a
			best = poly
		}
	}
	return best, bestArea
}

// ContainsPoint reports whether any part of mp contains p (outer ring minus
// holes).
func ContainsPoint(mp orb.MultiPolygon, p orb.Point) bool {
	for _, poly := range mp {
		if !ringContainsPoint(poly[0], p) {
			continue
		}
		inHole := false
		for _, hole := range poly[1:] {
			if ringContainsPoint(hole, p) {
				inHole = true
				break
			}
		}
		if !inHole {
			return true
		}
	}
	return false
}
