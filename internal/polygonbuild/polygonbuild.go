// Package polygonbuild turns a generated segment's covered cell set into a
// single clean polygon, then reconciles every segment's polygon against its
// neighbors so the final set tiles the search area without overlaps or
// orphaned slivers.
package polygonbuild

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"

	"github.com/TheCoderPerson/AutoDroneSegment/internal/geomops"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/rasterprep"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/segmentgen"
)

// Built is one segment's reconciled polygon, carrying the area computed in
// the projected CRS before any WGS84 transform is applied.
type Built struct {
	Sequence    int
	PointID     int
	AccessType  string
	CellCount   int
	LaunchPoint orb.Point
	Polygon     orb.Polygon
	AreaM2      float64
	AreaAcres   float64
	Discarded   bool
}

// Options configures per-segment construction. Zero values fall back to the
// source's verbatim defaults.
type Options struct {
	SimplifyToleranceM float64
	MinHoleAreaM2      float64
}

// DefaultOptions mirrors polygon_builder.py's constructor defaults.
func DefaultOptions() Options {
	return Options{
		SimplifyToleranceM: 2.0,
		MinHoleAreaM2:      100.0,
	}
}

// BuildSegmentPolygon runs the seven-step per-segment construction: union
// the cell rectangles, conservatively open multi-part unions, clip to the
// search polygon, simplify, repair, drop small holes, and collapse any
// remaining multi-part result to its largest piece.
func BuildSegmentPolygon(seg segmentgen.Segment, launchX, launchY float64, idx *rasterprep.Index, searchPolygon orb.Polygon, opts Options) Built {
	built := Built{
		Sequence:    seg.Sequence,
		PointID:     seg.PointID,
		AccessType:  seg.AccessType,
		CellCount:   seg.CellCount,
		LaunchPoint: orb.Point{launchX, launchY},
	}

	pixelW, pixelH := idx.PixelWidth(), idx.PixelHeight()

	var rects []orb.MultiPolygon
	for cellID := range seg.CoveredCells {
		cell := idx.Cell(cellID)
		rects = append(rects, orb.MultiPolygon{cellRect(cell.X, cell.Y, pixelW, pixelH)})
	}
	if len(rects) == 0 {
		built.Discarded = true
		return built
	}

	union := geomops.UnionAll(rects)
	if len(union) > 1 {
		union = conservativeOpen(union, pixelW)
	}

	if len(searchPolygon) > 0 {
		union = geomops.Intersect(union, orb.MultiPolygon{searchPolygon})
		if len(union) > 1 {
			union = conservativeOpen(union, pixelW)
		}
	}

	if len(union) == 0 {
		built.Discarded = true
		return built
	}

	tol := opts.SimplifyToleranceM
	if tol <= 0 {
		tol = DefaultOptions().SimplifyToleranceM
	}
	union = simplifyMultiPolygon(union, tol)
	union = repairIfInvalid(union)

	minHole := opts.MinHoleAreaM2
	if minHole <= 0 {
		minHole = DefaultOptions().MinHoleAreaM2
	}
	union = removeSmallHoles(union, minHole)

	poly, area := geomops.LargestPart(union)
	built.Polygon = poly
	built.AreaM2 = area
	return built
}

// cellRect builds the axis-aligned pixelW x pixelH rectangle centered on a
// cell's projected centroid.
func cellRect(cx, cy, pixelW, pixelH float64) orb.Polygon {
	hw, hh := pixelW/2, pixelH/2
	ring := orb.Ring{
		{cx - hw, cy - hh},
		{cx + hw, cy - hh},
		{cx + hw, cy + hh},
		{cx - hw, cy + hh},
		{cx - hw, cy - hh},
	}
	return orb.Polygon{ring}
}

// conservativeOpen buffers outward by 0.3*pixelW then inward by 0.9 of that
// distance, merging adjacent rectangles into a single part without the
// concavity-erasing effect a convex hull would have.
func conservativeOpen(mp orb.MultiPolygon, pixelW float64) orb.MultiPolygon {
	out := 0.3 * pixelW
	opened := geomops.Buffer(mp, out)
	opened = geomops.Buffer(opened, -0.9*out)
	return opened
}

// simplifyMultiPolygon runs Douglas-Peucker simplification, with topology
// preservation approximated by refusing any simplification that collapses a
// ring below 4 points (a degenerate polygon).
func simplifyMultiPolygon(mp orb.MultiPolygon, toleranceM float64) orb.MultiPolygon {
	simplifier := simplify.DouglasPeucker(toleranceM)
	out := make(orb.MultiPolygon, 0, len(mp))
	for _, poly := range mp {
		var rings orb.Polygon
		for _, ring := range poly {
			ls := orb.LineString(ring)
			simplified := simplifier.Simplify(ls).(orb.LineString)
			if len(simplified) < 4 {
				rings = append(rings, ring)
				continue
			}
			rings = append(rings, orb.Ring(simplified))
		}
		out = append(out, rings)
	}
	return out
}

// repairIfInvalid fixes self-intersections via a zero-width buffer, the
// standard shapely `buffer(0)` idiom the source relies on.
func repairIfInvalid(mp orb.MultiPolygon) orb.MultiPolygon {
	return geomops.Buffer(mp, 0)
}

// removeSmallHoles drops every hole ring below minHoleAreaM2, keeping larger
// holes intact.
func removeSmallHoles(mp orb.MultiPolygon, minHoleAreaM2 float64) orb.MultiPolygon {
	out := make(orb.MultiPolygon, len(mp))
	for i, poly := range mp {
		kept := orb.Polygon{poly[0]}
		for _, hole := range poly[1:] {
			if ringArea(hole) >= minHoleAreaM2 {
				kept = append(kept, hole)
			}
		}
		out[i] = kept
	}
	return out
}

func ringArea(ring orb.Ring) float64 {
	sum := 0.0
	for i := 0; i < len(ring); i++ {
		j := (i + 1) % len(ring)
		sum += ring[i][0]*ring[j][1] - ring[j][0]*ring[i][1]
	}
	if sum < 0 {
		sum = -sum
	}
	return sum / 2
}
