package polygonbuild

import (
	"fmt"
	"math"
	"sort"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/TheCoderPerson/AutoDroneSegment/internal/crsutil"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/geomops"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/rasterprep"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/segmentgen"
)

// containmentEpsilonM2 and overlapEpsilonM2 absorb clipper2's int64
// round-tripping noise (Scale=1e4) so a near-zero sliver isn't reported as a
// real containment/overlap.
const (
	containmentEpsilonM2 = 1.0
	overlapEpsilonM2     = 1.0
)

// BuildAll runs per-segment construction for every segment, then the global
// reconciliation passes in the order SPEC_FULL.md mandates: overlap removal,
// small-part rescue, union-based island absorption, single-polygon
// validation. Segments that end up empty (fully subsumed by an
// earlier-sequenced segment, with nothing worth rescuing) are dropped from
// the returned slice.
func BuildAll(segments []segmentgen.Segment, launchPoints map[int]orb.Point, idx *rasterprep.Index, searchPolygon orb.Polygon, opts Options, log *zap.Logger) []Built {
	built := make([]Built, 0, len(segments))
	for _, seg := range segments {
		lp := launchPoints[seg.PointID]
		built = append(built, BuildSegmentPolygon(seg, lp[0], lp[1], idx, searchPolygon, opts))
	}

	built, discarded := removeOverlaps(built)
	built = rescueSmallParts(built, discarded)
	built = absorbIslands(built)
	built = validateSinglePolygons(built, log)

	final := make([]Built, 0, len(built))
	for _, b := range built {
		if b.Discarded || len(b.Polygon) == 0 {
			continue
		}
		b.AreaAcres = b.AreaM2 / crsutil.AcreSquareMeters
		final = append(final, b)
	}
	sort.Slice(final, func(i, j int) bool { return final[i].Sequence < final[j].Sequence })
	for i := range final {
		final[i].Sequence = i + 1
	}
	return final
}

// removeOverlaps subtracts every earlier segment's territory from each
// later segment in sequence order (previous_union accumulation). A segment
// left empty by the subtraction is dropped; a segment left multi-part keeps
// only its largest piece, with every other piece handed back as a
// discarded part for rescueSmallParts to try to reattach elsewhere.
func removeOverlaps(built []Built) ([]Built, []orb.MultiPolygon) {
	out := make([]Built, len(built))
	copy(out, built)

	var previousUnion orb.MultiPolygon
	var discarded []orb.MultiPolygon

	for i := range out {
		if out[i].Discarded || len(out[i].Polygon) == 0 {
			continue
		}
		current := orb.MultiPolygon{out[i].Polygon}
		diff := current
		if len(previousUnion) > 0 {
			diff = geomops.Difference(current, previousUnion)
		}
		if len(diff) == 0 {
			out[i].Discarded = true
			out[i].Polygon = nil
			out[i].AreaM2 = 0
			continue
		}

		diff = repairIfInvalid(diff)
		diff = removeSmallHoles(diff, DefaultOptions().MinHoleAreaM2)

		if len(diff) > 1 {
			largest, area, rest := splitLargestFromRest(diff)
			out[i].Polygon = largest
			out[i].AreaM2 = area
			discarded = append(discarded, rest...)
		} else {
			out[i].Polygon = diff[0]
			out[i].AreaM2 = geomops.Area(orb.MultiPolygon{diff[0]})
		}

		previousUnion = geomops.Union(previousUnion, orb.MultiPolygon{out[i].Polygon})
	}
	return out, discarded
}

// splitLargestFromRest picks mp's largest part (by area net of holes) and
// returns every other part as single-polygon MultiPolygons.
func splitLargestFromRest(mp orb.MultiPolygon) (orb.Polygon, float64, []orb.MultiPolygon) {
	bestIdx, bestArea := 0, geomops.Area(orb.MultiPolygon{mp[0]})
	for i := 1; i < len(mp); i++ {
		a := geomops.Area(orb.MultiPolygon{mp[i]})
		if a > bestArea {
			bestIdx, bestArea = i, a
		}
	}
	rest := make([]orb.MultiPolygon, 0, len(mp)-1)
	for i, poly := range mp {
		if i == bestIdx {
			continue
		}
		rest = append(rest, orb.MultiPolygon{poly})
	}
	return mp[bestIdx], bestArea, rest
}

// rescueSmallParts unions each overlap-removal leftover into whichever
// surviving segment has the nearest centroid, re-collapsing that segment to
// its largest part afterward so the single-polygon invariant holds. A part
// that cannot be attached to any segment (no segment survived) is left out
// of the final coverage, same as the source's unrescued drop.
func rescueSmallParts(built []Built, discarded []orb.MultiPolygon) []Built {
	if len(discarded) == 0 {
		return built
	}

	tree := rtreego.NewTree(2, 25, 50)
	haveActive := false
	for i, b := range built {
		if b.Discarded || len(b.Polygon) == 0 {
			continue
		}
		c := crsutil.Centroid(b.Polygon)
		tree.Insert(&indexedSegment{idx: i, x: c[0], y: c[1]})
		haveActive = true
	}
	if !haveActive {
		return built
	}

	for _, part := range discarded {
		if len(part) == 0 {
			continue
		}
		c := crsutil.Centroid(part[0])
		target := nearestSegment(tree, c[0], c[1])
		if target < 0 {
			continue
		}
		merged := geomops.Union(orb.MultiPolygon{built[target].Polygon}, part)
		poly, area := geomops.LargestPart(merged)
		built[target].Polygon = poly
		built[target].AreaM2 = area
	}
	return built
}

// indexedSegment adapts a segment's centroid to rtreego.Spatial, the same
// adaptation gridgen uses for its own proximity queries.
type indexedSegment struct {
	idx  int
	x, y float64
}

func (s *indexedSegment) Bounds() rtreego.Rect {
	const epsilon = 1e-6
	rect, _ := rtreego.NewRect(rtreego.Point{s.x, s.y}, []float64{epsilon, epsilon})
	return rect
}

// nearestSegment doubles its search radius from a 100m starting box until
// SearchIntersect returns at least one candidate, then picks the true
// closest among them. rtreego's Go API exposes no direct k-nearest query, so
// this expanding-box scan is the same idiom gridgen's boundary de-dup uses.
func nearestSegment(tree *rtreego.Rtree, x, y float64) int {
	const maxRadius = 1 << 24
	for radius := 100.0; radius < maxRadius; radius *= 2 {
		point := rtreego.Point{x - radius, y - radius}
		rect, err := rtreego.NewRect(point, []float64{2 * radius, 2 * radius})
		if err != nil {
			return -1
		}
		results := tree.SearchIntersect(rect)
		if len(results) == 0 {
			continue
		}
		best, bestDist := -1, math.MaxFloat64
		for _, r := range results {
			is := r.(*indexedSegment)
			d := math.Hypot(is.x-x, is.y-y)
			if d < bestDist {
				best, bestDist = is.idx, d
			}
		}
		return best
	}
	return -1
}

// absorbIslands replaces a fully-nested pair (B within A) with A union B,
// removing B, until no nested pair remains. This is a deliberate departure
// from subtraction-based nesting removal: subtracting B from A would leave
// a donut-shaped hole where B used to sit, discarding B's coverage; union
// keeps B's area inside A instead.
func absorbIslands(built []Built) []Built {
	for changed := true; changed; {
		changed = false
		for i := range built {
			if built[i].Discarded || len(built[i].Polygon) == 0 {
				continue
			}
			for j := range built {
				if i == j || built[j].Discarded || len(built[j].Polygon) == 0 {
					continue
				}
				inner := orb.MultiPolygon{built[j].Polygon}
				outer := orb.MultiPolygon{built[i].Polygon}
				if !isContained(inner, outer) {
					continue
				}
				merged := geomops.Union(outer, inner)
				poly, area := geomops.LargestPart(merged)
				built[i].Polygon = poly
				built[i].AreaM2 = area
				built[j].Discarded = true
				built[j].Polygon = nil
				built[j].AreaM2 = 0
				changed = true
			}
		}
	}
	return built
}

// isContained reports whether inner's area lies entirely within outer,
// tested as "nothing left of inner once outer is subtracted from it" rather
// than a vertex-in-polygon predicate, since it has to hold for inner shapes
// with holes or concavities too.
func isContained(inner, outer orb.MultiPolygon) bool {
	remainder := geomops.Difference(inner, outer)
	return geomops.Area(remainder) < containmentEpsilonM2
}

// validateSinglePolygons logs (does not force-collapse: every Built.Polygon
// is already a single orb.Polygon by construction) any case where one
// segment's polygon still contains another segment's centroid after
// reconciliation, which would indicate the absorption/rescue passes above
// left overlapping territory.
func validateSinglePolygons(built []Built, log *zap.Logger) []Built {
	if log == nil {
		return built
	}
	for i := range built {
		if built[i].Discarded || len(built[i].Polygon) == 0 {
			continue
		}
		for j := range built {
			if i == j || built[j].Discarded || len(built[j].Polygon) == 0 {
				continue
			}
			c := crsutil.Centroid(built[j].Polygon)
			if geomops.ContainsPoint(orb.MultiPolygon{built[i].Polygon}, c) {
				log.Warn("segment polygon contains another segment's centroid after reconciliation",
					zap.Int("point_id", built[i].PointID),
					zap.Int("contains_point_id", built[j].PointID))
			}
		}
	}
	return built
}

// TransformToWGS84 reprojects every segment's polygon and launch point from
// the search CRS to WGS84, once, after all reconciliation passes complete.
// AreaM2/AreaAcres are left untouched: they were computed in the metric
// search CRS and stay meaningful, whereas recomputing "area" from
// geographic degrees would not be.
func TransformToWGS84(built []Built, fromEPSG int, mgr *crsutil.Manager) ([]Built, error) {
	out := make([]Built, len(built))
	for i, b := range built {
		poly, err := mgr.TransformPolygon(b.Polygon, fromEPSG, 4326)
		if err != nil {
			return nil, fmt.Errorf("transform segment %d polygon to WGS84: %w", b.PointID, err)
		}
		lx, ly, err := mgr.TransformPoint(b.LaunchPoint[0], b.LaunchPoint[1], fromEPSG, 4326)
		if err != nil {
			return nil, fmt.Errorf("transform segment %d launch point to WGS84: %w", b.PointID, err)
		}
		out[i] = b
		out[i].Polygon = poly
		out[i].LaunchPoint = orb.Point{lx, ly}
	}
	return out, nil
}

// OverlapPair reports a residual overlap between two segments' polygons,
// expected to be empty after reconciliation; a non-empty list signals a
// reconciliation bug rather than an expected condition.
type OverlapPair struct {
	SequenceA, SequenceB int
	AreaM2               float64
}

// CoverageReport summarizes how completely the built (pre-transform, still
// projected) segment polygons cover the search polygon.
type CoverageReport struct {
	CoveragePercentage float64
	GapPercentage      float64
	Overlaps           []OverlapPair
	ValidationSkipped  bool
}

// ValidateCoverage unions every segment polygon (repairing invalid
// geometry first) and compares it against the search polygon. If no
// segment survived reconciliation, or the union itself fails to produce
// any area, it returns a degraded report rather than dividing by zero.
func ValidateCoverage(built []Built, searchPolygon orb.Polygon) CoverageReport {
	var parts []orb.MultiPolygon
	for _, b := range built {
		if len(b.Polygon) == 0 {
			continue
		}
		parts = append(parts, repairIfInvalid(orb.MultiPolygon{b.Polygon}))
	}
	if len(parts) == 0 {
		return CoverageReport{ValidationSkipped: true}
	}

	union := geomops.UnionAll(parts)
	if len(union) == 0 {
		return CoverageReport{ValidationSkipped: true}
	}

	var report CoverageReport
	searchArea := geomops.Area(orb.MultiPolygon{searchPolygon})
	if searchArea > 0 {
		covered := geomops.Area(geomops.Intersect(union, orb.MultiPolygon{searchPolygon}))
		report.CoveragePercentage = covered / searchArea * 100.0
		report.GapPercentage = 100.0 - report.CoveragePercentage
	}

	for i := 0; i < len(built); i++ {
		if len(built[i].Polygon) == 0 {
			continue
		}
		for j := i + 1; j < len(built); j++ {
			if len(built[j].Polygon) == 0 {
				continue
			}
			overlap := geomops.Intersect(orb.MultiPolygon{built[i].Polygon}, orb.MultiPolygon{built[j].Polygon})
			area := geomops.Area(overlap)
			if area > overlapEpsilonM2 {
				report.Overlaps = append(report.Overlaps, OverlapPair{
					SequenceA: built[i].Sequence,
					SequenceB: built[j].Sequence,
					AreaM2:    area,
				})
			}
		}
	}
	return report
}
