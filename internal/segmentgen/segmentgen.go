// Package segmentgen selects a minimal set of launch points that together
// cover a search polygon's target cells, via greedy max-coverage.
package segmentgen

import (
	"sort"
	"time"
)

// Segment is one selected launch point and the target cells it newly
// covers.
type Segment struct {
	Sequence     int
	PointID      int
	CoveredCells map[int]struct{}
	AccessType   string
	CellCount    int
}

// Options configures Generate. PreferredSizeCells of 0 disables the
// size-penalty/size-bonus scoring adjustments. Progress, if set, is called
// after every fifth segment a phase selects, with the number of segments
// that phase has selected so far.
type Options struct {
	PreferredSizeCells int
	Progress           func(message string, segmentsSelected int)
}

// Statistics summarizes a generated segment set, mirroring
// segment_generator.py's calculate_statistics.
type Statistics struct {
	TotalSegments       int
	TotalCellsCovered   int
	TargetCells         int
	CoveragePercentage  float64
	MinSegmentSizeCells int
	MaxSegmentSizeCells int
	AvgSegmentSizeCells float64
	TotalAreaM2         float64
	TotalAreaAcres      float64

	PrimaryCandidates   int
	SecondaryCandidates int
	Phase1Segments      int
	Phase2Segments      int

	UncoveredCells  int
	UncoveredAreaM2 float64

	ViewshedElapsed time.Duration
}

const acreSquareMeters = 4046.86

// Phases reports how the candidate pool split between access-compliant and
// fallback points, and how many segments each phase contributed.
type Phases struct {
	PrimaryCandidates   int
	SecondaryCandidates int
	Phase1Segments      int
	Phase2Segments      int
}

// Generate runs the two-phase greedy max-coverage algorithm: Phase 1
// restricts candidates to primary (access-compliant) points; Phase 2, run
// only if cells remain uncovered, falls back to secondary points.
// visibility maps point_id -> the set of target cells visible from it
// (already intersected with the search polygon by the caller).
func Generate(gridPoints []int, visibility map[int]map[int]struct{}, accessClassification map[int]string, primaryPointIDs map[int]struct{}, targetCells map[int]struct{}, opts Options) ([]Segment, Phases) {
	uncovered := make(map[int]struct{}, len(targetCells))
	for c := range targetCells {
		uncovered[c] = struct{}{}
	}

	var primary, secondary []int
	for _, pid := range gridPoints {
		if _, ok := primaryPointIDs[pid]; ok {
			primary = append(primary, pid)
		} else {
			secondary = append(secondary, pid)
		}
	}

	phase1 := greedySelection(primary, visibility, uncovered, opts.PreferredSizeCells, opts.Progress)
	var phase2 []rawSegment
	if len(uncovered) > 0 {
		phase2 = greedySelection(secondary, visibility, uncovered, opts.PreferredSizeCells, opts.Progress)
	}
	raw := append(append([]rawSegment{}, phase1...), phase2...)

	segments := make([]Segment, len(raw))
	for i, r := range raw {
		segments[i] = Segment{
			Sequence:     i + 1,
			PointID:      r.pointID,
			CoveredCells: r.covered,
			AccessType:   accessClassification[r.pointID],
			CellCount:    len(r.covered),
		}
	}
	phases := Phases{
		PrimaryCandidates:   len(primary),
		SecondaryCandidates: len(secondary),
		Phase1Segments:      len(phase1),
		Phase2Segments:      len(phase2),
	}
	return segments, phases
}

type rawSegment struct {
	pointID int
	covered map[int]struct{}
}

// greedySelection repeatedly picks the highest-scoring remaining candidate
// until no candidate can cover any uncovered cell, mutating uncovered in
// place. Candidates are walked in ascending point_id order and a score must
// strictly exceed the current best to replace it, making the tie-break
// deterministic (lowest point_id wins) where the source's Python set
// iteration order was not.
func greedySelection(candidates []int, visibility map[int]map[int]struct{}, uncovered map[int]struct{}, preferredSizeCells int, progress func(string, int)) []rawSegment {
	available := make(map[int]struct{}, len(candidates))
	for _, pid := range candidates {
		available[pid] = struct{}{}
	}

	var segments []rawSegment
	for len(uncovered) > 0 && len(available) > 0 {
		ordered := make([]int, 0, len(available))
		for pid := range available {
			ordered = append(ordered, pid)
		}
		sort.Ints(ordered)

		bestPoint := -1
		var bestCoverage map[int]struct{}
		bestScore := 0.0

		for _, pid := range ordered {
			vis, ok := visibility[pid]
			if !ok {
				continue
			}
			coverage := intersect(vis, uncovered)
			count := len(coverage)
			score := float64(count)

			if preferredSizeCells > 0 {
				if float64(count) > float64(preferredSizeCells)*1.5 {
					score *= 0.8
				}
				ratio := float64(count) / float64(preferredSizeCells)
				if ratio >= 0.7 && ratio <= 1.3 {
					score *= 1.2
				}
			}

			if score > bestScore {
				bestScore = score
				bestPoint = pid
				bestCoverage = coverage
			}
		}

		if bestPoint < 0 || len(bestCoverage) == 0 {
			break
		}

		segments = append(segments, rawSegment{pointID: bestPoint, covered: bestCoverage})
		for c := range bestCoverage {
			delete(uncovered, c)
		}
		delete(available, bestPoint)

		if progress != nil && len(segments)%5 == 0 {
			progress("generating segments", len(segments))
		}
	}
	return segments
}

func intersect(a, b map[int]struct{}) map[int]struct{} {
	out := make(map[int]struct{})
	small, big := a, b
	if len(b) < len(a) {
		small, big = b, a
	}
	for c := range small {
		if _, ok := big[c]; ok {
			out[c] = struct{}{}
		}
	}
	return out
}

// CalculateStatistics summarizes a generated segment set. phases and
// viewshedElapsed are passed through verbatim from the run that produced
// segments; pass a zero Phases{} and 0 if unavailable.
func CalculateStatistics(segments []Segment, totalTargetCells int, cellAreaM2 float64, phases Phases, viewshedElapsed time.Duration) Statistics {
	covered := make(map[int]struct{})
	sizes := make([]int, len(segments))
	for i, seg := range segments {
		for c := range seg.CoveredCells {
			covered[c] = struct{}{}
		}
		sizes[i] = seg.CellCount
	}

	stats := Statistics{
		TotalSegments:       len(segments),
		TotalCellsCovered:   len(covered),
		TargetCells:         totalTargetCells,
		PrimaryCandidates:   phases.PrimaryCandidates,
		SecondaryCandidates: phases.SecondaryCandidates,
		Phase1Segments:      phases.Phase1Segments,
		Phase2Segments:      phases.Phase2Segments,
		ViewshedElapsed:     viewshedElapsed,
	}
	if totalTargetCells > 0 {
		stats.CoveragePercentage = float64(len(covered)) / float64(totalTargetCells) * 100.0
	}
	if len(sizes) > 0 {
		min, max, sum := sizes[0], sizes[0], 0
		for _, s := range sizes {
			if s < min {
				min = s
			}
			if s > max {
				max = s
			}
			sum += s
		}
		stats.MinSegmentSizeCells = min
		stats.MaxSegmentSizeCells = max
		stats.AvgSegmentSizeCells = float64(sum) / float64(len(sizes))
	}
	stats.TotalAreaM2 = float64(len(covered)) * cellAreaM2
	stats.TotalAreaAcres = stats.TotalAreaM2 / acreSquareMeters

	uncoveredCells := totalTargetCells - len(covered)
	if uncoveredCells < 0 {
		uncoveredCells = 0
	}
	stats.UncoveredCells = uncoveredCells
	stats.UncoveredAreaM2 = float64(uncoveredCells) * cellAreaM2
	return stats
}
