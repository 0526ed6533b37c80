package segmentgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cellSet(ids ...int) map[int]struct{} {
	s := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func TestGenerate_CoversAllCellsWithPrimaryPointsAlone(t *testing.T) {
	target := cellSet(1, 2, 3, 4, 5, 6)
	visibility := map[int]map[int]struct{}{
		10: cellSet(1, 2, 3),
		11: cellSet(4, 5, 6),
	}
	primary := cellSet(10, 11)

	segs, phases := Generate([]int{10, 11}, visibility, map[int]string{10: "road", 11: "road"}, primary, target, Options{})
	require.Len(t, segs, 2)
	assert.Equal(t, 2, phases.PrimaryCandidates)
	assert.Equal(t, 0, phases.SecondaryCandidates)
	assert.Equal(t, 2, phases.Phase1Segments)
	assert.Equal(t, 0, phases.Phase2Segments)

	covered := make(map[int]struct{})
	for _, s := range segs {
		for c := range s.CoveredCells {
			covered[c] = struct{}{}
		}
	}
	assert.Equal(t, target, covered)
}

func TestGenerate_FallsBackToSecondaryWhenPrimaryInsufficient(t *testing.T) {
	target := cellSet(1, 2, 3, 4)
	visibility := map[int]map[int]struct{}{
		10: cellSet(1, 2),
		20: cellSet(3, 4), // not primary
	}
	primary := cellSet(10)

	segs, phases := Generate([]int{10, 20}, visibility, nil, primary, target, Options{})
	require.Len(t, segs, 2)
	assert.Equal(t, 10, segs[0].PointID)
	assert.Equal(t, 20, segs[1].PointID)
	assert.Equal(t, 1, phases.Phase1Segments)
	assert.Equal(t, 1, phases.Phase2Segments)
}

func TestGenerate_LeavesGapWhenNoCandidateCanCoverRemainder(t *testing.T) {
	target := cellSet(1, 2, 3)
	visibility := map[int]map[int]struct{}{
		10: cellSet(1, 2),
	}
	primary := cellSet(10)

	segs, _ := Generate([]int{10}, visibility, nil, primary, target, Options{})
	require.Len(t, segs, 1)
	assert.Equal(t, 2, segs[0].CellCount)
}

func TestGreedySelection_TieBreaksOnLowestPointID(t *testing.T) {
	uncovered := cellSet(1, 2, 3)
	visibility := map[int]map[int]struct{}{
		30: cellSet(1, 2),
		10: cellSet(1, 2),
		20: cellSet(1, 2),
	}
	segs := greedySelection([]int{30, 10, 20}, visibility, uncovered, 0, nil)
	require.NotEmpty(t, segs)
	assert.Equal(t, 10, segs[0].pointID, "equal-score candidates must resolve to the lowest point_id")
}

func TestGreedySelection_SizePenaltyDemotesOversizedCandidate(t *testing.T) {
	uncovered := cellSet(1, 2, 3, 4, 5, 6, 7, 8)
	visibility := map[int]map[int]struct{}{
		// preferred=2: coverage 8 > 1.5*2=3 -> score 8*0.8=6.4
		1: cellSet(1, 2, 3, 4, 5, 6, 7, 8),
		// coverage 2, ratio 2/2=1 in [0.7,1.3] -> score 2*1.2=2.4
		2: cellSet(1, 2),
	}
	segs := greedySelection([]int{1, 2}, visibility, uncovered, 2, nil)
	require.NotEmpty(t, segs)
	assert.Equal(t, 1, segs[0].pointID, "penalized oversized candidate still wins on raw coverage margin")
}

func TestGreedySelection_SizeBonusWinsAgainstSmallerRawCoverage(t *testing.T) {
	uncovered := cellSet(1, 2, 3)
	visibility := map[int]map[int]struct{}{
		// preferred=2: coverage 2, ratio 1.0 -> bonus -> score 2.4
		1: cellSet(1, 2),
		// coverage 1, ratio 0.5 outside [0.7,1.3] -> no bonus -> score 1
		2: cellSet(3),
	}
	segs := greedySelection([]int{1, 2}, visibility, uncovered, 2, nil)
	require.NotEmpty(t, segs)
	assert.Equal(t, 1, segs[0].pointID)
}

func TestCalculateStatistics(t *testing.T) {
	segs := []Segment{
		{CoveredCells: cellSet(1, 2), CellCount: 2},
		{CoveredCells: cellSet(3, 4, 5), CellCount: 3},
	}
	phases := Phases{PrimaryCandidates: 3, SecondaryCandidates: 1, Phase1Segments: 1, Phase2Segments: 1}
	stats := CalculateStatistics(segs, 10, 100.0, phases, 2500*time.Millisecond)

	assert.Equal(t, 2, stats.TotalSegments)
	assert.Equal(t, 5, stats.TotalCellsCovered)
	assert.Equal(t, 50.0, stats.CoveragePercentage)
	assert.Equal(t, 2, stats.MinSegmentSizeCells)
	assert.Equal(t, 3, stats.MaxSegmentSizeCells)
	assert.Equal(t, 2.5, stats.AvgSegmentSizeCells)
	assert.Equal(t, 500.0, stats.TotalAreaM2)
	assert.InDelta(t, 500.0/4046.86, stats.TotalAreaAcres, 1e-9)
	assert.Equal(t, 3, stats.PrimaryCandidates)
	assert.Equal(t, 1, stats.SecondaryCandidates)
	assert.Equal(t, 1, stats.Phase1Segments)
	assert.Equal(t, 1, stats.Phase2Segments)
	assert.Equal(t, 5, stats.UncoveredCells)
	assert.Equal(t, 500.0, stats.UncoveredAreaM2)
	assert.Equal(t, 2500*time.Millisecond, stats.ViewshedElapsed)
}

func TestCalculateStatistics_EmptySegments(t *testing.T) {
	stats := CalculateStatistics(nil, 0, 100.0, Phases{}, 0)
	assert.Equal(t, 0, stats.TotalSegments)
	assert.Equal(t, 0.0, stats.CoveragePercentage)
	assert.Equal(t, 0, stats.UncoveredCells)
}
