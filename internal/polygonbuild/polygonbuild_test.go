package polygonbuild

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCoderPerson/AutoDroneSegment/internal/geomops"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/rasterprep"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/segmentgen"
)

func squarePoly(cx, cy, half float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{cx - half, cy - half},
		{cx + half, cy - half},
		{cx + half, cy + half},
		{cx - half, cy + half},
		{cx - half, cy - half},
	}}
}

func flatIndex(width, height int) *rasterprep.Index {
	transform := [6]float64{0, 10, 0, float64(height) * 10, 0, -10}
	cells := make([]rasterprep.Cell, width*height)
	idx := rasterprep.NewIndex("test.tif", 32633, transform, width, height, cells)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			x, y := idx.PixelToWorld(col, row)
			cells[idx.CellID(row, col)] = rasterprep.Cell{X: x, Y: y}
		}
	}
	return rasterprep.NewIndex("test.tif", 32633, transform, width, height, cells)
}

func TestBuildSegmentPolygon_SingleCellProducesRectangle(t *testing.T) {
	idx := flatIndex(10, 10)
	seg := segmentgen.Segment{
		Sequence:     1,
		PointID:      5,
		CoveredCells: map[int]struct{}{idx.CellID(5, 5): {}},
		CellCount:    1,
	}
	search := squarePoly(50, 50, 100)
	launchX, launchY := idx.Cell(idx.CellID(5, 5)).X, idx.Cell(idx.CellID(5, 5)).Y

	built := BuildSegmentPolygon(seg, launchX, launchY, idx, search, DefaultOptions())
	require.False(t, built.Discarded)
	require.NotEmpty(t, built.Polygon)
	assert.InDelta(t, idx.CellArea(), built.AreaM2, idx.CellArea()*0.5)
}

func TestBuildSegmentPolygon_ClipsToSearchPolygon(t *testing.T) {
	idx := flatIndex(20, 20)
	cells := map[int]struct{}{}
	for row := 0; row < 20; row++ {
		for col := 0; col < 20; col++ {
			cells[idx.CellID(row, col)] = struct{}{}
		}
	}
	seg := segmentgen.Segment{Sequence: 1, PointID: 1, CoveredCells: cells, CellCount: len(cells)}
	search := squarePoly(100, 100, 30) // far smaller than the full 200x200 DEM extent

	built := BuildSegmentPolygon(seg, 100, 100, idx, search, DefaultOptions())
	require.False(t, built.Discarded)
	assert.Less(t, built.AreaM2, 200.0*200.0)
}

func TestBuildSegmentPolygon_EmptyCoverageIsDiscarded(t *testing.T) {
	idx := flatIndex(5, 5)
	seg := segmentgen.Segment{Sequence: 1, PointID: 1, CoveredCells: map[int]struct{}{}}
	built := BuildSegmentPolygon(seg, 0, 0, idx, orb.Polygon{}, DefaultOptions())
	assert.True(t, built.Discarded)
}

func TestRemoveOverlaps_SubtractsEarlierSegments(t *testing.T) {
	built := []Built{
		{Sequence: 1, PointID: 1, Polygon: squarePoly(0, 0, 50), AreaM2: 10000},
		{Sequence: 2, PointID: 2, Polygon: squarePoly(40, 0, 50), AreaM2: 10000},
	}
	out, discarded := removeOverlaps(built)
	require.Len(t, out, 2)
	assert.False(t, out[0].Discarded)
	assert.False(t, out[1].Discarded)

	// second segment's remaining polygon must not overlap the first at all
	overlap := geomops.Intersect(orb.MultiPolygon{out[0].Polygon}, orb.MultiPolygon{out[1].Polygon})
	assert.Less(t, geomops.Area(overlap), 1.0)
	_ = discarded
}

func TestRemoveOverlaps_FullyCoveredSegmentIsDropped(t *testing.T) {
	built := []Built{
		{Sequence: 1, PointID: 1, Polygon: squarePoly(0, 0, 100), AreaM2: 40000},
		{Sequence: 2, PointID: 2, Polygon: squarePoly(0, 0, 20), AreaM2: 1600}, // fully inside segment 1
	}
	out, _ := removeOverlaps(built)
	require.Len(t, out, 2)
	assert.True(t, out[1].Discarded)
}

func TestBuildAll_RenumbersSequenceContiguouslyAfterDrop(t *testing.T) {
	idx := flatIndex(30, 10)
	search := squarePoly(150, 50, 150) // covers the full 300x100 DEM extent

	outerCells := map[int]struct{}{}
	innerCells := map[int]struct{}{}
	farCells := map[int]struct{}{}
	for row := 0; row < 10; row++ {
		for col := 0; col < 30; col++ {
			id := idx.CellID(row, col)
			switch {
			case col < 20:
				outerCells[id] = struct{}{}
			case col < 25:
				innerCells[id] = struct{}{} // fully covered by outer, will be dropped
			default:
				farCells[id] = struct{}{}
			}
		}
	}
	// make innerCells a genuine subset of outerCells so segment 2 is fully
	// covered by segment 1's polygon and gets discarded by removeOverlaps.
	for id := range innerCells {
		outerCells[id] = struct{}{}
	}

	segments := []segmentgen.Segment{
		{Sequence: 1, PointID: 1, CoveredCells: outerCells, CellCount: len(outerCells)},
		{Sequence: 2, PointID: 2, CoveredCells: innerCells, CellCount: len(innerCells)},
		{Sequence: 3, PointID: 3, CoveredCells: farCells, CellCount: len(farCells)},
	}
	launch := map[int]orb.Point{
		1: {95, 50},
		2: {95, 50},
		3: {275, 50},
	}

	built := BuildAll(segments, launch, idx, search, DefaultOptions(), nil)
	require.Len(t, built, 2)
	assert.Equal(t, 1, built[0].Sequence)
	assert.Equal(t, 2, built[1].Sequence)
}

func TestAbsorbIslands_UnionNotSubtraction(t *testing.T) {
	outer := squarePoly(0, 0, 100) // 200x200 = 40000 m^2
	inner := squarePoly(0, 0, 20)  // fully nested, 40x40 = 1600 m^2
	built := []Built{
		{Sequence: 1, PointID: 1, Polygon: outer, AreaM2: 40000},
		{Sequence: 2, PointID: 2, Polygon: inner, AreaM2: 1600},
	}

	out := absorbIslands(built)
	require.False(t, out[0].Discarded)
	assert.True(t, out[1].Discarded, "nested segment must be absorbed, not kept as its own polygon")

	// union-based absorption preserves the outer segment's full area (no
	// donut-shaped hole the way subtraction would leave).
	assert.InDelta(t, 40000.0, out[0].AreaM2, 40000.0*0.02)

	center := orb.Point{0, 0}
	assert.True(t, geomops.ContainsPoint(orb.MultiPolygon{out[0].Polygon}, center),
		"the absorbed island's former location must still be covered, not punched out as a hole")
}

func TestRescueSmallParts_AttachesToNearestSegment(t *testing.T) {
	built := []Built{
		{Sequence: 1, PointID: 1, Polygon: squarePoly(0, 0, 50), AreaM2: 10000},
		{Sequence: 2, PointID: 2, Polygon: squarePoly(1000, 1000, 50), AreaM2: 10000},
	}
	leftover := orb.MultiPolygon{squarePoly(60, 0, 5)} // small sliver, much closer to segment 1

	out := rescueSmallParts(built, []orb.MultiPolygon{leftover})
	require.Len(t, out, 2)
	assert.Greater(t, out[0].AreaM2, 10000.0, "rescued sliver should enlarge the nearer segment")
	assert.InDelta(t, 10000.0, out[1].AreaM2, 1.0, "the farther segment should be untouched")
}

func TestRescueSmallParts_NoDiscardedPartsIsNoop(t *testing.T) {
	built := []Built{{Sequence: 1, PointID: 1, Polygon: squarePoly(0, 0, 50), AreaM2: 10000}}
	out := rescueSmallParts(built, nil)
	assert.Equal(t, built, out)
}

func TestValidateCoverage_DegradedWhenNoSegmentsSurvive(t *testing.T) {
	report := ValidateCoverage(nil, squarePoly(0, 0, 100))
	assert.True(t, report.ValidationSkipped)
}

func TestValidateCoverage_ReportsGapAndNoOverlaps(t *testing.T) {
	search := squarePoly(0, 0, 100) // 200x200 = 40000 m^2
	built := []Built{
		{Sequence: 1, Polygon: squarePoly(-50, 0, 50)}, // 100x100 = 10000 m^2, half the search width
	}
	report := ValidateCoverage(built, search)
	require.False(t, report.ValidationSkipped)
	assert.InDelta(t, 25.0, report.CoveragePercentage, 1.0)
	assert.InDelta(t, 75.0, report.GapPercentage, 1.0)
	assert.Empty(t, report.Overlaps)
}

func TestValidateCoverage_DetectsOverlap(t *testing.T) {
	search := squarePoly(0, 0, 100)
	built := []Built{
		{Sequence: 1, Polygon: squarePoly(0, 0, 50)},
		{Sequence: 2, Polygon: squarePoly(20, 0, 50)},
	}
	report := ValidateCoverage(built, search)
	require.NotEmpty(t, report.Overlaps)
	assert.Equal(t, 1, report.Overlaps[0].SequenceA)
	assert.Equal(t, 2, report.Overlaps[0].SequenceB)
}

func TestBuildAll_EndToEnd_ProducesDisjointCoverage(t *testing.T) {
	idx := flatIndex(20, 20)
	search := squarePoly(100, 100, 100)

	seg1Cells := map[int]struct{}{}
	seg2Cells := map[int]struct{}{}
	for row := 0; row < 20; row++ {
		for col := 0; col < 20; col++ {
			id := idx.CellID(row, col)
			if col < 10 {
				seg1Cells[id] = struct{}{}
			} else {
				seg2Cells[id] = struct{}{}
			}
		}
	}
	segments := []segmentgen.Segment{
		{Sequence: 1, PointID: 1, CoveredCells: seg1Cells, CellCount: len(seg1Cells)},
		{Sequence: 2, PointID: 2, CoveredCells: seg2Cells, CellCount: len(seg2Cells)},
	}
	launch := map[int]orb.Point{
		1: {50, 100},
		2: {150, 100},
	}

	built := BuildAll(segments, launch, idx, search, DefaultOptions(), nil)
	require.Len(t, built, 2)

	overlap := geomops.Intersect(orb.MultiPolygon{built[0].Polygon}, orb.MultiPolygon{built[1].Polygon})
	assert.Less(t, geomops.Area(overlap), 1.0)

	report := ValidateCoverage(built, search)
	assert.False(t, report.ValidationSkipped)
	assert.Greater(t, report.CoveragePercentage, 0.0)
}
