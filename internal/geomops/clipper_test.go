package geomops

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func square(cx, cy, half float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{cx - half, cy - half},
		{cx + half, cy - half},
		{cx + half, cy + half},
		{cx - half, cy + half},
		{cx - half, cy - half},
	}}
}

func TestArea_Square(t *testing.T) {
	poly := square(0, 0, 50) // 100x100
	assert.InDelta(t, 10000.0, Area(orb.MultiPolygon{poly}), 1.0)
}

func TestUnion_OverlappingSquaresLessThanSum(t *testing.T) {
	a := orb.MultiPolygon{square(0, 0, 50)}
	b := orb.MultiPolygon{square(50, 0, 50)}
	union := Union(a, b)
	area := Area(union)
	assert.Less(t, area, 20000.0)
	assert.Greater(t, area, 10000.0)
}

func TestDifference_RemovesOverlap(t *testing.T) {
	a := orb.MultiPolygon{square(0, 0, 50)}
	b := orb.MultiPolygon{square(50, 0, 50)}
	diff := Difference(a, b)
	assert.Less(t, Area(diff), 10000.0)
}

func TestDifference_EmptyClipReturnsSubjectUnchanged(t *testing.T) {
	a := orb.MultiPolygon{square(0, 0, 50)}
	diff := Difference(a, nil)
	assert.Equal(t, a, diff)
}

func TestIntersect_DisjointSquaresIsEmpty(t *testing.T) {
	a := orb.MultiPolygon{square(0, 0, 10)}
	b := orb.MultiPolygon{square(1000, 1000, 10)}
	assert.Empty(t, Intersect(a, b))
}

func TestBuffer_OutwardGrowsArea(t *testing.T) {
	a := orb.MultiPolygon{square(0, 0, 50)}
	buffered := Buffer(a, 10)
	assert.Greater(t, Area(buffered), Area(a))
}

func TestBufferLines_ProducesNonZeroArea(t *testing.T) {
	line := orb.LineString{{0, 0}, {100, 0}}
	buffered := BufferLines([]orb.LineString{line}, 5)
	assert.Greater(t, Area(buffered), 0.0)
}

func TestBufferLines_ZeroDeltaIsNil(t *testing.T) {
	line := orb.LineString{{0, 0}, {100, 0}}
	assert.Nil(t, BufferLines([]orb.LineString{line}, 0))
}

func TestLargestPart_PicksBiggestArea(t *testing.T) {
	mp := orb.MultiPolygon{square(0, 0, 5), square(1000, 0, 50)}
	largest, area := LargestPart(mp)
	assert.InDelta(t, 10000.0, area, 1.0)
	assert.Equal(t, square(1000, 0, 50), largest)
}

func TestLargestPart_SubtractsHoleArea(t *testing.T) {
	outer := square(0, 0, 50) // 100x100 = 10000 m^2
	hole := orb.Ring{{-10, -10}, {10, -10}, {10, 10}, {-10, 10}, {-10, -10}}
	withHole := orb.Polygon{outer[0], hole} // minus 20x20 = 400 m^2 -> 9600 m^2
	small := square(1000, 0, 20)            // 40x40 = 1600 m^2, solid, smaller than the holed polygon

	mp := orb.MultiPolygon{withHole, small}
	largest, area := LargestPart(mp)
	assert.Equal(t, withHole, largest)
	assert.InDelta(t, 9600.0, area, 1.0)
}

func TestContainsPoint_InsideOuterRing(t *testing.T) {
	mp := orb.MultiPolygon{square(0, 0, 50)}
	assert.True(t, ContainsPoint(mp, orb.Point{0, 0}))
	assert.False(t, ContainsPoint(mp, orb.Point{1000, 1000}))
}

func TestContainsPoint_ExcludesHole(t *testing.T) {
	outer := orb.Ring{{-50, -50}, {50, -50}, {50, 50}, {-50, 50}, {-50, -50}}
	hole := orb.Ring{{-10, -10}, {10, -10}, {10, 10}, {-10, 10}, {-10, -10}}
	mp := orb.MultiPolygon{orb.Polygon{outer, hole}}
	require.True(t, ContainsPoint(mp, orb.Point{30, 30}))
	assert.False(t, ContainsPoint(mp, orb.Point{0, 0}))
}

func TestFromPaths_RoundTripsThroughToPaths(t *testing.T) {
	poly := square(0, 0, 50)
	paths := PolygonToPaths(poly)
	back := FromPaths(paths)
	require.Len(t, back, 1)
	assert.InDelta(t, Area(orb.MultiPolygon{poly}), Area(back), 1.0)
}

func TestUnionAll_EmptyInputIsNil(t *testing.T) {
	assert.Nil(t, UnionAll(nil))
}
