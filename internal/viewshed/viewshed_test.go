package viewshed

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheCoderPerson/AutoDroneSegment/internal/rasterprep"
)

// flatIndex builds a width x height synthetic DEM index with 10m cells
// anchored at the origin, every cell at height 0 and no NoData.
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

func TestDiskOperator_VisibleWithinRadius(t *testing.T) {
	idx := flatIndex(20, 20)
	op := NewDiskOperator(idx)

	observerX, observerY := idx.PixelToWorld(10, 10)
	cells, area, err := op.Viewshed(context.Background(), observerX, observerY, 50, 0, 30)
	require.NoError(t, err)
	assert.NotEmpty(t, cells)
	assert.Greater(t, area, 0.0)

	expected := float64(len(cells)) * idx.CellArea()
	assert.Equal(t, expected, area)
}

func TestDiskOperator_ObserverOutOfBounds(t *testing.T) {
	idx := flatIndex(10, 10)
	op := NewDiskOperator(idx)

	cells, area, err := op.Viewshed(context.Background(), -10000, -10000, 50, 0, 30)
	require.NoError(t, err)
	assert.Nil(t, cells)
	assert.Equal(t, 0.0, area)
}

func TestRunBatch_OrdersResultsByObserverIndex(t *testing.T) {
	idx := flatIndex(15, 15)
	op := NewDiskOperator(idx)

	observers := make([]Observer, 5)
	for i := range observers {
		x, y := idx.PixelToWorld(i+1, i+1)
		observers[i] = Observer{PointID: i, X: x, Y: y}
	}

	results := RunBatch(context.Background(), op, observers, 50, 0, 40, DefaultBatchOptions(), nil)
	require.Len(t, results, len(observers))
	for i, r := range results {
		assert.Equal(t, i, r.PointID)
	}
}

func TestRunBatch_EmptyObserverList(t *testing.T) {
	idx := flatIndex(5, 5)
	op := NewDiskOperator(idx)
	results := RunBatch(context.Background(), op, nil, 50, 0, 40, DefaultBatchOptions(), nil)
	assert.Nil(t, results)
}
