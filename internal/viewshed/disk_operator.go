package viewshed

import (
	"context"
	"math"

	"github.com/TheCoderPerson/AutoDroneSegment/internal/rasterprep"
)

// DiskOperator is a deterministic synthetic Operator: every non-NoData DEM
// cell whose centroid lies within maxDistance of the observer is visible,
// with no terrain occlusion modeled. It exists to exercise the batch runner
// and the downstream greedy/polygon stages in tests without a GDAL
// toolchain or a real DEM present.
type DiskOperator struct {
	index *rasterprep.Index
}

// NewDiskOperator builds a synthetic operator over idx.
func NewDiskOperator(idx *rasterprep.Index) *DiskOperator {
	return &DiskOperator{index: idx}
}

// Viewshed implements Operator.
func (d *DiskOperator) Viewshed(ctx context.Context, observerX, observerY, observerHeight, targetHeight, maxDistance float64) (map[int]struct{}, float64, error) {
	col, row := d.index.WorldToPixel(observerX, observerY)
	if !d.index.InBounds(int(col), int(row)) {
		return nil, 0, nil
	}

	cells := make(map[int]struct{})
	for r := 0; r < d.index.Height; r++ {
		for c := 0; c < d.index.Width; c++ {
			cellID := d.index.CellID(r, c)
			cell := d.index.Cell(cellID)
			if cell.NoData {
				continue
			}
			if math.Hypot(cell.X-observerX, cell.Y-observerY) <= maxDistance {
				cells[cellID] = struct{}{}
			}
		}
	}
	area := float64(len(cells)) * d.index.CellArea()
	return cells, area, nil
}
