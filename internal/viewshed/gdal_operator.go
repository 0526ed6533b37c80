package viewshed

import (
	"context"

	"github.com/TheCoderPerson/AutoDroneSegment/internal/rasterprep"
)

// GDALOperator computes viewsheds against a DEM on disk via GDALViewshedGenerate,
// the production path. No wrapper library in the dependency set exposes this
// GDAL algorithm, so the call itself lives behind cgo in viewshed_cgo.go,
// isolated from the rest of this package.
type GDALOperator struct {
	demPath string
	index   *rasterprep.Index
}

// NewGDALOperator builds an operator over demPath, using idx for cell
// indexing, bounds checks, and NoData lookups.
func NewGDALOperator(demPath string, idx *rasterprep.Index) *GDALOperator {
	return &GDALOperator{demPath: demPath, index: idx}
}

// Viewshed implements Operator. An observer outside the DEM's pixel bounds,
// or sitting on a NoData cell, returns (nil, 0, nil) — a warning condition,
// not an error, per the contract.
func (g *GDALOperator) Viewshed(ctx context.Context, observerX, observerY, observerHeight, targetHeight, maxDistance float64) (map[int]struct{}, float64, error) {
	col, row := g.index.WorldToPixel(observerX, observerY)
	c, r := int(col), int(row)
	if !g.index.InBounds(c, r) {
		return nil, 0, nil
	}
	if g.index.Cell(g.index.CellID(r, c)).NoData {
		return nil, 0, nil
	}

	raster, err := runGDALViewshed(g.demPath, observerX, observerY, observerHeight, targetHeight, maxDistance)
	if err != nil {
		return nil, 0, err
	}

	cells := extractVisibleCells(raster, g.index)
	area := float64(len(cells)) * g.index.CellArea()
	return cells, area, nil
}
