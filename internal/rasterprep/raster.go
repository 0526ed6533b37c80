// Package rasterprep clips, reprojects, and indexes the elevation raster
// (plus an optional vegetation-height raster) that the rest of the pipeline
// operates on.
package rasterprep

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"

	"github.com/TheCoderPerson/AutoDroneSegment/internal/crsutil"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/pipelineerr"
)

// Cell is one raster grid cell: its centroid in the projected CRS and its
// surface height (terrain + optional vegetation).
type Cell struct {
	X, Y   float64
	Height float64
	NoData bool
}

// Index is the prepared, indexable view of a DEM the rest of the pipeline
// consumes: SPEC_FULL.md §4.2's processed_raster_path/transform/width/height/
// cell_index/cell_area.
type Index struct {
	Path      string
	EPSG      int
	Transform [6]float64 // origin_x, pixel_w, 0, origin_y, 0, -pixel_h
	Width     int
	Height    int
	NoData    float64
	hasNoData bool
	cells     []Cell
}

// CellID computes row*width+col, the indexing convention used throughout
// SPEC_FULL.md §3.
func (idx *Index) CellID(row, col int) int {
	return row*idx.Width + col
}

// RowCol inverts CellID.
func (idx *Index) RowCol(cellID int) (row, col int) {
	return cellID / idx.Width, cellID % idx.Width
}

// Cell returns the prepared cell at cellID.
func (idx *Index) Cell(cellID int) Cell {
	return idx.cells[cellID]
}

// CellArea is |pixel_w * pixel_h| in the projected CRS's units (m²).
func (idx *Index) CellArea() float64 {
	return math.Abs(idx.Transform[1] * idx.Transform[5])
}

// PixelWidth/PixelHeight expose the affine transform's scale terms.
func (idx *Index) PixelWidth() float64  { return math.Abs(idx.Transform[1]) }
func (idx *Index) PixelHeight() float64 { return math.Abs(idx.Transform[5]) }

// WorldToPixel converts a projected (x, y) to a fractional (col, row).
func (idx *Index) WorldToPixel(x, y float64) (col, row float64) {
	gt := idx.Transform
	det := gt[1]*gt[5] - gt[2]*gt[4]
	col = ((x-gt[0])*gt[5] - (y-gt[3])*gt[2]) / det
	row = ((y-gt[3])*gt[1] - (x-gt[0])*gt[4]) / det
	return
}

// PixelToWorld converts an integer (col, row) to the projected centroid of
// that cell.
func (idx *Index) PixelToWorld(col, row int) (x, y float64) {
	gt := idx.Transform
	cx, cy := float64(col)+0.5, float64(row)+0.5
	x = gt[0] + cx*gt[1] + cy*gt[2]
	y = gt[3] + cx*gt[4] + cy*gt[5]
	return
}

// InBounds reports whether (col, row) falls inside the raster.
func (idx *Index) InBounds(col, row int) bool {
	return col >= 0 && col < idx.Width && row >= 0 && row < idx.Height
}

// Options configures Prepare.
type Options struct {
	DEMPath        string
	VegetationPath string // optional
	TargetEPSG     int
	// SearchBufferPolygon is the search polygon already buffered by
	// max_vlos_m, in WGS84; it is reprojected into the DEM's native CRS
	// for clipping only, per SPEC_FULL.md §4.2 step 1.
	SearchBufferPolygon orb.Polygon
	OutputDir           string
	CRS                 *crsutil.Manager
}

// NewIndex builds an Index directly from already-computed cell data,
// bypassing Prepare's GDAL clip/warp/read pipeline. Used by other packages'
// tests to exercise viewshed/segment/polygon logic against small synthetic
// rasters without a GDAL toolchain or real DEM file present.
func NewIndex(path string, epsg int, transform [6]float64, width, height int, cells []Cell) *Index {
	return &Index{
		Path:      path,
		EPSG:      epsg,
		Transform: transform,
		Width:     width,
		Height:    height,
		cells:     cells,
	}
}

// Prepare runs the five-step DEM preparation sequence from SPEC_FULL.md §4.2
// and returns the resulting cell Index.
func Prepare(opts Options) (*Index, error) {
	if _, err := os.Stat(opts.DEMPath); err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.MissingRaster, "dem_path not found", err)
	}

	ds, err := godal.Open(opts.DEMPath)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.MissingRaster, "failed to open DEM", err)
	}
	defer ds.Close()

	demEPSG, ok := epsgFromWKT(ds.Projection())
	if !ok {
		return nil, pipelineerr.New(pipelineerr.InvalidInput, "DEM coordinate system is not EPSG-identifiable")
	}

	clipPoly := opts.SearchBufferPolygon
	if demEPSG != crsutil.WGS84EPSG {
		clipPoly, err = opts.CRS.TransformPolygon(opts.SearchBufferPolygon, crsutil.WGS84EPSG, demEPSG)
		if err != nil {
			return nil, fmt.Errorf("reprojecting clip polygon into DEM CRS: %w", err)
		}
	}

	clippedPath := filepath.Join(opts.OutputDir, "dem_clipped.tif")
	clipped, err := clipToPolygon(ds, clipPoly, demEPSG, clippedPath)
	if err != nil {
		return nil, err
	}
	defer clipped.Close()

	structure := clipped.Structure()
	if structure.SizeX == 0 || structure.SizeY == 0 {
		return nil, pipelineerr.New(pipelineerr.NoOverlap, "clipped DEM is empty; DEM does not overlap the buffered search polygon")
	}

	reprojectedPath := filepath.Join(opts.OutputDir, "dem_reprojected.tif")
	processedPath := clippedPath
	reprojected := clipped
	if demEPSG != opts.TargetEPSG {
		reprojected, err = warpTo(clipped, opts.TargetEPSG, reprojectedPath, "bilinear")
		if err != nil {
			return nil, fmt.Errorf("reprojecting DEM to target CRS: %w", err)
		}
		defer reprojected.Close()
		processedPath = reprojectedPath
	}

	surface, err := readBandAsFloat64(reprojected)
	if err != nil {
		return nil, fmt.Errorf("reading DEM band: %w", err)
	}

	idx := &Index{
		Path:   processedPath,
		EPSG:   opts.TargetEPSG,
		Width:  reprojected.Structure().SizeX,
		Height: reprojected.Structure().SizeY,
	}
	gt, err := reprojected.GeoTransform()
	if err != nil {
		return nil, fmt.Errorf("reading DEM geotransform: %w", err)
	}
	idx.Transform = gt

	band := reprojected.Bands()[0]
	if nd, ok := band.NoData(); ok {
		idx.NoData = nd
		idx.hasNoData = true
	}

	var veg []float64
	if opts.VegetationPath != "" {
		veg, err = prepareVegetation(opts, clipPoly, demEPSG, idx)
		if err != nil {
			return nil, fmt.Errorf("preparing vegetation raster: %w", err)
		}
	}

	idx.cells = make([]Cell, idx.Width*idx.Height)
	for i, h := range surface {
		cell := Cell{Height: h}
		if idx.hasNoData && h == idx.NoData {
			cell.NoData = true
		}
		if veg != nil && !cell.NoData {
			cell.Height += veg[i]
		}
		row, col := i/idx.Width, i%idx.Width
		cell.X, cell.Y = idx.PixelToWorld(col, row)
		idx.cells[i] = cell
	}

	return idx, nil
}

// prepareVegetation clips, reprojects/resamples the vegetation raster onto
// the DEM's exact grid, and returns it as a flat row-major slice aligned
// with idx's cells.
//
// Per SPEC_FULL.md §4.2 step 4 and §9's resolved open question, this is
// always a real warp onto the DEM's grid, never a pass-through keyed off a
// matching nominal EPSG code: two rasters can share an EPSG code while
// differing in origin or pixel size, and the source's index-based "zoom"
// silently produced wrong answers in exactly that case.
func prepareVegetation(opts Options, clipPolyDEMCRS orb.Polygon, demEPSG int, target *Index) ([]float64, error) {
	vegDS, err := godal.Open(opts.VegetationPath)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.MissingRaster, "failed to open vegetation raster", err)
	}
	defer vegDS.Close()

	vegEPSG, ok := epsgFromWKT(vegDS.Projection())
	if !ok {
		return nil, pipelineerr.New(pipelineerr.InvalidInput, "vegetation raster coordinate system is not EPSG-identifiable")
	}

	vegClipPoly := clipPolyDEMCRS
	if vegEPSG != demEPSG {
		vegClipPoly, err = opts.CRS.TransformPolygon(clipPolyDEMCRS, demEPSG, vegEPSG)
		if err != nil {
			return nil, err
		}
	}

	clippedPath := filepath.Join(opts.OutputDir, "veg_clipped.tif")
	clipped, err := clipToPolygon(vegDS, vegClipPoly, vegEPSG, clippedPath)
	if err != nil {
		return nil, err
	}
	defer clipped.Close()

	// Warp directly onto the DEM's own grid: target SRS, resolution, and
	// extent all pinned to target's transform/width/height so the result is
	// pixel-for-pixel aligned with the DEM regardless of the vegetation
	// raster's native grid.
	warpedPath := filepath.Join(opts.OutputDir, "veg_aligned.tif")
	minX, maxY := target.Transform[0], target.Transform[3]
	maxX := minX + float64(target.Width)*target.Transform[1]
	minY := maxY + float64(target.Height)*target.Transform[5]
	switches := []string{
		"-t_srs", fmt.Sprintf("EPSG:%d", target.EPSG),
		"-r", "bilinear",
		"-te", fmt.Sprintf("%f", minX), fmt.Sprintf("%f", minY), fmt.Sprintf("%f", maxX), fmt.Sprintf("%f", maxY),
		"-ts", fmt.Sprintf("%d", target.Width), fmt.Sprintf("%d", target.Height),
	}
	warped, err := godal.Warp(warpedPath, []*godal.Dataset{clipped}, switches)
	if err != nil {
		return nil, fmt.Errorf("warping vegetation raster onto DEM grid: %w", err)
	}
	defer warped.Close()

	return readBandAsFloat64(warped)
}

func clipToPolygon(ds *godal.Dataset, poly orb.Polygon, epsg int, outPath string) (*godal.Dataset, error) {
	sr, err := godal.NewSpatialRefFromEPSG(epsg)
	if err != nil {
		return nil, err
	}
	defer sr.Close()

	wkt := polygonWKT(poly)
	geom, err := godal.NewGeometryFromWKT(wkt, sr)
	if err != nil {
		return nil, fmt.Errorf("building clip geometry: %w", err)
	}
	defer geom.Close()

	bounds, err := geom.Bounds()
	if err != nil {
		return nil, fmt.Errorf("computing clip bounds: %w", err)
	}

	switches := []string{
		"-projwin", fmt.Sprintf("%f", bounds[0]), fmt.Sprintf("%f", bounds[3]),
		fmt.Sprintf("%f", bounds[2]), fmt.Sprintf("%f", bounds[1]),
	}
	clipped, err := ds.Translate(outPath, switches, godal.GTiff)
	if err != nil {
		return nil, fmt.Errorf("clipping raster: %w", err)
	}
	return clipped, nil
}

func warpTo(ds *godal.Dataset, epsg int, outPath string, resampling string) (*godal.Dataset, error) {
	switches := []string{
		"-t_srs", fmt.Sprintf("EPSG:%d", epsg),
		"-r", resampling,
	}
	return godal.Warp(outPath, []*godal.Dataset{ds}, switches)
}

// epsgFromWKT extracts the trailing AUTHORITY["EPSG","<code>"] node GDAL
// appends to the projection WKT it exports for any CRS it resolved from an
// EPSG code, avoiding a dependency on a specific SpatialRef accessor for the
// numeric code.
func epsgFromWKT(wkt string) (int, bool) {
	const marker = `AUTHORITY["EPSG","`
	last := strings.LastIndex(wkt, marker)
	if last < 0 {
		return 0, false
	}
	start := last + len(marker)
	end := start
	for end < len(wkt) && wkt[end] >= '0' && wkt[end] <= '9' {
		end++
	}
	if end == start {
		return 0, false
	}
	code := 0
	for _, c := range wkt[start:end] {
		code = code*10 + int(c-'0')
	}
	return code, true
}

func readBandAsFloat64(ds *godal.Dataset) ([]float64, error) {
	structure := ds.Structure()
	band := ds.Bands()[0]
	buf := make([]float64, structure.SizeX*structure.SizeY)
	if err := band.Read(0, 0, buf, structure.SizeX, structure.SizeY); err != nil {
		return nil, err
	}
	return buf, nil
}

func polygonWKT(poly orb.Polygon) string {
	ring := func(r orb.Ring) string {
		s := ""
		for i, pt := range r {
			if i > 0 {
				s += ", "
			}
			s += fmt.Sprintf("%f %f", pt[0], pt[1])
		}
		return s
	}
	s := "POLYGON ("
	for i, r := range poly {
		if i > 0 {
			s += ", "
		}
		s += "(" + ring(r) + ")"
	}
	s += ")"
	return s
}
