// Package pipeline orchestrates CRS selection, raster preparation, grid
// generation, access classification, viewshed computation, segment
// selection, and polygon reconciliation into a single run, matching
// processing_pipeline.py's nine-step sequence.
package pipeline

import (
	"context"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/TheCoderPerson/AutoDroneSegment/internal/accessfilter"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/crsutil"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/geomops"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/gridgen"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/pipelineerr"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/polygonbuild"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/rasterprep"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/segmentgen"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/viewshed"
)

// Config is every input a pipeline run needs. SearchPolygon and any WGS84
// coordinate fields use longitude-first ordering.
type Config struct {
	SearchPolygon orb.Polygon

	DEMPath        string
	VegetationPath string
	OutputDir      string

	RoadsPath        string
	TrailsPath       string
	AccessTypes      []string
	AccessDeviationM float64

	GridSpacingM     float64
	AdaptiveGrid     bool
	MinGridSpacingM  float64
	MaxGridPoints    int
	BoundaryPoints   bool
	BoundarySpacingM float64

	ObserverHeightM float64
	TargetHeightM   float64
	MaxDistanceM    float64
	ViewshedWorkers int

	PreferredSegmentSizeCells int
	SimplifyToleranceM        float64
	MinHoleAreaM2             float64
}

// DefaultConfig returns the source's verbatim defaults for every field not
// specific to a single job (grid spacing, viewshed geometry, segment sizing,
// polygon cleanup tolerances).
func DefaultConfig() Config {
	return Config{
		AccessTypes:               []string{accessfilter.Anywhere},
		AccessDeviationM:          50.0,
		GridSpacingM:              100.0,
		MinGridSpacingM:           25.0,
		MaxGridPoints:             10000,
		BoundaryPoints:            true,
		BoundarySpacingM:          50.0,
		ObserverHeightM:           2.0,
		TargetHeightM:             120.0,
		MaxDistanceM:              3000.0,
		ViewshedWorkers:           4,
		PreferredSegmentSizeCells: 500,
		SimplifyToleranceM:        2.0,
		MinHoleAreaM2:             100.0,
	}
}

// ProgressFunc reports a named stage and its completion percentage (0-100).
type ProgressFunc func(stage string, percent int)

// Result is a completed run's output: reconciled segment polygons in WGS84,
// coverage statistics, and the coverage/overlap validation report.
type Result struct {
	ProjectEPSG int
	Segments    []polygonbuild.Built
	Statistics  segmentgen.Statistics
	Coverage    polygonbuild.CoverageReport
}

// Validate checks the fields Run cannot proceed without, before any stage
// runs any expensive work.
func (cfg Config) Validate() error {
	if len(cfg.SearchPolygon) == 0 {
		return pipelineerr.New(pipelineerr.InvalidInput, "search_polygon is required")
	}
	if cfg.DEMPath == "" {
		return pipelineerr.New(pipelineerr.InvalidInput, "dem_path is required")
	}
	if len(cfg.AccessTypes) == 0 {
		return pipelineerr.New(pipelineerr.InvalidInput, "access_types is required")
	}
	if cfg.MaxDistanceM <= 0 {
		return pipelineerr.New(pipelineerr.InvalidInput, "max_distance_m must be positive")
	}
	return nil
}

func checkCancel(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return pipelineerr.Wrap(pipelineerr.Cancelled, "pipeline cancelled", ctx.Err())
	default:
		return nil
	}
}

func report(progress ProgressFunc, stage string, percent int) {
	if progress != nil {
		progress(stage, percent)
	}
}

// Run executes the full segmentation pipeline for cfg.
func Run(ctx context.Context, cfg Config, log *zap.Logger, progress ProgressFunc) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	mgr := crsutil.NewManager()
	report(progress, "crs_selection", 5)
	epsg, projectedSearch, err := mgr.ProjectSearchPolygon(cfg.SearchPolygon)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.InvalidInput, "selecting projected CRS", err)
	}
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	bufferedProjected := geomops.Buffer(orb.MultiPolygon{projectedSearch}, cfg.MaxDistanceM)
	bufferedPoly, _ := geomops.LargestPart(bufferedProjected)
	bufferedWGS84, err := mgr.TransformPolygon(bufferedPoly, epsg, crsutil.WGS84EPSG)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.InvalidInput, "projecting DEM clip buffer to WGS84", err)
	}

	report(progress, "raster_prep", 15)
	idx, err := rasterprep.Prepare(rasterprep.Options{
		DEMPath:             cfg.DEMPath,
		VegetationPath:      cfg.VegetationPath,
		TargetEPSG:          epsg,
		SearchBufferPolygon: bufferedWGS84,
		OutputDir:           cfg.OutputDir,
		CRS:                 mgr,
	})
	if err != nil {
		return nil, err
	}
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	report(progress, "grid_generation", 30)
	gridOpts := gridgen.Options{
		SpacingM:         cfg.GridSpacingM,
		MaxPoints:        cfg.MaxGridPoints,
		Adaptive:         cfg.AdaptiveGrid,
		MinSpacingM:      cfg.MinGridSpacingM,
		BoundaryPoints:   cfg.BoundaryPoints,
		BoundarySpacingM: cfg.BoundarySpacingM,
	}
	gridPoints := gridgen.Generate(projectedSearch, gridOpts)
	if len(gridPoints) == 0 {
		return nil, pipelineerr.New(pipelineerr.GridEmpty, "no candidate launch points fell inside the search polygon")
	}
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	report(progress, "access_classification", 40)
	var roadLines, trailLines []orb.LineString
	if cfg.RoadsPath != "" {
		if roadLines, err = accessfilter.LoadLines(cfg.RoadsPath, epsg); err != nil {
			return nil, err
		}
	}
	if cfg.TrailsPath != "" {
		if trailLines, err = accessfilter.LoadLines(cfg.TrailsPath, epsg); err != nil {
			return nil, err
		}
	}
	buffers := accessfilter.NewBuffers(roadLines, trailLines, cfg.AccessDeviationM)

	pointsByID := make(map[int]orb.Point, len(gridPoints))
	orbPoints := make([]orb.Point, len(gridPoints))
	gridIDs := make([]int, len(gridPoints))
	for i, p := range gridPoints {
		pointsByID[p.ID] = orb.Point{p.X, p.Y}
		orbPoints[i] = orb.Point{p.X, p.Y}
		gridIDs[i] = p.ID
	}

	primary, secondary := accessfilter.FilterPoints(orbPoints, cfg.AccessTypes, buffers)
	accessClassification := make(map[int]string, len(primary)+len(secondary))
	primaryPointIDs := make(map[int]struct{}, len(primary))
	for _, c := range primary {
		accessClassification[c.PointID] = c.Type
		primaryPointIDs[c.PointID] = struct{}{}
	}
	for _, c := range secondary {
		accessClassification[c.PointID] = c.Type
	}
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	report(progress, "target_cells", 45)
	targetCells := make(map[int]struct{})
	searchMP := orb.MultiPolygon{projectedSearch}
	for cellID := 0; cellID < idx.Width*idx.Height; cellID++ {
		cell := idx.Cell(cellID)
		if cell.NoData {
			continue
		}
		if geomops.ContainsPoint(searchMP, orb.Point{cell.X, cell.Y}) {
			targetCells[cellID] = struct{}{}
		}
	}

	report(progress, "viewshed", 55)
	observers := make([]viewshed.Observer, len(gridPoints))
	for i, p := range gridPoints {
		observers[i] = viewshed.Observer{PointID: p.ID, X: p.X, Y: p.Y}
	}
	op := viewshed.NewGDALOperator(idx.Path, idx)
	batchOpts := viewshed.DefaultBatchOptions()
	if cfg.ViewshedWorkers > 0 {
		batchOpts.Workers = cfg.ViewshedWorkers
	}
	batchOpts.Progress = func(done, total int) {
		if total > 0 {
			report(progress, "viewshed", 55+int(float64(done)/float64(total)*20.0))
		}
	}
	viewshedStart := time.Now()
	results := viewshed.RunBatch(ctx, op, observers, cfg.ObserverHeightM, cfg.TargetHeightM, cfg.MaxDistanceM, batchOpts, log)
	viewshedElapsed := time.Since(viewshedStart)
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	visibility := make(map[int]map[int]struct{}, len(results))
	for _, r := range results {
		vis := make(map[int]struct{})
		for c := range r.VisibleCells {
			if _, ok := targetCells[c]; ok {
				vis[c] = struct{}{}
			}
		}
		visibility[r.PointID] = vis
	}

	report(progress, "segment_generation", 78)
	segOpts := segmentgen.Options{
		PreferredSizeCells: cfg.PreferredSegmentSizeCells,
		Progress: func(message string, n int) {
			report(progress, message, 78)
		},
	}
	segments, phases := segmentgen.Generate(gridIDs, visibility, accessClassification, primaryPointIDs, targetCells, segOpts)
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	report(progress, "polygon_build", 88)
	polyOpts := polygonbuild.Options{
		SimplifyToleranceM: cfg.SimplifyToleranceM,
		MinHoleAreaM2:      cfg.MinHoleAreaM2,
	}
	built := polygonbuild.BuildAll(segments, pointsByID, idx, projectedSearch, polyOpts, log)
	if err := checkCancel(ctx); err != nil {
		return nil, err
	}

	report(progress, "coverage_validation", 94)
	coverage := polygonbuild.ValidateCoverage(built, projectedSearch)
	stats := segmentgen.CalculateStatistics(segments, len(targetCells), idx.CellArea(), phases, viewshedElapsed)

	builtWGS84, err := polygonbuild.TransformToWGS84(built, epsg, mgr)
	if err != nil {
		return nil, err
	}

	report(progress, "done", 100)
	return &Result{
		ProjectEPSG: epsg,
		Segments:    builtWGS84,
		Statistics:  stats,
		Coverage:    coverage,
	}, nil
}
