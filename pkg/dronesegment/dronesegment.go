// Package dronesegment provides a clean public API for segmenting a drone
// search area into launch-point-anchored flight segments.
package dronesegment

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/TheCoderPerson/AutoDroneSegment/internal/pipeline"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/polygonbuild"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/segmentgen"
)

// Config describes one segmentation job: the search area, the elevation and
// access-layer inputs, and the grid/viewshed/segment tuning parameters.
//
// All coordinates on Config.SearchPolygon are WGS84 longitude, latitude.
type Config = pipeline.Config

// ProgressFunc reports a named pipeline stage and its completion percentage
// (0-100) as a run proceeds.
type ProgressFunc = pipeline.ProgressFunc

// DefaultConfig returns a Config populated with the source implementation's
// default tuning values. Callers must still set SearchPolygon, DEMPath, and
// any access-layer paths before calling Run.
//
// Example:
//
//	cfg := dronesegment.DefaultConfig()
//	cfg.SearchPolygon = searchArea
//	cfg.DEMPath = "dem.tif"
//	result, err := dronesegment.Run(context.Background(), cfg, nil, nil)
func DefaultConfig() Config {
	return pipeline.DefaultConfig()
}

// Segment is one reconciled flight segment: a single launch point and the
// polygon of ground it covers, both already transformed to WGS84.
type Segment struct {
	Sequence    int
	PointID     int
	AccessType  string
	CellCount   int
	AreaM2      float64
	AreaAcres   float64
	LaunchPoint orb.Point
	Polygon     orb.Polygon
}

// Result is a completed segmentation run.
type Result struct {
	// ProjectEPSG is the UTM zone chosen for the search polygon's centroid;
	// all of Statistics and Coverage were computed in that projected CRS
	// before Segments were transformed back to WGS84.
	ProjectEPSG int
	Segments    []Segment
	Statistics  segmentgen.Statistics
	Coverage    polygonbuild.CoverageReport
}

// Run executes a full segmentation job: CRS selection, DEM preparation,
// candidate grid generation, road/trail access classification, viewshed
// computation, greedy segment selection, and polygon reconciliation.
//
// progress may be nil. log may be nil to disable structured logging.
func Run(ctx context.Context, cfg Config, log *zap.Logger, progress ProgressFunc) (*Result, error) {
	internalResult, err := pipeline.Run(ctx, cfg, log, progress)
	if err != nil {
		return nil, err
	}

	segments := make([]Segment, len(internalResult.Segments))
	for i, b := range internalResult.Segments {
		segments[i] = Segment{
			Sequence:    b.Sequence,
			PointID:     b.PointID,
			AccessType:  b.AccessType,
			CellCount:   b.CellCount,
			AreaM2:      b.AreaM2,
			AreaAcres:   b.AreaAcres,
			LaunchPoint: b.LaunchPoint,
			Polygon:     b.Polygon,
		}
	}

	return &Result{
		ProjectEPSG: internalResult.ProjectEPSG,
		Segments:    segments,
		Statistics:  internalResult.Statistics,
		Coverage:    internalResult.Coverage,
	}, nil
}

// FeatureCollection renders r's segments as a GeoJSON FeatureCollection, one
// Feature per segment polygon, carrying the segment's metadata as
// properties.
func (r *Result) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, s := range r.Segments {
		f := geojson.NewFeature(s.Polygon)
		f.Properties = map[string]interface{}{
			"sequence":     s.Sequence,
			"point_id":     s.PointID,
			"access_type":  s.AccessType,
			"cell_count":   s.CellCount,
			"area_m2":      s.AreaM2,
			"area_acres":   s.AreaAcres,
			"launch_point": []float64{s.LaunchPoint[0], s.LaunchPoint[1]},
		}
		fc.Append(f)
	}
	return fc
}

// ParseSearchPolygon decodes a GeoJSON Geometry, Feature, or
// FeatureCollection (the first feature's geometry is used) into a WGS84
// search polygon for Config.SearchPolygon.
func ParseSearchPolygon(data []byte) (orb.Polygon, error) {
	if fc, err := geojson.UnmarshalFeatureCollection(data); err == nil {
		if len(fc.Features) == 0 {
			return nil, fmt.Errorf("search polygon feature collection is empty")
		}
		return polygonGeometry(fc.Features[0].Geometry)
	}
	if feat, err := geojson.UnmarshalFeature(data); err == nil {
		return polygonGeometry(feat.Geometry)
	}
	geom, err := geojson.UnmarshalGeometry(data)
	if err != nil {
		return nil, fmt.Errorf("parsing search polygon geojson: %w", err)
	}
	return polygonGeometry(geom.Geometry())
}

func polygonGeometry(geom orb.Geometry) (orb.Polygon, error) {
	poly, ok := geom.(orb.Polygon)
	if !ok {
		return nil, fmt.Errorf("search polygon geometry must be a Polygon, got %T", geom)
	}
	return poly, nil
}
