// Package accessfilter loads road/trail vector layers, builds unified access
// buffers around them, and classifies candidate launch points against those
// buffers per the requested access types.
package accessfilter

import (
	"github.com/airbusgeo/godal"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"

	"github.com/TheCoderPerson/AutoDroneSegment/internal/geomops"
	"github.com/TheCoderPerson/AutoDroneSegment/internal/pipelineerr"
)

// Access type labels, matching the source's access_types vocabulary.
const (
	Anywhere     = "anywhere"
	Road         = "road"
	Trail        = "trail"
	RoadAndTrail = "road_and_trail"
	OffRoad      = "off_road"
	None         = "none"
)

// Classified pairs a candidate grid point's ID with the access label it was
// assigned (or None if it fell to the secondary set).
type Classified struct {
	PointID int
	Type    string
}

// Buffers holds the unified road and/or trail access buffers in the target
// projected CRS. Either field may be nil if that layer was not loaded.
type Buffers struct {
	Road  orb.MultiPolygon
	Trail orb.MultiPolygon
}

// LoadLines opens a road or trail vector dataset, reprojects every feature's
// geometry into targetEPSG using the dataset's own spatial reference, and
// flattens (Multi)LineString geometries into a slice of orb.LineString.
// Non-line geometries in the layer are skipped.
func LoadLines(path string, targetEPSG int) ([]orb.LineString, error) {
	ds, err := godal.Open(path, godal.VectorOnly())
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.MissingRaster, "opening access layer "+path, err)
	}
	defer ds.Close()

	targetSR, err := godal.NewSpatialRefFromEPSG(targetEPSG)
	if err != nil {
		return nil, pipelineerr.Wrap(pipelineerr.InvalidInput, "resolving target spatial reference", err)
	}

	var lines []orb.LineString
	for _, layer := range ds.Layers() {
		layer.ResetReading()
		for {
			feat := layer.NextFeature()
			if feat == nil {
				break
			}
			geom := feat.Geometry()
			if geom == nil {
				feat.Close()
				continue
			}
			if rerr := geom.Reproject(targetSR); rerr != nil {
				geom.Close()
				feat.Close()
				continue
			}
			raw, werr := geom.WKB()
			geom.Close()
			feat.Close()
			if werr != nil {
				continue
			}
			decoded, derr := wkb.Unmarshal(raw)
			if derr != nil {
				continue
			}
			lines = append(lines, linesFromGeometry(decoded)...)
		}
	}
	return lines, nil
}

// NewBuffers builds the unified road/trail buffers access_deviation_m wide
// around the given line sets. A nil slice yields a nil buffer for that layer,
// matching the source's "layer not loaded" semantics.
func NewBuffers(roads, trails []orb.LineString, accessDeviationM float64) Buffers {
	var b Buffers
	if len(roads) > 0 {
		b.Road = geomops.BufferLines(roads, accessDeviationM)
	}
	if len(trails) > 0 {
		b.Trail = geomops.BufferLines(trails, accessDeviationM)
	}
	return b
}

// ClassifyPoint applies the precedence table from the access filter contract
// to a single point, returning its access label and whether it is primary.
func ClassifyPoint(p orb.Point, accessTypes []string, b Buffers) (string, bool) {
	if contains(accessTypes, Anywhere) {
		return Anywhere, true
	}
	wantsRoad := contains(accessTypes, Road)
	wantsTrail := contains(accessTypes, Trail)
	wantsOffRoad := contains(accessTypes, OffRoad)

	inRoad := b.Road != nil && geomops.ContainsPoint(b.Road, p)
	inTrail := b.Trail != nil && geomops.ContainsPoint(b.Trail, p)

	switch {
	case wantsRoad && wantsTrail:
		switch {
		case inRoad && inTrail:
			return RoadAndTrail, true
		case inRoad && b.Trail == nil:
			return Road, true
		case inTrail && b.Road == nil:
			return Trail, true
		}
	case wantsRoad:
		if inRoad {
			return Road, true
		}
	case wantsTrail:
		if inTrail {
			return Trail, true
		}
	case wantsOffRoad:
		if !inRoad && !inTrail {
			return OffRoad, true
		}
	}
	return None, false
}

// FilterPoints partitions points into primary (accessible per accessTypes)
// and secondary (everything else, labeled None) sets. If accessTypes
// contains Anywhere, every point is primary with label Anywhere.
func FilterPoints(points []orb.Point, accessTypes []string, b Buffers) (primary, secondary []Classified) {
	if contains(accessTypes, Anywhere) {
		primary = make([]Classified, len(points))
		for i := range points {
			primary[i] = Classified{PointID: i, Type: Anywhere}
		}
		return primary, nil
	}

	for i, p := range points {
		label, ok := ClassifyPoint(p, accessTypes, b)
		if ok {
			primary = append(primary, Classified{PointID: i, Type: label})
		} else {
			secondary = append(secondary, Classified{PointID: i, Type: None})
		}
	}
	return primary, secondary
}

// AccessibleAreaFraction returns the percentage (0-100) of poly's area
// covered by the union of the requested access buffers. Anywhere always
// yields 100; no loaded buffer yields 0.
func AccessibleAreaFraction(poly orb.Polygon, accessTypes []string, b Buffers) float64 {
	if contains(accessTypes, Anywhere) {
		return 100.0
	}

	var access orb.MultiPolygon
	if contains(accessTypes, Road) && b.Road != nil {
		access = geomops.UnionAll([]orb.MultiPolygon{access, b.Road})
	}
	if contains(accessTypes, Trail) && b.Trail != nil {
		access = geomops.UnionAll([]orb.MultiPolygon{access, b.Trail})
	}
	if access == nil {
		return 0.0
	}

	totalArea := geomops.Area(orb.MultiPolygon{poly})
	if totalArea == 0 {
		return 0.0
	}
	accessible := geomops.Intersect(orb.MultiPolygon{poly}, access)
	return geomops.Area(accessible) / totalArea * 100.0
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// linesFromGeometry extracts LineString and MultiLineString parts from a
// decoded geometry. Other geometry types (points, polygons occasionally
// present in mixed-geometry road layers) are ignored, matching the source's
// reliance on GeoPandas' implicit coercion of line-typed layers.
func linesFromGeometry(geom orb.Geometry) []orb.LineString {
	switch g := geom.(type) {
	case orb.LineString:
		if len(g) < 2 {
			return nil
		}
		return []orb.LineString{g}
	case orb.MultiLineString:
		var out []orb.LineString
		for _, ls := range g {
			if len(ls) >= 2 {
				out = append(out, ls)
			}
		}
		return out
	default:
		return nil
	}
}
