package viewshed

/*
#include "gdal.h"
#include "gdal_alg.h"
#include <stdlib.h>

#cgo pkg-config: gdal
*/
import "C"

import (
	"fmt"
	"unsafe"
)

// gdalViewshedRaster is the decoded output of a single GDALViewshedGenerate
// call: its pixel values (visible=255, invisible/out-of-range/NoData=0), its
// dimensions, and its own affine transform (which may differ from the
// source DEM's, since the viewshed raster is cropped to maxDistance).
type gdalViewshedRaster struct {
	data      []float64
	width     int
	height    int
	transform [6]float64
}

// runGDALViewshed calls GDALViewshedGenerate directly against the GDAL C
// alg API, following godal's own cgo conventions (one pkg-config directive,
// plain C.GDAL* calls against already-registered drivers). Output is
// produced with the in-memory MEM driver, so — unlike the tempfile the
// original implementation writes and removes around every call — no output
// file ever touches disk.
func runGDALViewshed(demPath string, observerX, observerY, observerHeight, targetHeight, maxDistance float64) (*gdalViewshedRaster, error) {
	cPath := C.CString(demPath)
	defer C.free(unsafe.Pointer(cPath))

	demDS := C.GDALOpen(cPath, C.GA_ReadOnly)
	if demDS == nil {
		return nil, fmt.Errorf("opening DEM %s for viewshed", demPath)
	}
	defer C.GDALClose(demDS)

	band := C.GDALGetRasterBand(demDS, 1)
	if band == nil {
		return nil, fmt.Errorf("DEM %s has no raster band", demPath)
	}

	cDriver := C.CString("MEM")
	defer C.free(unsafe.Pointer(cDriver))

	outDS := C.GDALViewshedGenerate(
		band,
		cDriver,
		nil, // target filename: unused by the MEM driver
		nil, // creation options
		C.double(observerX), C.double(observerY),
		C.double(observerHeight), C.double(targetHeight),
		255, 0, 0, 0,
		1.0, // curvature coefficient: standard Earth curvature
		C.GDALViewshedMode(C.GVM_Edge),
		C.double(maxDistance),
		nil, nil,
		C.GVOT_NORMAL,
		nil,
	)
	if outDS == nil {
		return nil, fmt.Errorf("GDALViewshedGenerate failed for observer (%.2f, %.2f)", observerX, observerY)
	}
	defer C.GDALClose(outDS)

	width := int(C.GDALGetRasterXSize(outDS))
	height := int(C.GDALGetRasterYSize(outDS))
	outBand := C.GDALGetRasterBand(outDS, 1)
	if outBand == nil {
		return nil, fmt.Errorf("viewshed output for observer (%.2f, %.2f) has no band", observerX, observerY)
	}

	data := make([]float64, width*height)
	cErr := C.GDALRasterIO(
		outBand, C.GF_Read,
		0, 0, C.int(width), C.int(height),
		unsafe.Pointer(&data[0]), C.int(width), C.int(height),
		C.GDT_Float64, 0, 0,
	)
	if cErr != C.CE_None {
		return nil, fmt.Errorf("reading viewshed output raster: GDAL error %d", int(cErr))
	}

	var gt [6]C.double
	C.GDALGetGeoTransform(outDS, &gt[0])
	var transform [6]float64
	for i := range gt {
		transform[i] = float64(gt[i])
	}

	return &gdalViewshedRaster{data: data, width: width, height: height, transform: transform}, nil
}
