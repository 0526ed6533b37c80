// Package viewshed computes curvature-corrected, range-limited visibility
// from candidate launch points against the prepared elevation raster.
package viewshed

import (
	"context"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/TheCoderPerson/AutoDroneSegment/internal/rasterprep"
)

// Observer is a single viewshed query: a candidate point's ID and projected
// coordinate.
type Observer struct {
	PointID int
	X, Y    float64
}

// Result is the outcome of one observer's viewshed computation. VisibleCells
// is nil (not just empty) when the observer was outside the DEM or the
// computation failed — both are reported, not treated as errors, matching
// the batch-mode fault-tolerance contract.
type Result struct {
	PointID       int
	VisibleCells  map[int]struct{}
	VisibleAreaM2 float64
}

// Operator computes a single observer's viewshed against a fixed DEM.
type Operator interface {
	Viewshed(ctx context.Context, observerX, observerY, observerHeight, targetHeight, maxDistance float64) (map[int]struct{}, float64, error)
}

// BatchOptions configures RunBatch's worker pool.
type BatchOptions struct {
	// Workers is the number of concurrent viewshed computations. 0 defaults
	// to runtime.NumCPU(), matching the source's max_workers=4 default being
	// a floor rather than a hard cap in a Go worker-pool rendition.
	Workers int
	// Progress is called after every observer completes, with the count
	// completed so far and the total.
	Progress func(done, total int)
}

// DefaultBatchOptions mirrors the source's calculate_viewsheds_batch default
// of 4 workers.
func DefaultBatchOptions() BatchOptions {
	return BatchOptions{Workers: 4}
}

// RunBatch computes viewsheds for every observer concurrently, following the
// teacher's worker-pool pattern (pkg/v1/parallel.go): a bounded set of
// workers drain a jobs channel, a closer goroutine waits on a WaitGroup and
// closes the results channel, and the caller collects results back into
// observer order. A single observer's failure yields an empty Result and is
// logged, not propagated — it never aborts the batch.
func RunBatch(ctx context.Context, op Operator, observers []Observer, observerHeight, targetHeight, maxDistance float64, opts BatchOptions, log *zap.Logger) []Result {
	if len(observers) == 0 {
		return nil
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(observers) {
		workers = len(observers)
	}

	type indexed struct {
		index int
		res   Result
	}

	jobs := make(chan int, len(observers))
	results := make(chan indexed, len(observers))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				obs := observers[i]
				select {
				case <-ctx.Done():
					results <- indexed{index: i, res: Result{PointID: obs.PointID}}
					continue
				default:
				}

				cells, area, err := op.Viewshed(ctx, obs.X, obs.Y, observerHeight, targetHeight, maxDistance)
				if err != nil {
					if log != nil {
						log.Warn("viewshed computation failed",
							zap.Int("point_id", obs.PointID), zap.Error(err))
					}
					results <- indexed{index: i, res: Result{PointID: obs.PointID}}
					continue
				}
				results <- indexed{index: i, res: Result{PointID: obs.PointID, VisibleCells: cells, VisibleAreaM2: area}}
			}
		}()
	}

	for i := range observers {
		jobs <- i
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	ordered := make([]Result, len(observers))
	done := 0
	for r := range results {
		ordered[r.index] = r.res
		done++
		if opts.Progress != nil {
			opts.Progress(done, len(observers))
		}
	}
	return ordered
}

// extractVisibleCells maps a viewshed output raster's visible pixels (value
// 255) back onto the DEM's own cell indexing. The viewshed raster may be
// smaller than (or offset from) the DEM, so every visible pixel's centroid
// is converted to a geographic coordinate via the viewshed raster's own
// transform, then located on the DEM grid via idx.WorldToPixel — ported
// directly from viewshed_engine.py's _extract_visible_cells.
func extractVisibleCells(raster *gdalViewshedRaster, idx *rasterprep.Index) map[int]struct{} {
	cells := make(map[int]struct{})
	for row := 0; row < raster.height; row++ {
		for col := 0; col < raster.width; col++ {
			if raster.data[row*raster.width+col] != 255 {
				continue
			}
			geoX := raster.transform[0] + (float64(col)+0.5)*raster.transform[1]
			geoY := raster.transform[3] + (float64(row)+0.5)*raster.transform[5]

			demCol, demRow := idx.WorldToPixel(geoX, geoY)
			c, r := int(demCol), int(demRow)
			if idx.InBounds(c, r) {
				cells[idx.CellID(r, c)] = struct{}{}
			}
		}
	}
	return cells
}
