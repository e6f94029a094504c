package depression

import (
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/banshee-data/demsinks/internal/raster"
)

// Depression holds the attributes of one labeled region. Elevations are in
// raw DEM units; MaxElev is the water surface the region fills to.
type Depression struct {
	ID         int
	PixelCount int
	Area       float64
	Volume     float64
	MeanDepth  float64
	MaxDepth   float64
	MinElev    float64
	MaxElev    float64
}

// meanDepthTolerance absorbs summation error when a region is flat.
const meanDepthTolerance = 1e-9

// Extract computes one Depression per label, ordered by id.
//
// MinElev is the lowest raw elevation of the region. MaxElev is the highest
// surface elevation over the region when surface is non-nil (the filled DEM,
// or the water surface at a slicing level), otherwise the highest raw
// elevation.
func Extract(labels *LabelGrid, raw, surface *raster.Grid, resolution float64) ([]Depression, error) {
	if labels == nil || raw == nil {
		return nil, configErrorf("attributes", "labels and raw grid are required")
	}
	if labels.Rows != raw.Rows || labels.Cols != raw.Cols || len(labels.Labels) != raw.Len() {
		return nil, configErrorf("attributes", "label grid %dx%d does not match raw %dx%d", labels.Rows, labels.Cols, raw.Rows, raw.Cols)
	}
	if surface != nil {
		if err := raw.CheckShape(surface); err != nil {
			return nil, gridError("attributes", err)
		}
	}
	if math.IsNaN(resolution) || math.IsInf(resolution, 0) || resolution <= 0 {
		return nil, configErrorf("attributes", "resolution must be positive, got %v", resolution)
	}
	if labels.Count == 0 {
		return nil, nil
	}

	footprints := labels.Footprints()
	cellArea := resolution * resolution
	out := make([]Depression, 0, labels.Count)
	var elev, top []float64
	for k, pixels := range footprints {
		id := k + 1
		n := len(pixels)
		if n == 0 {
			return nil, inconsistentf("attributes", "label %d has no pixels", id)
		}
		elev = elev[:0]
		top = top[:0]
		for _, idx := range pixels {
			v := raw.Data[idx]
			if raw.IsNoData(v) {
				r, c := raw.RowCol(idx)
				return nil, inconsistentf("attributes", "label %d covers no-data cell (%d,%d)", id, r, c)
			}
			elev = append(elev, v)
			if surface != nil {
				top = append(top, surface.Data[idx])
			}
		}

		minElev := floats.Min(elev)
		maxElev := floats.Max(elev)
		if surface != nil {
			maxElev = floats.Max(top)
		}
		mean := (maxElev*float64(n) - floats.Sum(elev)) / float64(n)
		if mean < 0 {
			if mean < -meanDepthTolerance*math.Max(1, math.Abs(maxElev)) {
				return nil, inconsistentf("attributes", "label %d has negative mean depth %v", id, mean)
			}
			mean = 0
		}
		area := float64(n) * cellArea
		out = append(out, Depression{
			ID:         id,
			PixelCount: n,
			Area:       area,
			Volume:     mean * area,
			MeanDepth:  mean,
			MaxDepth:   maxElev - minElev,
			MinElev:    minElev,
			MaxElev:    maxElev,
		})
	}
	return out, nil
}
