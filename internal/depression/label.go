package depression

import (
	"github.com/banshee-data/demsinks/internal/monitoring"
	"github.com/banshee-data/demsinks/internal/raster"
)

// LabelGrid assigns every pixel a region label. 0 is background; surviving
// regions are numbered 1..Count in raster-scan order of their first pixel.
type LabelGrid struct {
	Rows, Cols int
	Labels     []int32
	Count      int
}

// At returns the label at (row, col).
func (l *LabelGrid) At(row, col int) int32 { return l.Labels[row*l.Cols+col] }

// Footprints returns, per label, the ascending flat indices of its pixels.
// Element i holds label i+1.
func (l *LabelGrid) Footprints() [][]int {
	sizes := make([]int, l.Count)
	for _, id := range l.Labels {
		if id > 0 {
			sizes[id-1]++
		}
	}
	out := make([][]int, l.Count)
	for i := range out {
		out[i] = make([]int, 0, sizes[i])
	}
	for idx, id := range l.Labels {
		if id > 0 {
			out[id-1] = append(out[id-1], idx)
		}
	}
	return out
}

// ToGrid converts the labels to a raster with background as no-data 0.
func (l *LabelGrid) ToGrid(ref *raster.Grid) *raster.Grid {
	g := ref.Like(0)
	for i, id := range l.Labels {
		g.Data[i] = float64(id)
	}
	return g
}

// Label finds the maximal 4-connected components of positive depth and drops
// every component with minSize pixels or fewer. No-data cells (the depth
// grid's sentinel) are background.
func Label(depth *raster.Grid, minSize int) (*LabelGrid, int, error) {
	if minSize < 0 {
		return nil, 0, configErrorf("label", "minSize must be non-negative, got %d", minSize)
	}
	if depth == nil || depth.Rows <= 0 || depth.Cols <= 0 || len(depth.Data) != depth.Rows*depth.Cols {
		return nil, 0, gridError("label", raster.ErrEmptyGrid)
	}

	n := depth.Len()
	lg := &LabelGrid{Rows: depth.Rows, Cols: depth.Cols, Labels: make([]int32, n)}
	inMask := func(idx int) bool {
		v := depth.Data[idx]
		return v > 0 && !depth.IsNoData(v)
	}

	// First pass: provisional labels with BFS, sizes[k] for label k+1.
	var sizes []int
	queue := make([]int, 0, 64)
	for start := 0; start < n; start++ {
		if lg.Labels[start] != 0 || !inMask(start) {
			continue
		}
		id := int32(len(sizes) + 1)
		lg.Labels[start] = id
		queue = append(queue[:0], start)
		count := 0
		for qi := 0; qi < len(queue); qi++ {
			cur := queue[qi]
			count++
			r, c := depth.RowCol(cur)
			for _, off := range offsets4 {
				nr, nc := r+off[0], c+off[1]
				if !depth.InBounds(nr, nc) {
					continue
				}
				ni := depth.Idx(nr, nc)
				if lg.Labels[ni] != 0 || !inMask(ni) {
					continue
				}
				lg.Labels[ni] = id
				queue = append(queue, ni)
			}
		}
		sizes = append(sizes, count)
	}

	// Second pass: drop small regions, renumber survivors densely. Provisional
	// labels are already in scan order of first pixel, so order is preserved.
	remap := make([]int32, len(sizes)+1)
	next := int32(0)
	for k, size := range sizes {
		if size > minSize {
			next++
			remap[k+1] = next
		}
	}
	for i, id := range lg.Labels {
		if id != 0 {
			lg.Labels[i] = remap[id]
		}
	}
	lg.Count = int(next)
	monitoring.Debugf("[label] %d components, %d kept (minSize %d)", len(sizes), lg.Count, minSize)
	return lg, lg.Count, nil
}
