package depression

import (
	"math"

	"github.com/banshee-data/demsinks/internal/monitoring"
	"github.com/banshee-data/demsinks/internal/raster"
)

// FillOption tunes Fill.
type FillOption func(*fillConfig)

type fillConfig struct {
	conn Connectivity
}

// WithConnectivity selects the flood neighbourhood. The default is Conn8.
func WithConnectivity(c Connectivity) FillOption {
	return func(cfg *fillConfig) { cfg.conn = c }
}

func newFillConfig(opts []FillOption) (fillConfig, error) {
	cfg := fillConfig{conn: Conn8}
	for _, o := range opts {
		o(&cfg)
	}
	if !cfg.conn.valid() {
		return cfg, configErrorf("fill", "connectivity must be 4 or 8, got %d", cfg.conn)
	}
	return cfg, nil
}

// Fill returns a copy of g in which every cell that cannot drain to the grid
// edge or to a no-data cell is raised to the lowest elevation over which it
// could spill. Cells that already drain keep their raw value; no-data cells
// are copied unchanged.
//
// The flood is seeded with every boundary cell and every cell touching
// no-data. Cells are then resolved lowest first from a priority queue, each
// neighbour taking max(popped elevation, own raw elevation).
func Fill(g *raster.Grid, opts ...FillOption) (*raster.Grid, error) {
	cfg, err := newFillConfig(opts)
	if err != nil {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, gridError("fill", err)
	}
	for i, v := range g.Data {
		if !g.IsNoData(v) && (math.IsNaN(v) || math.IsInf(v, 0)) {
			r, c := g.RowCol(i)
			return nil, configErrorf("fill", "cell (%d,%d) holds non-finite value %v", r, c, v)
		}
	}
	defer monitoring.Timed("[fill] priority flood")()

	out := g.Clone()
	n := g.Len()
	offsets := cfg.conn.offsets()
	resolved := make([]bool, n)
	pq := newCellQueue(2 * (g.Rows + g.Cols))

	seeds := 0
	for idx := 0; idx < n; idx++ {
		if !g.Valid(idx) {
			resolved[idx] = true
			continue
		}
		r, c := g.RowCol(idx)
		if !isSeed(g, r, c, offsets) {
			continue
		}
		resolved[idx] = true
		pq.push(idx, g.Data[idx])
		seeds++
	}
	monitoring.Debugf("[fill] %d seed cells, connectivity %d", seeds, cfg.conn)

	raised := 0
	for pq.Len() > 0 {
		cur := pq.pop()
		r, c := g.RowCol(cur.idx)
		for _, off := range offsets {
			nr, nc := r+off[0], c+off[1]
			if !g.InBounds(nr, nc) {
				continue
			}
			ni := g.Idx(nr, nc)
			if resolved[ni] {
				continue
			}
			resolved[ni] = true
			v := g.Data[ni]
			if cur.elev > v {
				v = cur.elev
				raised++
			}
			out.Data[ni] = v
			pq.push(ni, v)
		}
	}

	for idx := 0; idx < n; idx++ {
		if !resolved[idx] {
			r, c := g.RowCol(idx)
			return nil, inconsistentf("fill", "cell (%d,%d) was never reached", r, c)
		}
		if g.Valid(idx) && out.Data[idx] < g.Data[idx] {
			r, c := g.RowCol(idx)
			return nil, inconsistentf("fill", "cell (%d,%d) lowered from %v to %v", r, c, g.Data[idx], out.Data[idx])
		}
	}
	monitoring.Logf("[fill] %dx%d grid: %d cells raised", g.Rows, g.Cols, raised)
	return out, nil
}

// isSeed reports whether a data cell sits on the grid edge or next to no-data.
func isSeed(g *raster.Grid, r, c int, offsets [][2]int) bool {
	if r == 0 || c == 0 || r == g.Rows-1 || c == g.Cols-1 {
		return true
	}
	for _, off := range offsets {
		if !g.Valid(g.Idx(r+off[0], c+off[1])) {
			return true
		}
	}
	return false
}

// DepthField returns filled - raw with no-data and non-depression cells set
// to zero. The result uses 0 as its no-data value.
func DepthField(raw, filled *raster.Grid) (*raster.Grid, error) {
	if err := raw.CheckShape(filled); err != nil {
		return nil, gridError("depth", err)
	}
	out := raw.Like(0)
	for i, v := range raw.Data {
		if raw.IsNoData(v) {
			continue
		}
		d := filled.Data[i] - v
		if d < 0 {
			r, c := raw.RowCol(i)
			return nil, inconsistentf("depth", "filled value below raw at (%d,%d): %v < %v", r, c, filled.Data[i], v)
		}
		out.Data[i] = d
	}
	return out, nil
}
