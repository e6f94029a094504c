package raster

import (
	"fmt"
	"math"
)

// Georef is the georeference carried through every derived grid. The
// extraction engine never interprets it.
type Georef struct {
	XLLCorner  float64 // x of the lower-left corner of the lower-left cell
	YLLCorner  float64 // y of the lower-left corner of the lower-left cell
	CellSize   float64
	Projection string // WKT from the .prj sidecar, empty when unknown
}

// Grid is a single-band elevation raster stored row-major, row 0 at the top.
type Grid struct {
	Rows, Cols int
	Data       []float64 // len = Rows * Cols
	NoData     float64   // NaN means the sentinel is missing
	Resolution float64   // square cell size
	Georef     Georef
}

// New allocates a grid filled with fill.
func New(rows, cols int, noData, resolution, fill float64) *Grid {
	g := &Grid{
		Rows:       rows,
		Cols:       cols,
		Data:       make([]float64, rows*cols),
		NoData:     noData,
		Resolution: resolution,
		Georef:     Georef{CellSize: resolution},
	}
	if fill != 0 {
		for i := range g.Data {
			g.Data[i] = fill
		}
	}
	return g
}

// FromRows builds a grid from nested rows, mainly for fixtures.
func FromRows(rows [][]float64, noData, resolution float64) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrEmptyGrid
	}
	cols := len(rows[0])
	g := New(len(rows), cols, noData, resolution, 0)
	for r, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrShapeMismatch, r, len(row), cols)
		}
		copy(g.Data[r*cols:], row)
	}
	return g, nil
}

// Idx maps (row, col) to the flat buffer index.
func (g *Grid) Idx(row, col int) int { return row*g.Cols + col }

// RowCol maps a flat buffer index back to (row, col).
func (g *Grid) RowCol(idx int) (row, col int) { return idx / g.Cols, idx % g.Cols }

// InBounds reports whether (row, col) lies inside the grid.
func (g *Grid) InBounds(row, col int) bool {
	return row >= 0 && row < g.Rows && col >= 0 && col < g.Cols
}

// At returns the value at (row, col).
func (g *Grid) At(row, col int) float64 { return g.Data[g.Idx(row, col)] }

// Set stores v at (row, col).
func (g *Grid) Set(row, col int, v float64) { g.Data[g.Idx(row, col)] = v }

// Len is the number of cells.
func (g *Grid) Len() int { return len(g.Data) }

// IsNoData reports whether v is the grid's no-data sentinel.
func (g *Grid) IsNoData(v float64) bool {
	return v == g.NoData || (math.IsNaN(v) && math.IsNaN(g.NoData))
}

// Valid reports whether cell idx carries data.
func (g *Grid) Valid(idx int) bool { return !g.IsNoData(g.Data[idx]) }

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	c := *g
	c.Data = append([]float64(nil), g.Data...)
	return &c
}

// Like allocates a zeroed grid with the same shape and georeference.
func (g *Grid) Like(noData float64) *Grid {
	return &Grid{
		Rows:       g.Rows,
		Cols:       g.Cols,
		Data:       make([]float64, len(g.Data)),
		NoData:     noData,
		Resolution: g.Resolution,
		Georef:     g.Georef,
	}
}

// SameShape reports whether other has the same dimensions.
func (g *Grid) SameShape(other *Grid) bool {
	return other != nil && g.Rows == other.Rows && g.Cols == other.Cols
}

// CheckShape returns ErrShapeMismatch when other does not align with g.
func (g *Grid) CheckShape(other *Grid) error {
	if other == nil {
		return fmt.Errorf("%w: nil grid", ErrShapeMismatch)
	}
	if !g.SameShape(other) {
		return fmt.Errorf("%w: %dx%d vs %dx%d", ErrShapeMismatch, g.Rows, g.Cols, other.Rows, other.Cols)
	}
	return nil
}

// Stats summarises the data cells of a grid.
type Stats struct {
	Min, Max   float64
	ValidCount int
}

// Stats returns min/max over data cells. ValidCount is 0 for an all-no-data grid.
func (g *Grid) Stats() Stats {
	s := Stats{Min: math.Inf(1), Max: math.Inf(-1)}
	for _, v := range g.Data {
		if g.IsNoData(v) {
			continue
		}
		s.ValidCount++
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
	}
	return s
}

// Validate rejects grids the extraction engine cannot work with: empty
// buffers, a missing or infinite no-data sentinel, and all-no-data grids.
func (g *Grid) Validate() error {
	if g == nil || g.Rows <= 0 || g.Cols <= 0 {
		return ErrEmptyGrid
	}
	if len(g.Data) != g.Rows*g.Cols {
		return fmt.Errorf("%w: buffer has %d cells, shape is %dx%d", ErrShapeMismatch, len(g.Data), g.Rows, g.Cols)
	}
	if math.IsNaN(g.NoData) || math.IsInf(g.NoData, 0) {
		return fmt.Errorf("%w: got %v", ErrNoDataSentinel, g.NoData)
	}
	if g.Stats().ValidCount == 0 {
		return ErrAllNoData
	}
	return nil
}
