package raster

import (
	"fmt"
	"math"
)

// Inversion flips a DEM upside down so mounds become depressions:
// elevation' = -elevation + Offset, with Offset = max(elevation) + delta.
//
// The offset is captured once, so applying the same Inversion twice
// restores the original surface.
type Inversion struct {
	Offset float64
}

// NewInversion derives the inversion offset from g's highest data cell.
func NewInversion(g *Grid, delta float64) (Inversion, error) {
	if err := g.Validate(); err != nil {
		return Inversion{}, err
	}
	return Inversion{Offset: g.Stats().Max + delta}, nil
}

// Apply returns the inverted copy of g. No-data cells keep the sentinel; an
// inverted data value that lands exactly on the sentinel is rejected because
// it would silently vanish from every later statistic.
func (inv Inversion) Apply(g *Grid) (*Grid, error) {
	out := g.Like(g.NoData)
	for i, v := range g.Data {
		if g.IsNoData(v) {
			out.Data[i] = g.NoData
			continue
		}
		f := -v + inv.Offset
		if f == g.NoData {
			row, col := g.RowCol(i)
			return nil, fmt.Errorf("raster: inverted elevation at (%d,%d) collides with no-data sentinel %v", row, col, g.NoData)
		}
		out.Data[i] = f
	}
	return out, nil
}

// Invert is NewInversion followed by Apply.
func Invert(g *Grid, delta float64) (*Grid, Inversion, error) {
	inv, err := NewInversion(g, delta)
	if err != nil {
		return nil, Inversion{}, err
	}
	out, err := inv.Apply(g)
	if err != nil {
		return nil, Inversion{}, err
	}
	return out, inv, nil
}

// Elevation maps an inverted-surface value back to the original surface.
func (inv Inversion) Elevation(v float64) float64 {
	if math.IsNaN(v) {
		return v
	}
	return -v + inv.Offset
}
