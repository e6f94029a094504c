// Package testutil provides shared DEM fixtures for package tests.
package testutil

import (
	"testing"

	"github.com/banshee-data/demsinks/internal/raster"
)

// NoData is the sentinel used by every fixture.
const NoData = -9999.0

// MustGrid builds a grid from rows with the fixture sentinel, failing t on error.
func MustGrid(t testing.TB, rows [][]float64, resolution float64) *raster.Grid {
	t.Helper()
	g, err := raster.FromRows(rows, NoData, resolution)
	if err != nil {
		t.Fatalf("build grid: %v", err)
	}
	return g
}

// Flat returns a rows x cols grid of constant elevation.
func Flat(rows, cols int, elev float64) [][]float64 {
	out := make([][]float64, rows)
	for r := range out {
		out[r] = make([]float64, cols)
		for c := range out[r] {
			out[r][c] = elev
		}
	}
	return out
}

// Bowl is a 5x5 DEM with a single-cell pit of 1 inside a ring of 5 and an
// outer edge of 3. The pit fills to the ring (depth 4).
func Bowl() [][]float64 {
	return [][]float64{
		{3, 3, 3, 3, 3},
		{3, 5, 5, 5, 3},
		{3, 5, 1, 5, 3},
		{3, 5, 5, 5, 3},
		{3, 3, 3, 3, 3},
	}
}

// TwoPits is a flat 7x7 plateau at 10 with isolated pits of 8 at (2,2) and
// 7 at (4,4).
func TwoPits() [][]float64 {
	g := Flat(7, 7, 10)
	g[2][2] = 8
	g[4][4] = 7
	return g
}

// NestedBasin is a 5x7 DEM: an edge wall of 10 around a 3x5 floor of 8
// carrying two pits of 4 at (2,2) and (2,4). The floor fills to 10.
func NestedBasin() [][]float64 {
	return [][]float64{
		{10, 10, 10, 10, 10, 10, 10},
		{10, 8, 8, 8, 8, 8, 10},
		{10, 8, 4, 8, 4, 8, 10},
		{10, 8, 8, 8, 8, 8, 10},
		{10, 10, 10, 10, 10, 10, 10},
	}
}

// Hill is the mound counterpart of Bowl: a peak of 9 on a ring of 5 inside
// an outer edge of 7.
func Hill() [][]float64 {
	return [][]float64{
		{7, 7, 7, 7, 7},
		{7, 5, 5, 5, 7},
		{7, 5, 9, 5, 7},
		{7, 5, 5, 5, 7},
		{7, 7, 7, 7, 7},
	}
}
