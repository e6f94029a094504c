package raster

import "errors"

var (
	// ErrEmptyGrid indicates a grid with no rows or no columns.
	ErrEmptyGrid = errors.New("raster: grid must have at least one row and one column")
	// ErrAllNoData indicates every cell equals the no-data sentinel.
	ErrAllNoData = errors.New("raster: grid contains only no-data cells")
	// ErrNoDataSentinel indicates a missing (NaN) or infinite no-data sentinel.
	ErrNoDataSentinel = errors.New("raster: no-data sentinel must be finite")
	// ErrShapeMismatch indicates two grids that should align do not.
	ErrShapeMismatch = errors.New("raster: grid shapes differ")
	// ErrMalformedASCII indicates an unreadable ESRI ASCII grid.
	ErrMalformedASCII = errors.New("raster: malformed ASCII grid")
)
