// Package depression is the depression-filling and nested-hierarchy engine.
//
// Responsibilities: priority-flood filling (Fill), the filled-minus-raw depth
// field (DepthField), 4-connected region labeling with size filtering
// (Label), per-region geometric and volumetric attributes (Extract), and the
// multi-level slicing sweep that nests regions into a tree (BuildHierarchy).
//
// Mounds are handled by running the same engine on an inverted DEM (see
// raster.Inversion); nothing in this package knows which way up the surface is.
//
// Every stage is synchronous and owns no state beyond its call. Grids passed
// in are never modified.
package depression
