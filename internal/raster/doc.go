// Package raster owns the elevation grid representation shared by every
// extraction stage.
//
// Responsibilities: the dense row-major Grid with its no-data sentinel and
// pass-through georeference, grid statistics, DEM inversion for mound
// delineation, and ESRI ASCII grid ingestion/persistence (.asc plus an
// optional .prj sidecar).
//
// Dependency rule: raster depends on nothing else in this module.
package raster
