// Package export writes extraction results in exchange formats: CSV
// attribute tables and polygon shapefiles traced from label rasters.
package export
