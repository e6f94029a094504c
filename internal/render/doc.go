// Package render draws quick-look previews of extraction results: PNG heat
// maps of grids and an HTML report of depth and depression volumes.
package render
