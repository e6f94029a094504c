package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/banshee-data/demsinks/internal/depression"
	"github.com/banshee-data/demsinks/internal/raster"
)

// DepressionHeader is the column set of regions_info.csv.
var DepressionHeader = []string{"region-id", "count", "area", "volume", "avg-depth", "max-depth", "min-elev", "max-elev"}

// HierarchyHeader is the column set of depressions_info.csv.
var HierarchyHeader = []string{"id", "level", "parent-id", "region-id", "children-id",
	"count", "area", "volume", "avg-depth", "max-depth", "min-elev", "max-elev"}

// MountHeader is the column set of mounts_info.csv. Heights and elevations
// are on the original surface: peak-elev is the summit, base-elev the
// contour the mound rises from.
var MountHeader = []string{"id", "level", "parent-id", "region-id", "children-id",
	"count", "area", "volume", "avg-height", "max-height", "peak-elev", "base-elev"}

func f2(v float64) string { return fmt.Sprintf("%.2f", v) }

func attributeFields(d depression.Depression) []string {
	return []string{
		strconv.Itoa(d.PixelCount),
		f2(d.Area),
		f2(d.Volume),
		f2(d.MeanDepth),
		f2(d.MaxDepth),
		f2(d.MinElev),
		f2(d.MaxElev),
	}
}

// WriteDepressionsCSV writes one row per depression in the order given.
func WriteDepressionsCSV(w io.Writer, deps []depression.Depression) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(DepressionHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, d := range deps {
		row := append([]string{strconv.Itoa(d.ID)}, attributeFields(d)...)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write region %d: %w", d.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteHierarchyCSV writes one row per hierarchy node in build order.
// parent-id is 0 for roots; region-id is the id of the node's root;
// children-id lists child ids separated by colons.
func WriteHierarchyCSV(w io.Writer, h *depression.Hierarchy) error {
	return writeNodes(w, HierarchyHeader, h, func(d depression.Depression) []string {
		return attributeFields(d)
	})
}

// WriteMountsCSV is WriteHierarchyCSV for a hierarchy built on a DEM flipped
// by inv. Elevations are mapped back through inv, so the lowest inverted
// elevation becomes the peak.
func WriteMountsCSV(w io.Writer, h *depression.Hierarchy, inv raster.Inversion) error {
	return writeNodes(w, MountHeader, h, func(d depression.Depression) []string {
		return []string{
			strconv.Itoa(d.PixelCount),
			f2(d.Area),
			f2(d.Volume),
			f2(d.MeanDepth),
			f2(d.MaxDepth),
			f2(inv.Elevation(d.MinElev)),
			f2(inv.Elevation(d.MaxElev)),
		}
	})
}

func writeNodes(w io.Writer, header []string, h *depression.Hierarchy, attrs func(depression.Depression) []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, n := range h.Nodes() {
		parent := 0
		if n.Parent != nil {
			parent = n.Parent.ID
		}
		children := make([]string, len(n.Children))
		for i, c := range n.Children {
			children[i] = strconv.Itoa(c.ID)
		}
		row := []string{
			strconv.Itoa(n.ID),
			strconv.Itoa(n.Depth()),
			strconv.Itoa(parent),
			strconv.Itoa(n.Root().ID),
			strings.Join(children, ":"),
		}
		row = append(row, attrs(n.Depression)...)
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write node %d: %w", n.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
