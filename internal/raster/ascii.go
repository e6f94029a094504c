package raster

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/demsinks/internal/fsutil"
)

// MaxCells caps the size of a grid read from an ASCII header.
const MaxCells = 1 << 30

// dimension returns a positive integral ncols/nrows header value.
func dimension(header map[string]float64, key string) (int, error) {
	v, ok := header[key]
	if !ok {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformedASCII, key)
	}
	if v != math.Trunc(v) || v < 1 || v > MaxCells {
		return 0, fmt.Errorf("%w: %s must be a positive integer, got %v", ErrMalformedASCII, key, v)
	}
	return int(v), nil
}

// ReadASCII parses an ESRI ASCII grid. Header keys are case-insensitive;
// xllcenter/yllcenter are converted to corner coordinates. A header without
// NODATA_value yields a NaN sentinel, which Validate rejects.
func ReadASCII(r io.Reader) (*Grid, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1<<20)
	sc.Split(bufio.ScanWords)

	header := map[string]float64{}
	var first string
	for sc.Scan() {
		key := strings.ToLower(sc.Text())
		switch key {
		case "ncols", "nrows", "xllcorner", "yllcorner", "xllcenter", "yllcenter", "cellsize", "nodata_value":
		default:
			first = sc.Text()
		}
		if first != "" {
			break
		}
		if !sc.Scan() {
			return nil, fmt.Errorf("%w: header key %q has no value", ErrMalformedASCII, key)
		}
		v, err := strconv.ParseFloat(sc.Text(), 64)
		if err != nil {
			return nil, fmt.Errorf("%w: header %s: %v", ErrMalformedASCII, key, err)
		}
		header[key] = v
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ASCII grid: %w", err)
	}

	cols, err := dimension(header, "ncols")
	if err != nil {
		return nil, err
	}
	rows, err := dimension(header, "nrows")
	if err != nil {
		return nil, err
	}
	if rows > MaxCells/cols {
		return nil, fmt.Errorf("%w: %dx%d grid exceeds %d cells", ErrMalformedASCII, rows, cols, MaxCells)
	}
	cell, ok := header["cellsize"]
	if !ok || !(cell > 0) || math.IsInf(cell, 1) {
		return nil, fmt.Errorf("%w: cellsize must be positive", ErrMalformedASCII)
	}
	noData, ok := header["nodata_value"]
	if !ok {
		noData = math.NaN()
	}

	g := New(rows, cols, noData, cell, 0)
	g.Georef.XLLCorner = header["xllcorner"]
	g.Georef.YLLCorner = header["yllcorner"]
	if v, ok := header["xllcenter"]; ok {
		g.Georef.XLLCorner = v - cell/2
	}
	if v, ok := header["yllcenter"]; ok {
		g.Georef.YLLCorner = v - cell/2
	}

	n := 0
	tok := first
	for tok != "" {
		if n >= len(g.Data) {
			return nil, fmt.Errorf("%w: more than %d values", ErrMalformedASCII, len(g.Data))
		}
		v, err := strconv.ParseFloat(tok, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: value %d: %v", ErrMalformedASCII, n, err)
		}
		g.Data[n] = v
		n++
		tok = ""
		if sc.Scan() {
			tok = sc.Text()
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read ASCII grid: %w", err)
	}
	if n != len(g.Data) {
		return nil, fmt.Errorf("%w: got %d values, want %d", ErrMalformedASCII, n, len(g.Data))
	}
	return g, nil
}

// WriteASCII serialises g as an ESRI ASCII grid with corner coordinates.
func WriteASCII(w io.Writer, g *Grid) error {
	bw := bufio.NewWriter(w)
	cell := g.Georef.CellSize
	if cell == 0 {
		cell = g.Resolution
	}
	fmt.Fprintf(bw, "ncols %d\nnrows %d\n", g.Cols, g.Rows)
	fmt.Fprintf(bw, "xllcorner %s\nyllcorner %s\n", formatValue(g.Georef.XLLCorner), formatValue(g.Georef.YLLCorner))
	fmt.Fprintf(bw, "cellsize %s\nNODATA_value %s\n", formatValue(cell), formatValue(g.NoData))
	for r := 0; r < g.Rows; r++ {
		row := g.Data[r*g.Cols : (r+1)*g.Cols]
		for c, v := range row {
			if c > 0 {
				bw.WriteByte(' ')
			}
			bw.WriteString(formatValue(v))
		}
		bw.WriteByte('\n')
	}
	return bw.Flush()
}

func formatValue(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// LoadASCII reads path from fsys and attaches the projection from a .prj
// sidecar when one exists.
func LoadASCII(fsys fsutil.FileSystem, path string) (*Grid, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open grid: %w", err)
	}
	defer f.Close()

	g, err := ReadASCII(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	prj := sidecar(path)
	if fsys.Exists(prj) {
		pf, err := fsys.Open(prj)
		if err != nil {
			return nil, fmt.Errorf("open projection: %w", err)
		}
		defer pf.Close()
		wkt, err := io.ReadAll(pf)
		if err != nil {
			return nil, fmt.Errorf("read projection: %w", err)
		}
		g.Georef.Projection = strings.TrimSpace(string(wkt))
	}
	return g, nil
}

// SaveASCII writes g to path and its projection, if any, to the sidecar.
func SaveASCII(fsys fsutil.FileSystem, path string, g *Grid) error {
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := WriteASCII(f, g); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	if g.Georef.Projection == "" {
		return nil
	}
	return WriteProjection(fsys, sidecar(path), g.Georef.Projection)
}

// WriteProjection writes a WKT projection file.
func WriteProjection(fsys fsutil.FileSystem, path, wkt string) error {
	pf, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if _, err := io.WriteString(pf, wkt); err != nil {
		pf.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return pf.Close()
}

func sidecar(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
}
