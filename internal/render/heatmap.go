package render

import (
	"fmt"
	"image/color"
	"io"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/demsinks/internal/raster"
)

// paletteSize is the number of colours in the heat map palette.
const paletteSize = 64

// gridXYZ adapts a raster to plotter.GridXYZ. Row 0 is drawn at the top and
// no-data cells are NaN.
type gridXYZ struct {
	g *raster.Grid
}

func (x gridXYZ) Dims() (c, r int) { return x.g.Cols, x.g.Rows }

func (x gridXYZ) Z(c, r int) float64 {
	v := x.g.At(x.g.Rows-1-r, c)
	if x.g.IsNoData(v) {
		return math.NaN()
	}
	return v
}

func (x gridXYZ) X(c int) float64 {
	return x.g.Georef.XLLCorner + (float64(c)+0.5)*x.cell()
}

func (x gridXYZ) Y(r int) float64 {
	return x.g.Georef.YLLCorner + (float64(r)+0.5)*x.cell()
}

func (x gridXYZ) cell() float64 {
	if x.g.Georef.CellSize > 0 {
		return x.g.Georef.CellSize
	}
	if x.g.Resolution > 0 {
		return x.g.Resolution
	}
	return 1
}

// WriteHeatmapPNG renders g as a PNG heat map. No-data cells are transparent.
func WriteHeatmapPNG(w io.Writer, g *raster.Grid, title string) error {
	if g == nil || g.Rows < 2 || g.Cols < 2 || len(g.Data) != g.Rows*g.Cols {
		return fmt.Errorf("heatmap: grid must be at least 2x2")
	}

	hm := plotter.NewHeatMap(gridXYZ{g: g}, palette.Heat(paletteSize, 1))
	hm.NaN = color.Transparent
	st := g.Stats()
	if st.ValidCount > 0 {
		hm.Min, hm.Max = st.Min, st.Max
	} else {
		hm.Min, hm.Max = 0, 0
	}
	if hm.Max <= hm.Min {
		hm.Max = hm.Min + 1
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	p.Add(hm)

	width := 8 * vg.Inch
	height := width * vg.Length(float64(g.Rows)/float64(g.Cols))
	if height < 2*vg.Inch {
		height = 2 * vg.Inch
	}
	if height > 16*vg.Inch {
		height = 16 * vg.Inch
	}
	wt, err := p.WriterTo(width, height, "png")
	if err != nil {
		return fmt.Errorf("heatmap: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("heatmap: write png: %w", err)
	}
	return nil
}
