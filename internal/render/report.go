package render

import (
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/demsinks/internal/depression"
	"github.com/banshee-data/demsinks/internal/raster"
)

// DefaultMaxPoints caps the scatter payload of a report.
const DefaultMaxPoints = 8000

var viridis = []string{"#440154", "#482777", "#3e4989", "#31688e", "#26828e", "#1f9e89", "#35b779", "#6ece58", "#b5de2b", "#fde725"}

// Report is the content of an HTML run report.
type Report struct {
	Title       string
	Depth       *raster.Grid // depth field; cells <= 0 are skipped
	Depressions []depression.Depression
	MaxPoints   int // 0 means DefaultMaxPoints
}

// WriteReportHTML renders a page with a depth scatter and a volume bar chart.
func WriteReportHTML(w io.Writer, r Report) error {
	if r.Depth == nil {
		return fmt.Errorf("report: depth grid is required")
	}
	page := components.NewPage()
	page.PageTitle = r.Title
	page.AddCharts(depthScatter(r), volumeBar(r))
	if err := page.Render(w); err != nil {
		return fmt.Errorf("report: render: %w", err)
	}
	return nil
}

func depthScatter(r Report) *charts.Scatter {
	g := r.Depth
	maxPoints := r.MaxPoints
	if maxPoints <= 0 {
		maxPoints = DefaultMaxPoints
	}

	var cells []int
	for i, v := range g.Data {
		if v > 0 && !g.IsNoData(v) {
			cells = append(cells, i)
		}
	}
	// Downsample by stride to stay within maxPoints
	stride := 1
	if len(cells) > maxPoints {
		stride = int(math.Ceil(float64(len(cells)) / float64(maxPoints)))
	}

	cell := gridXYZ{g: g}.cell()
	data := make([]opts.ScatterData, 0, len(cells)/stride+1)
	maxDepth := 0.0
	for i := 0; i < len(cells); i += stride {
		row, col := g.RowCol(cells[i])
		x := g.Georef.XLLCorner + (float64(col)+0.5)*cell
		y := g.Georef.YLLCorner + (float64(g.Rows-row)-0.5)*cell
		d := g.Data[cells[i]]
		if d > maxDepth {
			maxDepth = d
		}
		data = append(data, opts.ScatterData{Value: []interface{}{x, y, d}})
	}
	if maxDepth == 0 {
		maxDepth = 1
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: r.Title, Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{Title: "Depth", Subtitle: fmt.Sprintf("points=%d stride=%d", len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        float32(maxDepth),
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: viridis},
		}),
	)
	scatter.AddSeries("depth", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	return scatter
}

func volumeBar(r Report) *charts.Bar {
	x := make([]string, len(r.Depressions))
	y := make([]opts.BarData, len(r.Depressions))
	for i, d := range r.Depressions {
		x[i] = strconv.Itoa(d.ID)
		y[i] = opts.BarData{Value: math.Round(d.Volume*100) / 100}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "480px"}),
		charts.WithTitleOpts(opts.Title{Title: "Depression volume", Subtitle: fmt.Sprintf("regions=%d", len(r.Depressions))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).AddSeries("volume", y)
	return bar
}
