package preview

import (
	"bytes"
	"fmt"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/gridfiles/internal/griderr"
	"github.com/banshee-data/gridfiles/internal/lsc"
)

// Residuals renders the per-point east and north residuals of an
// estimation as a bar chart HTML page. meanLat converts longitude
// residuals to metres.
func Residuals(title string, res []lsc.Residual, meanLat float64) ([]byte, error) {
	if len(res) == 0 {
		return nil, fmt.Errorf("%w: no residuals to chart", griderr.ErrDomain)
	}

	names := make([]string, len(res))
	east := make([]opts.BarData, len(res))
	north := make([]opts.BarData, len(res))
	for i, r := range res {
		e, n := r.Metres(meanLat)
		names[i] = r.Name
		// millimetres, two decimals
		east[i] = opts.BarData{Value: math.Round(e*1e5) / 100}
		north[i] = opts.BarData{Value: math.Round(n*1e5) / 100}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("points=%d", len(res))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Residual (mm)", NameLocation: "middle", NameGap: 40}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider", Start: 0, End: 100}),
	)
	bar.SetXAxis(names).
		AddSeries("east", east).
		AddSeries("north", north)

	page := components.NewPage()
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return nil, fmt.Errorf("render residual chart: %w", err)
	}
	return buf.Bytes(), nil
}
