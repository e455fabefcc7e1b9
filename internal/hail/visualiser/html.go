package visualiser

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderHTML writes an interactive X/Y scatter chart with one series per
// fragment or trajectory.
func RenderHTML(w io.Writer, title string, series []Series) error {
	if len(series) == 0 {
		return ErrNoSeries
	}

	points := 0
	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Width: "1000px", Height: "700px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("series=%d", len(series))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(len(series) <= maxLegendEntries)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "X (px)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Y (px)", NameLocation: "middle", NameGap: 35}),
	)

	for _, s := range series {
		data := make([]opts.ScatterData, 0, len(s.Points))
		for _, d := range s.Points {
			data = append(data, opts.ScatterData{Value: []interface{}{d.X, d.Y, d.Frame, d.Radius}})
		}
		points += len(data)
		scatter.AddSeries(s.Name, data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	}

	if err := scatter.Render(w); err != nil {
		return fmt.Errorf("render chart (%d points): %w", points, err)
	}
	return nil
}
