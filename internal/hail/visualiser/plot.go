package visualiser

import (
	"fmt"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

// maxLegendEntries caps the legend; later series are still drawn.
const maxLegendEntries = 12

// SavePlot draws frame number against image Y for every series and writes
// the figure to path. The format follows the file extension (.png, .svg, .pdf).
func SavePlot(path, title string, series []Series) error {
	if len(series) == 0 {
		return ErrNoSeries
	}

	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "Frame"
	p.Y.Label.Text = "Y (px, increasing downward)"
	p.Add(plotter.NewGrid())

	for i, s := range series {
		if len(s.Points) == 0 {
			continue
		}
		pts := make(plotter.XYs, len(s.Points))
		for j, d := range s.Points {
			pts[j] = plotter.XY{X: float64(d.Frame), Y: float64(d.Y)}
		}

		line, scatter, err := plotter.NewLinePoints(pts)
		if err != nil {
			return fmt.Errorf("series %q: %w", s.Name, err)
		}
		c := plotutil.Color(i)
		line.Color = c
		line.Width = vg.Points(1)
		scatter.Color = c
		scatter.Shape = plotutil.Shape(i)
		p.Add(line, scatter)
		if i < maxLegendEntries {
			p.Legend.Add(s.Name, line, scatter)
		}
	}

	if err := p.Save(10*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}
