package viz

import (
	"image/color"

	"gonum.org/v1/plot"
)

// Surface receives trace and axis updates. Updates are staged until
// Refresh publishes them; callers never read back from it.
type Surface interface {
	SetLine(panel, line string, xs, ys []float64)
	SetXRange(panel string, min, max float64)
	SetYRange(panel string, min, max float64)
	Refresh()
}

// Layout is implemented by surfaces that take panel and line declarations
// up front.
type Layout interface {
	AddPanel(name, xLabel, yLabel string, opts ...PlotOptions)
	AddLine(panel, line string, c color.Color)
}

type PlotOptions func(p *plot.Plot)

func plotWithDefaults() *plot.Plot {

	p := plot.New()
	p.BackgroundColor = color.Black
	p.Title.TextStyle.Color = color.White
	p.Y.Label.TextStyle.Color = color.White
	p.Y.Color = color.White
	p.X.Label.TextStyle.Color = color.White
	p.X.Color = color.White
	p.Legend.TextStyle.Color = color.White
	p.X.Tick.Color = color.White
	p.Y.Tick.Color = color.White
	p.X.Tick.Label.Color = color.White
	p.Y.Tick.Label.Color = color.White

	return p
}
