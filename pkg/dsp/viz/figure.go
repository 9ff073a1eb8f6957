package viz

import (
	"bytes"
	"image/color"
	"sync"

	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

type Line struct {
	Name  string
	Color color.Color
	XYs   plotter.XYs
}

type Panel struct {
	Name   string
	XLabel string
	YLabel string
	Lines  []Line
	XMin   float64
	XMax   float64
	YMin   float64
	YMax   float64

	plotOptions []PlotOptions
}

func (p *Panel) line(name string) *Line {
	for i := range p.Lines {
		if p.Lines[i].Name == name {
			return &p.Lines[i]
		}
	}
	p.Lines = append(p.Lines, Line{Name: name, Color: plotutil.Color(len(p.Lines))})
	return &p.Lines[len(p.Lines)-1]
}

func (p *Panel) clone() *Panel {
	ret := *p
	ret.Lines = make([]Line, len(p.Lines))
	for i, l := range p.Lines {
		ret.Lines[i] = Line{Name: l.Name, Color: l.Color, XYs: append(plotter.XYs(nil), l.XYs...)}
	}
	return &ret
}

// Render draws the panel with gonum/plot. format is any extension plot
// understands ("png", "svg", ...).
func (p *Panel) Render(width, height vg.Length, format string) ([]byte, error) {
	pl := plotWithDefaults()
	pl.Title.Text = p.Name
	pl.X.Label.Text = p.XLabel
	pl.Y.Label.Text = p.YLabel
	if p.XMax > p.XMin {
		pl.X.Min, pl.X.Max = p.XMin, p.XMax
	}
	if p.YMax > p.YMin {
		pl.Y.Min, pl.Y.Max = p.YMin, p.YMax
	}
	for _, opt := range p.plotOptions {
		opt(pl)
	}
	pl.Add(plotter.NewGrid())

	for _, l := range p.Lines {
		if len(l.XYs) == 0 {
			continue
		}
		line, err := plotter.NewLine(l.XYs)
		if err != nil {
			return nil, err
		}
		line.Color = l.Color
		pl.Add(line)
		pl.Legend.Add(l.Name, line)
	}

	w, err := pl.WriterTo(width, height, format)
	if err != nil {
		return nil, err
	}
	var imageData bytes.Buffer
	if _, err := w.WriteTo(&imageData); err != nil {
		return nil, err
	}
	return imageData.Bytes(), nil
}

// Figure is an in-memory Surface made of named panels. The acquisition
// loop stages updates; Refresh copies the staged state into a published
// snapshot that readers (the HTTP server) render from.
type Figure struct {
	mu         sync.RWMutex
	order      []string
	staged     map[string]*Panel
	published  map[string]*Panel
	generation uint64
}

func NewFigure() *Figure {
	return &Figure{
		staged:    make(map[string]*Panel),
		published: make(map[string]*Panel),
	}
}

// AddPanel declares a panel. Panels are listed in declaration order.
func (f *Figure) AddPanel(name, xLabel, yLabel string, opts ...PlotOptions) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.staged[name]; !ok {
		f.order = append(f.order, name)
	}
	f.staged[name] = &Panel{Name: name, XLabel: xLabel, YLabel: yLabel, plotOptions: opts}
}

// AddLine declares a line with a fixed colour so legends stay stable.
func (f *Figure) AddLine(panel, line string, c color.Color) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.panel(panel).line(line).Color = c
}

func (f *Figure) panel(name string) *Panel {
	p, ok := f.staged[name]
	if !ok {
		p = &Panel{Name: name}
		f.staged[name] = p
		f.order = append(f.order, name)
	}
	return p
}

// SetLine copies xs and ys; the caller may reuse its slices afterwards.
func (f *Figure) SetLine(panel, line string, xs, ys []float64) {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	xy := make(plotter.XYs, n)
	for i := 0; i < n; i++ {
		xy[i] = plotter.XY{X: xs[i], Y: ys[i]}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.panel(panel).line(line).XYs = xy
}

func (f *Figure) SetXRange(panel string, min, max float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.panel(panel)
	p.XMin, p.XMax = min, max
}

func (f *Figure) SetYRange(panel string, min, max float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p := f.panel(panel)
	p.YMin, p.YMax = min, max
}

func (f *Figure) Refresh() {
	f.mu.Lock()
	defer f.mu.Unlock()
	published := make(map[string]*Panel, len(f.staged))
	for name, p := range f.staged {
		published[name] = p.clone()
	}
	f.published = published
	f.generation++
}

// Generation counts Refresh calls.
func (f *Figure) Generation() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.generation
}

func (f *Figure) PanelNames() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]string(nil), f.order...)
}

// Staged returns a deep copy of the pending state, in panel order.
func (f *Figure) Staged() []Panel {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.collect(f.staged)
}

// Published returns a deep copy of the last refreshed state and its
// generation.
func (f *Figure) Published() ([]Panel, uint64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.collect(f.published), f.generation
}

func (f *Figure) publishedPanel(name string) (*Panel, uint64, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	p, ok := f.published[name]
	if !ok {
		return nil, f.generation, false
	}
	return p, f.generation, true
}

func (f *Figure) collect(panels map[string]*Panel) []Panel {
	ret := make([]Panel, 0, len(panels))
	for _, name := range f.order {
		if p, ok := panels[name]; ok {
			ret = append(ret, *p.clone())
		}
	}
	return ret
}
