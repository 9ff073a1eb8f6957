package viz

import (
	"bytes"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

func TestFigureStagesUntilRefresh(t *testing.T) {
	f := NewFigure()
	f.AddPanel("rx0 time", "sample", "amplitude")
	f.AddLine("rx0 time", "I", color.RGBA{B: 255, A: 255})

	xs := []float64{0, 1, 2}
	ys := []float64{0.1, 0.2, 0.3}
	f.SetLine("rx0 time", "I", xs, ys)
	f.SetXRange("rx0 time", 0, 3)
	f.SetYRange("rx0 time", -0.1, 0.1)

	if panels, gen := f.Published(); len(panels) != 0 || gen != 0 {
		t.Fatalf("Published() before Refresh = %d panels, generation %d", len(panels), gen)
	}

	f.Refresh()
	panels, gen := f.Published()
	if gen != 1 || len(panels) != 1 {
		t.Fatalf("Published() = %d panels, generation %d", len(panels), gen)
	}
	p := panels[0]
	if p.XMin != 0 || p.XMax != 3 || p.YMin != -0.1 || p.YMax != 0.1 {
		t.Errorf("ranges = [%v %v] [%v %v]", p.XMin, p.XMax, p.YMin, p.YMax)
	}
	want := plotter.XYs{{X: 0, Y: 0.1}, {X: 1, Y: 0.2}, {X: 2, Y: 0.3}}
	if len(p.Lines) != 1 || p.Lines[0].Name != "I" {
		t.Fatalf("lines = %+v", p.Lines)
	}
	for i := range want {
		if p.Lines[0].XYs[i] != want[i] {
			t.Fatalf("XYs[%d] = %v, want %v", i, p.Lines[0].XYs[i], want[i])
		}
	}

	// Caller buffers are copied, not retained.
	ys[0] = 99
	f.SetLine("rx0 time", "I", xs[:1], ys[:1])
	panels, _ = f.Published()
	if got := panels[0].Lines[0].XYs; len(got) != 3 || got[0].Y != 0.1 {
		t.Errorf("published snapshot changed before Refresh: %v", got)
	}
	if staged := f.Staged(); staged[0].Lines[0].XYs[0].Y != 99 {
		t.Errorf("staged line = %v", staged[0].Lines[0].XYs)
	}
}

func TestFigurePanelOrder(t *testing.T) {
	f := NewFigure()
	f.AddPanel("b", "", "")
	f.AddPanel("a", "", "")
	f.SetLine("c", "x", nil, nil)
	got := strings.Join(f.PanelNames(), ",")
	if got != "b,a,c" {
		t.Errorf("PanelNames() = %s", got)
	}
}

func TestPanelRender(t *testing.T) {
	f := NewFigure()
	f.AddPanel("rx0 spectrum", "MHz", "dB")
	f.SetLine("rx0 spectrum", "power", []float64{99, 100, 101}, []float64{-80, -20, -80})
	f.SetXRange("rx0 spectrum", 99, 101)
	f.SetYRange("rx0 spectrum", -80, -15)
	f.Refresh()

	panels, _ := f.Published()
	data, err := panels[0].Render(4*vg.Inch, 2*vg.Inch, "png")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("rendered image is not a png: %v", err)
	}
}

func TestServerHandler(t *testing.T) {
	f := NewFigure()
	f.AddPanel("rx0 time", "sample", "amplitude")
	f.SetLine("rx0 time", "I", []float64{0, 1}, []float64{0, 0.05})
	s := NewServer(0, 250*time.Millisecond, f)
	s.SetImageSize(4*vg.Inch, 2*vg.Inch)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	get := func(path string) (int, string, []byte) {
		t.Helper()
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			t.Fatal(err)
		}
		return resp.StatusCode, resp.Header.Get("Content-Type"), body
	}

	code, _, body := get("/")
	if code != http.StatusOK || !strings.Contains(string(body), "/img/rx0%20time") {
		t.Errorf("index = %d %s", code, body)
	}

	// Nothing published yet.
	if code, _, _ := get("/img/rx0%20time"); code != http.StatusNotFound {
		t.Errorf("image before Refresh = %d, want 404", code)
	}

	f.Refresh()
	code, ctype, body := get("/img/rx0%20time")
	if code != http.StatusOK || ctype != "image/png" {
		t.Fatalf("image = %d %s", code, ctype)
	}
	if _, err := png.Decode(bytes.NewReader(body)); err != nil {
		t.Fatal(err)
	}

	first, _ := s.image("rx0 time")
	second, _ := s.image("rx0 time")
	if first != second {
		t.Error("same generation rendered twice")
	}
	f.Refresh()
	third, _ := s.image("rx0 time")
	if third == first || third.generation != 2 {
		t.Error("new generation not re-rendered")
	}

	if code, _, _ := get("/img/missing"); code != http.StatusNotFound {
		t.Errorf("missing panel = %d", code)
	}
}
