package render

import (
	"bytes"
	"context"
	"errors"
	"image/color"
	"math"
	"strings"
	"testing"

	"github.com/banshee-data/hextile/internal/fsutil"
	"github.com/banshee-data/hextile/internal/hexgrid"
	"github.com/banshee-data/hextile/internal/merge"
	"github.com/banshee-data/hextile/internal/trials"
)

func sampleGrid() *merge.AssignedGrid {
	g := &merge.AssignedGrid{Fields: []string{"zone"}}
	for i, c := range [][2]float64{{0, 0}, {15, 8.66}, {30, 0}} {
		g.Records = append(g.Records, merge.Record{
			Source:     i,
			CellIndex:  i,
			Cell:       hexgrid.MakeHexagon(c[0], c[1], 10),
			Attributes: map[string]interface{}{"zone": i},
		})
	}
	return g
}

func TestRampColor_Endpoints(t *testing.T) {
	if got := rampColor(0); got != viridis[0] {
		t.Errorf("rampColor(0) = %v, want %v", got, viridis[0])
	}
	if got := rampColor(1); got != viridis[len(viridis)-1] {
		t.Errorf("rampColor(1) = %v, want %v", got, viridis[len(viridis)-1])
	}
	if got := rampColor(-3); got != viridis[0] {
		t.Errorf("rampColor(-3) should clamp, got %v", got)
	}
	mid := rampColor(0.5)
	if mid.A != 0xff {
		t.Errorf("expected opaque colour, got alpha %d", mid.A)
	}
}

func TestGenerateColors(t *testing.T) {
	if generateColors(0) != nil {
		t.Error("expected nil palette for n=0")
	}
	one := generateColors(1)
	if len(one) != 1 || one[0] != color.Color(viridis[0]) {
		t.Errorf("single colour palette = %v", one)
	}
	colors := generateColors(5)
	if len(colors) != 5 {
		t.Fatalf("expected 5 colours, got %d", len(colors))
	}
	if colors[4] != color.Color(viridis[len(viridis)-1]) {
		t.Errorf("last colour = %v, want ramp end", colors[4])
	}
}

func TestPlotAssignedGrid_Bounds(t *testing.T) {
	p, err := PlotAssignedGrid(sampleGrid(), "test")
	if err != nil {
		t.Fatalf("PlotAssignedGrid failed: %v", err)
	}
	xSpan := p.X.Max - p.X.Min
	ySpan := p.Y.Max - p.Y.Min
	if math.Abs(xSpan-ySpan) > 1e-9 {
		t.Errorf("expected square axes, got %v x %v", xSpan, ySpan)
	}
	if p.X.Min > -10 || p.X.Max < 40 {
		t.Errorf("x axis [%v, %v] does not cover cells", p.X.Min, p.X.Max)
	}
}

func TestSavePNG(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	if err := fsys.MkdirAll("out", 0755); err != nil {
		t.Fatal(err)
	}
	if err := SavePNG(fsys, "out/grid.png", sampleGrid(), "grid"); err != nil {
		t.Fatalf("SavePNG failed: %v", err)
	}
	data, err := fsys.ReadFile("out/grid.png")
	if err != nil {
		t.Fatalf("png not written: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("\x89PNG")) {
		t.Errorf("output is not a PNG (first bytes %q)", data[:8])
	}
}

func TestSavePNG_EmptyGrid(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	if err := fsys.MkdirAll("out", 0755); err != nil {
		t.Fatal(err)
	}
	if err := SavePNG(fsys, "out/empty.png", &merge.AssignedGrid{}, "empty"); err != nil {
		t.Fatalf("SavePNG on empty grid failed: %v", err)
	}
}

func TestSavePNG_MissingDir(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	if err := SavePNG(fsys, "nope/grid.png", sampleGrid(), "grid"); err == nil {
		t.Error("expected error writing into missing directory")
	}
}

func TestPNGPath(t *testing.T) {
	if got := PNGPath("out/assigned_grid_3.geojson"); got != "out/assigned_grid_3.png" {
		t.Errorf("PNGPath = %q", got)
	}
}

type stubSink struct {
	path string
	err  error
}

func (s stubSink) Persist(context.Context, int, *merge.AssignedGrid) (string, error) {
	return s.path, s.err
}

func TestPlotSink(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	if err := fsys.MkdirAll("out", 0755); err != nil {
		t.Fatal(err)
	}
	sink := &PlotSink{Next: stubSink{path: "out/assigned_grid_2.geojson"}, FS: fsys}

	path, err := sink.Persist(context.Background(), 2, sampleGrid())
	if err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	if path != "out/assigned_grid_2.geojson" {
		t.Errorf("path = %q", path)
	}
	if !fsys.Exists("out/assigned_grid_2.png") {
		t.Error("expected png next to geojson output")
	}
}

func TestPlotSink_NextFails(t *testing.T) {
	fsys := fsutil.NewMemoryFileSystem()
	boom := errors.New("boom")
	sink := &PlotSink{Next: stubSink{err: boom}, FS: fsys}
	if _, err := sink.Persist(context.Background(), 1, sampleGrid()); !errors.Is(err, boom) {
		t.Errorf("expected wrapped next error, got %v", err)
	}
	if fsys.Exists(PNGPath("")) {
		t.Error("no png should be written when persistence fails")
	}
}

func TestWriteTrialChart(t *testing.T) {
	report := &trials.Report{Trials: []trials.TrialResult{
		{Index: 1, State: trials.StateDone, TotalCost: 120.5, MeanCost: 30.125},
		{Index: 2, State: trials.StateSkipped},
		{Index: 3, State: trials.StateDone, TotalCost: 98, MeanCost: 24.5},
	}}
	fsys := fsutil.NewMemoryFileSystem()
	if err := fsys.MkdirAll("out", 0755); err != nil {
		t.Fatal(err)
	}
	if err := WriteTrialChart(fsys, "out/trials.html", report, "size=10"); err != nil {
		t.Fatalf("WriteTrialChart failed: %v", err)
	}
	data, err := fsys.ReadFile("out/trials.html")
	if err != nil {
		t.Fatal(err)
	}
	html := string(data)
	for _, want := range []string{"echarts", "Centroid displacement per trial", "trial 1", "trial 3", "size=10"} {
		if !strings.Contains(html, want) {
			t.Errorf("chart html missing %q", want)
		}
	}
}
