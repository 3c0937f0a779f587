package render

import (
	"context"
	"fmt"
	"image/color"
	"math"
	"strings"

	"github.com/banshee-data/hextile/internal/fsutil"
	"github.com/banshee-data/hextile/internal/merge"
	"github.com/banshee-data/hextile/internal/monitoring"
	"github.com/banshee-data/hextile/internal/trials"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotSize is the edge length of rendered PNGs.
const PlotSize = 8 * vg.Inch

// PlotAssignedGrid draws every assigned hexagon filled by record index.
func PlotAssignedGrid(grid *merge.AssignedGrid, title string) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"
	if grid.Len() == 0 {
		return p, nil
	}

	colors := generateColors(grid.Len())
	b := grid.Records[0].Cell.Bound()
	for i, rec := range grid.Records {
		ring := rec.Cell.Ring()
		xys := make(plotter.XYs, len(ring))
		for j, pt := range ring {
			xys[j] = plotter.XY{X: pt[0], Y: pt[1]}
		}
		poly, err := plotter.NewPolygon(xys)
		if err != nil {
			return nil, fmt.Errorf("record %d polygon: %w", i, err)
		}
		poly.Color = colors[i]
		poly.LineStyle.Width = vg.Points(0.5)
		poly.LineStyle.Color = color.Black
		p.Add(poly)
		b = b.Union(rec.Cell.Bound())
	}

	// Square axes so hexagons keep their shape on a square canvas.
	span := math.Max(b.Max[0]-b.Min[0], b.Max[1]-b.Min[1]) * 1.05
	cx, cy := (b.Min[0]+b.Max[0])/2, (b.Min[1]+b.Max[1])/2
	p.X.Min, p.X.Max = cx-span/2, cx+span/2
	p.Y.Min, p.Y.Max = cy-span/2, cy+span/2
	return p, nil
}

// SavePNG renders grid to path on fsys.
func SavePNG(fsys fsutil.FileSystem, path string, grid *merge.AssignedGrid, title string) error {
	p, err := PlotAssignedGrid(grid, title)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(PlotSize, PlotSize, "png")
	if err != nil {
		return fmt.Errorf("failed to prepare png: %w", err)
	}
	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := wt.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// PNGPath returns the image path that sits next to a GeoJSON output.
func PNGPath(geojsonPath string) string {
	return strings.TrimSuffix(geojsonPath, ".geojson") + ".png"
}

// PlotSink persists through Next and then renders a PNG beside each
// persisted file.
type PlotSink struct {
	Next trials.Sink
	FS   fsutil.FileSystem
}

// Persist implements trials.Sink.
func (s *PlotSink) Persist(ctx context.Context, trial int, grid *merge.AssignedGrid) (string, error) {
	path, err := s.Next.Persist(ctx, trial, grid)
	if err != nil {
		return "", err
	}
	png := PNGPath(path)
	if err := SavePNG(s.FS, png, grid, fmt.Sprintf("Assigned grid, trial %d", trial)); err != nil {
		return path, fmt.Errorf("plot trial %d: %w", trial, err)
	}
	monitoring.Logf("Plot saved to %s", png)
	return path, nil
}
