// Package testutil provides shared test utilities and fixtures.
//
// This package centralises the polygon layers several packages test
// against, so the same shapes are used from the orchestrator down to the
// command line.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/hextile/internal/features"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Square returns an axis-aligned square polygon centred on (cx, cy).
func Square(cx, cy, half float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{cx - half, cy - half}, {cx + half, cy - half},
		{cx + half, cy + half}, {cx - half, cy + half},
		{cx - half, cy - half},
	}}
}

// CornerCentres are the centroids of the four-zone layer: the corners of a
// 100×100 square.
var CornerCentres = []orb.Point{{0, 0}, {100, 0}, {0, 100}, {100, 100}}

// Squares builds a collection of squares, one per centre, each carrying a
// "name" attribute of the form zone-<i>.
func Squares(t *testing.T, crs string, centres []orb.Point, half float64) *features.Collection {
	t.Helper()
	polys := make([]features.SourcePolygon, len(centres))
	for i, c := range centres {
		polys[i] = features.SourcePolygon{
			Geometry:   Square(c[0], c[1], half),
			Attributes: map[string]interface{}{"name": fmt.Sprintf("zone-%d", i)},
		}
	}
	col, err := features.NewCollection(crs, polys)
	if err != nil {
		t.Fatalf("building fixture collection: %v", err)
	}
	return col
}

// CrowdedSquares returns n tiny squares packed into the unit square. Any
// grid with a circumradius much larger than 1 has too few cells for them.
func CrowdedSquares(t *testing.T, n int) *features.Collection {
	t.Helper()
	centres := make([]orb.Point, n)
	for i := range centres {
		centres[i] = orb.Point{(float64(i) + 0.5) / float64(n), 0.5}
	}
	return Squares(t, features.CRSWebMercator, centres, 0.4/float64(n))
}

// WriteGeoJSON writes col as a FeatureCollection to dir/name and returns
// the path.
func WriteGeoJSON(t *testing.T, dir, name string, col *features.Collection) string {
	t.Helper()
	fc := geojson.NewFeatureCollection()
	for _, p := range col.Polygons {
		f := geojson.NewFeature(p.Geometry)
		for k, v := range p.Attributes {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		t.Fatalf("encoding fixture: %v", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	return path
}
