// Package geojsonio reads source polygon sets from GeoJSON and persists
// assigned hexagon grids back to GeoJSON, one file per trial.
package geojsonio

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/banshee-data/hextile/internal/features"
	"github.com/banshee-data/hextile/internal/fsutil"
	"github.com/banshee-data/hextile/internal/merge"
	"github.com/banshee-data/hextile/internal/monitoring"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"
)

// DefaultPrefix names per-trial output files: <prefix>_<trial>.geojson.
const DefaultPrefix = "assigned_grid"

const maxInputSize = 512 * 1024 * 1024 // 512MB

// Load reads a GeoJSON FeatureCollection of Polygon / MultiPolygon
// features. The CRS comes from a legacy "crs" member when present and
// defaults to WGS84 as RFC 7946 requires.
func Load(fsys fsutil.FileSystem, path string) (*features.Collection, error) {
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".geojson" && ext != ".json" {
		return nil, fmt.Errorf("input must have .geojson or .json extension, got %q", ext)
	}
	data, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if len(data) > maxInputSize {
		return nil, fmt.Errorf("input too large: %d bytes (max %d)", len(data), maxInputSize)
	}
	coll, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	monitoring.Logf("Loaded %d polygons from %s (crs %s)", coll.Len(), path, coll.CRS)
	return coll, nil
}

// Decode parses a GeoJSON FeatureCollection into a source collection.
func Decode(data []byte) (*features.Collection, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse GeoJSON: %w", err)
	}

	polys := make([]features.SourcePolygon, len(fc.Features))
	for i, f := range fc.Features {
		attrs := make(map[string]interface{}, len(f.Properties))
		for k, v := range f.Properties {
			attrs[k] = v
		}
		polys[i] = features.SourcePolygon{Geometry: f.Geometry, Attributes: attrs}
	}
	return features.NewCollection(crsFromMembers(fc.ExtraMembers), polys)
}

// crsFromMembers reads the pre-RFC 7946 named CRS member, e.g.
// {"type":"name","properties":{"name":"urn:ogc:def:crs:EPSG::3857"}}.
func crsFromMembers(extra geojson.Properties) string {
	crs, ok := extra["crs"].(map[string]interface{})
	if !ok {
		return features.CRSWGS84
	}
	props, _ := crs["properties"].(map[string]interface{})
	name, _ := props["name"].(string)
	switch {
	case name == "":
		return features.CRSWGS84
	case strings.HasSuffix(name, "3857"), strings.HasSuffix(name, "900913"):
		return features.CRSWebMercator
	case strings.HasSuffix(name, "4326"), strings.HasSuffix(name, "CRS84"):
		return features.CRSWGS84
	default:
		return name
	}
}

// Encode renders an assigned grid as a FeatureCollection. When toWGS84 is
// set and the grid is in Web Mercator, coordinates are projected back to
// longitude/latitude.
func Encode(grid *merge.AssignedGrid, toWGS84 bool) ([]byte, error) {
	var proj orb.Projection
	crs := grid.CRS
	if toWGS84 && grid.CRS == features.CRSWebMercator {
		proj = project.Mercator.ToWGS84
		crs = features.CRSWGS84
	}

	fc := geojson.NewFeatureCollection()
	for _, rec := range grid.Records {
		var g orb.Geometry = rec.Cell.Polygon()
		if proj != nil {
			g = project.Geometry(g, proj)
		}
		f := geojson.NewFeature(g)
		for k, v := range rec.Attributes {
			f.Properties[k] = v
		}
		fc.Append(f)
	}
	if crs != "" && crs != features.CRSWGS84 {
		fc.ExtraMembers = geojson.Properties{
			"crs": map[string]interface{}{
				"type":       "name",
				"properties": map[string]interface{}{"name": "urn:ogc:def:crs:" + strings.Replace(crs, ":", "::", 1)},
			},
		}
	}
	return fc.MarshalJSON()
}

// Writer persists assigned grids as <Dir>/<Prefix>_<trial>.geojson. It is
// safe for concurrent use; each trial writes its own file.
type Writer struct {
	FS      fsutil.FileSystem
	Dir     string
	Prefix  string
	ToWGS84 bool
}

// NewWriter returns a Writer on the OS filesystem with the default prefix.
func NewWriter(dir string) *Writer {
	return &Writer{FS: fsutil.OSFileSystem{}, Dir: dir, Prefix: DefaultPrefix}
}

// Path returns the output path for a trial.
func (w *Writer) Path(trial int) string {
	prefix := w.Prefix
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return filepath.Join(w.Dir, fmt.Sprintf("%s_%d.geojson", prefix, trial))
}

// Persist encodes grid and writes it under the trial's path.
func (w *Writer) Persist(ctx context.Context, trial int, grid *merge.AssignedGrid) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := Encode(grid, w.ToWGS84)
	if err != nil {
		return "", fmt.Errorf("encode trial %d: %w", trial, err)
	}
	if err := w.FS.MkdirAll(w.Dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}
	path := w.Path(trial)
	if err := w.FS.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write trial %d: %w", trial, err)
	}
	monitoring.Logf("Assigned grid saved to %s", path)
	return path, nil
}
