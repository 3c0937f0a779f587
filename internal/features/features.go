package features

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/project"
)

// Coordinate reference systems the pipeline knows how to move between.
const (
	CRSWGS84       = "EPSG:4326"
	CRSWebMercator = "EPSG:3857"
)

// ErrNotPolygonal is returned for geometries that are not a Polygon or MultiPolygon.
var ErrNotPolygonal = errors.New("geometry is not polygonal")

// SourcePolygon is one input zone: its outline plus arbitrary attributes.
type SourcePolygon struct {
	Geometry   orb.Geometry // orb.Polygon or orb.MultiPolygon
	Attributes map[string]interface{}
}

// Centroid returns the area centroid of the polygon interior. Degenerate
// outlines with no area fall back to the centre of their bounding box.
func (p SourcePolygon) Centroid() orb.Point {
	c, area := planar.CentroidArea(p.Geometry)
	if area == 0 || math.IsNaN(c[0]) || math.IsNaN(c[1]) {
		return p.Geometry.Bound().Center()
	}
	return c
}

// Collection is an ordered set of source polygons in one CRS. A polygon's
// identity is its index in Polygons.
type Collection struct {
	Polygons []SourcePolygon
	CRS      string
}

// NewCollection validates that every geometry is polygonal and returns a
// collection over polys.
func NewCollection(crs string, polys []SourcePolygon) (*Collection, error) {
	for i, p := range polys {
		if err := checkPolygonal(p.Geometry); err != nil {
			return nil, fmt.Errorf("polygon %d: %w", i, err)
		}
	}
	return &Collection{Polygons: polys, CRS: crs}, nil
}

func checkPolygonal(g orb.Geometry) error {
	switch v := g.(type) {
	case orb.Polygon:
		if len(v) == 0 || len(v[0]) < 3 {
			return fmt.Errorf("%w: polygon has no outer ring", ErrNotPolygonal)
		}
		return nil
	case orb.MultiPolygon:
		if len(v) == 0 {
			return fmt.Errorf("%w: empty multipolygon", ErrNotPolygonal)
		}
		for _, poly := range v {
			if err := checkPolygonal(poly); err != nil {
				return err
			}
		}
		return nil
	case nil:
		return fmt.Errorf("%w: missing geometry", ErrNotPolygonal)
	default:
		return fmt.Errorf("%w: got %s", ErrNotPolygonal, g.GeoJSONType())
	}
}

// Len returns the number of polygons.
func (c *Collection) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Polygons)
}

// Bound returns the total extent of all polygons.
func (c *Collection) Bound() orb.Bound {
	if c.Len() == 0 {
		return orb.Bound{}
	}
	b := c.Polygons[0].Geometry.Bound()
	for _, p := range c.Polygons[1:] {
		b = b.Union(p.Geometry.Bound())
	}
	return b
}

// Centroids returns the area centroid of every polygon in collection order.
func (c *Collection) Centroids() []orb.Point {
	if c.Len() == 0 {
		return nil
	}
	out := make([]orb.Point, c.Len())
	for i, p := range c.Polygons {
		out[i] = p.Centroid()
	}
	return out
}

// Reproject returns a copy of the collection with every geometry passed
// through proj and tagged with crs. Attribute maps are shared with the
// receiver; they are treated as read-only throughout the pipeline.
func (c *Collection) Reproject(proj orb.Projection, crs string) *Collection {
	out := &Collection{
		Polygons: make([]SourcePolygon, c.Len()),
		CRS:      crs,
	}
	for i, p := range c.Polygons {
		// project.Geometry rewrites points in place
		g := project.Geometry(orb.Clone(p.Geometry), proj)
		out.Polygons[i] = SourcePolygon{Geometry: g, Attributes: p.Attributes}
	}
	return out
}

// ToWebMercator reprojects a WGS84 collection to EPSG:3857 so that
// distances can be measured in metres on a plane.
func (c *Collection) ToWebMercator() (*Collection, error) {
	switch c.CRS {
	case CRSWebMercator:
		return c, nil
	case CRSWGS84, "":
		return c.Reproject(project.WGS84.ToMercator, CRSWebMercator), nil
	default:
		return nil, fmt.Errorf("cannot reproject from %s to %s", c.CRS, CRSWebMercator)
	}
}
