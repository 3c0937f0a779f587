package merge

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

var geojsonTypes = map[string]bool{
	"Point":              true,
	"MultiPoint":         true,
	"LineString":         true,
	"MultiLineString":    true,
	"Polygon":            true,
	"MultiPolygon":       true,
	"GeometryCollection": true,
}

// IsGeometryValue reports whether an attribute value is itself a geometry:
// an orb geometry, a geojson.Geometry, or a decoded GeoJSON geometry object.
func IsGeometryValue(v interface{}) bool {
	switch g := v.(type) {
	case orb.Geometry:
		return g != nil
	case *geojson.Geometry:
		return g != nil
	case geojson.Geometry:
		return true
	case map[string]interface{}:
		typ, _ := g["type"].(string)
		if !geojsonTypes[typ] {
			return false
		}
		_, hasCoords := g["coordinates"]
		_, hasMembers := g["geometries"]
		return hasCoords || hasMembers
	default:
		return false
	}
}
