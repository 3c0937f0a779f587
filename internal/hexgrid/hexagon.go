package hexgrid

import (
	"math"

	"github.com/paulmach/orb"
)

// hexAngles are the vertex directions in degrees from the positive x-axis.
// The ring order is fixed; consumers must not reorder vertices.
var hexAngles = [6]float64{0, 60, 120, 180, 240, 300}

// HexCell is a regular flat-topped hexagon.
type HexCell struct {
	Center   orb.Point
	Size     float64 // circumradius
	Vertices [6]orb.Point
}

// MakeHexagon returns the flat-topped hexagon of circumradius size centred
// on (cx, cy). Vertex k sits at angle 60·k degrees.
func MakeHexagon(cx, cy, size float64) HexCell {
	cell := HexCell{
		Center: orb.Point{cx, cy},
		Size:   size,
	}
	for k, deg := range hexAngles {
		rad := deg * math.Pi / 180
		cell.Vertices[k] = orb.Point{
			cx + size*math.Cos(rad),
			cy + size*math.Sin(rad),
		}
	}
	return cell
}

// Ring returns the closed ring (first vertex repeated at the end).
func (h HexCell) Ring() orb.Ring {
	ring := make(orb.Ring, 0, len(h.Vertices)+1)
	ring = append(ring, h.Vertices[:]...)
	return append(ring, h.Vertices[0])
}

// Polygon returns the cell as a single-ring orb.Polygon.
func (h HexCell) Polygon() orb.Polygon {
	return orb.Polygon{h.Ring()}
}

// Bound returns the axis-aligned bounding box of the cell.
func (h HexCell) Bound() orb.Bound {
	return h.Ring().Bound()
}

// Contains reports whether p lies inside the cell or on its boundary,
// allowing eps of slack for points that land on a shared edge.
func (h HexCell) Contains(p orb.Point, eps float64) bool {
	dx := math.Abs(p[0] - h.Center[0])
	dy := math.Abs(p[1] - h.Center[1])
	halfHeight := math.Sqrt(3) / 2 * h.Size
	if dy > halfHeight+eps {
		return false
	}
	return math.Sqrt(3)*dx+dy <= math.Sqrt(3)*h.Size+eps
}
