package hexgrid

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

var (
	// ErrInvalidSize is returned when the hexagon size is not a positive finite number.
	ErrInvalidSize = errors.New("hexgrid: size must be positive and finite")
	// ErrEmptyExtent is returned when the extent to tile has no finite corners.
	ErrEmptyExtent = errors.New("hexgrid: extent is empty or not finite")
)

// Offset is the phase shift applied to the lattice origin.
type Offset struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Grid is an ordered set of hexagons covering an extent.
// Cells are stored column-major, row-minor: index = col*Rows + row.
type Grid struct {
	Cells   []HexCell
	Size    float64
	Offset  Offset
	Origin  orb.Point // lattice origin after the offset is applied
	Columns int
	Rows    int
}

// Len returns the number of cells.
func (g *Grid) Len() int {
	if g == nil {
		return 0
	}
	return len(g.Cells)
}

// Bound returns the bounding box of all cells.
func (g *Grid) Bound() orb.Bound {
	if len(g.Cells) == 0 {
		return orb.Bound{}
	}
	b := g.Cells[0].Bound()
	for _, c := range g.Cells[1:] {
		b = b.Union(c.Bound())
	}
	return b
}

// PeriodX is the horizontal lattice period; offsets in [0, PeriodX) are distinct phases.
func PeriodX(size float64) float64 { return 1.5 * size }

// PeriodY is the vertical lattice period; offsets in [0, PeriodY) are distinct phases.
func PeriodY(size float64) float64 { return math.Sqrt(3) * size }

// Dimensions returns the column and row counts BuildGrid would use. Two
// extra columns and rows pad for edge cells clipped by offset or rounding.
func Dimensions(extent orb.Bound, size float64, offset Offset) (cols, rows int, err error) {
	if err := validate(extent, size); err != nil {
		return 0, 0, err
	}
	xmin := extent.Min[0] + offset.X
	ymin := extent.Min[1] + offset.Y
	dx := PeriodX(size)
	dy := PeriodY(size)

	// A large positive offset can push the origin past the max corner;
	// the lattice then still gets its padding cells.
	cols = int(math.Ceil(math.Max(extent.Max[0]-xmin, 0)/dx)) + 2
	rows = int(math.Ceil(math.Max(extent.Max[1]-ymin, 0)/dy)) + 2
	return cols, rows, nil
}

// BuildGrid tiles extent with flat-topped hexagons of circumradius size.
//
// The lattice origin is the extent's min corner shifted by offset; the max
// corner is not shifted, so the lattice may overshoot past it. Odd columns
// are staggered up by half a row so neighbouring columns interlock.
func BuildGrid(extent orb.Bound, size float64, offset Offset) (*Grid, error) {
	cols, rows, err := Dimensions(extent, size, offset)
	if err != nil {
		return nil, err
	}

	xmin := extent.Min[0] + offset.X
	ymin := extent.Min[1] + offset.Y
	dx := PeriodX(size)
	dy := PeriodY(size)

	g := &Grid{
		Cells:   make([]HexCell, 0, cols*rows),
		Size:    size,
		Offset:  offset,
		Origin:  orb.Point{xmin, ymin},
		Columns: cols,
		Rows:    rows,
	}
	for c := 0; c < cols; c++ {
		for r := 0; r < rows; r++ {
			x := xmin + float64(c)*dx
			y := ymin + float64(r)*dy
			if c%2 == 1 {
				y += dy / 2
			}
			g.Cells = append(g.Cells, MakeHexagon(x, y, size))
		}
	}
	return g, nil
}

func validate(extent orb.Bound, size float64) error {
	if !(size > 0) || math.IsInf(size, 0) {
		return fmt.Errorf("%w: got %v", ErrInvalidSize, size)
	}
	for _, v := range []float64{extent.Min[0], extent.Min[1], extent.Max[0], extent.Max[1]} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ErrEmptyExtent
		}
	}
	if extent.Min[0] > extent.Max[0] || extent.Min[1] > extent.Max[1] {
		return ErrEmptyExtent
	}
	return nil
}
