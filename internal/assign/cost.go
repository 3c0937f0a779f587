package assign

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/mat"
)

// CostMatrix holds pairwise centroid distances: row i is source polygon i,
// column j is grid cell j.
type CostMatrix struct {
	*mat.Dense
	rows, cols int // shape when Dense is nil
}

// NewCostMatrix builds the Euclidean distance matrix between two point
// sets. Either set may be empty, in which case the matrix is nil-backed but
// Dims still reports the (n, m) shape.
func NewCostMatrix(sources, cells []orb.Point) *CostMatrix {
	n, m := len(sources), len(cells)
	if n == 0 || m == 0 {
		return &CostMatrix{rows: n, cols: m}
	}
	data := make([]float64, n*m)
	for i, s := range sources {
		row := data[i*m : (i+1)*m]
		for j, c := range cells {
			row[j] = planar.Distance(s, c)
		}
	}
	return &CostMatrix{Dense: mat.NewDense(n, m, data)}
}

// Dims returns the matrix shape, tolerating an empty matrix.
func (c *CostMatrix) Dims() (rows, cols int) {
	if c == nil {
		return 0, 0
	}
	if c.Dense == nil {
		return c.rows, c.cols
	}
	return c.Dense.Dims()
}

// finite reports whether every entry is a finite number.
func (c *CostMatrix) finite() bool {
	rows, cols := c.Dims()
	for i := 0; i < rows; i++ {
		for _, v := range c.RawRowView(i)[:cols] {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
