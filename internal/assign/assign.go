package assign

import (
	"github.com/banshee-data/hextile/internal/features"
	"github.com/banshee-data/hextile/internal/hexgrid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Match pairs one source polygon with the grid cell it was assigned.
type Match struct {
	Source int     // index into the source collection
	Cell   int     // index into the grid's cells
	Cost   float64 // centroid distance
}

// Assignment is a one-to-one matching of every source polygon to a
// distinct grid cell. Matches are ordered by source index; cells that were
// not selected do not appear.
type Assignment struct {
	Matches   []Match
	TotalCost float64
}

// Cells returns the selected cell index for each source, in source order.
func (a *Assignment) Cells() []int {
	out := make([]int, len(a.Matches))
	for i, m := range a.Matches {
		out[i] = m.Cell
	}
	return out
}

// Costs returns the per-source centroid displacement.
func (a *Assignment) Costs() []float64 {
	out := make([]float64, len(a.Matches))
	for i, m := range a.Matches {
		out[i] = m.Cost
	}
	return out
}

// MeanCost returns the mean displacement, or 0 for an empty assignment.
func (a *Assignment) MeanCost() float64 {
	if len(a.Matches) == 0 {
		return 0
	}
	return stat.Mean(a.Costs(), nil)
}

// MaxCost returns the largest single displacement, or 0 for an empty assignment.
func (a *Assignment) MaxCost() float64 {
	if len(a.Matches) == 0 {
		return 0
	}
	return floats.Max(a.Costs())
}

// Assign matches every polygon in sources to a distinct cell of grid,
// minimising the summed distance between polygon and cell centroids.
//
// It fails with *InfeasibleGridError when the grid has fewer cells than
// there are sources, and *SolverError if the solve cannot complete.
func Assign(sources *features.Collection, grid *hexgrid.Grid) (*Assignment, error) {
	if grid.Len() < sources.Len() {
		return nil, &InfeasibleGridError{Sources: sources.Len(), Cells: grid.Len()}
	}
	return AssignPoints(sources.Centroids(), CellCentroids(grid))
}

// CellCentroids returns the area centroid of every cell in grid order.
func CellCentroids(grid *hexgrid.Grid) []orb.Point {
	if grid.Len() == 0 {
		return nil
	}
	out := make([]orb.Point, grid.Len())
	for i, c := range grid.Cells {
		out[i], _ = planar.CentroidArea(c.Polygon())
	}
	return out
}

// AssignPoints solves the assignment directly on centroid positions.
func AssignPoints(sources, cells []orb.Point) (*Assignment, error) {
	if len(cells) < len(sources) {
		return nil, &InfeasibleGridError{Sources: len(sources), Cells: len(cells)}
	}
	if len(sources) == 0 {
		return &Assignment{}, nil
	}

	cost := NewCostMatrix(sources, cells)
	cols, err := Solve(cost)
	if err != nil {
		return nil, err
	}

	a := &Assignment{Matches: make([]Match, len(cols))}
	for i, j := range cols {
		a.Matches[i] = Match{Source: i, Cell: j, Cost: cost.At(i, j)}
	}
	a.TotalCost = floats.Sum(a.Costs())
	return a, nil
}
