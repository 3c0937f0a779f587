package assign

import "fmt"

// InfeasibleGridError reports a grid with fewer cells than source polygons.
// No matrix is built and no partial assignment is produced.
type InfeasibleGridError struct {
	Sources int
	Cells   int
}

func (e *InfeasibleGridError) Error() string {
	return fmt.Sprintf("infeasible grid: %d cells for %d source polygons", e.Cells, e.Sources)
}

// SolverError reports that the assignment solve could not complete a
// bijection for a rows×cols cost matrix.
type SolverError struct {
	Rows   int
	Cols   int
	Reason string
}

func (e *SolverError) Error() string {
	return fmt.Sprintf("assignment solve failed for %dx%d cost matrix: %s", e.Rows, e.Cols, e.Reason)
}
