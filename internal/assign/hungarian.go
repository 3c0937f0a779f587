package assign

import (
	"fmt"
	"math"
)

// Solve runs the Kuhn–Munkres (Hungarian) algorithm with row and column
// potentials (the Jonker–Volgenant shortest augmenting path form) on an
// n×m cost matrix with n ≤ m. It returns assignment[i] = column matched to
// row i. Every row is matched to a distinct column and the summed cost is
// minimal. Runs in O(n²·m).
//
// Ties between equal reduced costs go to the lowest column index, so the
// result is deterministic for a fixed matrix.
func Solve(cost *CostMatrix) ([]int, error) {
	n, m := cost.Dims()
	if n == 0 {
		return nil, nil
	}
	if m < n {
		return nil, &InfeasibleGridError{Sources: n, Cells: m}
	}
	if !cost.finite() {
		return nil, &SolverError{Rows: n, Cols: m, Reason: "cost matrix has non-finite entries"}
	}

	const inf = math.MaxFloat64 / 2

	// 1-indexed internally; index 0 is the virtual column that roots each
	// augmenting path.
	u := make([]float64, n+1) // row potentials
	v := make([]float64, m+1) // column potentials
	p := make([]int, m+1)     // p[j] = row assigned to column j
	way := make([]int, m+1)   // way[j] = previous column in augmenting path
	minv := make([]float64, m+1)
	used := make([]bool, m+1)

	for i := 1; i <= n; i++ {
		p[0] = i
		j0 := 0

		for j := 1; j <= m; j++ {
			minv[j] = inf
			used[j] = false
		}

		for {
			used[j0] = true
			i0 := p[j0]
			row := cost.RawRowView(i0 - 1)
			delta := inf
			j1 := -1

			for j := 1; j <= m; j++ {
				if used[j] {
					continue
				}
				cur := row[j-1] - u[i0] - v[j]
				if cur < minv[j] {
					minv[j] = cur
					way[j] = j0
				}
				if minv[j] < delta {
					delta = minv[j]
					j1 = j
				}
			}

			if j1 < 0 {
				return nil, &SolverError{Rows: n, Cols: m, Reason: "no augmenting path"}
			}

			for j := 0; j <= m; j++ {
				if used[j] {
					u[p[j]] += delta
					v[j] -= delta
				} else {
					minv[j] -= delta
				}
			}

			j0 = j1
			if p[j0] == 0 {
				break
			}
		}

		// Augment along the path.
		for j0 != 0 {
			j1 := way[j0]
			p[j0] = p[j1]
			j0 = j1
		}
	}

	result := make([]int, n)
	for i := range result {
		result[i] = -1
	}
	for j := 1; j <= m; j++ {
		if p[j] > 0 {
			result[p[j]-1] = j - 1
		}
	}
	for i, j := range result {
		if j < 0 {
			return nil, &SolverError{Rows: n, Cols: m, Reason: fmt.Sprintf("row %d left unassigned", i)}
		}
	}
	return result, nil
}
