package assign

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func matrix(rows [][]float64) *CostMatrix {
	if len(rows) == 0 {
		return &CostMatrix{}
	}
	m := mat.NewDense(len(rows), len(rows[0]), nil)
	for i, r := range rows {
		m.SetRow(i, r)
	}
	return &CostMatrix{Dense: m}
}

func totalCost(cost *CostMatrix, cols []int) float64 {
	sum := 0.0
	for i, j := range cols {
		sum += cost.At(i, j)
	}
	return sum
}

// bruteForce enumerates every injective row→column map and returns the
// minimal total cost.
func bruteForce(cost *CostMatrix) float64 {
	n, m := cost.Dims()
	best := math.Inf(1)
	used := make([]bool, m)
	var walk func(i int, acc float64)
	walk = func(i int, acc float64) {
		if acc >= best {
			return
		}
		if i == n {
			best = acc
			return
		}
		for j := 0; j < m; j++ {
			if used[j] {
				continue
			}
			used[j] = true
			walk(i+1, acc+cost.At(i, j))
			used[j] = false
		}
	}
	walk(0, 0)
	return best
}

func TestSolve_Empty(t *testing.T) {
	t.Parallel()
	result, err := Solve(matrix(nil))
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestSolve_SingleElement(t *testing.T) {
	t.Parallel()
	result, err := Solve(matrix([][]float64{{5}}))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, result)
}

func TestSolve_SquareOptimal(t *testing.T) {
	t.Parallel()
	// Classic 3x3 assignment problem:
	//   [1 2 3]     Optimal: row0→col0 (1), row1→col1 (4), row2→col2 (5) = 10
	//   [4 4 6]     NOT: row0→col0 (1), row1→col2 (6), row2→col1 (8) = 15
	//   [9 8 5]
	cost := matrix([][]float64{
		{1, 2, 3},
		{4, 4, 6},
		{9, 8, 5},
	})
	result, err := Solve(cost)
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, 10.0, totalCost(cost, result))
}

func TestSolve_GreedyIsSuboptimal(t *testing.T) {
	t.Parallel()
	// Greedy takes row0→col0 (1) and is forced into row1→col1 (100).
	cost := matrix([][]float64{
		{1, 2},
		{3, 100},
	})
	result, err := Solve(cost)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, result)
	assert.Equal(t, 5.0, totalCost(cost, result))
}

func TestSolve_MoreColumnsThanRows(t *testing.T) {
	t.Parallel()
	cost := matrix([][]float64{
		{9, 1, 9, 9, 9},
		{9, 9, 9, 9, 2},
	})
	result, err := Solve(cost)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 4}, result)
}

func TestSolve_MoreRowsThanColumns(t *testing.T) {
	t.Parallel()
	cost := matrix([][]float64{
		{1, 10},
		{10, 1},
		{5, 5},
	})
	_, err := Solve(cost)
	var infeasible *InfeasibleGridError
	require.True(t, errors.As(err, &infeasible))
	assert.Equal(t, 3, infeasible.Sources)
	assert.Equal(t, 2, infeasible.Cells)
}

func TestSolve_RowsWithNoColumns(t *testing.T) {
	t.Parallel()
	result, err := Solve(NewCostMatrix([]orb.Point{{0, 0}}, nil))
	assert.Nil(t, result)
	var infeasible *InfeasibleGridError
	require.True(t, errors.As(err, &infeasible), "err: %v", err)
	assert.Equal(t, 1, infeasible.Sources)
	assert.Zero(t, infeasible.Cells)
}

func TestSolve_NonFiniteCost(t *testing.T) {
	t.Parallel()
	for _, bad := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		cost := matrix([][]float64{
			{1, bad},
			{2, 3},
		})
		_, err := Solve(cost)
		var solverErr *SolverError
		require.True(t, errors.As(err, &solverErr), "cost %v", bad)
		assert.Equal(t, 2, solverErr.Rows)
		assert.Equal(t, 2, solverErr.Cols)
	}
}

func TestSolve_TiesAreDeterministic(t *testing.T) {
	t.Parallel()
	cost := matrix([][]float64{
		{1, 1, 1},
		{1, 1, 1},
	})
	first, err := Solve(cost)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Solve(cost)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestSolve_MatchesBruteForce(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(7, 11))

	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.IntN(5)
		m := n + rng.IntN(3)
		rows := make([][]float64, n)
		for i := range rows {
			rows[i] = make([]float64, m)
			for j := range rows[i] {
				rows[i][j] = math.Round(rng.Float64()*1000) / 10
			}
		}
		cost := matrix(rows)

		result, err := Solve(cost)
		require.NoError(t, err)
		assertInjective(t, result, m)
		assert.InDelta(t, bruteForce(cost), totalCost(cost, result), 1e-9, "trial %d: %v", trial, rows)
	}
}

func assertInjective(t *testing.T, cols []int, m int) {
	t.Helper()
	seen := make(map[int]bool, len(cols))
	for i, j := range cols {
		require.GreaterOrEqual(t, j, 0, "row %d unassigned", i)
		require.Less(t, j, m)
		require.False(t, seen[j], "column %d assigned twice", j)
		seen[j] = true
	}
}
