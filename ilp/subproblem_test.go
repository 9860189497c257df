package ilp

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// this example solves the following problem:
//
//	Minimize Z = -1x1 + -2x2 + 0x3 + 0x4
//	Subject to:
//		-1x1 	+ 2x2 	+ 1x3 	+ 0x4 	= 4
//		3x1 	+ 1x2 	+ 0x3 	+ 1x4 	= 9
//		x >= 0
func exampleSubProblem() subProblem {
	return subProblem{
		c: []float64{-1, -2, 0, 0},
		A: mat.NewDense(2, 4, []float64{
			-1, 2, 1, 0,
			3, 1, 0, 1,
		}),
		b:                      []float64{4, 9},
		equality:               []bool{true, true},
		integralityConstraints: []bool{true, true, false, false},
	}
}

func Test_subProblem_solve(t *testing.T) {
	sol := exampleSubProblem().solve()
	require.NoError(t, sol.err)
	assert.InDelta(t, -8, sol.z, 1e-9)
	assert.InDeltaSlice(t, []float64{2, 3, 0, 0}, sol.x, 1e-9)
}

func Test_subProblem_solveWithBound(t *testing.T) {
	root := exampleSubProblem()
	p := root.child(branchBound{variable: 0, upper: true, value: 1})

	sol := p.solve()
	require.NoError(t, sol.err)

	// x1 <= 1 moves the optimum to x1 = 1, x2 = 2.5
	assert.InDelta(t, -6, sol.z, 1e-9)
	require.Len(t, sol.x, 4)
	assert.InDeltaSlice(t, []float64{1, 2.5, 0, 3.5}, sol.x, 1e-9)

	// x1 >= 4 violates the second row
	p = root.child(branchBound{variable: 0, value: 4})
	assert.True(t, errors.Is(p.solve().err, lp.ErrInfeasible))

	// x1 >= 2 leaves a single point: x1 = 2, x2 = 3
	p = root.child(branchBound{variable: 0, value: 2})
	sol = p.solve()
	require.NoError(t, sol.err)
	assert.InDeltaSlice(t, []float64{2, 3, 0, 0}, sol.x, 1e-9)
}

func Test_subProblem_solveInequalities(t *testing.T) {
	// minimize -x1 - 2x2 with x1 + x2 <= 2.5 and x1 - x2 >= -1, written as -x1 + x2 <= 1
	p := subProblem{
		c:                      []float64{-1, -2},
		A:                      mat.NewDense(2, 2, []float64{1, 1, -1, 1}),
		b:                      []float64{2.5, 1},
		integralityConstraints: []bool{true, true},
	}
	sol := p.solve()
	require.NoError(t, sol.err)
	assert.InDelta(t, -4.25, sol.z, 1e-9)
	assert.InDeltaSlice(t, []float64{0.75, 1.75}, sol.x, 1e-9)

	// no point satisfies x1 + x2 <= 2.5 together with x1 >= 3
	infeasible := p.child(branchBound{variable: 0, value: 3})
	assert.True(t, errors.Is(infeasible.solve().err, lp.ErrInfeasible))
}

func Test_subProblem_solveUnbounded(t *testing.T) {
	p := subProblem{
		c:                      []float64{-1, 0},
		A:                      mat.NewDense(1, 2, []float64{1, -1}),
		b:                      []float64{1},
		integralityConstraints: []bool{false, false},
	}
	assert.True(t, errors.Is(p.solve().err, lp.ErrUnbounded))
}

func Test_subProblem_columnBounds(t *testing.T) {
	p := exampleSubProblem()
	p.upper = []float64{5, 1, 7, 7}
	p.bounds = []branchBound{
		{variable: 0, upper: true, value: 3},
		{variable: 1, value: 1},
		{variable: 0, value: 2},
		{variable: 0, upper: true, value: 4},
	}

	lo, hi := p.columnBounds()
	assert.Equal(t, []float64{2, 1, 0, 0}, lo)
	assert.Equal(t, []float64{3, 1, 7, 7}, hi)
}

func Test_subProblem_standardForm(t *testing.T) {
	t.Run("root", func(t *testing.T) {
		node, err := exampleSubProblem().standardForm()
		require.NoError(t, err)

		// both rows are equalities, so each gets an artificial column that starts in the basis
		rows, cols := node.A.Dims()
		assert.Equal(t, 2, rows)
		assert.Equal(t, 6, cols)
		assert.Equal(t, []int{4, 5}, node.basis)
		assert.Equal(t, 2, node.nArtificial)
		assert.Equal(t, []int{0, 1, 2, 3}, node.free)
		assert.Equal(t, bigM*2, node.c[4])
	})

	t.Run("implied upper bounds get no row", func(t *testing.T) {
		p := subProblem{
			c:                      []float64{1, 2, 3},
			A:                      mat.NewDense(1, 3, []float64{1, 1, 1}),
			b:                      []float64{1},
			equality:               []bool{true},
			upper:                  []float64{1, 1, 5},
			impliedUpper:           []bool{true, true, true},
			integralityConstraints: []bool{true, true, true},
		}
		node, err := p.standardForm()
		require.NoError(t, err)
		rows, _ := node.A.Dims()
		assert.Equal(t, 1, rows)

		// a tighter branching bound is not implied
		node, err = p.child(branchBound{variable: 2, upper: true, value: 0.5}).standardForm()
		require.NoError(t, err)
		rows, cols := node.A.Dims()
		assert.Equal(t, 2, rows)
		assert.Equal(t, 5, cols)
		assert.Equal(t, []float64{1, 0.5}, node.b)
		assert.Equal(t, 3, node.basis[1])
	})

	t.Run("fixed columns leave the matrix", func(t *testing.T) {
		p := subProblem{
			c:                      []float64{1, 2},
			A:                      mat.NewDense(1, 2, []float64{1, 1}),
			b:                      []float64{3},
			upper:                  []float64{1, 5},
			integralityConstraints: []bool{true, true},
		}
		child := p.child(branchBound{variable: 0, value: 1})
		node, err := child.standardForm()
		require.NoError(t, err)

		// x1 = 1 moves into the right hand side: x2 + s = 2 and x2 + s' = 5
		assert.Equal(t, []int{1}, node.free)
		assert.Equal(t, []float64{2, 5}, node.b)
		assert.Equal(t, []int{1, 2}, node.basis)
		assert.Equal(t, 0, node.nArtificial)

		sol := child.solve()
		require.NoError(t, sol.err)
		assert.InDeltaSlice(t, []float64{1, 0}, sol.x, 1e-9)
		assert.InDelta(t, 1, sol.z, 1e-9)
	})

	t.Run("negative right hand side needs an artificial", func(t *testing.T) {
		p := subProblem{
			c:                      []float64{1, 1},
			A:                      mat.NewDense(1, 2, []float64{-1, -1}),
			b:                      []float64{-2},
			integralityConstraints: []bool{false, false},
		}
		node, err := p.standardForm()
		require.NoError(t, err)
		assert.True(t, mat.Equal(mat.NewDense(1, 4, []float64{1, 1, -1, 1}), node.A), "got %v", mat.Formatted(node.A))
		assert.Equal(t, []float64{2}, node.b)
		assert.Equal(t, []int{3}, node.basis)

		sol := p.solve()
		require.NoError(t, sol.err)
		assert.InDelta(t, 2, sol.z, 1e-9)
	})

	t.Run("crossing bounds", func(t *testing.T) {
		p := exampleSubProblem()
		p = p.child(branchBound{variable: 1, value: 3})
		p = p.child(branchBound{variable: 1, upper: true, value: 2})
		_, err := p.standardForm()
		assert.True(t, errors.Is(err, lp.ErrInfeasible))
	})

	t.Run("every column fixed", func(t *testing.T) {
		p := subProblem{
			c:                      []float64{1, 1},
			A:                      mat.NewDense(1, 2, []float64{1, 1}),
			b:                      []float64{1},
			equality:               []bool{true},
			upper:                  []float64{1, 1},
			integralityConstraints: []bool{true, true},
		}
		p = p.child(branchBound{variable: 0, upper: true, value: 0})
		p = p.child(branchBound{variable: 1, value: 1})
		sol := p.solve()
		require.NoError(t, sol.err)
		assert.Equal(t, []float64{0, 1}, sol.x)
		assert.Equal(t, 1.0, sol.z)

		// with both at zero the equality row is violated
		q := subProblem{c: p.c, A: p.A, b: p.b, equality: p.equality, upper: p.upper, integralityConstraints: p.integralityConstraints}
		q = q.child(branchBound{variable: 0, upper: true, value: 0})
		q = q.child(branchBound{variable: 1, upper: true, value: 0})
		_, err := q.standardForm()
		assert.True(t, errors.Is(err, lp.ErrInfeasible))
	})
}

func Test_solution_branch(t *testing.T) {
	parent := exampleSubProblem()
	parent.id = 3
	parent.integralityConstraints = []bool{true, false, false, false}

	// a fake solution. It does not have to be true or feasible.
	s := solution{
		problem: &parent,
		x:       []float64{1.2, 3, 0, 0},
		z:       -8,
	}

	down, up := s.branch()

	assert.Equal(t, int64(3), down.parent)
	assert.Equal(t, int64(3), up.parent)
	assert.Equal(t, []branchBound{{variable: 0, upper: true, value: 1}}, down.bounds)
	assert.Equal(t, []branchBound{{variable: 0, upper: false, value: 2}}, up.bounds)
	assert.Equal(t, 0, down.lastBranched())
	assert.Equal(t, -1, parent.lastBranched())

	// the parent keeps its own bounds
	assert.Empty(t, parent.bounds)

	// branching again on a child inherits the earlier bound
	down.integralityConstraints = []bool{true, true, false, false}
	s2 := solution{
		problem: &down,
		x:       []float64{1, 3.8, 0, 0},
	}
	c1, c2 := s2.branch()
	require.Len(t, c1.bounds, 2)
	require.Len(t, c2.bounds, 2)
	assert.Equal(t, branchBound{variable: 1, upper: true, value: 3}, c1.bounds[1])
	assert.Equal(t, branchBound{variable: 1, upper: false, value: 4}, c2.bounds[1])
	assert.Equal(t, down.bounds[0], c1.bounds[0])

	// siblings do not share their bounds
	c1.bounds[0].value = 42
	assert.Equal(t, 1.0, c2.bounds[0].value)
}

func Test_solution_branchCandidates(t *testing.T) {
	p := &subProblem{
		c:                      []float64{0, 0, 0, 0},
		integralityConstraints: []bool{true, true, true, false},
	}
	s := solution{problem: p, x: []float64{0.5, 0.3, 2, 0.5}}
	assert.Equal(t, []bool{true, true, false, false}, s.branchCandidates())

	// a fractional column of higher priority shadows the others
	p.priority = []int{0, 1, 1, 5}
	assert.Equal(t, []bool{false, true, false, false}, s.branchCandidates())

	// an integral high priority column does not
	s.x = []float64{0.5, 1, 2, 0.5}
	assert.Equal(t, []bool{true, false, false, false}, s.branchCandidates())

	p.branchHeuristic = BRANCH_MOST_INFEASIBLE
	s.x = []float64{0.5, 0.3, 2, 0.5}
	down, _ := s.branch()
	assert.Equal(t, 1, down.lastBranched())
}
