package ilp

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func Test_preSolve(t *testing.T) {
	prob := NewProblem("p")
	x := prob.AddBinaryVariable("x").SetCoefficient(1)
	y := prob.AddIntegerVariable("y").SetUpperBound(5.5).SetCoefficient(2)
	z := prob.AddVariable("z").SetLowerBound(2).SetUpperBound(2)
	_, err := prob.AddConstraint("cap", Sum(x, y, z), LessOrEqual, 4)
	require.NoError(t, err)

	prepper := newPreprocessor()
	pre, err := prepper.preSolve(prob)
	require.NoError(t, err)

	// z is fixed and removed; x + y <= 2 already keeps y below 5 but not x below 1
	assert.Equal(t, []float64{1, 2}, pre.c)
	assert.Equal(t, []bool{true, true}, pre.integralityConstraints)
	assert.Equal(t, []float64{2}, pre.b)
	assert.Equal(t, []bool{false}, pre.equality)
	assert.True(t, mat.Equal(mat.NewDense(1, 2, []float64{1, 1}), pre.A), "got %v", mat.Formatted(pre.A))
	assert.Equal(t, []float64{1, 5}, pre.upper)
	assert.Equal(t, []bool{false, true}, pre.impliedUpper)
	assert.Equal(t, []int{0, 1}, pre.columns)
	assert.Equal(t, 0.0, pre.offset)
	assert.True(t, pre.integralObjective)

	// postsolve restores the fixed variable
	assert.Equal(t, []float64{1, 1, 2}, prepper.postSolve([]float64{1, 1}))
}

func Test_preSolve_equalitiesAndLowerBounds(t *testing.T) {
	prob := NewProblem("p")
	x := prob.AddVariable("x").SetLowerBound(1).SetCoefficient(0.5)
	y := prob.AddVariable("y").SetCoefficient(1)
	w := prob.AddIntegerVariable("w").SetUpperBound(10)
	_, err := prob.AddConstraint("eq", Sum(x, y), Equal, 3)
	require.NoError(t, err)
	_, err = prob.AddConstraint("ge", Sum(y).Add(-1, w), GreaterOrEqual, -4)
	require.NoError(t, err)

	prepper := newPreprocessor()
	pre, err := prepper.preSolve(prob)
	require.NoError(t, err)

	// x is shifted by its lower bound, the equality stays a single row and the
	// >= row is negated
	assert.Equal(t, []float64{2, 4}, pre.b)
	assert.Equal(t, []bool{true, false}, pre.equality)
	assert.True(t, mat.Equal(mat.NewDense(2, 3, []float64{
		1, 1, 0,
		0, -1, 1,
	}), pre.A), "got %v", mat.Formatted(pre.A))
	assert.Equal(t, []float64{1, 0, 0}, pre.shift)
	assert.InDelta(t, 0.5, pre.offset, 1e-12)
	assert.False(t, pre.integralObjective)

	// x and y are bounded by the equality, w is bounded by nothing but its own upper bound
	assert.Equal(t, []bool{true, true, false}, pre.impliedUpper)
	assert.True(t, math.IsInf(pre.upper[0], 1))
	assert.Equal(t, 10.0, pre.upper[2])

	assert.Equal(t, []float64{1.5, 1.5, 5}, prepper.postSolve([]float64{0.5, 1.5, 5}))
	assert.Equal(t, []float64{0.5, 1.5, 5}, pre.reduce([]float64{1.5, 1.5, 5}))
}

func Test_preSolve_singletonRows(t *testing.T) {
	prob := NewProblem("p")
	x := prob.AddIntegerVariable("x").SetCoefficient(1)
	y := prob.AddIntegerVariable("y").SetCoefficient(1)
	z := prob.AddBinaryVariable("z").SetCoefficient(1)

	_, err := prob.AddConstraint("x", Expression{{Coef: 2, Var: x}}, LessOrEqual, 7)
	require.NoError(t, err)
	_, err = prob.AddConstraint("y", Expression{{Coef: -1, Var: y}}, LessOrEqual, -1.5)
	require.NoError(t, err)
	// z = 1 once x and y are gone from the row
	_, err = prob.AddConstraint("z", Sum(z).Add(0, x), Equal, 1)
	require.NoError(t, err)
	_, err = prob.AddConstraint("pair", Sum(x, y), LessOrEqual, 5)
	require.NoError(t, err)

	prepper := newPreprocessor()
	pre, err := prepper.preSolve(prob)
	require.NoError(t, err)

	// x in [0, 3], y in [2, inf) and z fixed at 1
	assert.Equal(t, []int{0, 1}, pre.columns)
	assert.Equal(t, []float64{0, 2}, pre.shift)
	assert.Equal(t, 3.0, pre.upper[0])
	assert.True(t, math.IsInf(pre.upper[1], 1))
	assert.Equal(t, []float64{3}, pre.b)
	assert.Equal(t, 3.0, pre.offset)
	assert.Equal(t, []float64{1, 2, 1}, prepper.postSolve([]float64{1, 0}))
}

func Test_preSolve_duplicateRows(t *testing.T) {
	prob := NewProblem("p")
	x := prob.AddVariable("x")
	y := prob.AddVariable("y")
	_, err := prob.AddConstraint("a", Sum(x, y), LessOrEqual, 4)
	require.NoError(t, err)
	_, err = prob.AddConstraint("b", Sum(y, x), LessOrEqual, 3)
	require.NoError(t, err)
	_, err = prob.AddConstraint("c", Sum(x).Add(2, y), Equal, 2)
	require.NoError(t, err)
	_, err = prob.AddConstraint("d", Sum(x).Add(2, y), Equal, 2)
	require.NoError(t, err)

	pre, err := newPreprocessor().preSolve(prob)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 2}, pre.b)
	assert.Equal(t, []bool{false, true}, pre.equality)

	_, err = prob.AddConstraint("e", Sum(x).Add(2, y), Equal, 1)
	require.NoError(t, err)
	_, err = newPreprocessor().preSolve(prob)
	assert.True(t, errors.Is(err, ErrInfeasible))
	assert.Contains(t, err.Error(), "c and e")
}

func Test_preSolve_unconstrainedVariables(t *testing.T) {
	prob := NewProblem("p")
	prob.AddVariable("cheap").SetLowerBound(1).SetCoefficient(3)
	greedy := prob.AddIntegerVariable("greedy").SetUpperBound(4).SetCoefficient(-1)

	prepper := newPreprocessor()
	pre, err := prepper.preSolve(prob)
	require.NoError(t, err)
	assert.Empty(t, pre.c)
	assert.Nil(t, pre.A)
	assert.Equal(t, -1.0, pre.offset)
	assert.Equal(t, []float64{1, 4}, prepper.postSolve(nil))

	greedy.SetUpperBound(math.Inf(1))
	_, err = newPreprocessor().preSolve(prob)
	assert.True(t, errors.Is(err, ErrUnbounded))
}

func Test_preSolve_infeasibleAndInvalid(t *testing.T) {
	t.Run("empty integer domain", func(t *testing.T) {
		prob := NewProblem("p")
		prob.AddIntegerVariable("x").SetLowerBound(0.2).SetUpperBound(0.8)
		_, err := newPreprocessor().preSolve(prob)
		assert.True(t, errors.Is(err, ErrInfeasible))
	})

	t.Run("negative lower bound", func(t *testing.T) {
		prob := NewProblem("p")
		prob.AddVariable("x").SetLowerBound(-1)
		_, err := newPreprocessor().preSolve(prob)
		assert.True(t, errors.Is(err, ErrInvalidBound))
	})

	t.Run("constant constraint violated", func(t *testing.T) {
		prob := NewProblem("p")
		x := prob.AddBinaryVariable("x").SetUpperBound(0)
		_, err := prob.AddConstraint("one", Sum(x), Equal, 1)
		require.NoError(t, err)
		_, err = newPreprocessor().preSolve(prob)
		assert.True(t, errors.Is(err, ErrInfeasible))
		assert.Contains(t, err.Error(), "one")
	})

	t.Run("singleton row outside the bounds", func(t *testing.T) {
		prob := NewProblem("p")
		x := prob.AddBinaryVariable("x")
		_, err := prob.AddConstraint("two", Sum(x), GreaterOrEqual, 2)
		require.NoError(t, err)
		_, err = newPreprocessor().preSolve(prob)
		assert.True(t, errors.Is(err, ErrInfeasible))
		assert.Contains(t, err.Error(), "two")
	})

	t.Run("constant constraint satisfied", func(t *testing.T) {
		prob := NewProblem("p")
		x := prob.AddBinaryVariable("x").SetLowerBound(1)
		_, err := prob.AddConstraint("one", Sum(x), Equal, 1)
		require.NoError(t, err)
		pre, err := newPreprocessor().preSolve(prob)
		require.NoError(t, err)
		assert.Empty(t, pre.c)
	})
}

func Test_tightenBound(t *testing.T) {
	tests := []struct {
		name     string
		integer  bool
		a        float64
		sense    Sense
		rhs      float64
		wantLow  float64
		wantHigh float64
	}{
		{"upper", false, 2, LessOrEqual, 3, 0, 1.5},
		{"negative coefficient flips the sense", false, -2, LessOrEqual, -3, 1.5, 10},
		{"lower", false, 1, GreaterOrEqual, 4, 4, 10},
		{"equality", false, 4, Equal, 2, 0.5, 0.5},
		{"integer rounding", true, 2, LessOrEqual, 7, 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &Variable{name: "v", integer: tt.integer}
			lo, hi := 0.0, 10.0
			require.NoError(t, tightenBound(v, &lo, &hi, tt.a, tt.sense, tt.rhs))
			assert.Equal(t, tt.wantLow, lo)
			assert.Equal(t, tt.wantHigh, hi)
		})
	}

	v := &Variable{name: "v"}
	lo, hi := 0.0, 1.0
	err := tightenBound(v, &lo, &hi, 1, GreaterOrEqual, 2)
	assert.True(t, errors.Is(err, ErrInfeasible))
}

func Test_constantHolds(t *testing.T) {
	assert.True(t, constantHolds(LessOrEqual, 0))
	assert.True(t, constantHolds(LessOrEqual, 2))
	assert.False(t, constantHolds(LessOrEqual, -1))
	assert.True(t, constantHolds(GreaterOrEqual, -1))
	assert.False(t, constantHolds(GreaterOrEqual, 1))
	assert.True(t, constantHolds(Equal, 0))
	assert.False(t, constantHolds(Equal, 1))
}

func Test_sameSign(t *testing.T) {
	assert.True(t, sameSign([]float64{1, 0, 2}, 1))
	assert.False(t, sameSign([]float64{1, -1}, 1))
	assert.True(t, sameSign([]float64{-1, 0}, -1))
}
