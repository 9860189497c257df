package ilp

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// TODO: see Andersen 1995 for further simple presolving operations, e.g. forcing and dominated columns.

// preProcessedProblem is the reduced problem
//
//	minimize c^T y  s.t.  A y <= b (= b on equality rows), 0 <= y <= upper
//
// over the columns that survived presolve. y is the original variable minus its lower bound.
type preProcessedProblem struct {
	c        []float64
	A        *mat.Dense
	b        []float64
	equality []bool

	// +Inf when the column has no upper bound.
	upper []float64

	// impliedUpper is set when the rows alone already keep the column below upper,
	// so the bound needs no row of its own.
	impliedUpper []bool

	// which variables to apply the integrality constraint to. Should have same order as c.
	integralityConstraints []bool
	priority               []int

	// original variable and lower bound of every column.
	columns []int
	shift   []float64

	// objective value of the original problem at y = 0.
	offset float64

	// every objective coefficient is an integer on an integer variable,
	// so every integer feasible point has an integral objective value.
	integralObjective bool
}

func (p preProcessedProblem) toInitialSubproblem(heuristic BranchHeuristic) subProblem {
	return subProblem{
		// the initial subproblem has 0 as identifier
		id: 0,

		c:                      p.c,
		A:                      p.A,
		b:                      p.b,
		equality:               p.equality,
		upper:                  p.upper,
		impliedUpper:           p.impliedUpper,
		integralityConstraints: p.integralityConstraints,
		priority:               p.priority,
		branchHeuristic:        heuristic,
	}
}

// reduce maps a point of the original problem onto the presolved columns.
func (p preProcessedProblem) reduce(values []float64) []float64 {
	y := make([]float64, len(p.columns))
	for col, i := range p.columns {
		y[col] = math.Max(0, values[i]-p.shift[col])
	}
	return y
}

// Postsolving operations are stored in a stack and undone in reverse order.
type preProcessor struct {
	undoers []undoer
}

// undoer maps a solution vector back to the shape it had before a presolve operation.
type undoer func(x []float64) []float64

func newPreprocessor() *preProcessor {
	return &preProcessor{}
}

func (prepper *preProcessor) addUndoer(u undoer) {
	prepper.undoers = append(prepper.undoers, u)
}

func (prepper *preProcessor) postSolve(x []float64) []float64 {
	// walk the slice from the last to the first element (use it as a LIFO queue)
	for i := len(prepper.undoers) - 1; i >= 0; i-- {
		x = prepper.undoers[i](x)
	}
	return x
}

// presolveRow is a constraint while presolve works on it. coefs never holds zeros.
type presolveRow struct {
	name  string
	coefs map[int]float64
	sense Sense
	rhs   float64
}

func (r *presolveRow) key() string {
	idx := make([]int, 0, len(r.coefs))
	for i := range r.coefs {
		idx = append(idx, i)
	}
	sort.Ints(idx)

	var sb strings.Builder
	sb.WriteString(r.sense.String())
	for _, i := range idx {
		fmt.Fprintf(&sb, " %d:%v", i, r.coefs[i])
	}
	return sb.String()
}

// preSolve reduces the problem before the search:
//   - integer bounds are rounded and variables with coinciding bounds are fixed;
//   - rows with a single variable become bounds, rows without one are checked and dropped;
//   - duplicate rows are merged;
//   - variables that appear in no row sit at their cheapest bound;
//   - the remaining columns are shifted by their lower bound.
func (prepper *preProcessor) preSolve(p *Problem) (preProcessedProblem, error) {
	n := len(p.variables)

	lower := make([]float64, n)
	upper := make([]float64, n)
	for i, v := range p.variables {
		lo, up := v.lower, v.upper
		if math.IsNaN(lo) || math.IsNaN(up) || lo < 0 || math.IsInf(lo, 0) {
			return preProcessedProblem{}, errors.Wrapf(ErrInvalidBound, "variable %s has bounds [%v, %v]", v.name, lo, up)
		}
		if v.integer {
			lo = math.Ceil(lo - tolerance)
			up = math.Floor(up + tolerance)
		}
		if lo > up+tolerance {
			return preProcessedProblem{}, errors.Wrapf(ErrInfeasible, "variable %s has empty domain [%v, %v]", v.name, v.lower, v.upper)
		}
		lower[i], upper[i] = lo, math.Max(lo, up)
	}

	// a fixed variable keeps its value in lower
	fixed := make([]bool, n)
	fixIfTight := func(i int) {
		if upper[i]-lower[i] <= tolerance {
			fixed[i] = true
			upper[i] = lower[i]
		}
	}
	for i := range fixed {
		fixIfTight(i)
	}

	rows := make([]*presolveRow, 0, len(p.constraints))
	for _, con := range p.constraints {
		r := &presolveRow{name: con.name, coefs: make(map[int]float64, len(con.expr)), sense: con.sense, rhs: con.rhs}
		for _, t := range con.expr {
			r.coefs[t.Var.index] += t.Coef
		}
		rows = append(rows, r)
	}

	// fixing a variable can leave another row with a single variable, so repeat until nothing changes
	for changed := true; changed; {
		changed = false
		remaining := rows[:0]
		for _, r := range rows {
			for idx, a := range r.coefs {
				if a == 0 || fixed[idx] {
					r.rhs -= a * lower[idx]
					delete(r.coefs, idx)
				}
			}

			switch len(r.coefs) {
			case 0:
				if !constantHolds(r.sense, r.rhs) {
					return preProcessedProblem{}, errors.Wrapf(ErrInfeasible, "constraint %s cannot be satisfied", r.name)
				}
				changed = true
				continue
			case 1:
				for idx, a := range r.coefs {
					if err := tightenBound(p.variables[idx], &lower[idx], &upper[idx], a, r.sense, r.rhs); err != nil {
						return preProcessedProblem{}, errors.Wrapf(err, "constraint %s", r.name)
					}
					fixIfTight(idx)
				}
				changed = true
				continue
			}
			remaining = append(remaining, r)
		}
		rows = remaining
	}

	rows, err := mergeDuplicateRows(rows)
	if err != nil {
		return preProcessedProblem{}, err
	}

	constrained := make([]bool, n)
	for _, r := range rows {
		for idx := range r.coefs {
			constrained[idx] = true
		}
	}
	for i, v := range p.variables {
		if fixed[i] || constrained[i] {
			continue
		}
		// the variable only appears in the objective, so it sits at its cheapest bound.
		fixed[i] = true
		if v.coefficient < 0 {
			if math.IsInf(upper[i], 1) {
				return preProcessedProblem{}, errors.Wrapf(ErrUnbounded, "variable %s", v.name)
			}
			lower[i] = upper[i]
		}
		upper[i] = lower[i]
	}

	// map the remaining variables onto consecutive columns
	columnOf := make([]int, n)
	var kept []int
	for i := range p.variables {
		if fixed[i] {
			columnOf[i] = -1
			continue
		}
		columnOf[i] = len(kept)
		kept = append(kept, i)
	}
	nCols := len(kept)

	prepper.addUndoer(func(x []float64) []float64 {
		full := make([]float64, n)
		for i := range full {
			if fixed[i] {
				full[i] = lower[i]
			} else {
				full[i] = x[columnOf[i]]
			}
		}
		return full
	})

	pre := preProcessedProblem{
		c:                      make([]float64, nCols),
		upper:                  make([]float64, nCols),
		impliedUpper:           make([]bool, nCols),
		integralityConstraints: make([]bool, nCols),
		priority:               make([]int, nCols),
		columns:                kept,
		shift:                  make([]float64, nCols),
		integralObjective:      true,
	}
	for i, v := range p.variables {
		pre.offset += v.coefficient * lower[i]
	}
	for col, i := range kept {
		v := p.variables[i]
		pre.c[col] = v.coefficient
		pre.upper[col] = upper[i] - lower[i]
		pre.integralityConstraints[col] = v.integer
		pre.priority[col] = v.priority
		pre.shift[col] = lower[i]
		if v.coefficient != 0 && (!v.integer || v.coefficient != math.Trunc(v.coefficient)) {
			pre.integralObjective = false
		}
	}

	prepper.addUndoer(func(x []float64) []float64 {
		shifted := make([]float64, len(x))
		for col := range x {
			shifted[col] = x[col] + pre.shift[col]
		}
		return shifted
	})

	if nCols == 0 {
		return pre, nil
	}

	pre.A = mat.NewDense(len(rows), nCols, nil)
	pre.b = make([]float64, len(rows))
	pre.equality = make([]bool, len(rows))
	for r, row := range rows {
		sign := 1.0
		if row.sense == GreaterOrEqual {
			sign = -1
		}
		rhs := row.rhs
		for idx, a := range row.coefs {
			pre.A.Set(r, columnOf[idx], sign*a)
			rhs -= a * lower[idx]
		}
		pre.b[r] = sign * rhs
		pre.equality[r] = row.sense == Equal
	}
	pre.markImpliedUpperBounds()

	return pre, nil
}

// tightenBound intersects the bounds of v with "a v sense rhs".
func tightenBound(v *Variable, lower, upper *float64, a float64, sense Sense, rhs float64) error {
	bound := rhs / a
	if a < 0 {
		switch sense {
		case LessOrEqual:
			sense = GreaterOrEqual
		case GreaterOrEqual:
			sense = LessOrEqual
		}
	}

	lo, up := *lower, *upper
	switch sense {
	case LessOrEqual:
		up = math.Min(up, bound)
	case GreaterOrEqual:
		lo = math.Max(lo, bound)
	default:
		lo = math.Max(lo, bound)
		up = math.Min(up, bound)
	}
	if v.integer {
		lo = math.Ceil(lo - tolerance)
		up = math.Floor(up + tolerance)
	}
	if lo > up+tolerance {
		return errors.Wrapf(ErrInfeasible, "variable %s has empty domain [%v, %v]", v.name, lo, up)
	}

	*lower, *upper = lo, math.Max(lo, up)
	return nil
}

// mergeDuplicateRows keeps one row out of every group with the same sense and coefficients.
func mergeDuplicateRows(rows []*presolveRow) ([]*presolveRow, error) {
	seen := make(map[string]*presolveRow, len(rows))
	kept := rows[:0]
	for _, r := range rows {
		key := r.key()
		first, ok := seen[key]
		if !ok {
			seen[key] = r
			kept = append(kept, r)
			continue
		}

		switch r.sense {
		case LessOrEqual:
			first.rhs = math.Min(first.rhs, r.rhs)
		case GreaterOrEqual:
			first.rhs = math.Max(first.rhs, r.rhs)
		default:
			if math.Abs(first.rhs-r.rhs) > tolerance {
				return nil, errors.Wrapf(ErrInfeasible, "constraints %s and %s contradict each other", first.name, r.name)
			}
		}
	}
	return kept, nil
}

// markImpliedUpperBounds looks for rows whose coefficients all have the same sign, e.g.
// x + y + z = 1, which bound every one of their columns from above.
func (p *preProcessedProblem) markImpliedUpperBounds() {
	rows, _ := p.A.Dims()
	for r := 0; r < rows; r++ {
		row := p.A.RawRowView(r)

		sign := 1.0
		if !sameSign(row, 1) {
			if !p.equality[r] || !sameSign(row, -1) {
				continue
			}
			sign = -1
		}

		for col, a := range row {
			a *= sign
			if a > 0 && sign*p.b[r]/a <= p.upper[col]+tolerance {
				p.impliedUpper[col] = true
			}
		}
	}
}

// sameSign reports whether no entry of row has the opposite sign of sign.
func sameSign(row []float64, sign float64) bool {
	for _, a := range row {
		if a*sign < 0 {
			return false
		}
	}
	return true
}

func constantHolds(sense Sense, rhs float64) bool {
	switch sense {
	case LessOrEqual:
		return 0 <= rhs+tolerance
	case GreaterOrEqual:
		return 0 >= rhs-tolerance
	default:
		return math.Abs(rhs) <= tolerance
	}
}
