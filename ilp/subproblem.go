package ilp

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// objective coefficient of an artificial column, relative to the largest structural coefficient.
const bigM = 1e5

// an artificial column above this value, relative to the right hand side, means the node is not feasible.
const feasibilityTolerance = 1e-7

// subProblem is a node of the enumeration tree: the presolved rows
// plus the column bounds added by branching on the way down from the root.
type subProblem struct {
	id     int64
	parent int64

	// shared by every node of the tree; never modified.
	c                      []float64
	A                      *mat.Dense
	b                      []float64
	equality               []bool
	upper                  []float64
	impliedUpper           []bool
	integralityConstraints []bool
	priority               []int
	branchHeuristic        BranchHeuristic

	// one entry per branching step, root first.
	bounds []branchBound
}

// branchBound restricts a single column: x[variable] <= value when upper is set,
// x[variable] >= value otherwise.
type branchBound struct {
	variable int
	upper    bool
	value    float64
}

type solution struct {
	problem *subProblem
	x       []float64
	z       float64
	err     error
}

func (p *subProblem) isEquality(row int) bool {
	return p.equality != nil && p.equality[row]
}

func (p *subProblem) upperBound(col int) float64 {
	if p.upper == nil {
		return math.Inf(1)
	}
	return p.upper[col]
}

func (p *subProblem) priorityOf(col int) int {
	if p.priority == nil {
		return 0
	}
	return p.priority[col]
}

// columnBounds intersects the root bounds of every column with the branching bounds.
func (p *subProblem) columnBounds() (lo, hi []float64) {
	lo = make([]float64, len(p.c))
	hi = make([]float64, len(p.c))
	for j := range hi {
		hi[j] = p.upperBound(j)
	}
	for _, bd := range p.bounds {
		if bd.upper {
			hi[bd.variable] = math.Min(hi[bd.variable], bd.value)
		} else {
			lo[bd.variable] = math.Max(lo[bd.variable], bd.value)
		}
	}
	return lo, hi
}

// nodeLP is a node in the standard form accepted by lp.Simplex. The columns are the
// structural columns left free by the node bounds, one slack per inequality row and
// one artificial per row whose slack cannot start in the basis, in that order.
type nodeLP struct {
	c     []float64
	A     *mat.Dense
	b     []float64
	basis []int

	// lower bound of every structural column. Columns not listed in free sit on it.
	lower []float64
	free  []int

	nArtificial int
}

// standardForm drops the columns whose bounds coincide, moves the lower bounds into the
// right hand side and adds a row for every upper bound the rows do not already imply.
// lp.ErrInfeasible is returned when the bounds cross or a row without free columns is violated.
func (p subProblem) standardForm() (nodeLP, error) {
	lo, hi := p.columnBounds()
	var free []int
	for j := range lo {
		if lo[j] > hi[j]+tolerance {
			return nodeLP{}, lp.ErrInfeasible
		}
		if hi[j]-lo[j] > tolerance {
			free = append(free, j)
		}
	}

	type lpRow struct {
		coefs []float64
		rhs   float64
		slack bool
	}
	var rows []lpRow

	for i := range p.b {
		raw := p.A.RawRowView(i)
		rhs := p.b[i]
		for j, a := range raw {
			rhs -= a * lo[j]
		}

		coefs := make([]float64, len(free))
		empty := true
		for k, j := range free {
			if raw[j] != 0 {
				coefs[k] = raw[j]
				empty = false
			}
		}

		eq := p.isEquality(i)
		if empty {
			if (eq && math.Abs(rhs) > tolerance) || (!eq && rhs < -tolerance) {
				return nodeLP{}, lp.ErrInfeasible
			}
			continue
		}
		rows = append(rows, lpRow{coefs: coefs, rhs: rhs, slack: !eq})
	}

	for k, j := range free {
		if math.IsInf(hi[j], 1) || (p.impliedUpper != nil && p.impliedUpper[j] && hi[j] >= p.upperBound(j)-tolerance) {
			continue
		}
		coefs := make([]float64, len(free))
		coefs[k] = 1
		rows = append(rows, lpRow{coefs: coefs, rhs: hi[j] - lo[j], slack: true})
	}

	node := nodeLP{lower: lo, free: free}
	if len(free) == 0 {
		return node, nil
	}

	var nSlack, nArtificial int
	scale := 1.0
	for _, r := range rows {
		if r.slack {
			nSlack++
		}
		if !r.slack || r.rhs < 0 {
			nArtificial++
		}
	}
	for _, j := range free {
		scale = math.Max(scale, math.Abs(p.c[j]))
	}

	m, nFree := len(rows), len(free)
	node.A = mat.NewDense(m, nFree+nSlack+nArtificial, nil)
	node.b = make([]float64, m)
	node.c = make([]float64, nFree+nSlack+nArtificial)
	node.basis = make([]int, m)
	node.nArtificial = nArtificial
	for k, j := range free {
		node.c[k] = p.c[j]
	}

	slack, artificial := nFree, nFree+nSlack
	for i, r := range rows {
		// rows are flipped so that b >= 0
		sign := 1.0
		if r.rhs < 0 {
			sign = -1
		}
		raw := node.A.RawRowView(i)
		for k, a := range r.coefs {
			raw[k] = sign * a
		}
		node.b[i] = sign * r.rhs

		if r.slack {
			raw[slack] = sign
			if sign > 0 {
				node.basis[i] = slack
			}
			slack++
		}
		if !r.slack || sign < 0 {
			raw[artificial] = 1
			node.c[artificial] = bigM * scale
			node.basis[i] = artificial
			artificial++
		}
	}
	return node, nil
}

// solve runs the simplex from the slack and artificial basis. An artificial left positive
// at the optimum is settled by minimising the artificials alone. lp.Simplex picking its own
// basis is the last resort.
func (n nodeLP) solve() ([]float64, error) {
	if n.A == nil {
		return nil, nil
	}

	_, y, err := lp.Simplex(n.c, n.A, n.b, simplexTolerance, n.basis)
	switch {
	case err == nil && n.artificialSum(y) <= n.artificialTolerance():
		return y, nil
	case errors.Is(err, lp.ErrUnbounded), errors.Is(err, lp.ErrInfeasible):
		return nil, err
	case err == nil:
		feasible, err := n.phaseOne()
		if err == nil && !feasible {
			return nil, lp.ErrInfeasible
		}
	}
	return n.fallback()
}

func (n nodeLP) artificialSum(y []float64) float64 {
	_, cols := n.A.Dims()
	return floats.Sum(y[cols-n.nArtificial:])
}

func (n nodeLP) artificialTolerance() float64 {
	return feasibilityTolerance * (1 + floats.Max(n.b))
}

// phaseOne reports whether the artificial columns can all reach zero.
func (n nodeLP) phaseOne() (bool, error) {
	_, cols := n.A.Dims()
	c := make([]float64, cols)
	for j := cols - n.nArtificial; j < cols; j++ {
		c[j] = 1
	}
	z, _, err := lp.Simplex(c, n.A, n.b, simplexTolerance, n.basis)
	if err != nil {
		return false, err
	}
	return z <= n.artificialTolerance(), nil
}

// fallback hands the node to lp.Simplex without the artificial columns.
func (n nodeLP) fallback() ([]float64, error) {
	rows, cols := n.A.Dims()
	k := cols - n.nArtificial
	if k < rows {
		return nil, errors.Wrap(lp.ErrSingular, "more rows than columns without artificials")
	}

	A := mat.DenseCopyOf(n.A.Slice(0, rows, 0, k))
	_, y, err := lp.Simplex(n.c[:k], A, n.b, simplexTolerance, nil)
	if err != nil {
		return nil, err
	}
	return append(y, make([]float64, n.nArtificial)...), nil
}

// structural maps a simplex solution back onto the structural columns of the node.
func (n nodeLP) structural(y []float64) []float64 {
	x := make([]float64, len(n.lower))
	copy(x, n.lower)
	if y == nil {
		return x
	}
	for k, j := range n.free {
		x[j] += y[k]
	}
	return x
}

// solve computes the LP relaxation of the node.
func (p subProblem) solve() solution {
	s := solution{problem: &p}

	node, err := p.standardForm()
	if err != nil {
		s.err = err
		return s
	}
	y, err := node.solve()
	if err != nil {
		s.err = err
		return s
	}

	s.x = node.structural(y)
	s.z = floats.Dot(p.c, s.x)
	return s
}

// branchCandidates marks the fractional integer columns that carry the highest
// priority among the fractional ones.
func (s solution) branchCandidates() []bool {
	p := s.problem
	top, found := 0, false
	for j, v := range s.x {
		if p.integralityConstraints[j] && !isAllInteger(v) {
			if pr := p.priorityOf(j); !found || pr > top {
				top, found = pr, true
			}
		}
	}

	candidates := make([]bool, len(s.x))
	for j, v := range s.x {
		candidates[j] = p.integralityConstraints[j] && !isAllInteger(v) && p.priorityOf(j) == top
	}
	return candidates
}

// branch splits the node on the variable picked by the branching heuristic.
// down explores x <= floor(x*), up explores x >= floor(x*) + 1.
func (s solution) branch() (down, up subProblem) {
	candidates := s.branchCandidates()

	var on int
	switch s.problem.branchHeuristic {
	case BRANCH_MOST_INFEASIBLE:
		on = mostInfeasibleBranchPoint(s.x, candidates)
	case BRANCH_MAXFUN:
		on = maxFunBranchPoint(s.problem.c, s.x, candidates)
	case BRANCH_NAIVE:
		on = s.naiveBranchPoint(candidates)
	default:
		panic("ilp: unknown branching heuristic")
	}

	floor := math.Floor(s.x[on])
	down = s.problem.child(branchBound{variable: on, upper: true, value: floor})
	up = s.problem.child(branchBound{variable: on, upper: false, value: floor + 1})
	return
}

// child returns a node that inherits everything from p plus one more bound.
// The bounds slice is copied because siblings are solved concurrently; the
// matrices are shared. The tree assigns the child its own id.
func (p *subProblem) child(bd branchBound) subProblem {
	bounds := make([]branchBound, len(p.bounds), len(p.bounds)+1)
	copy(bounds, p.bounds)

	c := *p
	c.parent = p.id
	c.bounds = append(bounds, bd)
	return c
}

// lastBranched returns the variable of the most recent branching bound, or -1 at the root.
func (p *subProblem) lastBranched() int {
	if len(p.bounds) == 0 {
		return -1
	}
	return p.bounds[len(p.bounds)-1].variable
}
