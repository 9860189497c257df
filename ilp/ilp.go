package ilp

import (
	"context"
	"math"
	"time"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

var (
	ErrInfeasible      = errors.New("problem has no feasible solution")
	ErrUnbounded       = errors.New("problem is unbounded")
	ErrNoSolutionFound = errors.New("search stopped before a feasible solution was found")
	ErrForeignVariable = errors.New("expression contains a variable that has not been declared to this problem")
	ErrInvalidBound    = errors.New("invalid variable bound")
	ErrInvalidStart    = errors.New("starting point is not feasible")
)

// tolerance used for integrality checks and constant constraint checks.
const tolerance = 1e-6

// passed to the gonum simplex as the reduced cost tolerance.
const simplexTolerance = 1e-10

// Status tells whether a solution has been proven optimal.
type Status int

const (
	// Optimal means the enumeration tree was exhausted.
	Optimal Status = iota
	// Feasible means a limit was reached; the solution is the best one found.
	Feasible
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Feasible:
		return "feasible"
	}
	return "unknown"
}

// Options control the branch-and-bound search. The zero value searches
// without limits using a single worker.
type Options struct {
	// TimeLimit stops the search once elapsed. Zero means no limit.
	TimeLimit time.Duration

	// NodeLimit stops branching after this many relaxations were solved. Zero means no limit.
	NodeLimit int

	// Workers is the number of goroutines solving relaxations. Values below 1 mean 1.
	Workers int

	Branching BranchHeuristic

	// Start is an integer feasible point the search begins with as its incumbent.
	// Variables missing from the map start at their lower bound.
	Start map[*Variable]float64
}

type Stats struct {
	// number of relaxations solved
	Nodes int

	// number of times each branch-and-bound decision was taken
	Decisions map[string]int
}

type Solution struct {
	Status    Status
	Objective float64
	Stats     Stats

	values []float64
}

// Value returns the value of v in the solution.
func (s *Solution) Value(v *Variable) float64 {
	return s.values[v.index]
}

// Eval evaluates expr at the solution.
func (s *Solution) Eval(expr Expression) float64 {
	var sum float64
	for _, t := range expr {
		sum += t.Coef * s.values[t.Var.index]
	}
	return sum
}

// Solve runs presolve followed by branch-and-bound on the LP relaxation.
//
// ErrInfeasible is returned when the problem provably has no solution and
// ErrNoSolutionFound when a limit stopped the search before any integer
// feasible point was seen. A starting point that violates the problem yields
// ErrInvalidStart.
func (p *Problem) Solve(ctx context.Context, opts Options) (*Solution, error) {
	if opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.TimeLimit)
		defer cancel()
	}
	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	prepper := newPreprocessor()
	pre, err := prepper.preSolve(p)
	if err != nil {
		return nil, err
	}

	start, err := p.startingPoint(opts.Start, pre)
	if err != nil {
		return nil, err
	}

	counter := newDecisionCounter()
	status := Optimal
	nodes := 0
	var x []float64

	if len(pre.c) > 0 {
		var incumbent *solution
		complete := false

		if err := ctx.Err(); err != nil {
			if start == nil {
				return nil, errors.Wrap(ErrNoSolutionFound, err.Error())
			}
			incumbent = start
		} else {
			tree := newEnumerationTree(ctx, pre.toInitialSubproblem(opts.Branching), treeConfig{
				nodeLimit:         opts.NodeLimit,
				integralObjective: pre.integralObjective,
				middleware:        counter,
				start:             start,
			})
			incumbent, complete, err = tree.startSearch(workers)
			nodes = tree.nodes
			if err != nil {
				return nil, err
			}
		}

		if incumbent == nil {
			if complete {
				return nil, ErrInfeasible
			}
			return nil, ErrNoSolutionFound
		}
		if !complete {
			status = Feasible
		}
		x = incumbent.x
	}

	values := prepper.postSolve(x)
	for i, v := range p.variables {
		if v.integer {
			values[i] = math.Round(values[i])
		} else if math.Abs(values[i]) < tolerance {
			values[i] = 0
		}
	}

	sol := &Solution{
		Status: status,
		Stats:  counter.stats(),
		values: values,
	}
	sol.Stats.Nodes = nodes
	for i, v := range p.variables {
		sol.Objective += v.coefficient * values[i]
	}
	return sol, nil
}

// startingPoint checks the starting point against the original problem and maps it
// onto the presolved columns. It returns nil when no starting point was given.
func (p *Problem) startingPoint(start map[*Variable]float64, pre preProcessedProblem) (*solution, error) {
	if len(start) == 0 {
		return nil, nil
	}

	values := make([]float64, len(p.variables))
	for i, v := range p.variables {
		values[i] = v.lower
	}
	for v, value := range start {
		if v == nil || v.problem != p {
			return nil, errors.Wrap(ErrForeignVariable, "starting point")
		}
		values[v.index] = value
	}
	if err := p.violation(values); err != nil {
		return nil, errors.Wrap(ErrInvalidStart, err.Error())
	}

	y := pre.reduce(values)
	return &solution{x: y, z: floats.Dot(pre.c, y)}, nil
}
