package ilp

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/optimize/convex/lp"
)

// bnbDecision is the outcome of checking a node.
type bnbDecision string

const (
	SUBPROBLEM_IS_DEGENERATE        bnbDecision = "subproblem contains a degenerate (singular) matrix"
	SUBPROBLEM_NOT_FEASIBLE         bnbDecision = "subproblem has no feasible solution"
	SUBPROBLEM_FAILED               bnbDecision = "subproblem could not be solved"
	WORSE_THAN_INCUMBENT            bnbDecision = "worse than incumbent"
	BETTER_THAN_INCUMBENT_BRANCHING bnbDecision = "better than incumbent but not integer feasible, so branching"
	BETTER_THAN_INCUMBENT_FEASIBLE  bnbDecision = "better than incumbent and integer feasible, so replacing incumbent"
	INITIAL_RELAXATION_NOT_FEASIBLE bnbDecision = "initial relaxation has no feasible solution"
	INITIAL_RX_FEASIBLE_FOR_IP      bnbDecision = "initial relaxation is feasible for IP"
	NODE_LIMIT_REACHED              bnbDecision = "node limit reached, not branching"
	SEARCH_ABORTED                  bnbDecision = "search aborted before solving subproblem"
)

type treeConfig struct {
	// stop branching once this many relaxations were solved. Zero means no limit.
	nodeLimit int

	// every integer feasible point has an integral objective value, so bounds can be rounded up.
	integralObjective bool

	middleware bnbMiddleware

	// optional integer feasible point the search starts from as incumbent.
	start *solution
}

type enumerationTree struct {
	active     chan subProblem
	toSolve    chan subProblem
	candidates chan solution

	// track the number of jobs (solving + checking) currently in progress
	inProgress sync.WaitGroup

	// the root problem
	rootProblem subProblem

	ctx context.Context
	cfg treeConfig

	// The fields below are only touched by the solutionChecker goroutine.
	incumbent *solution
	nodes     int
	nextID    int64
	truncated bool
	failure   error
}

func newEnumerationTree(ctx context.Context, root subProblem, cfg treeConfig) *enumerationTree {
	if cfg.middleware == nil {
		cfg.middleware = dummyMiddleware{}
	}
	return &enumerationTree{
		// unbuffered; the pump goroutine holds the pending nodes
		active:     make(chan subProblem),
		toSolve:    make(chan subProblem),
		candidates: make(chan solution),

		rootProblem: root,
		ctx:         ctx,
		cfg:         cfg,
		incumbent:   cfg.start,
	}
}

// startSearch returns the best integer feasible solution found (nil if none) and whether
// the enumeration tree was fully explored. The starting point counts as found.
func (p *enumerationTree) startSearch(nworkers int) (*solution, bool, error) {
	relaxation := p.rootProblem.solve()
	if err := relaxation.err; err != nil {
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			p.cfg.middleware.ProcessDecision(relaxation, INITIAL_RELAXATION_NOT_FEASIBLE)
			return p.incumbent, true, nil
		case errors.Is(err, lp.ErrUnbounded):
			return nil, true, ErrUnbounded
		}
		return nil, true, errors.Wrap(err, "solving initial relaxation")
	}

	if feasibleForIP(p.rootProblem.integralityConstraints, relaxation.x) {
		p.nodes = 1
		p.cfg.middleware.ProcessDecision(relaxation, INITIAL_RX_FEASIBLE_FOR_IP)
		return &relaxation, true, nil
	}

	go p.bufferPump()
	go p.solutionChecker()
	for w := 0; w < nworkers; w++ {
		go p.solveWorker()
	}

	// the root is checked and branched like any other node
	p.postCandidate(relaxation)
	p.inProgress.Wait()

	// closing the input of the pump shuts down the workers and the checker
	close(p.toSolve)

	return p.incumbent, !p.truncated, p.failure
}

// postCandidate and enqueueProblems register the job before handing it over,
// so inProgress never drops to zero while work is in flight.
func (p *enumerationTree) postCandidate(s solution) {
	p.inProgress.Add(1)
	p.candidates <- s
}

func (p *enumerationTree) enqueueProblems(probs ...subProblem) {
	for _, prob := range probs {
		p.inProgress.Add(1)
		p.toSolve <- prob
	}
}

// bufferPump decouples the checker from the workers. Pending nodes are kept on a
// stack, so the tree is explored depth first.
func (p *enumerationTree) bufferPump() {
	var stack []subProblem
	var top subProblem

	// nil while the stack is empty, which disables the send case
	var out chan subProblem

	for {
		select {
		case prob, ok := <-p.toSolve:
			if !ok {
				close(p.active)
				close(p.candidates)
				return
			}
			stack = append(stack, prob)

		case out <- top:
			stack = stack[:len(stack)-1]
		}

		out = nil
		if n := len(stack); n > 0 {
			top = stack[n-1]
			out = p.active
		}
	}
}

func (p *enumerationTree) solveWorker() {
	for prob := range p.active {
		var candidate solution
		if err := p.ctx.Err(); err != nil {
			// skip the simplex so the stack drains quickly
			aborted := prob
			candidate = solution{problem: &aborted, err: err}
		} else {
			candidate = prob.solve()
		}

		p.postCandidate(candidate)
		p.inProgress.Done()
	}
}

func (p *enumerationTree) solutionChecker() {
	for candidate := range p.candidates {
		decision := p.check(candidate)
		p.cfg.middleware.ProcessDecision(candidate, decision)
		p.inProgress.Done()
	}
}

// check decides the fate of a solved node. Only the checker goroutine calls it.
func (p *enumerationTree) check(candidate solution) bnbDecision {
	if candidate.err != nil {
		return p.translateSolverFailure(candidate.err)
	}
	p.nodes++

	// retrieve the objective function value of the incumbent
	// if no incumbent is set, use +Inf
	incumbentZ := math.Inf(1)
	if p.incumbent != nil {
		incumbentZ = p.incumbent.z
	}

	bound := candidate.z
	if p.cfg.integralObjective {
		bound = math.Ceil(bound - tolerance)
	}

	// Note that the objective is always minimization.
	switch {
	case bound >= incumbentZ-tolerance:
		return WORSE_THAN_INCUMBENT

	case feasibleForIP(p.rootProblem.integralityConstraints, candidate.x):
		// Note that we first take the value of candidate before indirecting again.
		inc := candidate
		p.incumbent = &inc
		return BETTER_THAN_INCUMBENT_FEASIBLE

	case p.failure != nil || p.ctx.Err() != nil:
		p.truncated = true
		return SEARCH_ABORTED

	case p.cfg.nodeLimit > 0 && p.nodes >= p.cfg.nodeLimit:
		p.truncated = true
		return NODE_LIMIT_REACHED

	default:
		// candidate is an improvement over the incumbent, but not feasible.
		// branch and add the descendants of this candidate to the queue
		down, up := candidate.branch()
		p.nextID++
		down.id = p.nextID
		p.nextID++
		up.id = p.nextID

		// the stack pops the last pushed problem first, so push the side the relaxation leans towards last.
		if v := candidate.x[down.lastBranched()]; v-math.Floor(v) >= 0.5 {
			p.enqueueProblems(down, up)
		} else {
			p.enqueueProblems(up, down)
		}
		return BETTER_THAN_INCUMBENT_BRANCHING
	}
}

// takes a solver failure and determines whether it is expected or ends the search.
func (p *enumerationTree) translateSolverFailure(err error) bnbDecision {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return SUBPROBLEM_NOT_FEASIBLE

	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		p.truncated = true
		return SEARCH_ABORTED

	case errors.Is(err, lp.ErrSingular):
		// the subtree is skipped, so optimality can no longer be claimed
		p.truncated = true
		return SUBPROBLEM_IS_DEGENERATE
	}

	if p.failure == nil {
		p.failure = errors.Wrap(err, "solving subproblem")
	}
	p.truncated = true
	return SUBPROBLEM_FAILED
}

// feasibleForIP reports whether every integer-constrained entry of x is integral.
func feasibleForIP(constraints []bool, solution []float64) bool {
	if len(constraints) != len(solution) {
		panic("ilp: constraints vector and solution vector not of equal size")
	}
	for i := range solution {
		if constraints[i] && !isAllInteger(solution[i]) {
			return false
		}
	}
	return true
}

func isAllInteger(in ...float64) bool {
	for _, k := range in {
		if math.Abs(k-math.Round(k)) > tolerance {
			return false
		}
	}
	return true
}
