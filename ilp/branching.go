package ilp

import (
	"math"

	"github.com/pkg/errors"
)

// selectable heuristic options
type BranchHeuristic int

const (
	BRANCH_MOST_INFEASIBLE BranchHeuristic = 0
	BRANCH_MAXFUN          BranchHeuristic = 1
	BRANCH_NAIVE           BranchHeuristic = 2
)

var branchHeuristicNames = map[BranchHeuristic]string{
	BRANCH_MOST_INFEASIBLE: "most-infeasible",
	BRANCH_MAXFUN:          "maxfun",
	BRANCH_NAIVE:           "naive",
}

func (h BranchHeuristic) String() string {
	if name, ok := branchHeuristicNames[h]; ok {
		return name
	}
	return "unknown"
}

// ParseBranchHeuristic maps a heuristic name as printed by String back to its value.
// The empty string selects the default heuristic.
func ParseBranchHeuristic(name string) (BranchHeuristic, error) {
	if name == "" {
		return BRANCH_MOST_INFEASIBLE, nil
	}
	for h, n := range branchHeuristicNames {
		if n == name {
			return h, nil
		}
	}
	return 0, errors.Errorf("unknown branching heuristic %q", name)
}

// Get the variable to branch on by looking at which variables we branched on previously.
// If there are no branches yet, we start at the first candidate.
// Note that this is a really naive way to find a nice variable to branch on.
func (s solution) naiveBranchPoint(candidates []bool) int {
	n := len(candidates)

	// continue right after the last variable we branched on
	start := s.problem.lastBranched() + 1

	// cycle through the variables until we encounter the next candidate.
	for k := 0; k < n; k++ {
		cursor := (start + k) % n
		if candidates[cursor] && !isAllInteger(s.x[cursor]) {
			return cursor
		}
	}

	panic("ilp: no fractional integer-constrained variable to branch on")
}

// Choose the fractional integrality-constrained variable with the highest absolute value in the objective function.
func maxFunBranchPoint(c []float64, x []float64, integralityConstraints []bool) int {
	if len(c) != len(integralityConstraints) || len(x) != len(c) {
		panic("ilp: number of variables not equal to number of integrality constraints")
	}

	candidateValue := -1.0
	currentCandidate := -1

	for i, v := range c {
		if integralityConstraints[i] && !isAllInteger(x[i]) {
			if math.Abs(v) > candidateValue {
				candidateValue = math.Abs(v)
				currentCandidate = i
			}
		}
	}

	if currentCandidate < 0 {
		panic("ilp: no fractional integer-constrained variable to branch on")
	}
	return currentCandidate
}

// Choose the variable with the fractional part closest to 1/2.
func mostInfeasibleBranchPoint(x []float64, integralityConstraints []bool) int {
	if len(x) != len(integralityConstraints) {
		panic("ilp: number of variables not equal to number of integrality constraints")
	}

	candidateDistance := math.Inf(1)
	currentCandidate := -1

	for i, v := range x {
		if integralityConstraints[i] && !isAllInteger(v) {
			f := v - math.Floor(v)
			if d := math.Abs(0.5 - f); d < candidateDistance {
				candidateDistance = d
				currentCandidate = i
			}
		}
	}

	if currentCandidate < 0 {
		panic("ilp: no fractional integer-constrained variable to branch on")
	}
	return currentCandidate
}
