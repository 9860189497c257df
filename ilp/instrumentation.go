package ilp

type bnbMiddleware interface {

	// Receives each subproblem solution and a corresponding decision
	ProcessDecision(solution, bnbDecision)
}

type dummyMiddleware struct{}

func (d dummyMiddleware) ProcessDecision(s solution, b bnbDecision) {}

// decisionCounter tallies the decisions taken during the search.
// It is only called from a single goroutine at a time.
type decisionCounter struct {
	decisions map[bnbDecision]int
}

func newDecisionCounter() *decisionCounter {
	return &decisionCounter{decisions: make(map[bnbDecision]int)}
}

func (d *decisionCounter) ProcessDecision(s solution, b bnbDecision) {
	d.decisions[b]++
}

func (d *decisionCounter) stats() Stats {
	st := Stats{Decisions: make(map[string]int, len(d.decisions))}
	for decision, n := range d.decisions {
		st.Decisions[string(decision)] = n
	}
	return st
}
