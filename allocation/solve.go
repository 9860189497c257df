package allocation

import (
	"context"
	"math"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yaproro/Tutor-Student-Assignment-Optimization/ilp"
)

var ErrInfeasible = errors.New("no feasible allocation exists")

// infeasibleError matches ErrInfeasible and unwraps to the solver error explaining why.
type infeasibleError struct {
	cause error
}

func (e *infeasibleError) Error() string {
	return ErrInfeasible.Error() + ": " + e.cause.Error()
}

func (e *infeasibleError) Unwrap() error { return e.cause }

func (e *infeasibleError) Is(target error) bool { return target == ErrInfeasible }

// Allocation is the extracted result of a successful solve.
type Allocation struct {
	// Status tells whether the allocation is proven optimal or the best one found within the limits.
	Status ilp.Status

	// Workloads lists every tutor in roster order.
	Workloads []TutorWorkload

	// Assignments lists every new student in roster order.
	Assignments []Assignment

	Breakdown Breakdown
	Stats     ilp.Stats
}

type TutorWorkload struct {
	TutorID  string
	Capacity int
	Existing int
	New      int
	Used     bool
}

func (w TutorWorkload) Total() int { return w.Existing + w.New }

type Assignment struct {
	StudentID string
	TutorID   string
	Placement Placement
}

// Breakdown splits the objective value into its weighted terms.
type Breakdown struct {
	Weights Weights

	UpperWorkload int
	LowerWorkload int
	TutorsUsed    int
	NotPreferred  int
	SecondChoice  int

	// Objective is the value reported by the solver.
	Objective float64
}

func (b Breakdown) BalancePenalty() float64 {
	return b.Weights.Balance * float64(b.UpperWorkload-b.LowerWorkload)
}

func (b Breakdown) TutorsUsedPenalty() float64 {
	return b.Weights.TutorsUsed * float64(b.TutorsUsed)
}

func (b Breakdown) NotPreferredPenalty() float64 {
	return b.Weights.NotPreferred * float64(b.NotPreferred)
}

func (b Breakdown) SecondChoicePenalty() float64 {
	return b.Weights.SecondChoice * float64(b.SecondChoice)
}

// Total is the sum of the weighted terms.
func (b Breakdown) Total() float64 {
	return b.BalancePenalty() + b.TutorsUsedPenalty() + b.NotPreferredPenalty() + b.SecondChoicePenalty()
}

// Solve runs the solver on the model. An infeasible model yields an error matching both
// ErrInfeasible and ilp.ErrInfeasible, and no allocation.
//
// Unless opts carries a starting point, the search starts from a greedy allocation, so a
// limit reached early still returns that allocation.
func (m *Model) Solve(ctx context.Context, opts ilp.Options) (*Allocation, error) {
	if opts.Start == nil {
		opts.Start = m.greedy()
	}

	sol, err := m.problem.Solve(ctx, opts)
	if err != nil {
		if errors.Is(err, ilp.ErrInfeasible) {
			logrus.WithError(err).Debug("Allocation model is infeasible")
			return nil, &infeasibleError{cause: err}
		}
		return nil, errors.Wrap(err, "solving allocation model")
	}

	logrus.WithFields(logrus.Fields{
		"status":    sol.Status,
		"objective": sol.Objective,
		"nodes":     sol.Stats.Nodes,
		"decisions": sol.Stats.Decisions,
	}).Debug("Solved allocation model")

	return m.extract(sol), nil
}

func (m *Model) extract(sol *ilp.Solution) *Allocation {
	tutors := m.roster.Tutors
	alloc := &Allocation{
		Status:    sol.Status,
		Workloads: make([]TutorWorkload, len(tutors)),
		Stats:     sol.Stats,
	}

	for j, t := range tutors {
		alloc.Workloads[j] = TutorWorkload{
			TutorID:  t.ID,
			Capacity: t.Capacity,
			Existing: m.existingLoad[j],
			Used:     sol.Value(m.used[j]) > 0.5,
		}
	}

	for i, s := range m.roster.NewStudents {
		for j, t := range tutors {
			if sol.Value(m.assign[i][j]) > 0.5 {
				alloc.Assignments = append(alloc.Assignments, Assignment{
					StudentID: s.ID,
					TutorID:   t.ID,
					Placement: placementOf(s, t),
				})
				alloc.Workloads[j].New++
			}
		}
	}

	used := 0
	for _, w := range alloc.Workloads {
		if w.Used {
			used++
		}
	}

	alloc.Breakdown = Breakdown{
		Weights:       m.weights,
		UpperWorkload: roundInt(sol.Value(m.upper)),
		LowerWorkload: roundInt(sol.Value(m.lower)),
		TutorsUsed:    used,
		NotPreferred:  roundInt(sol.Eval(m.notPreferred)),
		SecondChoice:  roundInt(sol.Eval(m.secondChoice)),
		Objective:     sol.Objective,
	}
	return alloc
}

func roundInt(f float64) int {
	return int(math.Round(f))
}
