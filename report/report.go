// Package report renders allocations as plain text.
package report

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/yaproro/Tutor-Student-Assignment-Optimization/allocation"
	"github.com/yaproro/Tutor-Student-Assignment-Optimization/ilp"
)

const rule = "-------------------------------------------------------------"

// printer remembers the first write error so callers can check once.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}

func (p *printer) done() error {
	return errors.Wrap(p.err, "writing report")
}

// Summary writes the size of the loaded roster.
func Summary(w io.Writer, r allocation.Roster) error {
	p := &printer{w: w}
	p.printf("Data loaded consist of %d new students, %d active existing students and %d tutors.\n",
		len(r.NewStudents), len(r.ExistingStudents), len(r.Tutors))
	return p.done()
}

// Allocation writes the objective breakdown followed by the workload of every
// tutor in use and the tutor of every new student.
func Allocation(w io.Writer, a *allocation.Allocation) error {
	p := &printer{w: w}
	b := a.Breakdown

	p.printf("%s\n", rule)
	p.printf("Objective breakdown:\n")
	p.printf("Total penalty: %v\n", b.Objective)
	p.printf("Balancing workload : weight = %v, U = %d, L = %d. Total = %d\n",
		b.Weights.Balance, b.UpperWorkload, b.LowerWorkload, int(b.BalancePenalty()))
	p.printf("Tutors used : weight = %v, tutors used = %d. Total = %d\n",
		b.Weights.TutorsUsed, b.TutorsUsed, int(b.TutorsUsedPenalty()))
	p.printf("Not preferred location penalty : weight = %v, Total = %d\n",
		b.Weights.NotPreferred, int(b.NotPreferredPenalty()))
	p.printf("Second choice location penalty : weight = %v, Total = %d\n",
		b.Weights.SecondChoice, int(b.SecondChoicePenalty()))
	p.printf("%s\n", rule)

	if a.Status != ilp.Optimal {
		p.printf("Search stopped at a limit after %d nodes; the allocation below is the best found, not proven optimal.\n", a.Stats.Nodes)
	}

	p.printf("Solution:\n")
	for _, tw := range a.Workloads {
		if tw.Total() > 0 {
			p.printf("Tutor %s has %d student(s) assigned.\n", tw.TutorID, tw.Total())
		}
	}
	for _, as := range a.Assignments {
		p.printf("Student %s is assigned to Tutor %s.\n", as.StudentID, as.TutorID)
	}
	return p.done()
}

// Infeasible writes the message shown when no allocation satisfies the constraints.
func Infeasible(w io.Writer, cause error) error {
	p := &printer{w: w}
	p.printf("No feasible allocation exists: %v\n", cause)
	p.printf("Check that every extensive need has an extensive tutor and that tutor capacity covers all students.\n")
	return p.done()
}
