package allocation

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/yaproro/Tutor-Student-Assignment-Optimization/ilp"
)

// Placement describes a student's centre relative to a tutor's preferred centres.
type Placement int

const (
	FirstChoice Placement = iota
	SecondChoice
	NotPreferred
)

func (p Placement) String() string {
	switch p {
	case FirstChoice:
		return "first choice"
	case SecondChoice:
		return "second choice"
	case NotPreferred:
		return "not preferred"
	}
	return "unknown"
}

// placementOf classifies a student centre for a tutor. A centre matching the
// second preference counts as second choice even when it is also the first.
func placementOf(s NewStudent, t Tutor) Placement {
	switch {
	case s.Centre != t.PrefCentre1 && s.Centre != t.PrefCentre2:
		return NotPreferred
	case s.Centre == t.PrefCentre2:
		return SecondChoice
	}
	return FirstChoice
}

// Model is the integer program assigning new students to tutors.
type Model struct {
	problem *ilp.Problem
	roster  Roster
	weights Weights

	// assign[i][j] is 1 iff new student i is assigned to tutor j
	assign [][]*ilp.Variable

	// used[j] is 1 iff tutor j has at least one student
	used []*ilp.Variable

	// workload[j] counts existing and new students of tutor j
	workload []*ilp.Variable

	// bounds on the workload of the used tutors
	upper *ilp.Variable
	lower *ilp.Variable

	notPreferred ilp.Expression
	secondChoice ilp.Expression

	existingLoad []int
	maxCapacity  int
}

// Build validates the roster and formulates the assignment problem.
func Build(r Roster, w Weights) (*Model, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}

	m := &Model{
		problem: ilp.NewProblem("tutor_allocation"),
		roster:  r,
		weights: w,
	}
	m.addVariables()
	m.setBounds()
	if err := m.addConstraints(); err != nil {
		return nil, errors.Wrap(err, "adding constraints")
	}
	if err := m.setObjective(); err != nil {
		return nil, errors.Wrap(err, "setting objective")
	}

	logrus.WithFields(logrus.Fields{
		"variables":   len(m.problem.Variables()),
		"constraints": len(m.problem.Constraints()),
		"maxCapacity": m.maxCapacity,
	}).Debug("Built allocation model")

	return m, nil
}

func (m *Model) addVariables() {
	p := m.problem
	students, tutors := m.roster.NewStudents, m.roster.Tutors

	m.assign = make([][]*ilp.Variable, len(students))
	for i, s := range students {
		m.assign[i] = make([]*ilp.Variable, len(tutors))
		for j, t := range tutors {
			m.assign[i][j] = p.AddBinaryVariable(fmt.Sprintf("assign_%s_%s", s.ID, t.ID))
		}
	}

	load := m.roster.ExistingLoad()
	m.used = make([]*ilp.Variable, len(tutors))
	m.workload = make([]*ilp.Variable, len(tutors))
	m.existingLoad = make([]int, len(tutors))
	for j, t := range tutors {
		// fixing which tutors are in use settles the fractional big-M rows first
		m.used[j] = p.AddBinaryVariable(fmt.Sprintf("used_%s", t.ID)).SetPriority(1)
		m.workload[j] = p.AddIntegerVariable(fmt.Sprintf("workload_%s", t.ID))
		m.existingLoad[j] = load[t.ID]
		if t.Capacity > m.maxCapacity {
			m.maxCapacity = t.Capacity
		}
	}

	m.upper = p.AddIntegerVariable("workload_upperbound")
	m.lower = p.AddIntegerVariable("workload_lowerbound")
}

func (m *Model) setBounds() {
	tutors := m.roster.Tutors

	// minimizing U - L never benefits from exceeding the largest capacity.
	m.upper.SetUpperBound(float64(m.maxCapacity))
	m.lower.SetUpperBound(float64(m.maxCapacity))

	for i, s := range m.roster.NewStudents {
		if !s.NeedsExtensive() {
			continue
		}
		for j, t := range tutors {
			if !t.HasExtensive() {
				m.assign[i][j].SetUpperBound(0)
			}
		}
	}

	for j, t := range tutors {
		m.workload[j].SetUpperBound(float64(t.Capacity))
		if m.existingLoad[j] > 0 {
			// a tutor with existing students is in use regardless of new assignments
			m.used[j].SetLowerBound(1)
		}
	}
}

func (m *Model) addConstraints() error {
	p := m.problem
	tutors := m.roster.Tutors
	maxCap := float64(m.maxCapacity)

	for i, s := range m.roster.NewStudents {
		var expr ilp.Expression
		for j, t := range tutors {
			if s.NeedsExtensive() && !t.HasExtensive() {
				continue
			}
			expr = expr.Add(1, m.assign[i][j])
		}
		if _, err := p.AddConstraint(fmt.Sprintf("single_assignment_%s", s.ID), expr, ilp.Equal, 1); err != nil {
			return err
		}
	}

	for j, t := range tutors {
		var newStudents ilp.Expression
		for i := range m.roster.NewStudents {
			newStudents = newStudents.Add(1, m.assign[i][j])
		}
		existing := float64(m.existingLoad[j])
		remaining := float64(t.Capacity) - existing

		capacity := append(ilp.Expression{}, newStudents...).Add(-remaining, m.used[j])
		if _, err := p.AddConstraint(fmt.Sprintf("capacity_%s", t.ID), capacity, ilp.LessOrEqual, 0); err != nil {
			return err
		}

		definition := append(ilp.Expression{}, newStudents...).Add(-1, m.workload[j])
		if _, err := p.AddConstraint(fmt.Sprintf("workload_%s", t.ID), definition, ilp.Equal, -existing); err != nil {
			return err
		}

		upper := ilp.Sum(m.workload[j]).Add(-1, m.upper)
		if _, err := p.AddConstraint(fmt.Sprintf("upper_workload_%s", t.ID), upper, ilp.LessOrEqual, 0); err != nil {
			return err
		}

		// slack when the tutor is not used, so idle tutors never pull the lower bound down
		lower := ilp.Sum(m.workload[j]).Add(-1, m.lower).Add(-maxCap, m.used[j])
		if _, err := p.AddConstraint(fmt.Sprintf("lower_workload_%s", t.ID), lower, ilp.GreaterOrEqual, -maxCap); err != nil {
			return err
		}
	}

	return nil
}

func (m *Model) setObjective() error {
	w := m.weights

	m.notPreferred = nil
	m.secondChoice = nil
	for i, s := range m.roster.NewStudents {
		for j, t := range m.roster.Tutors {
			switch placementOf(s, t) {
			case NotPreferred:
				m.notPreferred = m.notPreferred.Add(1, m.assign[i][j])
			case SecondChoice:
				m.secondChoice = m.secondChoice.Add(1, m.assign[i][j])
			}
		}
	}

	objective := ilp.Expression{}.
		Add(w.Balance, m.upper).
		Add(-w.Balance, m.lower)
	objective = append(objective, ilp.Sum(m.used...).Scale(w.TutorsUsed)...)
	objective = append(objective, m.notPreferred.Scale(w.NotPreferred)...)
	objective = append(objective, m.secondChoice.Scale(w.SecondChoice)...)

	return m.problem.Minimize(objective)
}

// Problem exposes the underlying integer program.
func (m *Model) Problem() *ilp.Problem { return m.problem }

func (m *Model) Weights() Weights { return m.weights }

func (m *Model) Roster() Roster { return m.roster }
