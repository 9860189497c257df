package allocation

import (
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Dump writes a diagnostic listing of a built model: a summary followed by the
// objective, every constraint and every variable with its bounds.
func Dump(w io.Writer, m *Model) error {
	r := m.roster
	_, err := fmt.Fprintf(w, "Model: %s\n - new students: %d\n - active existing students: %d\n - tutors: %d\n - max capacity: %d\n - weights: balance=%v tutorsUsed=%v notPreferred=%v secondChoice=%v\n",
		m.problem.Name(), len(r.NewStudents), len(r.ExistingStudents), len(r.Tutors), m.maxCapacity,
		m.weights.Balance, m.weights.TutorsUsed, m.weights.NotPreferred, m.weights.SecondChoice)
	if err != nil {
		return errors.Wrap(err, "writing model summary")
	}

	if _, err := m.problem.WriteTo(w); err != nil {
		return errors.Wrap(err, "writing model")
	}
	return nil
}
