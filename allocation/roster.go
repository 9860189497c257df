package allocation

import (
	"github.com/pkg/errors"
)

// Extensive is the tutoring need, and tutoring skill, that requires strict matching.
const Extensive = "Extensive"

var ErrInvalidRoster = errors.New("invalid roster")

// NewStudent is a student that needs exactly one tutor.
type NewStudent struct {
	ID     string
	Need   string
	Centre string
}

func (s NewStudent) NeedsExtensive() bool { return s.Need == Extensive }

// ExistingStudent is an active student already assigned to a tutor. It is never reassigned.
type ExistingStudent struct {
	ID      string
	Need    string
	Centre  string
	TutorID string
}

type Tutor struct {
	ID          string
	Skill       string
	PrefCentre1 string
	PrefCentre2 string
	Capacity    int
}

func (t Tutor) HasExtensive() bool { return t.Skill == Extensive }

// Roster holds the normalized input tables.
type Roster struct {
	NewStudents      []NewStudent
	ExistingStudents []ExistingStudent
	Tutors           []Tutor
}

// ExistingLoad counts the active existing students per tutor id.
func (r Roster) ExistingLoad() map[string]int {
	load := make(map[string]int, len(r.Tutors))
	for _, s := range r.ExistingStudents {
		load[s.TutorID]++
	}
	return load
}

// Validate checks the consistency of the roster. Every failure wraps ErrInvalidRoster.
func (r Roster) Validate() error {
	if len(r.Tutors) == 0 {
		return errors.Wrap(ErrInvalidRoster, "no tutors")
	}

	tutors := make(map[string]Tutor, len(r.Tutors))
	for _, t := range r.Tutors {
		if t.ID == "" {
			return errors.Wrap(ErrInvalidRoster, "tutor without id")
		}
		if _, dup := tutors[t.ID]; dup {
			return errors.Wrapf(ErrInvalidRoster, "duplicate tutor id %s", t.ID)
		}
		if t.Capacity < 0 {
			return errors.Wrapf(ErrInvalidRoster, "tutor %s has negative capacity %d", t.ID, t.Capacity)
		}
		tutors[t.ID] = t
	}

	students := make(map[string]struct{}, len(r.NewStudents)+len(r.ExistingStudents))
	addStudent := func(id string) error {
		if id == "" {
			return errors.Wrap(ErrInvalidRoster, "student without id")
		}
		if _, dup := students[id]; dup {
			return errors.Wrapf(ErrInvalidRoster, "duplicate student id %s", id)
		}
		students[id] = struct{}{}
		return nil
	}

	for _, s := range r.NewStudents {
		if err := addStudent(s.ID); err != nil {
			return err
		}
	}
	for _, s := range r.ExistingStudents {
		if err := addStudent(s.ID); err != nil {
			return err
		}
		if _, ok := tutors[s.TutorID]; !ok {
			return errors.Wrapf(ErrInvalidRoster, "existing student %s refers to unknown tutor %q", s.ID, s.TutorID)
		}
	}

	load := r.ExistingLoad()
	for _, t := range r.Tutors {
		if load[t.ID] > t.Capacity {
			return errors.Wrapf(ErrInvalidRoster, "tutor %s has %d existing students but a capacity of %d", t.ID, load[t.ID], t.Capacity)
		}
	}

	return nil
}
