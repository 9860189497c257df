package allocation

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/yaproro/Tutor-Student-Assignment-Optimization/ilp"
)

// greedy places the new students one by one and returns the values of every model
// variable for the result, or nil when some student finds no tutor with room left.
//
// Students needing an extensive tutor go first. Each student takes the compatible tutor
// that adds the smallest penalty, then the one with the fewest students so far.
func (m *Model) greedy() map[*ilp.Variable]float64 {
	students, tutors := m.roster.NewStudents, m.roster.Tutors
	w := m.weights

	total := make([]int, len(tutors))
	for j, t := range tutors {
		if m.existingLoad[j] > t.Capacity {
			return nil
		}
		total[j] = m.existingLoad[j]
	}

	order := make([]int, len(students))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return students[order[a]].NeedsExtensive() && !students[order[b]].NeedsExtensive()
	})

	chosen := make([]int, len(students))
	for _, i := range order {
		s := students[i]
		best, bestCost := -1, 0.0
		for j, t := range tutors {
			if total[j] >= t.Capacity || (s.NeedsExtensive() && !t.HasExtensive()) {
				continue
			}

			var cost float64
			switch placementOf(s, t) {
			case NotPreferred:
				cost = w.NotPreferred
			case SecondChoice:
				cost = w.SecondChoice
			}
			if total[j] == 0 {
				cost += w.TutorsUsed
			}

			if best < 0 || cost < bestCost || (cost == bestCost && total[j] < total[best]) {
				best, bestCost = j, cost
			}
		}
		if best < 0 {
			logrus.WithField("student", s.ID).Debug("Greedy allocation found no tutor with room left")
			return nil
		}
		chosen[i] = best
		total[best]++
	}

	values := make(map[*ilp.Variable]float64, len(students)+2*len(tutors)+2)
	for i, j := range chosen {
		values[m.assign[i][j]] = 1
	}

	upper, lower := 0, m.maxCapacity
	for j := range tutors {
		values[m.workload[j]] = float64(total[j])
		if total[j] == 0 {
			continue
		}
		values[m.used[j]] = 1
		if total[j] > upper {
			upper = total[j]
		}
		if total[j] < lower {
			lower = total[j]
		}
	}
	values[m.upper] = float64(upper)
	values[m.lower] = float64(lower)
	return values
}
