package allocation

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	r := validRoster()
	m, err := Build(r, DefaultWeights())
	require.NoError(t, err)

	p := m.Problem()
	// 2x2 assignments, used and workload per tutor, upper and lower bound
	assert.Len(t, p.Variables(), 2*2+2*2+2)
	// one assignment constraint per student, four per tutor
	assert.Len(t, p.Constraints(), 2+4*2)
	assert.Equal(t, 3, m.maxCapacity)
	assert.Equal(t, []int{1, 0}, m.existingLoad)

	// the extensive student may not go to the tutor without extensive skill
	assert.Equal(t, 1.0, m.assign[0][0].UpperBound())
	assert.Equal(t, 0.0, m.assign[0][1].UpperBound())
	assert.Equal(t, 1.0, m.assign[1][1].UpperBound())

	// T1 already has a student
	assert.Equal(t, 1.0, m.used[0].LowerBound())
	assert.Equal(t, 0.0, m.used[1].LowerBound())

	// tutors in use are branched on before assignments
	assert.Equal(t, 1, m.used[0].Priority())
	assert.Equal(t, 0, m.assign[0][0].Priority())

	assert.Equal(t, 3.0, m.workload[0].UpperBound())
	assert.Equal(t, 2.0, m.workload[1].UpperBound())
	assert.Equal(t, 3.0, m.upper.UpperBound())
	assert.Equal(t, 3.0, m.lower.UpperBound())

	// objective coefficients
	assert.Equal(t, 10.0, m.upper.Coefficient())
	assert.Equal(t, -10.0, m.lower.Coefficient())
	assert.Equal(t, 0.0, m.used[0].Coefficient())
	// S1 at A: first choice for T1, not preferred for T2
	assert.Equal(t, 0.0, m.assign[0][0].Coefficient())
	assert.Equal(t, 4.0, m.assign[0][1].Coefficient())
	// S2 at B: second choice for T1, first choice for T2
	assert.Equal(t, 2.0, m.assign[1][0].Coefficient())
	assert.Equal(t, 0.0, m.assign[1][1].Coefficient())

	assert.Len(t, m.notPreferred, 1)
	assert.Len(t, m.secondChoice, 1)

	// the extensive student's assignment only sums over extensive tutors
	single := p.Constraints()[0]
	assert.Equal(t, "single_assignment_S1", single.Name())
	require.Len(t, single.Expression(), 1)
	assert.Same(t, m.assign[0][0], single.Expression()[0].Var)
}

func TestBuild_customWeights(t *testing.T) {
	w := Weights{Balance: 1, TutorsUsed: 5, NotPreferred: 0, SecondChoice: 3}
	m, err := Build(validRoster(), w)
	require.NoError(t, err)

	assert.Equal(t, w, m.Weights())
	assert.Equal(t, 5.0, m.used[1].Coefficient())
	assert.Equal(t, 0.0, m.assign[0][1].Coefficient())
	assert.Equal(t, 3.0, m.assign[1][0].Coefficient())
}

func TestBuild_rejectsInvalidInput(t *testing.T) {
	r := validRoster()
	r.ExistingStudents[0].TutorID = "nobody"
	_, err := Build(r, DefaultWeights())
	assert.True(t, errors.Is(err, ErrInvalidRoster))

	_, err = Build(validRoster(), Weights{Balance: -1})
	assert.Error(t, err)
}

func TestDump(t *testing.T) {
	m, err := Build(validRoster(), DefaultWeights())
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Dump(&buf, m))

	out := buf.String()
	assert.Contains(t, out, "Model: tutor_allocation\n")
	assert.Contains(t, out, " - new students: 2\n")
	assert.Contains(t, out, " - active existing students: 1\n")
	assert.Contains(t, out, " - max capacity: 3\n")
	assert.Contains(t, out, "minimize 4 assign_S1_T2 + 2 assign_S2_T1 + 10 workload_upperbound - 10 workload_lowerbound\n")
	assert.Contains(t, out, "  single_assignment_S1: assign_S1_T1 = 1\n")
	assert.Contains(t, out, "  workload_T1: assign_S1_T1 + assign_S2_T1 - workload_T1 = -1\n")
	assert.Contains(t, out, "  capacity_T2: assign_S1_T2 + assign_S2_T2 - 2 used_T2 <= 0\n")
	assert.Contains(t, out, "  lower_workload_T1: workload_T1 - workload_lowerbound - 3 used_T1 >= -3\n")
	assert.Contains(t, out, "  assign_S1_T2 [0, 0] integer\n")
	assert.Contains(t, out, "  used_T1 [1, 1] integer\n")
}
