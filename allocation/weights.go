package allocation

import (
	"math"

	"github.com/pkg/errors"
)

// Weights of the objective terms.
type Weights struct {
	// penalty per unit of spread between the largest and smallest workload of used tutors
	Balance float64 `json:"balance"`

	// penalty per tutor in use
	TutorsUsed float64 `json:"tutorsUsed"`

	// penalty per student placed at a centre neither preferred by its tutor
	NotPreferred float64 `json:"notPreferred"`

	// penalty per student placed at the tutor's second choice centre
	SecondChoice float64 `json:"secondChoice"`
}

func DefaultWeights() Weights {
	return Weights{
		Balance:      10,
		TutorsUsed:   0,
		NotPreferred: 4,
		SecondChoice: 2,
	}
}

func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"balance":      w.Balance,
		"tutorsUsed":   w.TutorsUsed,
		"notPreferred": w.NotPreferred,
		"secondChoice": w.SecondChoice,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return errors.Errorf("weight %s must be a finite nonnegative number, got %v", name, v)
		}
	}
	return nil
}
