package epi

import (
	"errors"
	"testing"
)

func twoSegmentState() State {
	return State{
		AgeGroupProportions: []float64{0.75, 0.25},
		Susceptible:         []float64{0.8, 0.6},
		Exposed:             [][]float64{{0.05}, {0.1}},
		Infected:            [][]float64{{0.08, 0.02}, {0.1, 0.1}},
		Asymptomatic:        [][]float64{{0.04, 0.01}, {0, 0}},
		Recovered:           [][]float64{{0}, {0.05}},
		Fatalities:          []float64{0, 0.05},
		Disobedient:         []float64{0, 0},
	}
}

func TestState_WeightedTotals(t *testing.T) {
	st := twoSegmentState()

	// 0.75*0.1 + 0.25*0.2
	assertApprox(t, "total infections", st.TotalInfections(), 0.125)
	// 0.75*0.05 + 0.25*0
	assertApprox(t, "total asymptomatic", st.TotalAsymptomatic(), 0.0375)
	// 0.75*0.08 + 0.25*0.1
	assertApprox(t, "infected phase 0", st.InfectedPhase(0), 0.085)
	assertApprox(t, "asymptomatic phase 1", st.AsymptomaticPhase(1), 0.0075)
	assertApprox(t, "infected phase out of range", st.InfectedPhase(5), 0)

	totals := st.Totals()
	assertApprox(t, "susceptible", totals.Susceptible, 0.75)
	assertApprox(t, "fatalities", totals.Fatalities, 0.0125)
}

func TestState_EqualWeightsWithoutProportions(t *testing.T) {
	st := twoSegmentState()
	st.AgeGroupProportions = nil
	assertApprox(t, "total infections", st.TotalInfections(), 0.15)
}

func TestState_CheckConservation(t *testing.T) {
	st := twoSegmentState()
	if err := st.CheckConservation(1e-9); err != nil {
		t.Fatalf("Expected conserved state, got %v", err)
	}

	leaking := st.Clone()
	leaking.Susceptible[1] = 0.5
	if err := leaking.CheckConservation(1e-9); !errors.Is(err, ErrConservationViolation) {
		t.Errorf("Expected ErrConservationViolation for a leaking segment, got %v", err)
	}

	negative := st.Clone()
	negative.Exposed[0][0] = -0.05
	negative.Susceptible[0] = 0.9
	if err := negative.CheckConservation(1e-9); !errors.Is(err, ErrConservationViolation) {
		t.Errorf("Expected ErrConservationViolation for a negative compartment, got %v", err)
	}
}

func TestState_CloneIsDeep(t *testing.T) {
	st := twoSegmentState()
	st.Trackers = map[CellID]*HysteresisTracker{"a": {Factor: 0.5}}

	cp := st.Clone()
	cp.Infected[0][0] = 1
	cp.Trackers["a"].Factor = 0.1
	cp.AgeGroupProportions[0] = 0

	if st.Infected[0][0] != 0.08 {
		t.Error("Expected Infected to be copied")
	}
	if st.Trackers["a"].Factor != 0.5 {
		t.Error("Expected trackers to be copied")
	}
	if st.AgeGroupProportions[0] != 0.75 {
		t.Error("Expected proportions to be copied")
	}
}
