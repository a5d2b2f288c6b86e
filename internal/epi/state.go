package epi

import (
	"fmt"
	"maps"
	"math"
	"slices"
)

// CellID identifies a cell within a grid.
type CellID string

// State is the epidemic state of one cell for one cycle. Every per segment
// field is a fraction of that segment's population. Phase 0 of Exposed,
// Infected, Asymptomatic and Recovered is the most recently entered phase.
type State struct {
	Population          float64   `json:"population" yaml:"population"`
	AgeGroupProportions []float64 `json:"age_group_proportions" yaml:"age_group_proportions"`

	Susceptible  []float64   `json:"susceptible" yaml:"susceptible"`
	Exposed      [][]float64 `json:"exposed" yaml:"exposed"`
	Infected     [][]float64 `json:"infected" yaml:"infected"`
	Asymptomatic [][]float64 `json:"asymptomatic" yaml:"asymptomatic"`
	Recovered    [][]float64 `json:"recovered" yaml:"recovered"`
	Fatalities   []float64   `json:"fatalities" yaml:"fatalities"`
	Disobedient  []float64   `json:"disobedient" yaml:"disobedient"`

	HospitalCapacity float64 `json:"hospital_capacity" yaml:"hospital_capacity"`
	FatalityModifier float64 `json:"fatality_modifier" yaml:"fatality_modifier"`

	Trackers map[CellID]*HysteresisTracker `json:"trackers,omitempty" yaml:"trackers,omitempty"`
}

// NumSegments returns the number of age segments in the state.
func (s *State) NumSegments() int {
	return len(s.Susceptible)
}

// weight is the share of the cell population living in segment seg. States
// without proportions weigh every segment equally.
func (s *State) weight(seg int) float64 {
	if len(s.AgeGroupProportions) == len(s.Susceptible) {
		return s.AgeGroupProportions[seg]
	}
	return 1 / float64(len(s.Susceptible))
}

func (s *State) weighted(field [][]float64) float64 {
	total := 0.0
	for seg, phases := range field {
		total += s.weight(seg) * sum(phases)
	}
	return total
}

func (s *State) weightedPhase(field [][]float64, phase int) float64 {
	total := 0.0
	for seg, phases := range field {
		if phase < len(phases) {
			total += s.weight(seg) * phases[phase]
		}
	}
	return total
}

// TotalInfections is the symptomatic infected share of the whole cell.
func (s *State) TotalInfections() float64 {
	return s.weighted(s.Infected)
}

// TotalAsymptomatic is the asymptomatic infectious share of the whole cell.
func (s *State) TotalAsymptomatic() float64 {
	return s.weighted(s.Asymptomatic)
}

// InfectedPhase is the cell-wide symptomatic share in one infectious phase.
func (s *State) InfectedPhase(phase int) float64 {
	return s.weightedPhase(s.Infected, phase)
}

// AsymptomaticPhase is the cell-wide asymptomatic share in one infectious phase.
func (s *State) AsymptomaticPhase(phase int) float64 {
	return s.weightedPhase(s.Asymptomatic, phase)
}

// SegmentTotal sums every compartment of one segment. It is 1 for a
// conserved state.
func (s *State) SegmentTotal(seg int) float64 {
	return s.Susceptible[seg] +
		sum(s.Exposed[seg]) +
		sum(s.Infected[seg]) +
		sum(s.Asymptomatic[seg]) +
		sum(s.Recovered[seg]) +
		s.Fatalities[seg]
}

// CheckConservation verifies every segment sums to 1 within tol and that no
// compartment is negative.
func (s *State) CheckConservation(tol float64) error {
	for seg := range s.Susceptible {
		if total := s.SegmentTotal(seg); math.Abs(total-1) > tol {
			return fmt.Errorf("%w: segment %d sums to %.9f", ErrConservationViolation, seg, total)
		}
		values := []float64{s.Susceptible[seg], s.Fatalities[seg]}
		values = append(values, s.Exposed[seg]...)
		values = append(values, s.Infected[seg]...)
		values = append(values, s.Asymptomatic[seg]...)
		values = append(values, s.Recovered[seg]...)
		for _, v := range values {
			if v < 0 {
				return fmt.Errorf("%w: segment %d has negative compartment %g", ErrConservationViolation, seg, v)
			}
		}
	}
	return nil
}

// Totals is a population weighted summary of a state.
type Totals struct {
	Susceptible  float64 `json:"susceptible"`
	Exposed      float64 `json:"exposed"`
	Infected     float64 `json:"infected"`
	Asymptomatic float64 `json:"asymptomatic"`
	Recovered    float64 `json:"recovered"`
	Fatalities   float64 `json:"fatalities"`
}

// Totals collapses the segments into cell-wide shares.
func (s *State) Totals() Totals {
	t := Totals{
		Exposed:      s.weighted(s.Exposed),
		Infected:     s.TotalInfections(),
		Asymptomatic: s.TotalAsymptomatic(),
		Recovered:    s.weighted(s.Recovered),
	}
	for seg := range s.Susceptible {
		t.Susceptible += s.weight(seg) * s.Susceptible[seg]
		t.Fatalities += s.weight(seg) * s.Fatalities[seg]
	}
	return t
}

// Clone returns a deep copy, trackers included.
func (s State) Clone() State {
	out := s
	out.AgeGroupProportions = slices.Clone(s.AgeGroupProportions)
	out.Susceptible = slices.Clone(s.Susceptible)
	out.Exposed = clone2D(s.Exposed)
	out.Infected = clone2D(s.Infected)
	out.Asymptomatic = clone2D(s.Asymptomatic)
	out.Recovered = clone2D(s.Recovered)
	out.Fatalities = slices.Clone(s.Fatalities)
	out.Disobedient = slices.Clone(s.Disobedient)
	if s.Trackers != nil {
		out.Trackers = make(map[CellID]*HysteresisTracker, len(s.Trackers))
		for id, t := range s.Trackers {
			if t == nil {
				continue
			}
			cp := *t
			out.Trackers[id] = &cp
		}
	}
	return out
}

// checkShape verifies the state can be advanced with the given rates.
func (s *State) checkShape(rates *Rates) error {
	segments := rates.NumSegments()
	perSegment := map[string]int{
		"susceptible":  len(s.Susceptible),
		"exposed":      len(s.Exposed),
		"infected":     len(s.Infected),
		"asymptomatic": len(s.Asymptomatic),
		"recovered":    len(s.Recovered),
		"fatalities":   len(s.Fatalities),
		"disobedient":  len(s.Disobedient),
	}
	for _, name := range slices.Sorted(maps.Keys(perSegment)) {
		if perSegment[name] != segments {
			return fmt.Errorf("%w: %s has %d segments, rates have %d", ErrShapeMismatch, name, perSegment[name], segments)
		}
	}
	if n := len(s.AgeGroupProportions); n != 0 && n != segments {
		return fmt.Errorf("%w: age group proportions have %d segments, rates have %d", ErrShapeMismatch, n, segments)
	}

	minRecovered := 1
	if !rates.WaningImmunity {
		minRecovered = 2
	}
	for seg := range segments {
		if got, want := len(s.Exposed[seg]), len(rates.Incubation[seg]); got != want {
			return fmt.Errorf("%w: segment %d has %d exposed phases, incubation has %d", ErrShapeMismatch, seg, got, want)
		}
		phases := rates.InfectiousPhases(seg)
		if len(s.Infected[seg]) != phases || len(s.Asymptomatic[seg]) != phases {
			return fmt.Errorf("%w: segment %d infectious phases (%d infected, %d asymptomatic) differ from rates (%d)",
				ErrShapeMismatch, seg, len(s.Infected[seg]), len(s.Asymptomatic[seg]), phases)
		}
		if len(s.Recovered[seg]) < minRecovered {
			return fmt.Errorf("%w: segment %d needs at least %d recovery phases, has %d", ErrShapeMismatch, seg, minRecovered, len(s.Recovered[seg]))
		}
	}
	return nil
}

func sum(values []float64) float64 {
	total := 0.0
	for _, v := range values {
		total += v
	}
	return total
}

func clone2D(in [][]float64) [][]float64 {
	if in == nil {
		return nil
	}
	out := make([][]float64, len(in))
	for i, row := range in {
		out[i] = slices.Clone(row)
	}
	return out
}
