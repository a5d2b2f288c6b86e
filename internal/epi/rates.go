package epi

import "math"

// Rates holds the per age segment, per phase rate tables shared read-only by
// every cell of a grid. The outer index is the age segment, the inner index
// the phase.
type Rates struct {
	Virulence  [][]float64 `json:"virulence" yaml:"virulence"`
	Incubation [][]float64 `json:"incubation" yaml:"incubation"`
	Recovery   [][]float64 `json:"recovery" yaml:"recovery"`
	Mobility   [][]float64 `json:"mobility" yaml:"mobility"`
	Fatality   [][]float64 `json:"fatality" yaml:"fatality"`

	// AsymptomaticFraction is the share of progressing exposed individuals
	// that become asymptomatic.
	AsymptomaticFraction float64 `json:"asymptomatic_fraction" yaml:"asymptomatic_fraction"`

	// PrecisionDivider sets rounding: values are rounded to 1/PrecisionDivider.
	PrecisionDivider int `json:"precision_divider" yaml:"precision_divider"`

	// WaningImmunity selects the SIIRS variant, where the last recovery phase
	// returns to susceptible. When false recovery is permanent.
	WaningImmunity bool `json:"waning_immunity" yaml:"waning_immunity"`
}

// NumSegments returns the number of age segments the tables describe.
func (r *Rates) NumSegments() int {
	return len(r.Virulence)
}

// InfectiousPhases returns the number of infectious phases for a segment.
func (r *Rates) InfectiousPhases(seg int) int {
	return len(r.Virulence[seg])
}

// Validate performs the structural consistency check: every table covers the
// same age segments, and within a segment the infectious tables have the same
// phase count.
func (r *Rates) Validate() error {
	verr := newValidationError(ErrInconsistentRates)

	segments := len(r.Virulence)
	if segments == 0 {
		verr.Add("virulence table has no age segments")
	}
	tables := []struct {
		name  string
		table [][]float64
	}{
		{"incubation", r.Incubation},
		{"recovery", r.Recovery},
		{"mobility", r.Mobility},
		{"fatality", r.Fatality},
	}
	for _, t := range tables {
		if len(t.table) != segments {
			verr.Addf("%s table has %d age segments, virulence has %d", t.name, len(t.table), segments)
		}
	}
	if verr.HasIssues() {
		return verr
	}

	for seg := range segments {
		phases := len(r.Virulence[seg])
		if phases == 0 {
			verr.Addf("segment %d: no infectious phases", seg)
			continue
		}
		if len(r.Incubation[seg]) == 0 {
			verr.Addf("segment %d: no incubation phases", seg)
		}
		for _, t := range tables[1:] {
			if len(t.table[seg]) != phases {
				verr.Addf("segment %d: %s has %d phases, virulence has %d", seg, t.name, len(t.table[seg]), phases)
			}
		}
	}

	if r.PrecisionDivider <= 0 {
		verr.Addf("precision divider must be positive, got %d", r.PrecisionDivider)
	}
	return verr.errOrNil()
}

func (r *Rates) round(v float64) float64 {
	p := float64(r.PrecisionDivider)
	return math.Round(v*p) / p
}
