package epi

// HysteresisTracker remembers the mobility restriction currently applied on
// one neighbor relation, so a restriction does not flip on and off with every
// small fluctuation of the infectious load.
type HysteresisTracker struct {
	InEffect   bool    `json:"in_effect" yaml:"in_effect"`
	LowerBound float64 `json:"lower_bound" yaml:"lower_bound"`
	UpperBound float64 `json:"upper_bound" yaml:"upper_bound"`
	Factor     float64 `json:"factor" yaml:"factor"`
}

// CorrectionFactor returns the factor in [0,1] damping inflow for the given
// infectious load, updating tracker.
//
// For example, with the entry 0.4: (factor 0.2, hysteresis 0.1), once the load
// reaches 0.4 the factor 0.2 stays applied until the load falls to 0.3 or
// below, or grows past the next threshold of the table.
func CorrectionFactor(table CorrectionTable, load float64, tracker *HysteresisTracker) float64 {
	if tracker.InEffect && load > tracker.UpperBound {
		tracker.InEffect = false
	}

	// Strict comparison: a zero lower bound must still release at zero load.
	if tracker.InEffect && load > tracker.LowerBound {
		return tracker.Factor
	}
	tracker.InEffect = false

	idx, ok := table.Floor(load)
	if !ok {
		return 1
	}
	entry := table[idx]
	*tracker = HysteresisTracker{
		InEffect:   true,
		LowerBound: entry.Threshold - entry.Hysteresis,
		UpperBound: table.upperBound(idx),
		Factor:     entry.Factor,
	}
	return entry.Factor
}
