package epi

import (
	"cmp"
	"fmt"
	"slices"
	"sort"
)

// CorrectionEntry is one row of a mobility correction table: once the
// infectious load reaches Threshold, inflow is scaled by Factor, and the
// restriction holds until the load drops to Threshold-Hysteresis.
type CorrectionEntry struct {
	Threshold  float64 `json:"threshold" yaml:"threshold"`
	Factor     float64 `json:"factor" yaml:"factor"`
	Hysteresis float64 `json:"hysteresis" yaml:"hysteresis"`
}

// CorrectionTable is kept in ascending threshold order.
type CorrectionTable []CorrectionEntry

// NewCorrectionTable sorts the entries by threshold. Duplicate thresholds
// are rejected.
func NewCorrectionTable(entries ...CorrectionEntry) (CorrectionTable, error) {
	table := slices.Clone(CorrectionTable(entries))
	slices.SortFunc(table, func(a, b CorrectionEntry) int {
		return cmp.Compare(a.Threshold, b.Threshold)
	})
	for i := 1; i < len(table); i++ {
		if table[i].Threshold == table[i-1].Threshold {
			return nil, fmt.Errorf("duplicate correction threshold %g", table[i].Threshold)
		}
	}
	return table, nil
}

// Floor returns the index of the entry with the greatest threshold not
// exceeding load. ok is false when load is below every threshold.
func (t CorrectionTable) Floor(load float64) (idx int, ok bool) {
	i := sort.Search(len(t), func(i int) bool { return t[i].Threshold > load })
	if i == 0 {
		return 0, false
	}
	return i - 1, true
}

// upperBound is the threshold of the entry after idx, or the entry's own
// threshold when it is the last one.
func (t CorrectionTable) upperBound(idx int) float64 {
	if idx+1 < len(t) {
		return t[idx+1].Threshold
	}
	return t[idx].Threshold
}

// Vicinity describes the connection from a cell to one neighbor (itself
// included).
type Vicinity struct {
	Correlation float64         `json:"correlation" yaml:"correlation"`
	Correction  CorrectionTable `json:"correction_factors" yaml:"correction_factors"`
}
