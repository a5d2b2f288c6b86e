package epi

import (
	"testing"
)

func TestNewCorrectionTable_SortsByThreshold(t *testing.T) {
	table, err := NewCorrectionTable(
		CorrectionEntry{Threshold: 0.5, Factor: 0.1},
		CorrectionEntry{Threshold: 0.1, Factor: 0.8},
		CorrectionEntry{Threshold: 0.3, Factor: 0.4},
	)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, want := range []float64{0.1, 0.3, 0.5} {
		if table[i].Threshold != want {
			t.Errorf("index %d: expected threshold %g, got %g", i, want, table[i].Threshold)
		}
	}
}

func TestNewCorrectionTable_RejectsDuplicates(t *testing.T) {
	_, err := NewCorrectionTable(
		CorrectionEntry{Threshold: 0.1, Factor: 0.8},
		CorrectionEntry{Threshold: 0.1, Factor: 0.4},
	)
	if err == nil {
		t.Fatal("Expected an error for duplicate thresholds")
	}
}

func TestCorrectionTable_Floor(t *testing.T) {
	table := CorrectionTable{
		{Threshold: 0.1},
		{Threshold: 0.3},
		{Threshold: 0.5},
	}

	tests := []struct {
		name    string
		load    float64
		wantIdx int
		wantOK  bool
	}{
		{"below every threshold", 0.05, 0, false},
		{"exactly first", 0.1, 0, true},
		{"between", 0.2, 0, true},
		{"exactly middle", 0.3, 1, true},
		{"above last", 0.9, 2, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx, ok := table.Floor(tt.load)
			if ok != tt.wantOK || (ok && idx != tt.wantIdx) {
				t.Errorf("Floor(%g) = (%d, %v), expected (%d, %v)", tt.load, idx, ok, tt.wantIdx, tt.wantOK)
			}
		})
	}

	if _, ok := CorrectionTable(nil).Floor(1); ok {
		t.Error("Expected no floor in an empty table")
	}
}
