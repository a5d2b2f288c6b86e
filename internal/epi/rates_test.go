package epi

import (
	"errors"
	"strings"
	"testing"
)

func TestRates_Validate(t *testing.T) {
	if err := pinnedRates().Validate(); err != nil {
		t.Fatalf("Expected valid rates, got %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(r *Rates)
		wantMsg string
	}{
		{
			name:    "no segments",
			mutate:  func(r *Rates) { r.Virulence = nil },
			wantMsg: "no age segments",
		},
		{
			name:    "segment count differs",
			mutate:  func(r *Rates) { r.Mobility = append(r.Mobility, []float64{1, 1}) },
			wantMsg: "mobility table has 2 age segments",
		},
		{
			name:    "phase count differs",
			mutate:  func(r *Rates) { r.Fatality = [][]float64{{0}} },
			wantMsg: "fatality has 1 phases",
		},
		{
			name:    "empty incubation",
			mutate:  func(r *Rates) { r.Incubation = [][]float64{{}} },
			wantMsg: "no incubation phases",
		},
		{
			name:    "precision divider",
			mutate:  func(r *Rates) { r.PrecisionDivider = 0 },
			wantMsg: "precision divider",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := pinnedRates()
			tt.mutate(r)
			err := r.Validate()
			if !errors.Is(err, ErrInconsistentRates) {
				t.Fatalf("Expected ErrInconsistentRates, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected error to mention %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestRates_ValidateCollectsEveryIssue(t *testing.T) {
	r := pinnedRates()
	r.Recovery = [][]float64{{0}}
	r.Fatality = [][]float64{{0}}
	r.PrecisionDivider = -1

	var verr *ValidationError
	if !errors.As(r.Validate(), &verr) {
		t.Fatal("Expected a ValidationError")
	}
	if len(verr.Issues) != 3 {
		t.Errorf("Expected 3 issues, got %d: %v", len(verr.Issues), verr.Issues)
	}
}

func TestRates_IncubationMayDifferFromInfectiousPhases(t *testing.T) {
	r := pinnedRates()
	r.Incubation = [][]float64{{0.3, 0.3, 0.3, 0.3}}
	if err := r.Validate(); err != nil {
		t.Errorf("Expected incubation phases to be independent of infectious phases, got %v", err)
	}
}
