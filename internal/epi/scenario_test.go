package epi

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func validScenario() ScenarioConfig {
	return ScenarioConfig{
		Name: "pair",
		Rates: RatesConfig{
			Virulence:            [][]float64{{0.5, 0.3}},
			Incubation:           [][]float64{{0.5}},
			Recovery:             [][]float64{{0.2, 0.5}},
			Mobility:             [][]float64{{1, 0.5}},
			Fatality:             [][]float64{{0.01, 0.02}},
			AsymptomaticFraction: 0.4,
			PrecisionDivider:     1000000,
			WaningImmunity:       false,
			RecoveryPhases:       3,
		},
		Cells: []CellConfig{
			{
				ID:              "a",
				Population:      1000,
				InitialInfected: []float64{0.05},
				Neighbors: []NeighborConfig{
					{ID: "a", Correlation: 1},
					{ID: "b", Correlation: 0.5, CorrectionFactors: []CorrectionFactorConfig{
						{Threshold: 0.1, Factor: 0.5, Hysteresis: 0.02},
					}},
				},
			},
			{
				ID:         "b",
				Population: 2000,
				Neighbors: []NeighborConfig{
					{ID: "b", Correlation: 1},
					{ID: "a", Correlation: 0.5},
				},
			},
		},
	}
}

func TestLoadScenarioFile_Examples(t *testing.T) {
	tests := []struct {
		path  string
		name  string
		cells int
	}{
		{corridorScenario, "corridor", 3},
		{isolatedScenario, "isolated", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := LoadScenarioFile(tt.path)
			if err != nil {
				t.Fatalf("LoadScenarioFile: %v", err)
			}
			if cfg.Name != tt.name || len(cfg.Cells) != tt.cells {
				t.Errorf("Expected %s with %d cells, got %s with %d", tt.name, tt.cells, cfg.Name, len(cfg.Cells))
			}
		})
	}
}

func TestLoadScenarioFile_Errors(t *testing.T) {
	dir := t.TempDir()

	if _, err := LoadScenarioFile(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("Expected error for a missing file")
	}

	broken := filepath.Join(dir, "broken.yaml")
	if err := os.WriteFile(broken, []byte("name: [unclosed"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadScenarioFile(broken); err == nil {
		t.Error("Expected error for malformed YAML")
	}

	invalid := filepath.Join(dir, "invalid.json")
	if err := os.WriteFile(invalid, []byte(`{"name": "x", "cells": []}`), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadScenarioFile(invalid); !errors.Is(err, ErrInvalidScenario) {
		t.Errorf("Expected ErrInvalidScenario, got %v", err)
	}
}

func TestParseScenario_Formats(t *testing.T) {
	yamlDoc := `
name: tiny
rates:
  virulence: [[0.5]]
  incubation: [[0.5]]
  recovery: [[0.5]]
  mobility: [[1]]
  fatality: [[0]]
  precision_divider: 1000
  waning_immunity: true
  recovery_phases: 1
cells:
  - id: only
    neighbors:
      - id: only
        correlation: 1
`
	cfg, err := ParseScenario([]byte(yamlDoc), "yaml")
	if err != nil {
		t.Fatalf("ParseScenario(yaml): %v", err)
	}
	if cfg.Rates.PrecisionDivider != 1000 || cfg.Cells[0].Neighbors[0].ID != "only" {
		t.Errorf("Unexpected YAML decode: %+v", cfg)
	}
	if err := ValidateScenarioConfig(cfg); err != nil {
		t.Errorf("Expected valid scenario, got %v", err)
	}

	if _, err := ParseScenario([]byte(`{"name": "x"}`), "json"); err != nil {
		t.Errorf("ParseScenario(json): %v", err)
	}
	if _, err := ParseScenario([]byte("x"), "toml"); err == nil {
		t.Error("Expected error for an unsupported format")
	}
}

func TestValidateScenarioConfig(t *testing.T) {
	if err := ValidateScenarioConfig(validScenario()); err != nil {
		t.Fatalf("Expected valid scenario, got %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(cfg *ScenarioConfig)
		wantMsg string
	}{
		{"missing name", func(c *ScenarioConfig) { c.Name = "" }, "name is required"},
		{"inconsistent rates", func(c *ScenarioConfig) { c.Rates.Recovery = [][]float64{{0.2}} }, "recovery has 1 phases"},
		{"rate out of range", func(c *ScenarioConfig) { c.Rates.Fatality[0][1] = 1.5 }, "fatality rate of segment 0 phase 1"},
		{"asymptomatic fraction", func(c *ScenarioConfig) { c.Rates.AsymptomaticFraction = 2 }, "asymptomatic fraction"},
		{"recovery phases", func(c *ScenarioConfig) { c.Rates.RecoveryPhases = 1 }, "recovery_phases must be at least 2"},
		{"no cells", func(c *ScenarioConfig) { c.Cells = nil }, "no cells"},
		{"duplicate cell", func(c *ScenarioConfig) { c.Cells[1].ID = "a" }, "duplicate cell ID"},
		{"unknown neighbor", func(c *ScenarioConfig) { c.Cells[0].Neighbors[1].ID = "zz" }, "does not exist"},
		{"missing self", func(c *ScenarioConfig) { c.Cells[1].Neighbors = c.Cells[1].Neighbors[1:] }, "list itself"},
		{"segment mismatch", func(c *ScenarioConfig) { c.Cells[0].InitialInfected = []float64{0.1, 0.1} }, "initial_infected has 2 segments"},
		{"proportions sum", func(c *ScenarioConfig) { c.Cells[0].AgeGroupProportions = []float64{0.5} }, "must sum to 1"},
		{"state and seed", func(c *ScenarioConfig) { c.Cells[0].State = &StateConfig{} }, "mutually exclusive"},
		{
			"duplicate threshold",
			func(c *ScenarioConfig) {
				n := &c.Cells[0].Neighbors[1]
				n.CorrectionFactors = append(n.CorrectionFactors, n.CorrectionFactors[0])
			},
			"duplicate correction threshold",
		},
		{"factor range", func(c *ScenarioConfig) { c.Cells[0].Neighbors[1].CorrectionFactors[0].Factor = 1.2 }, "outside [0,1]"},
		{"negative hospital capacity", func(c *ScenarioConfig) { v := -1.0; c.Cells[0].HospitalCapacity = &v }, "hospital_capacity"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validScenario()
			tt.mutate(&cfg)
			err := ValidateScenarioConfig(cfg)
			if !errors.Is(err, ErrInvalidScenario) {
				t.Fatalf("Expected ErrInvalidScenario, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Expected error to mention %q, got %v", tt.wantMsg, err)
			}
		})
	}
}

func TestBuildGridFromConfig(t *testing.T) {
	grid, err := BuildGridFromConfig("pair", validScenario())
	if err != nil {
		t.Fatalf("BuildGridFromConfig: %v", err)
	}
	if ids := grid.CellIDs(); len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("Expected cells [a b], got %v", ids)
	}

	a, _ := grid.Cell("a")
	st := a.State()
	// The seed is split by the asymptomatic fraction.
	assertApprox(t, "infected", st.Infected[0][0], 0.03)
	assertApprox(t, "asymptomatic", st.Asymptomatic[0][0], 0.02)
	assertApprox(t, "susceptible", st.Susceptible[0], 0.95)
	if len(st.Recovered[0]) != 3 || len(st.Exposed[0]) != 1 {
		t.Errorf("Unexpected phase counts: recovered=%d exposed=%d", len(st.Recovered[0]), len(st.Exposed[0]))
	}
	if st.HospitalCapacity != 1 || st.FatalityModifier != 1 {
		t.Errorf("Expected default capacity and modifier of 1, got %g and %g", st.HospitalCapacity, st.FatalityModifier)
	}

	v, ok := a.Vicinity("b")
	if !ok || v.Correlation != 0.5 || len(v.Correction) != 1 || v.Correction[0].Hysteresis != 0.02 {
		t.Errorf("Unexpected vicinity a->b: %+v", v)
	}
	if err := st.CheckConservation(1e-12); err != nil {
		t.Errorf("Expected a conserved initial state, got %v", err)
	}
}

func TestBuildGridFromConfig_ExplicitState(t *testing.T) {
	cfg := validScenario()
	cfg.Cells[0].InitialInfected = nil
	cfg.Cells[0].State = &StateConfig{
		Susceptible:  []float64{0.7},
		Exposed:      [][]float64{{0.1}},
		Infected:     [][]float64{{0.05, 0.05}},
		Asymptomatic: [][]float64{{0.02, 0.02}},
		Recovered:    [][]float64{{0.03, 0.01, 0.02}},
	}

	grid, err := BuildGridFromConfig("pair", cfg)
	if err != nil {
		t.Fatalf("BuildGridFromConfig: %v", err)
	}
	a, _ := grid.Cell("a")
	st := a.State()
	if st.Fatalities == nil || st.Fatalities[0] != 0 {
		t.Errorf("Expected zero fatalities by default, got %v", st.Fatalities)
	}
	assertApprox(t, "recovered reservoir", st.Recovered[0][2], 0.02)
}

func TestBuildGridFromConfig_ShapeMismatch(t *testing.T) {
	cfg := validScenario()
	cfg.Cells[0].InitialInfected = nil
	cfg.Cells[0].State = &StateConfig{
		Susceptible:  []float64{1},
		Exposed:      [][]float64{{0, 0}},
		Infected:     [][]float64{{0, 0}},
		Asymptomatic: [][]float64{{0, 0}},
		Recovered:    [][]float64{{0, 0}},
	}
	if _, err := BuildGridFromConfig("pair", cfg); !errors.Is(err, ErrShapeMismatch) {
		t.Errorf("Expected ErrShapeMismatch, got %v", err)
	}
}
