package epi

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultHospitalCapacity = 1.0
	defaultFatalityModifier = 1.0
)

// Rates converts the configuration into the engine's rate tables.
func (rc RatesConfig) Rates() *Rates {
	return &Rates{
		Virulence:            clone2D(rc.Virulence),
		Incubation:           clone2D(rc.Incubation),
		Recovery:             clone2D(rc.Recovery),
		Mobility:             clone2D(rc.Mobility),
		Fatality:             clone2D(rc.Fatality),
		AsymptomaticFraction: rc.AsymptomaticFraction,
		PrecisionDivider:     rc.PrecisionDivider,
		WaningImmunity:       rc.WaningImmunity,
	}
}

// ValidateScenarioConfig checks a scenario and reports every issue found.
func ValidateScenarioConfig(cfg ScenarioConfig) error {
	verr := newValidationError(ErrInvalidScenario)

	if cfg.Name == "" {
		verr.Add("scenario name is required")
	}

	rates := cfg.Rates.Rates()
	segments := 0
	if err := rates.Validate(); err != nil {
		verr.Add(err.Error())
	} else {
		segments = rates.NumSegments()
		validateRateRanges(cfg.Rates, verr)
	}
	if cfg.Rates.AsymptomaticFraction < 0 || cfg.Rates.AsymptomaticFraction > 1 {
		verr.Addf("asymptomatic fraction %g is outside [0,1]", cfg.Rates.AsymptomaticFraction)
	}
	minRecovery := 1
	if !cfg.Rates.WaningImmunity {
		minRecovery = 2
	}
	if cfg.Rates.RecoveryPhases < minRecovery {
		verr.Addf("recovery_phases must be at least %d, got %d", minRecovery, cfg.Rates.RecoveryPhases)
	}

	if len(cfg.Cells) == 0 {
		verr.Add("scenario has no cells")
	}
	cellIDs := make(map[string]bool, len(cfg.Cells))
	for i, cell := range cfg.Cells {
		switch {
		case cell.ID == "":
			verr.Addf("cell at index %d: cell ID is required", i)
		case cellIDs[cell.ID]:
			verr.Add("duplicate cell ID: " + cell.ID)
		default:
			cellIDs[cell.ID] = true
		}
	}

	for i, cell := range cfg.Cells {
		prefix := fmt.Sprintf("cell at index %d", i)
		if cell.ID != "" {
			prefix = "cell '" + cell.ID + "'"
		}
		validateCellConfig(cell, prefix, segments, cellIDs, verr)
	}

	return verr.errOrNil()
}

func validateRateRanges(rc RatesConfig, verr *ValidationError) {
	fractions := []struct {
		name  string
		table [][]float64
	}{
		{"incubation", rc.Incubation},
		{"recovery", rc.Recovery},
		{"fatality", rc.Fatality},
	}
	for _, t := range fractions {
		for seg, phases := range t.table {
			for i, v := range phases {
				if v < 0 || v > 1 {
					verr.Addf("%s rate of segment %d phase %d is outside [0,1]: %g", t.name, seg, i, v)
				}
			}
		}
	}
	for _, t := range [][][]float64{rc.Virulence, rc.Mobility} {
		for seg, phases := range t {
			for i, v := range phases {
				if v < 0 {
					verr.Addf("negative contact rate in segment %d phase %d: %g", seg, i, v)
				}
			}
		}
	}
}

func validateCellConfig(cell CellConfig, prefix string, segments int, cellIDs map[string]bool, verr *ValidationError) {
	if cell.Population < 0 {
		verr.Addf("%s: population cannot be negative", prefix)
	}

	perSegment := []struct {
		name   string
		values []float64
	}{
		{"age_group_proportions", cell.AgeGroupProportions},
		{"disobedient", cell.Disobedient},
		{"initial_infected", cell.InitialInfected},
	}
	for _, f := range perSegment {
		if len(f.values) == 0 {
			continue
		}
		if segments > 0 && len(f.values) != segments {
			verr.Addf("%s: %s has %d segments, rates have %d", prefix, f.name, len(f.values), segments)
		}
		for _, v := range f.values {
			if v < 0 || v > 1 {
				verr.Addf("%s: %s value %g is outside [0,1]", prefix, f.name, v)
				break
			}
		}
	}
	if len(cell.AgeGroupProportions) > 0 && math.Abs(sum(cell.AgeGroupProportions)-1) > 1e-6 {
		verr.Addf("%s: age_group_proportions must sum to 1", prefix)
	}
	if cell.HospitalCapacity != nil && *cell.HospitalCapacity < 0 {
		verr.Addf("%s: hospital_capacity cannot be negative", prefix)
	}
	if cell.FatalityModifier != nil && *cell.FatalityModifier < 0 {
		verr.Addf("%s: fatality_modifier cannot be negative", prefix)
	}
	if cell.State != nil && len(cell.InitialInfected) > 0 {
		verr.Addf("%s: state and initial_infected are mutually exclusive", prefix)
	}

	hasSelf := false
	seen := make(map[string]bool, len(cell.Neighbors))
	for j, n := range cell.Neighbors {
		nprefix := fmt.Sprintf("%s neighbor at index %d", prefix, j)
		switch {
		case n.ID == "":
			verr.Addf("%s: neighbor ID is required", nprefix)
			continue
		case !cellIDs[n.ID]:
			verr.Addf("%s: neighbor '%s' does not exist", nprefix, n.ID)
		case seen[n.ID]:
			verr.Addf("%s: duplicate neighbor '%s'", nprefix, n.ID)
		}
		seen[n.ID] = true
		if n.ID == cell.ID {
			hasSelf = true
		}
		if n.Correlation < 0 {
			verr.Addf("%s: correlation cannot be negative", nprefix)
		}

		thresholds := make(map[float64]bool, len(n.CorrectionFactors))
		for _, cf := range n.CorrectionFactors {
			if thresholds[cf.Threshold] {
				verr.Addf("%s: duplicate correction threshold %g", nprefix, cf.Threshold)
			}
			thresholds[cf.Threshold] = true
			if cf.Factor < 0 || cf.Factor > 1 {
				verr.Addf("%s: correction factor %g is outside [0,1]", nprefix, cf.Factor)
			}
			if cf.Hysteresis < 0 {
				verr.Addf("%s: hysteresis cannot be negative", nprefix)
			}
		}
	}
	if cell.ID != "" && !hasSelf {
		verr.Addf("%s: a cell must list itself as a neighbor", prefix)
	}
}

// BuildGridFromConfig validates the scenario and builds a grid with id.
func BuildGridFromConfig(id GridID, cfg ScenarioConfig) (*Grid, error) {
	if err := ValidateScenarioConfig(cfg); err != nil {
		return nil, err
	}
	rates := cfg.Rates.Rates()

	cells := make([]*Cell, 0, len(cfg.Cells))
	for _, cc := range cfg.Cells {
		vicinities, err := buildVicinities(cc)
		if err != nil {
			return nil, fmt.Errorf("cell %s: %w", cc.ID, err)
		}
		cell, err := NewCell(CellID(cc.ID), vicinities, initialState(cc, cfg.Rates), rates)
		if err != nil {
			return nil, err
		}
		cells = append(cells, cell)
	}
	return NewGrid(id, cells...)
}

func buildVicinities(cc CellConfig) (map[CellID]Vicinity, error) {
	vicinities := make(map[CellID]Vicinity, len(cc.Neighbors))
	for _, n := range cc.Neighbors {
		entries := make([]CorrectionEntry, 0, len(n.CorrectionFactors))
		for _, cf := range n.CorrectionFactors {
			entries = append(entries, CorrectionEntry(cf))
		}
		table, err := NewCorrectionTable(entries...)
		if err != nil {
			return nil, fmt.Errorf("neighbor %s: %w", n.ID, err)
		}
		vicinities[CellID(n.ID)] = Vicinity{Correlation: n.Correlation, Correction: table}
	}
	return vicinities, nil
}

func initialState(cc CellConfig, rc RatesConfig) State {
	segments := len(rc.Virulence)
	st := State{
		Population:          cc.Population,
		AgeGroupProportions: append([]float64(nil), cc.AgeGroupProportions...),
		Disobedient:         make([]float64, segments),
		HospitalCapacity:    defaultHospitalCapacity,
		FatalityModifier:    defaultFatalityModifier,
	}
	copy(st.Disobedient, cc.Disobedient)
	if cc.HospitalCapacity != nil {
		st.HospitalCapacity = *cc.HospitalCapacity
	}
	if cc.FatalityModifier != nil {
		st.FatalityModifier = *cc.FatalityModifier
	}

	if cc.State != nil {
		st.Susceptible = append([]float64(nil), cc.State.Susceptible...)
		st.Exposed = clone2D(cc.State.Exposed)
		st.Infected = clone2D(cc.State.Infected)
		st.Asymptomatic = clone2D(cc.State.Asymptomatic)
		st.Recovered = clone2D(cc.State.Recovered)
		st.Fatalities = append([]float64(nil), cc.State.Fatalities...)
		if st.Fatalities == nil {
			st.Fatalities = make([]float64, len(st.Susceptible))
		}
		return st
	}

	st.Susceptible = make([]float64, segments)
	st.Exposed = make([][]float64, segments)
	st.Infected = make([][]float64, segments)
	st.Asymptomatic = make([][]float64, segments)
	st.Recovered = make([][]float64, segments)
	st.Fatalities = make([]float64, segments)
	for seg := range segments {
		seed := 0.0
		if seg < len(cc.InitialInfected) {
			seed = cc.InitialInfected[seg]
		}
		st.Susceptible[seg] = 1 - seed
		st.Exposed[seg] = make([]float64, len(rc.Incubation[seg]))
		st.Infected[seg] = make([]float64, len(rc.Virulence[seg]))
		st.Asymptomatic[seg] = make([]float64, len(rc.Virulence[seg]))
		st.Recovered[seg] = make([]float64, rc.RecoveryPhases)
		// Recoveries are later split by the asymptomatic fraction, so the
		// seed is split the same way.
		st.Infected[seg][0] = (1 - rc.AsymptomaticFraction) * seed
		st.Asymptomatic[seg][0] = rc.AsymptomaticFraction * seed
	}
	return st
}

// ParseScenario decodes a scenario. format is "yaml" or "json".
func ParseScenario(data []byte, format string) (ScenarioConfig, error) {
	var cfg ScenarioConfig
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return ScenarioConfig{}, fmt.Errorf("parsing scenario YAML: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return ScenarioConfig{}, fmt.Errorf("parsing scenario JSON: %w", err)
		}
	default:
		return ScenarioConfig{}, fmt.Errorf("unsupported scenario format %q", format)
	}
	return cfg, nil
}

// LoadScenarioFile reads and validates a scenario file. Files ending in .yaml
// or .yml are YAML, anything else JSON.
func LoadScenarioFile(path string) (ScenarioConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ScenarioConfig{}, fmt.Errorf("reading scenario file: %w", err)
	}

	format := "json"
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = "yaml"
	}
	cfg, err := ParseScenario(data, format)
	if err != nil {
		return ScenarioConfig{}, err
	}
	if err := ValidateScenarioConfig(cfg); err != nil {
		return ScenarioConfig{}, fmt.Errorf("validating scenario: %w", err)
	}
	return cfg, nil
}
