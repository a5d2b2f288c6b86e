package epi

// CorrectionFactorConfig is one row of a neighbor's mobility correction table.
type CorrectionFactorConfig struct {
	Threshold  float64 `json:"threshold" yaml:"threshold"`
	Factor     float64 `json:"factor" yaml:"factor"`
	Hysteresis float64 `json:"hysteresis" yaml:"hysteresis"`
}

// NeighborConfig describes the vicinity from a cell to one neighbor. A cell
// must list itself among its neighbors.
type NeighborConfig struct {
	ID                string                   `json:"id" yaml:"id"`
	Correlation       float64                  `json:"correlation" yaml:"correlation"`
	CorrectionFactors []CorrectionFactorConfig `json:"correction_factors,omitempty" yaml:"correction_factors,omitempty"`
}

// StateConfig is an explicit initial state. Outer index: age segment.
type StateConfig struct {
	Susceptible  []float64   `json:"susceptible" yaml:"susceptible"`
	Exposed      [][]float64 `json:"exposed" yaml:"exposed"`
	Infected     [][]float64 `json:"infected" yaml:"infected"`
	Asymptomatic [][]float64 `json:"asymptomatic" yaml:"asymptomatic"`
	Recovered    [][]float64 `json:"recovered" yaml:"recovered"`
	Fatalities   []float64   `json:"fatalities" yaml:"fatalities"`
}

// CellConfig describes one cell. Without State the initial state is built
// from InitialInfected, the per segment share placed in the first infectious
// phase (split by the asymptomatic fraction), with everyone else susceptible.
type CellConfig struct {
	ID                  string           `json:"id" yaml:"id"`
	Population          float64          `json:"population,omitempty" yaml:"population,omitempty"`
	AgeGroupProportions []float64        `json:"age_group_proportions,omitempty" yaml:"age_group_proportions,omitempty"`
	Disobedient         []float64        `json:"disobedient,omitempty" yaml:"disobedient,omitempty"`
	HospitalCapacity    *float64         `json:"hospital_capacity,omitempty" yaml:"hospital_capacity,omitempty"`
	FatalityModifier    *float64         `json:"fatality_modifier,omitempty" yaml:"fatality_modifier,omitempty"`
	InitialInfected     []float64        `json:"initial_infected,omitempty" yaml:"initial_infected,omitempty"`
	State               *StateConfig     `json:"state,omitempty" yaml:"state,omitempty"`
	Neighbors           []NeighborConfig `json:"neighbors" yaml:"neighbors"`
}

// RatesConfig is the shared rate configuration of a scenario.
type RatesConfig struct {
	Virulence            [][]float64 `json:"virulence" yaml:"virulence"`
	Incubation           [][]float64 `json:"incubation" yaml:"incubation"`
	Recovery             [][]float64 `json:"recovery" yaml:"recovery"`
	Mobility             [][]float64 `json:"mobility" yaml:"mobility"`
	Fatality             [][]float64 `json:"fatality" yaml:"fatality"`
	AsymptomaticFraction float64     `json:"asymptomatic_fraction" yaml:"asymptomatic_fraction"`
	PrecisionDivider     int         `json:"precision_divider" yaml:"precision_divider"`
	WaningImmunity       bool        `json:"waning_immunity" yaml:"waning_immunity"`

	// RecoveryPhases is the number of recovery phases every segment tracks.
	RecoveryPhases int `json:"recovery_phases" yaml:"recovery_phases"`
}

// ScenarioConfig is the file format loaded by the binaries.
type ScenarioConfig struct {
	Name  string       `json:"name" yaml:"name"`
	Rates RatesConfig  `json:"rates" yaml:"rates"`
	Cells []CellConfig `json:"cells" yaml:"cells"`
}
