package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/daniacca/epicell/internal/epi"
)

// ScenarioBuilder provides a fluent API for building scenarios.
// A scenario is the shared rate configuration plus the cells of a grid.
type ScenarioBuilder struct {
	name  string
	rates *RatesBuilder
	cells []*CellBuilder
}

// NewScenario creates a new scenario builder with the given name.
func NewScenario(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		name:  name,
		rates: NewRates(),
		cells: make([]*CellBuilder, 0),
	}
}

// Rates sets the rate configuration shared by every cell.
func (sb *ScenarioBuilder) Rates(rb *RatesBuilder) *ScenarioBuilder {
	sb.rates = rb
	return sb
}

// Cell adds a cell to the scenario.
func (sb *ScenarioBuilder) Cell(cb *CellBuilder) *ScenarioBuilder {
	sb.cells = append(sb.cells, cb)
	return sb
}

// Build converts the builder to a ScenarioConfig. The result is not
// validated; the server rejects invalid scenarios.
func (sb *ScenarioBuilder) Build() epi.ScenarioConfig {
	cells := make([]epi.CellConfig, 0, len(sb.cells))
	for _, cb := range sb.cells {
		cells = append(cells, cb.Build())
	}
	return epi.ScenarioConfig{
		Name:  sb.name,
		Rates: sb.rates.Build(),
		Cells: cells,
	}
}

// Validate runs the same checks the server applies on upload.
func (sb *ScenarioBuilder) Validate() error {
	return epi.ValidateScenarioConfig(sb.Build())
}

// RatesBuilder provides a fluent API for the rate tables. Every table takes
// one row per age segment; a row holds one value per phase.
type RatesBuilder struct {
	cfg epi.RatesConfig
}

// NewRates creates a rates builder with a precision divider of 1e6, waning
// immunity and a single recovery phase.
func NewRates() *RatesBuilder {
	return &RatesBuilder{cfg: epi.RatesConfig{
		PrecisionDivider: 1000000,
		WaningImmunity:   true,
		RecoveryPhases:   1,
	}}
}

// Virulence sets the per infectious phase contagion rates.
func (rb *RatesBuilder) Virulence(rows ...[]float64) *RatesBuilder {
	rb.cfg.Virulence = rows
	return rb
}

// Incubation sets the per exposed phase rate of turning infectious.
func (rb *RatesBuilder) Incubation(rows ...[]float64) *RatesBuilder {
	rb.cfg.Incubation = rows
	return rb
}

// Recovery sets the per infectious phase recovery rates.
func (rb *RatesBuilder) Recovery(rows ...[]float64) *RatesBuilder {
	rb.cfg.Recovery = rows
	return rb
}

// Mobility sets the per infectious phase mobility rates.
func (rb *RatesBuilder) Mobility(rows ...[]float64) *RatesBuilder {
	rb.cfg.Mobility = rows
	return rb
}

// Fatality sets the per infectious phase fatality rates.
func (rb *RatesBuilder) Fatality(rows ...[]float64) *RatesBuilder {
	rb.cfg.Fatality = rows
	return rb
}

func (rb *RatesBuilder) AsymptomaticFraction(a float64) *RatesBuilder {
	rb.cfg.AsymptomaticFraction = a
	return rb
}

func (rb *RatesBuilder) PrecisionDivider(d int) *RatesBuilder {
	rb.cfg.PrecisionDivider = d
	return rb
}

// WaningImmunity selects whether the last recovery phase flows back into
// susceptibles (true) or accumulates (false).
func (rb *RatesBuilder) WaningImmunity(waning bool) *RatesBuilder {
	rb.cfg.WaningImmunity = waning
	return rb
}

func (rb *RatesBuilder) RecoveryPhases(n int) *RatesBuilder {
	rb.cfg.RecoveryPhases = n
	return rb
}

// Build returns a copy of the rate configuration.
func (rb *RatesBuilder) Build() epi.RatesConfig {
	return rb.cfg
}

// CellBuilder provides a fluent API for one cell and its vicinities.
type CellBuilder struct {
	cfg epi.CellConfig
}

// NewCell creates a cell builder. The cell's own vicinity is added with a
// correlation of 1; override it with Neighbor(id, ...) using the cell's ID.
func NewCell(id string) *CellBuilder {
	return &CellBuilder{cfg: epi.CellConfig{
		ID:        id,
		Neighbors: []epi.NeighborConfig{{ID: id, Correlation: 1}},
	}}
}

func (cb *CellBuilder) Population(p float64) *CellBuilder {
	cb.cfg.Population = p
	return cb
}

// AgeGroups sets the share of the population in each age segment.
func (cb *CellBuilder) AgeGroups(proportions ...float64) *CellBuilder {
	cb.cfg.AgeGroupProportions = proportions
	return cb
}

// Disobedient sets the per segment share that ignores mobility restrictions.
func (cb *CellBuilder) Disobedient(shares ...float64) *CellBuilder {
	cb.cfg.Disobedient = shares
	return cb
}

func (cb *CellBuilder) HospitalCapacity(c float64) *CellBuilder {
	cb.cfg.HospitalCapacity = &c
	return cb
}

func (cb *CellBuilder) FatalityModifier(m float64) *CellBuilder {
	cb.cfg.FatalityModifier = &m
	return cb
}

// InitialInfected seeds each segment with the given infectious share.
func (cb *CellBuilder) InitialInfected(shares ...float64) *CellBuilder {
	cb.cfg.InitialInfected = shares
	return cb
}

// Neighbor adds a vicinity, or replaces the existing one with the same ID.
func (cb *CellBuilder) Neighbor(nb *NeighborBuilder) *CellBuilder {
	n := nb.Build()
	for i := range cb.cfg.Neighbors {
		if cb.cfg.Neighbors[i].ID == n.ID {
			cb.cfg.Neighbors[i] = n
			return cb
		}
	}
	cb.cfg.Neighbors = append(cb.cfg.Neighbors, n)
	return cb
}

// Build returns the cell configuration.
func (cb *CellBuilder) Build() epi.CellConfig {
	out := cb.cfg
	out.Neighbors = append([]epi.NeighborConfig(nil), cb.cfg.Neighbors...)
	return out
}

// NeighborBuilder describes the vicinity towards one neighbor cell.
type NeighborBuilder struct {
	cfg epi.NeighborConfig
}

// NewNeighbor creates a vicinity towards id with the given correlation.
func NewNeighbor(id string, correlation float64) *NeighborBuilder {
	return &NeighborBuilder{cfg: epi.NeighborConfig{ID: id, Correlation: correlation}}
}

// Restrict adds a correction table row: once the neighbor's symptomatic load
// reaches threshold, mobility towards it is multiplied by factor until the
// load drops below threshold-hysteresis.
func (nb *NeighborBuilder) Restrict(threshold, factor, hysteresis float64) *NeighborBuilder {
	nb.cfg.CorrectionFactors = append(nb.cfg.CorrectionFactors, epi.CorrectionFactorConfig{
		Threshold:  threshold,
		Factor:     factor,
		Hysteresis: hysteresis,
	})
	return nb
}

func (nb *NeighborBuilder) Build() epi.NeighborConfig {
	return nb.cfg
}

// ApplyScenario sends the scenario to an epicell server, creating or
// replacing the grid gridID. The baseURL is the server's base URL
// (e.g., "http://localhost:8080").
func ApplyScenario(ctx context.Context, baseURL, gridID string, scenario *ScenarioBuilder) error {
	jsonData, err := json.Marshal(scenario.Build())
	if err != nil {
		return fmt.Errorf("failed to marshal scenario: %w", err)
	}

	u, err := url.JoinPath(baseURL, "grid", gridID, "scenario")
	if err != nil {
		return fmt.Errorf("failed to build URL: %w", err)
	}
	_, err = do(ctx, http.MethodPost, u, bytes.NewReader(jsonData))
	return err
}

// Tick advances the grid by cycles and returns its new time.
func Tick(ctx context.Context, baseURL, gridID string, cycles int) (int64, error) {
	u, err := url.JoinPath(baseURL, "grid", gridID, "tick")
	if err != nil {
		return 0, fmt.Errorf("failed to build URL: %w", err)
	}
	u += "?cycles=" + strconv.Itoa(cycles)

	body, err := do(ctx, http.MethodPost, u, nil)
	if err != nil {
		return 0, err
	}
	var resp struct {
		Time int64 `json:"time"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("failed to decode response: %w", err)
	}
	return resp.Time, nil
}

// GetSnapshot fetches the full state of every cell of the grid.
func GetSnapshot(ctx context.Context, baseURL, gridID string) (epi.Snapshot, error) {
	u, err := url.JoinPath(baseURL, "grid", gridID, "snapshot")
	if err != nil {
		return epi.Snapshot{}, fmt.Errorf("failed to build URL: %w", err)
	}
	body, err := do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return epi.Snapshot{}, err
	}
	return epi.DecodeSnapshotJSON(body)
}

// SeriesPoint is one recorded cycle of a cell.
type SeriesPoint struct {
	Cycle  int64      `json:"cycle"`
	Totals epi.Totals `json:"totals"`
}

// CellSeries is the recorded history of one cell.
type CellSeries struct {
	GridID    string        `json:"grid_id"`
	CellID    string        `json:"cell_id"`
	LastCycle int64         `json:"last_cycle"`
	Points    []SeriesPoint `json:"points"`
}

// GetCellSeries fetches every recorded cycle of one cell. The server must run
// with a state log.
func GetCellSeries(ctx context.Context, baseURL, gridID, cellID string) (CellSeries, error) {
	u, err := url.JoinPath(baseURL, "grid", gridID, "cells", cellID, "series")
	if err != nil {
		return CellSeries{}, fmt.Errorf("failed to build URL: %w", err)
	}
	body, err := do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return CellSeries{}, err
	}
	var series CellSeries
	if err := json.Unmarshal(body, &series); err != nil {
		return CellSeries{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return series, nil
}

// do sends the request and returns the body of a 2xx response.
func do(ctx context.Context, method, u string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("server returned status %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}
