package epi

import (
	"fmt"
	"maps"
	"slices"
)

// noiseBand is the floating point tolerance on derived susceptibles: values in
// (-noiseBand, 0) snap to 0, anything lower is a conservation violation.
const noiseBand = 0.001

// outputDelay is the number of time units after which a new state is
// communicated to neighbors.
const outputDelay = 1

// Advance computes the next state of cell id from its previous state, the
// previous-cycle snapshots of its neighbors and the vicinity to each of them.
// prev, neighbors and vicinities are not modified; the hysteresis trackers
// of the returned state are the only values updated by the policy.
func Advance(id CellID, prev State, neighbors map[CellID]State, vicinities map[CellID]Vicinity, rates *Rates) (State, error) {
	if _, ok := vicinities[id]; !ok {
		return State{}, fmt.Errorf("cell %s: %w", id, ErrMissingSelf)
	}

	next := prev.Clone()
	if next.Trackers == nil {
		next.Trackers = make(map[CellID]*HysteresisTracker, len(vicinities))
	}

	hood := &neighborhood{
		self:       id,
		prev:       &prev,
		snapshots:  neighbors,
		vicinities: vicinities,
		ids:        slices.Sorted(maps.Keys(vicinities)),
	}
	if err := hood.evaluateRestrictions(next.Trackers); err != nil {
		return State{}, fmt.Errorf("cell %s: %w", id, err)
	}

	// Overwhelm is judged on last cycle's infections, the only ones known
	// before this cycle's outputs exist.
	overwhelmed := prev.TotalInfections() > prev.HospitalCapacity

	for seg := range prev.NumSegments() {
		if err := advanceSegment(seg, hood, &next, rates, overwhelmed); err != nil {
			return State{}, fmt.Errorf("cell %s segment %d: %w", id, seg, err)
		}
	}
	return next, nil
}

// advanceSegment writes segment seg of next. Fatalities are computed before
// recoveries because the last phase recovers everyone who did not die; both
// read the un-shifted phase populations of prev.
func advanceSegment(seg int, hood *neighborhood, next *State, rates *Rates, overwhelmed bool) error {
	prev := hood.prev
	a := rates.AsymptomaticFraction

	exposure, err := hood.newExposed(seg, rates)
	if err != nil {
		return err
	}
	newE := rates.round(exposure)

	progressing := progressingExposed(prev.Exposed[seg], rates.Incubation[seg])
	newI := rates.round((1 - a) * progressing)
	newA := rates.round(a * progressing)

	fatalities := newFatalities(prev, seg, rates, overwhelmed)
	recoveries := newRecoveries(prev, seg, rates, fatalities)

	next.Fatalities[seg] = prev.Fatalities[seg] + sum(fatalities)
	susceptible := 1 - next.Fatalities[seg]

	exposed := next.Exposed[seg]
	for i := len(exposed) - 1; i > 0; i-- {
		exposed[i] = floorShift(rates.round(prev.Exposed[seg][i-1] * (1 - rates.Incubation[seg][i-1])))
		susceptible -= exposed[i]
	}
	exposed[0] = newE
	susceptible -= newE

	infected, asymptomatic := next.Infected[seg], next.Asymptomatic[seg]
	for i := len(infected) - 1; i > 0; i-- {
		inf := prev.Infected[seg][i-1] - recoveries[i-1]*(1-a) - fatalities[i-1]
		asym := prev.Asymptomatic[seg][i-1] - recoveries[i-1]*a

		infected[i] = floorShift(rates.round(inf))
		asymptomatic[i] = floorShift(rates.round(asym))
		susceptible -= infected[i] + asymptomatic[i]
	}
	infected[0], asymptomatic[0] = newI, newA
	susceptible -= newI + newA

	recovered := next.Recovered[seg]
	top := len(recovered) - 1
	if !rates.WaningImmunity {
		// The last phase is a permanent reservoir fed by the second last.
		recovered[top] = prev.Recovered[seg][top] + prev.Recovered[seg][top-1]
		susceptible -= recovered[top]
		top--
	}
	// Under SIIRS the previous last phase is never subtracted, so it
	// returns to susceptible.
	for i := top; i > 0; i-- {
		recovered[i] = prev.Recovered[seg][i-1]
		susceptible -= recovered[i]
	}
	recovered[0] = sum(recoveries)
	susceptible -= recovered[0]

	if next.Susceptible[seg], err = clampNoise(susceptible); err != nil {
		return fmt.Errorf("susceptible: %w", err)
	}
	return nil
}

// floorShift keeps a shifted compartment non-negative. Capped fatalities
// combined with the cell-wide asymptomatic split of recoveries can leave the
// symptomatic remainder of a phase below zero; susceptibles are derived after
// the floor, so the segment still sums to one.
func floorShift(v float64) float64 {
	return max(v, 0)
}

func clampNoise(v float64) (float64, error) {
	if v >= 0 {
		return v, nil
	}
	if v > -noiseBand {
		return 0, nil
	}
	return v, fmt.Errorf("%w: value %g below tolerance", ErrConservationViolation, v)
}

// Cell owns the state of one geographical cell across cycles.
type Cell struct {
	id         CellID
	vicinities map[CellID]Vicinity
	rates      *Rates
	state      State
}

// NewCell validates the configuration and creates a cell with one hysteresis
// tracker per vicinity entry. The cell must be part of its own neighborhood.
func NewCell(id CellID, vicinities map[CellID]Vicinity, initial State, rates *Rates) (*Cell, error) {
	if rates == nil {
		return nil, fmt.Errorf("cell %s: %w: no rates", id, ErrInconsistentRates)
	}
	if err := rates.Validate(); err != nil {
		return nil, fmt.Errorf("cell %s: %w", id, err)
	}
	if _, ok := vicinities[id]; !ok {
		return nil, fmt.Errorf("cell %s: %w", id, ErrMissingSelf)
	}
	if err := initial.checkShape(rates); err != nil {
		return nil, fmt.Errorf("cell %s: %w", id, err)
	}

	state := initial.Clone()
	if state.Trackers == nil {
		state.Trackers = make(map[CellID]*HysteresisTracker, len(vicinities))
	}
	for nid := range vicinities {
		if _, ok := state.Trackers[nid]; !ok {
			state.Trackers[nid] = &HysteresisTracker{}
		}
	}

	return &Cell{
		id:         id,
		vicinities: maps.Clone(vicinities),
		rates:      rates,
		state:      state,
	}, nil
}

// ID returns the cell identifier.
func (c *Cell) ID() CellID {
	return c.id
}

// State returns a copy of the state the cell exposes to its neighbors.
func (c *Cell) State() State {
	return c.state.Clone()
}

// current shares the state's slices; callers must treat it as read-only.
func (c *Cell) current() State {
	return c.state
}

// Neighbors lists the vicinity entries of the cell, itself included, sorted.
func (c *Cell) Neighbors() []CellID {
	return slices.Sorted(maps.Keys(c.vicinities))
}

// Vicinity returns the connection to neighbor id.
func (c *Cell) Vicinity(id CellID) (Vicinity, bool) {
	v, ok := c.vicinities[id]
	return v, ok
}

// LocalComputation computes the next state against previous-cycle neighbor
// snapshots without changing the cell.
func (c *Cell) LocalComputation(neighbors map[CellID]State) (State, error) {
	return Advance(c.id, c.state, neighbors, c.vicinities, c.rates)
}

// Commit makes next the current state of the cell.
func (c *Cell) Commit(next State) {
	c.state = next
}

// OutputDelay is the delay, in time units, before the new state should be
// visible to neighbors. It does not depend on the state.
func (c *Cell) OutputDelay() int {
	return outputDelay
}
