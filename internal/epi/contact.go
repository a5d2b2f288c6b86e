package epi

import (
	"fmt"
	"math"
)

// neighborhood is the read-only view one cell computation works from.
type neighborhood struct {
	self       CellID
	prev       *State
	snapshots  map[CellID]State
	vicinities map[CellID]Vicinity
	ids        []CellID

	// restriction is the hysteresis correction per vicinity entry, before the
	// disobedient share of a segment is taken into account.
	restriction map[CellID]float64
}

func (n *neighborhood) state(id CellID) (*State, error) {
	if id == n.self {
		return n.prev, nil
	}
	st, ok := n.snapshots[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingNeighbor, id)
	}
	return &st, nil
}

// evaluateRestrictions runs the correction policy once per vicinity entry,
// each against the infectious load of the cell on the other end. trackers is
// the map owned by the next state.
func (n *neighborhood) evaluateRestrictions(trackers map[CellID]*HysteresisTracker) error {
	n.restriction = make(map[CellID]float64, len(n.ids))
	for _, id := range n.ids {
		st, err := n.state(id)
		if err != nil {
			return err
		}
		tracker, ok := trackers[id]
		if !ok || tracker == nil {
			tracker = &HysteresisTracker{}
			trackers[id] = tracker
		}
		n.restriction[id] = CorrectionFactor(n.vicinities[id].Correction, st.TotalInfections(), tracker)
	}
	return nil
}

// obedientFactor blends the restriction with the share of the segment that
// ignores it.
func obedientFactor(disobedient, restriction float64) float64 {
	return disobedient + (1-disobedient)*restriction
}

// newExposed is the force of infection on segment seg of the cell, capped at
// its susceptible share. Symptomatic inflow is scaled by the stricter of the
// two cells' correction factors; asymptomatic inflow is not restricted.
func (n *neighborhood) newExposed(seg int, rates *Rates) (float64, error) {
	susceptible := n.prev.Susceptible[seg]
	selfFactor := obedientFactor(n.prev.Disobedient[seg], n.restriction[n.self])

	var symptomatic, asymptomatic float64
	for _, id := range n.ids {
		st, err := n.state(id)
		if err != nil {
			return 0, err
		}
		if seg >= len(st.Disobedient) {
			return 0, fmt.Errorf("%w: neighbor %s has %d segments", ErrShapeMismatch, id, len(st.Disobedient))
		}
		effective := math.Min(selfFactor, obedientFactor(st.Disobedient[seg], n.restriction[id]))
		correlation := n.vicinities[id].Correlation

		for i := range rates.InfectiousPhases(seg) {
			contact := correlation * rates.Mobility[seg][i] * rates.Virulence[seg][i] * susceptible
			symptomatic += contact * st.InfectedPhase(i) * effective
			asymptomatic += contact * st.AsymptomaticPhase(i)
		}
	}
	return math.Min(susceptible, symptomatic+asymptomatic), nil
}
