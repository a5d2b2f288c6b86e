package epi

import "errors"

var (
	// ErrInconsistentRates reports rate tables whose shapes disagree.
	ErrInconsistentRates = errors.New("inconsistent rate configuration")

	// ErrInvalidScenario reports a scenario configuration that cannot be built.
	ErrInvalidScenario = errors.New("invalid scenario configuration")

	// ErrConservationViolation reports a compartment that went negative beyond
	// the floating point noise band.
	ErrConservationViolation = errors.New("population conservation violated")

	// ErrMissingSelf reports a cell that is not part of its own neighborhood.
	ErrMissingSelf = errors.New("cell is not part of its own neighborhood")

	// ErrMissingNeighbor reports a neighbor without a state snapshot.
	ErrMissingNeighbor = errors.New("missing neighbor state")

	// ErrShapeMismatch reports a state whose segment or phase counts do not
	// match the rate configuration.
	ErrShapeMismatch = errors.New("state shape does not match rates")
)
