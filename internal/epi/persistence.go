package epi

import (
	"encoding/json"
	"fmt"
)

// Snapshot is a point-in-time export of a grid: its cycle count and every
// cell state.
type Snapshot struct {
	GridID GridID           `json:"grid_id"`
	Time   int64            `json:"time"`
	Cells  map[CellID]State `json:"cells"`
}

// ValidateSnapshot checks that every cell has an ID and a conserved,
// non-negative state within tol.
func ValidateSnapshot(snapshot Snapshot, tol float64) error {
	if len(snapshot.Cells) == 0 {
		return fmt.Errorf("snapshot has no cells")
	}
	for id, st := range snapshot.Cells {
		if id == "" {
			return fmt.Errorf("snapshot contains a cell with an empty ID")
		}
		if err := st.CheckConservation(tol); err != nil {
			return fmt.Errorf("cell %s: %w", id, err)
		}
	}
	return nil
}

func EncodeSnapshotJSON(snapshot Snapshot) ([]byte, error) {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

func DecodeSnapshotJSON(data []byte) (Snapshot, error) {
	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snapshot, nil
}
