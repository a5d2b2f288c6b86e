package epi

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestSnapshotJSONRoundTrip(t *testing.T) {
	grid := loadGrid(t, corridorScenario)
	for range 15 {
		if err := grid.Step(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	snapshot := grid.Snapshot()

	data, err := EncodeSnapshotJSON(snapshot)
	if err != nil {
		t.Fatalf("EncodeSnapshotJSON: %v", err)
	}
	decoded, err := DecodeSnapshotJSON(data)
	if err != nil {
		t.Fatalf("DecodeSnapshotJSON: %v", err)
	}
	if !reflect.DeepEqual(snapshot, decoded) {
		t.Error("Expected the decoded snapshot to match the original, trackers included")
	}
}

func TestDecodeSnapshotJSON_Invalid(t *testing.T) {
	if _, err := DecodeSnapshotJSON([]byte("{not json")); err == nil {
		t.Error("Expected error for malformed JSON")
	}
}

func TestValidateSnapshot(t *testing.T) {
	valid := twoSegmentState()

	leaking := twoSegmentState()
	leaking.Susceptible[0] = 0.2

	tests := []struct {
		name     string
		snapshot Snapshot
		wantErr  bool
	}{
		{"valid", Snapshot{Cells: map[CellID]State{"a": valid}}, false},
		{"no cells", Snapshot{}, true},
		{"empty cell id", Snapshot{Cells: map[CellID]State{"": valid}}, true},
		{"not conserved", Snapshot{Cells: map[CellID]State{"a": leaking}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSnapshot(tt.snapshot, 1e-9)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateSnapshot() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	err := ValidateSnapshot(Snapshot{Cells: map[CellID]State{"a": leaking}}, 1e-9)
	if !errors.Is(err, ErrConservationViolation) {
		t.Errorf("Expected ErrConservationViolation, got %v", err)
	}
}
