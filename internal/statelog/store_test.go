package statelog

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/daniacca/epicell/internal/epi"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "state.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func cellState(infected float64) epi.State {
	return epi.State{
		Susceptible:  []float64{1 - infected},
		Exposed:      [][]float64{{0}},
		Infected:     [][]float64{{infected}},
		Asymptomatic: [][]float64{{0}},
		Recovered:    [][]float64{{0}},
		Fatalities:   []float64{0},
		Disobedient:  []float64{0},
		Trackers:     map[epi.CellID]*epi.HysteresisTracker{"a": {InEffect: true, Factor: 0.5}},
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Error("Expected error for an empty path")
	}
}

func TestStore_RecordAndReadSeries(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for cycle, infected := range []float64{0.1, 0.2, 0.3} {
		record := epi.CycleRecord{
			GridID: "g",
			Time:   int64(cycle + 1),
			States: map[epi.CellID]epi.State{
				"a": cellState(infected),
				"b": cellState(0),
			},
		}
		if err := store.RecordCycle(ctx, record); err != nil {
			t.Fatalf("RecordCycle: %v", err)
		}
	}

	series, err := store.CellSeries(ctx, "g", "a")
	if err != nil {
		t.Fatalf("CellSeries: %v", err)
	}
	if len(series) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(series))
	}
	for i, row := range series {
		if row.Cycle != int64(i+1) || row.CellID != "a" || row.GridID != "g" {
			t.Errorf("row %d: unexpected key %s/%d/%s", i, row.GridID, row.Cycle, row.CellID)
		}
	}
	if got := series[2].Totals.Infected; got != 0.3 {
		t.Errorf("Expected infected 0.3 at cycle 3, got %g", got)
	}
	if tr := series[2].State.Trackers["a"]; tr == nil || !tr.InEffect || tr.Factor != 0.5 {
		t.Errorf("Expected tracker to survive the round trip, got %+v", tr)
	}

	last, err := store.LastCycle(ctx, "g")
	if err != nil {
		t.Fatalf("LastCycle: %v", err)
	}
	if last != 3 {
		t.Errorf("Expected last cycle 3, got %d", last)
	}

	last, err = store.LastCycle(ctx, "unknown")
	if err != nil || last != 0 {
		t.Errorf("Expected 0 for an unknown grid, got %d (%v)", last, err)
	}
}

func TestStore_RecordingTwiceOverwrites(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, infected := range []float64{0.1, 0.4} {
		record := epi.CycleRecord{GridID: "g", Time: 1, States: map[epi.CellID]epi.State{"a": cellState(infected)}}
		if err := store.RecordCycle(ctx, record); err != nil {
			t.Fatalf("RecordCycle: %v", err)
		}
	}

	series, err := store.CellSeries(ctx, "g", "a")
	if err != nil {
		t.Fatalf("CellSeries: %v", err)
	}
	if len(series) != 1 || series[0].Totals.Infected != 0.4 {
		t.Errorf("Expected a single overwritten row, got %+v", series)
	}
}

func TestStore_RecordsGridCycles(t *testing.T) {
	store := openTestStore(t)

	cfg, err := epi.LoadScenarioFile("../../examples/scenarios/corridor.yaml")
	if err != nil {
		t.Fatalf("LoadScenarioFile: %v", err)
	}
	grid, err := epi.BuildGridFromConfig("corridor", cfg)
	if err != nil {
		t.Fatalf("BuildGridFromConfig: %v", err)
	}
	grid.SetRecorder(store)

	for range 5 {
		if err := grid.Step(context.Background()); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	series, err := store.CellSeries(context.Background(), "corridor", "center")
	if err != nil {
		t.Fatalf("CellSeries: %v", err)
	}
	if len(series) != 5 {
		t.Fatalf("Expected 5 recorded cycles, got %d", len(series))
	}
	for _, row := range series {
		if err := row.State.CheckConservation(1e-6); err != nil {
			t.Errorf("cycle %d: %v", row.Cycle, err)
		}
	}
}

func TestStore_NilStore(t *testing.T) {
	var store *Store
	if err := store.RecordCycle(context.Background(), epi.CycleRecord{}); err == nil {
		t.Error("Expected error recording to a nil store")
	}
	if err := store.Close(); err != nil {
		t.Errorf("Expected Close on a nil store to be a no-op, got %v", err)
	}
}
