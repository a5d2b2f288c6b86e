package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/daniacca/epicell/internal/epi"
	"github.com/daniacca/epicell/internal/statelog"
)

const (
	corridorScenario = "../../examples/scenarios/corridor.yaml"
	isolatedScenario = "../../examples/scenarios/isolated.json"
)

func TestRun_PrintsSummary(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-scenario", corridorScenario, "-cycles", "20"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v (stderr: %s)", err, stderr.String())
	}

	out := stdout.String()
	if !strings.Contains(out, "cycles=20") {
		t.Errorf("Expected the cycle count in the summary, got:\n%s", out)
	}
	for _, cell := range []string{"west", "center", "east"} {
		if !strings.Contains(out, cell) {
			t.Errorf("Expected cell %s in the summary, got:\n%s", cell, out)
		}
	}
}

func TestRun_WritesSnapshotAndStateLog(t *testing.T) {
	dir := t.TempDir()
	outPath := filepath.Join(dir, "final.json")
	logPath := filepath.Join(dir, "cycles.db")

	var stdout, stderr bytes.Buffer
	args := []string{"-scenario", isolatedScenario, "-cycles", "15", "-grid-id", "island-run", "-out", outPath, "-state-log", logPath}
	if err := run(context.Background(), args, &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("Expected a snapshot file: %v", err)
	}
	snapshot, err := epi.DecodeSnapshotJSON(data)
	if err != nil {
		t.Fatalf("DecodeSnapshotJSON: %v", err)
	}
	if snapshot.GridID != "island-run" || snapshot.Time != 15 {
		t.Errorf("Unexpected snapshot header: %s/%d", snapshot.GridID, snapshot.Time)
	}
	if err := epi.ValidateSnapshot(snapshot, 1e-6); err != nil {
		t.Errorf("Expected a valid snapshot: %v", err)
	}

	store, err := statelog.Open(logPath)
	if err != nil {
		t.Fatalf("statelog.Open: %v", err)
	}
	defer store.Close()
	rows, err := store.CellSeries(context.Background(), "island-run", "island")
	if err != nil {
		t.Fatalf("CellSeries: %v", err)
	}
	if len(rows) != 15 {
		t.Errorf("Expected 15 recorded cycles, got %d", len(rows))
	}
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"missing scenario flag", nil},
		{"negative cycles", []string{"-scenario", corridorScenario, "-cycles", "-1"}},
		{"unknown flag", []string{"-scenario", corridorScenario, "-bogus"}},
		{"missing file", []string{"-scenario", filepath.Join(t.TempDir(), "none.yaml")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if err := run(context.Background(), tt.args, &stdout, &stderr); err == nil {
				t.Error("Expected an error")
			}
			if stdout.Len() != 0 {
				t.Errorf("Expected no summary on error, got %q", stdout.String())
			}
		})
	}
}

func TestRun_LogLevelFiltersStderr(t *testing.T) {
	var stdout, stderr bytes.Buffer
	out := filepath.Join(t.TempDir(), "final.json")
	args := []string{"--scenario", isolatedScenario, "--cycles", "1", "--out", out}

	if err := run(context.Background(), append(args, "--log-level", "warn"), &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if strings.Contains(stderr.String(), "Snapshot written") {
		t.Errorf("Expected info lines to be filtered at warn, got %q", stderr.String())
	}

	stderr.Reset()
	if err := run(context.Background(), append(args, "--log-level", "info"), &stdout, &stderr); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(stderr.String(), "[INFO] Snapshot written: "+out) {
		t.Errorf("Expected the snapshot info line at info level, got %q", stderr.String())
	}
}
