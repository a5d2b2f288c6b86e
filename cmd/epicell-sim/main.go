package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/daniacca/epicell/internal/epi"
	"github.com/daniacca/epicell/internal/platform/logging"
	"github.com/daniacca/epicell/internal/platform/otel"
	"github.com/daniacca/epicell/internal/statelog"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type simOptions struct {
	scenario string
	cycles   int
	gridID   string
	out      string
	stateLog string
	logLevel string
}

func parseFlags(args []string, stderr io.Writer) (simOptions, error) {
	var opts simOptions
	fs := flag.NewFlagSet("epicell-sim", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.scenario, "scenario", "", "path to scenario file, JSON or YAML (required)")
	fs.IntVar(&opts.cycles, "cycles", 100, "number of cycles to run")
	fs.StringVar(&opts.gridID, "grid-id", "simulation", "grid ID")
	fs.StringVar(&opts.out, "out", "", "write the final snapshot as JSON to this file (optional)")
	fs.StringVar(&opts.stateLog, "state-log", "", "record every cycle to this SQLite file (optional)")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return simOptions{}, err
	}

	if opts.scenario == "" {
		fs.Usage()
		return simOptions{}, errors.New("--scenario is required")
	}
	if opts.cycles < 0 {
		return simOptions{}, fmt.Errorf("--cycles cannot be negative: %d", opts.cycles)
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}
	logger := logging.New(stderr, opts.logLevel)

	shutdownTracing, err := otel.Setup(ctx, "epicell-sim")
	if err != nil {
		logger.Warnf("Tracing disabled: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	cfg, err := epi.LoadScenarioFile(opts.scenario)
	if err != nil {
		return fmt.Errorf("loading scenario: %w", err)
	}
	grid, err := epi.BuildGridFromConfig(epi.GridID(opts.gridID), cfg)
	if err != nil {
		return fmt.Errorf("building grid: %w", err)
	}
	grid.SetLogger(logger)

	if opts.stateLog != "" {
		store, err := statelog.Open(opts.stateLog)
		if err != nil {
			return fmt.Errorf("opening state log: %w", err)
		}
		defer store.Close()
		grid.SetRecorder(store)
	}

	for range opts.cycles {
		if err := grid.Step(ctx); err != nil {
			return fmt.Errorf("cycle %d: %w", grid.Time()+1, err)
		}
	}

	if opts.out != "" {
		data, err := epi.EncodeSnapshotJSON(grid.Snapshot())
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.out, data, 0o644); err != nil {
			return fmt.Errorf("writing snapshot: %w", err)
		}
		logger.Infof("Snapshot written: %s", opts.out)
	}

	printSummary(stdout, cfg.Name, grid)
	return nil
}

func printSummary(w io.Writer, scenario string, grid *epi.Grid) {
	fmt.Fprintf(w, "Simulation finished (scenario=%s, cycles=%d)\n", scenario, grid.Time())
	fmt.Fprintf(w, "%-12s %10s %10s %10s %10s %10s %10s\n", "cell", "S", "E", "I", "A", "R", "F")
	for _, c := range grid.Report() {
		t := c.Totals
		fmt.Fprintf(w, "%-12s %10.4f %10.4f %10.4f %10.4f %10.4f %10.4f\n",
			c.ID, t.Susceptible, t.Exposed, t.Infected, t.Asymptomatic, t.Recovered, t.Fatalities)
	}
}
