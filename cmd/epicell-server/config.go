package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/daniacca/epicell/internal/epi"
)

// ServerConfig holds the server configuration. Every field can be set from
// the environment; command line flags take precedence.
type ServerConfig struct {
	Addr          string        `env:"EPICELL_ADDR" envDefault:":8080"`
	DefaultGridID string        `env:"EPICELL_GRID_ID" envDefault:"default"`
	ScenarioFile  string        `env:"EPICELL_SCENARIO_FILE"`
	StateLogPath  string        `env:"EPICELL_STATE_LOG"`
	TickInterval  time.Duration `env:"EPICELL_TICK_INTERVAL" envDefault:"0s"`
	Workers       int           `env:"EPICELL_WORKERS" envDefault:"0"`
	LogLevel      string        `env:"EPICELL_LOG_LEVEL" envDefault:"info"`
}

// loadServerConfig resolves flag > environment > default.
func loadServerConfig(fs *flag.FlagSet, args []string) (ServerConfig, error) {
	var cfg ServerConfig
	if err := env.Parse(&cfg); err != nil {
		return ServerConfig{}, fmt.Errorf("parse env: %w", err)
	}

	fs.StringVar(&cfg.Addr, "addr", cfg.Addr, "HTTP listen address (e.g. :8080, 0.0.0.0:8080)")
	fs.StringVar(&cfg.DefaultGridID, "grid-id", cfg.DefaultGridID, "grid ID the startup scenario is loaded under")
	fs.StringVar(&cfg.ScenarioFile, "scenario", cfg.ScenarioFile, "optional scenario file (JSON or YAML) to load at startup")
	fs.StringVar(&cfg.StateLogPath, "state-log", cfg.StateLogPath, "optional SQLite file recording every committed cycle")
	fs.DurationVar(&cfg.TickInterval, "tick-interval", cfg.TickInterval, "start the startup grid with this cycle interval (0 leaves it stopped)")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "cells computed concurrently per cycle (0 uses GOMAXPROCS)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level: debug, info, warn, error")
	if err := fs.Parse(args); err != nil {
		return ServerConfig{}, err
	}
	if cfg.TickInterval < 0 {
		return ServerConfig{}, fmt.Errorf("tick interval cannot be negative: %s", cfg.TickInterval)
	}
	return cfg, nil
}

// applyInitialScenario loads a scenario file and installs it as grid id.
func applyInitialScenario(srv *Server, path string, id epi.GridID) (*epi.Grid, error) {
	cfg, err := epi.LoadScenarioFile(path)
	if err != nil {
		return nil, err
	}
	grid, err := epi.BuildGridFromConfig(id, cfg)
	if err != nil {
		return nil, fmt.Errorf("building grid: %w", err)
	}
	if _, err := srv.installGrid(grid); err != nil {
		return nil, err
	}
	return grid, nil
}
