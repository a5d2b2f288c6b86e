package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daniacca/epicell/internal/epi"
	"github.com/daniacca/epicell/internal/platform/logging"
	"github.com/daniacca/epicell/internal/platform/otel"
	"github.com/daniacca/epicell/internal/statelog"
)

func main() {
	cfg, err := loadServerConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		logging.NewStderr("info").Fatalf("Invalid configuration: %v", err)
	}
	logger := logging.NewStderr(cfg.LogLevel)
	logger.Infof("Log level: %s", logger.Level())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := otel.Setup(ctx, "epicell-server")
	if err != nil {
		logger.Warnf("Tracing disabled: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(flushCtx)
	}()

	var stateLog *statelog.Store
	if cfg.StateLogPath != "" {
		store, err := statelog.Open(cfg.StateLogPath)
		if err != nil {
			logger.Fatalf("Failed to open state log: path=%s error=%v", cfg.StateLogPath, err)
		}
		defer store.Close()
		stateLog = store
		logger.Infof("Recording cycles to %s", cfg.StateLogPath)
	}

	// Grids stop before the state log closes.
	srv := NewServer(logger)
	defer srv.Close()
	srv.SetWorkers(cfg.Workers)
	if stateLog != nil {
		srv.SetStateLog(stateLog)
	}

	if cfg.ScenarioFile != "" {
		gridID := epi.GridID(cfg.DefaultGridID)
		grid, err := applyInitialScenario(srv, cfg.ScenarioFile, gridID)
		if err != nil {
			logger.Fatalf("Failed to load scenario: file=%s error=%v", cfg.ScenarioFile, err)
		}
		logger.Infof("Scenario loaded: grid_id=%s file=%s", gridID, cfg.ScenarioFile)
		if cfg.TickInterval > 0 {
			grid.Run(cfg.TickInterval)
			logger.Infof("Grid started: grid_id=%s interval=%v", gridID, cfg.TickInterval)
		}
	}

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Infof("epicell-server listening on %s", cfg.Addr)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Errorf("Server error: %v", err)
	}
}
