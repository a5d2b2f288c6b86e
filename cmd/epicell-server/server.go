package main

import (
	"github.com/daniacca/epicell/internal/epi"
	"github.com/daniacca/epicell/internal/platform/logging"
	"github.com/daniacca/epicell/internal/statelog"
)

// Server is the HTTP front of a GridManager. Every grid it installs shares
// the server's notification manager and, when configured, its state log.
type Server struct {
	manager   *epi.GridManager
	notifiers *epi.NotificationManager
	stateLog  *statelog.Store
	workers   int
	logger    *logging.Logger
}

func NewServer(logger *logging.Logger) *Server {
	return &Server{
		manager:   epi.NewGridManagerWithLogger(logger),
		notifiers: epi.NewNotificationManagerWithLogger(logger),
		logger:    logger,
	}
}

// SetStateLog makes every grid installed afterwards record its cycles to
// store, and serves recorded cell series from it.
func (s *Server) SetStateLog(store *statelog.Store) {
	s.stateLog = store
}

// SetWorkers bounds per-cycle concurrency of installed grids; 0 keeps the
// grid default.
func (s *Server) SetWorkers(n int) {
	s.workers = n
}

// installGrid wires the grid to the server and registers it, replacing a grid
// with the same ID. It reports whether the grid is new.
func (s *Server) installGrid(grid *epi.Grid) (created bool, err error) {
	grid.SetNotificationManager(s.notifiers)
	if s.stateLog != nil {
		grid.SetRecorder(s.stateLog)
	}
	if s.workers > 0 {
		grid.SetWorkers(s.workers)
	}
	return s.manager.PutGrid(grid)
}

// Close stops every grid and releases the notifiers.
func (s *Server) Close() error {
	for _, id := range s.manager.ListGrids() {
		_ = s.manager.DeleteGrid(id)
	}
	return s.notifiers.Close()
}
