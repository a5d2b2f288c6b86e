package epi

import (
	"context"
	"fmt"
	"maps"
	"runtime"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// GridID identifies a grid inside a GridManager.
type GridID string

// CycleRecord is handed to the Recorder after every committed cycle.
type CycleRecord struct {
	GridID GridID
	Time   int64
	States map[CellID]State
}

// Recorder receives committed cycles, e.g. to log them to storage.
type Recorder interface {
	RecordCycle(ctx context.Context, record CycleRecord) error
}

var tracer = otel.Tracer("github.com/daniacca/epicell/internal/epi")

// Grid advances a set of cells in lockstep. Every cell of a cycle sees only
// the states its neighbors had at the end of the previous cycle.
type Grid struct {
	mu        sync.RWMutex
	id        GridID
	time      int64
	cells     map[CellID]*Cell
	order     []CellID
	workers   int
	notifier  *NotificationManager
	recorder  Recorder
	logger    Logger
	stopCh    chan struct{}
	isRunning bool
	lastErr   error
}

// NewGrid checks that every neighbor referenced by a cell is part of the grid.
func NewGrid(id GridID, cells ...*Cell) (*Grid, error) {
	if len(cells) == 0 {
		return nil, fmt.Errorf("grid %s: no cells", id)
	}
	byID := make(map[CellID]*Cell, len(cells))
	for _, c := range cells {
		if c == nil {
			return nil, fmt.Errorf("grid %s: nil cell", id)
		}
		if _, dup := byID[c.ID()]; dup {
			return nil, fmt.Errorf("grid %s: duplicate cell %s", id, c.ID())
		}
		byID[c.ID()] = c
	}
	for _, c := range cells {
		for _, nid := range c.Neighbors() {
			if _, ok := byID[nid]; !ok {
				return nil, fmt.Errorf("grid %s: cell %s: %w: %s is not in the grid", id, c.ID(), ErrMissingNeighbor, nid)
			}
		}
	}

	return &Grid{
		id:      id,
		cells:   byID,
		order:   slices.Sorted(maps.Keys(byID)),
		workers: runtime.GOMAXPROCS(0),
		logger:  NewNoOpLogger(),
		stopCh:  make(chan struct{}),
	}, nil
}

// ID returns the grid identifier.
func (g *Grid) ID() GridID {
	return g.id
}

// SetNotificationManager makes every committed cycle broadcast a CycleEvent.
func (g *Grid) SetNotificationManager(nm *NotificationManager) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notifier = nm
}

// SetRecorder sets the sink receiving committed cycles.
func (g *Grid) SetRecorder(r Recorder) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.recorder = r
}

func (g *Grid) SetLogger(logger Logger) {
	if logger == nil {
		logger = NewNoOpLogger()
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.logger = logger
}

// SetWorkers bounds how many cells are computed concurrently.
func (g *Grid) SetWorkers(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n < 1 {
		n = 1
	}
	g.workers = n
}

// Time is the number of committed cycles.
func (g *Grid) Time() int64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.time
}

// CellIDs lists the cells in the order they are reported.
func (g *Grid) CellIDs() []CellID {
	return slices.Clone(g.order)
}

// Cell looks up one cell.
func (g *Grid) Cell(id CellID) (*Cell, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.cells[id]
	return c, ok
}

// States returns a copy of every cell state.
func (g *Grid) States() map[CellID]State {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make(map[CellID]State, len(g.cells))
	for id, c := range g.cells {
		out[id] = c.State()
	}
	return out
}

// Report summarizes every cell in grid order.
func (g *Grid) Report() []CellSummary {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]CellSummary, 0, len(g.order))
	for _, id := range g.order {
		st := g.cells[id].current()
		out = append(out, CellSummary{ID: id, Totals: st.Totals()})
	}
	return out
}

// Step runs one cycle: freeze every state, compute all next states
// concurrently against the frozen snapshot, then commit them together. When
// any cell fails nothing is committed.
func (g *Grid) Step(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	ctx, span := tracer.Start(ctx, "epi.Grid.Step", trace.WithAttributes(
		attribute.String("grid.id", string(g.id)),
		attribute.Int64("grid.cycle", g.time+1),
		attribute.Int("grid.cells", len(g.cells)),
	))
	defer span.End()

	snapshot := make(map[CellID]State, len(g.cells))
	for id, c := range g.cells {
		snapshot[id] = c.current()
	}

	next := make([]State, len(g.order))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, id := range g.order {
		cell := g.cells[id]
		eg.Go(func() error {
			if err := egCtx.Err(); err != nil {
				return err
			}
			st, err := cell.LocalComputation(snapshot)
			if err != nil {
				return err
			}
			next[i] = st
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		g.logger.Errorf("cycle failed: grid_id=%s cycle=%d error=%v", g.id, g.time+1, err)
		return fmt.Errorf("grid %s cycle %d: %w", g.id, g.time+1, err)
	}

	committed := make(map[CellID]State, len(g.order))
	for i, id := range g.order {
		g.cells[id].Commit(next[i])
		committed[id] = next[i]
	}
	g.time++
	g.logger.Debugf("cycle committed: grid_id=%s cycle=%d", g.id, g.time)

	if g.notifier != nil {
		g.notifier.Broadcast(NewCycleEvent(g.id, g.time, g.order, committed))
	}
	if g.recorder != nil {
		record := CycleRecord{GridID: g.id, Time: g.time, States: committed}
		if err := g.recorder.RecordCycle(ctx, record); err != nil {
			g.logger.Warnf("recording cycle failed: grid_id=%s cycle=%d error=%v", g.id, g.time, err)
		}
	}
	return nil
}

// Run steps the grid on a ticker in its own goroutine until Stop is called or
// a cycle fails. It can be called again after stopping.
func (g *Grid) Run(interval time.Duration) {
	g.mu.Lock()
	if g.isRunning {
		g.mu.Unlock()
		return
	}
	g.stopCh = make(chan struct{})
	g.isRunning = true
	g.lastErr = nil
	stopCh := g.stopCh
	g.mu.Unlock()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		defer func() {
			g.mu.Lock()
			g.isRunning = false
			g.mu.Unlock()
		}()

		for {
			select {
			case <-ticker.C:
				if err := g.Step(context.Background()); err != nil {
					g.mu.Lock()
					g.lastErr = err
					g.mu.Unlock()
					return
				}
			case <-stopCh:
				return
			}
		}
	}()
}

// Stop halts a running grid. It is a no-op when the grid is not running.
func (g *Grid) Stop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.isRunning {
		return
	}
	select {
	case <-g.stopCh:
	default:
		close(g.stopCh)
	}
}

// IsRunning reports whether the ticker loop is active.
func (g *Grid) IsRunning() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.isRunning
}

// Err returns the error that halted the last Run, if any.
func (g *Grid) Err() error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.lastErr
}

// Snapshot captures the grid time and every cell state.
func (g *Grid) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	cells := make(map[CellID]State, len(g.cells))
	for id, c := range g.cells {
		cells[id] = c.State()
	}
	return Snapshot{GridID: g.id, Time: g.time, Cells: cells}
}
