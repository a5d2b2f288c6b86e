package main

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/daniacca/epicell/internal/epi"
	"github.com/daniacca/epicell/internal/epi/notifiers"
)

const maxScenarioBytes = 10 << 20

// extractGridID splits a path like "/grid/{gridID}/..." into the grid ID and
// the remaining path. The ID is empty when the prefix is missing.
func extractGridID(path string) (epi.GridID, string) {
	rest, ok := strings.CutPrefix(path, "/grid/")
	if !ok {
		return "", ""
	}
	id, remaining, found := strings.Cut(rest, "/")
	if !found {
		return epi.GridID(id), ""
	}
	return epi.GridID(id), "/" + remaining
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// lookupGrid writes a 404 and returns false when the path names no grid.
func (s *Server) lookupGrid(w http.ResponseWriter, r *http.Request) (*epi.Grid, bool) {
	id, _ := extractGridID(r.URL.Path)
	if id == "" {
		http.Error(w, "grid ID is required in path: /grid/{gridID}/...", http.StatusBadRequest)
		return nil, false
	}
	grid, exists := s.manager.GetGrid(id)
	if !exists {
		http.Error(w, "grid not found", http.StatusNotFound)
		return nil, false
	}
	return grid, true
}

// POST /grid/{gridID}/scenario
// Body: scenario as JSON, or YAML when the Content-Type mentions yaml.
// Creates the grid, or replaces an existing grid with the same ID.
func (s *Server) handleScenario(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	id, _ := extractGridID(r.URL.Path)
	if id == "" {
		http.Error(w, "grid ID is required in path: /grid/{gridID}/scenario", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxScenarioBytes))
	if err != nil {
		http.Error(w, "cannot read body: "+err.Error(), http.StatusBadRequest)
		return
	}
	format := "json"
	if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "yaml") {
		format = "yaml"
	}
	cfg, err := epi.ParseScenario(data, format)
	if err != nil {
		http.Error(w, "invalid scenario: "+err.Error(), http.StatusBadRequest)
		return
	}

	grid, err := epi.BuildGridFromConfig(id, cfg)
	if err != nil {
		http.Error(w, "cannot build grid: "+err.Error(), http.StatusBadRequest)
		return
	}

	created, err := s.installGrid(grid)
	if err != nil {
		s.logger.Errorf("Failed to install grid: grid_id=%s error=%v", id, err)
		http.Error(w, "cannot install grid: "+err.Error(), http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		s.logger.Infof("Grid created: grid_id=%s scenario=%s cells=%d", id, cfg.Name, len(cfg.Cells))
	} else {
		s.logger.Infof("Grid replaced: grid_id=%s scenario=%s cells=%d", id, cfg.Name, len(cfg.Cells))
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte("scenario loaded"))
}

// POST /grid/{gridID}/tick
// Query param: cycles (default 1)
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	grid, ok := s.lookupGrid(w, r)
	if !ok {
		return
	}

	cycles := 1
	if v := r.URL.Query().Get("cycles"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			http.Error(w, "invalid cycles: must be a positive integer", http.StatusBadRequest)
			return
		}
		cycles = n
	}

	for range cycles {
		if err := grid.Step(r.Context()); err != nil {
			http.Error(w, "cycle failed: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]int64{"time": grid.Time()})
}

// POST /grid/{gridID}/start
// Query param: interval in milliseconds (default 1000)
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	grid, ok := s.lookupGrid(w, r)
	if !ok {
		return
	}

	interval := time.Second
	if v := r.URL.Query().Get("interval"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			http.Error(w, "invalid interval: must be a positive integer (milliseconds)", http.StatusBadRequest)
			return
		}
		interval = time.Duration(ms) * time.Millisecond
	}

	grid.Run(interval)
	s.logger.Infof("Grid started: grid_id=%s interval=%v", grid.ID(), interval)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("grid started"))
}

// POST /grid/{gridID}/stop
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	grid, ok := s.lookupGrid(w, r)
	if !ok {
		return
	}
	grid.Stop()
	s.logger.Infof("Grid stopped: grid_id=%s", grid.ID())
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("grid stopped"))
}

type gridStateResponse struct {
	GridID  epi.GridID        `json:"grid_id"`
	Time    int64             `json:"time"`
	Running bool              `json:"running"`
	Error   string            `json:"error,omitempty"`
	Cells   []epi.CellSummary `json:"cells"`
}

// GET /grid/{gridID}/state
// Per cell totals; with ?cell={cellID} the full state of that cell.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	grid, ok := s.lookupGrid(w, r)
	if !ok {
		return
	}

	if cellID := r.URL.Query().Get("cell"); cellID != "" {
		cell, exists := grid.Cell(epi.CellID(cellID))
		if !exists {
			http.Error(w, "cell not found", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, cell.State())
		return
	}

	resp := gridStateResponse{
		GridID:  grid.ID(),
		Time:    grid.Time(),
		Running: grid.IsRunning(),
		Cells:   grid.Report(),
	}
	if err := grid.Err(); err != nil {
		resp.Error = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// GET /grid/{gridID}/snapshot
func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	grid, ok := s.lookupGrid(w, r)
	if !ok {
		return
	}
	data, err := epi.EncodeSnapshotJSON(grid.Snapshot())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// seriesCellID extracts {cellID} from "/cells/{cellID}/series".
func seriesCellID(remainingPath string) (epi.CellID, bool) {
	rest, ok := strings.CutPrefix(remainingPath, "/cells/")
	if !ok {
		return "", false
	}
	id, ok := strings.CutSuffix(rest, "/series")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return epi.CellID(id), true
}

type seriesPoint struct {
	Cycle  int64      `json:"cycle"`
	Totals epi.Totals `json:"totals"`
}

type cellSeriesResponse struct {
	GridID    epi.GridID    `json:"grid_id"`
	CellID    epi.CellID    `json:"cell_id"`
	LastCycle int64         `json:"last_cycle"`
	Points    []seriesPoint `json:"points"`
}

// GET /grid/{gridID}/cells/{cellID}/series
// Totals of every recorded cycle of one cell, read back from the state log.
func (s *Server) handleCellSeries(w http.ResponseWriter, r *http.Request, cellID epi.CellID) {
	if s.stateLog == nil {
		http.Error(w, "state log is not configured", http.StatusNotFound)
		return
	}
	grid, ok := s.lookupGrid(w, r)
	if !ok {
		return
	}
	if _, exists := grid.Cell(cellID); !exists {
		http.Error(w, "cell not found", http.StatusNotFound)
		return
	}

	rows, err := s.stateLog.CellSeries(r.Context(), grid.ID(), cellID)
	if err != nil {
		s.logger.Errorf("Failed to read cell series: grid_id=%s cell_id=%s error=%v", grid.ID(), cellID, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	last, err := s.stateLog.LastCycle(r.Context(), grid.ID())
	if err != nil {
		s.logger.Errorf("Failed to read last cycle: grid_id=%s error=%v", grid.ID(), err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := cellSeriesResponse{
		GridID:    grid.ID(),
		CellID:    cellID,
		LastCycle: last,
		Points:    make([]seriesPoint, len(rows)),
	}
	for i, row := range rows {
		resp.Points[i] = seriesPoint{Cycle: row.Cycle, Totals: row.Totals}
	}
	writeJSON(w, http.StatusOK, resp)
}

// DELETE /grid/{gridID}
func (s *Server) handleDeleteGrid(w http.ResponseWriter, r *http.Request) {
	id, _ := extractGridID(r.URL.Path)
	if err := s.manager.DeleteGrid(id); err != nil {
		s.logger.Warnf("Failed to delete grid: grid_id=%s error=%v", id, err)
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	s.logger.Infof("Grid deleted: grid_id=%s", id)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("grid deleted"))
}

// GET /grids
func (s *Server) handleListGrids(w http.ResponseWriter, _ *http.Request) {
	gridIDs := s.manager.ListGrids()
	ids := make([]string, len(gridIDs))
	for i, id := range gridIDs {
		ids[i] = string(id)
	}
	writeJSON(w, http.StatusOK, map[string][]string{"grids": ids})
}

// handleGridRoutes dispatches /grid/{gridID}/... requests.
func (s *Server) handleGridRoutes(w http.ResponseWriter, r *http.Request) {
	id, remainingPath := extractGridID(r.URL.Path)
	if id == "" {
		http.Error(w, "grid ID is required in path: /grid/{gridID}/...", http.StatusBadRequest)
		return
	}

	switch {
	case remainingPath == "/scenario" && r.Method == http.MethodPost:
		s.handleScenario(w, r)
	case remainingPath == "/tick" && r.Method == http.MethodPost:
		s.handleTick(w, r)
	case remainingPath == "/start" && r.Method == http.MethodPost:
		s.handleStart(w, r)
	case remainingPath == "/stop" && r.Method == http.MethodPost:
		s.handleStop(w, r)
	case remainingPath == "/state" && r.Method == http.MethodGet:
		s.handleState(w, r)
	case remainingPath == "/snapshot" && r.Method == http.MethodGet:
		s.handleSnapshot(w, r)
	case remainingPath == "" && r.Method == http.MethodDelete:
		s.handleDeleteGrid(w, r)
	case strings.HasPrefix(remainingPath, "/cells/") && r.Method == http.MethodGet:
		cellID, ok := seriesCellID(remainingPath)
		if !ok {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		s.handleCellSeries(w, r, cellID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// handleNotifiersRoutes dispatches /notifiers and /notifiers/{id}[/ws].
func (s *Server) handleNotifiersRoutes(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/notifiers")
	switch {
	case rest == "" && r.Method == http.MethodGet:
		s.handleListNotifiers(w, r)
	case rest == "" && r.Method == http.MethodPost:
		s.handleRegisterNotifier(w, r)
	case strings.HasSuffix(rest, "/ws") && r.Method == http.MethodGet:
		s.handleNotifierStream(w, r, strings.TrimSuffix(strings.TrimPrefix(rest, "/"), "/ws"))
	case strings.HasPrefix(rest, "/") && r.Method == http.MethodDelete:
		s.handleUnregisterNotifier(w, r, strings.TrimPrefix(rest, "/"))
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// GET /notifiers
func (s *Server) handleListNotifiers(w http.ResponseWriter, _ *http.Request) {
	ids := s.notifiers.ListNotifiers()
	list := make([]map[string]string, 0, len(ids))
	for _, id := range ids {
		if n, exists := s.notifiers.GetNotifier(id); exists {
			list = append(list, map[string]string{"id": id, "type": n.Type()})
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifiers": list})
}

// POST /notifiers
// Body: { "type": "webhook", "id": "my-hook", "config": { "url": "http://..." } }
// or { "type": "websocket", "id": "live" }, then connect to /notifiers/live/ws.
type registerNotifierRequest struct {
	Type   string         `json:"type"`
	ID     string         `json:"id"`
	Config map[string]any `json:"config"`
}

func (s *Server) handleRegisterNotifier(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req registerNotifierRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json: "+err.Error(), http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "notifier ID is required", http.StatusBadRequest)
		return
	}

	var notifier epi.Notifier
	switch req.Type {
	case "webhook":
		url, ok := req.Config["url"].(string)
		if !ok || url == "" {
			http.Error(w, "webhook URL is required", http.StatusBadRequest)
			return
		}
		wh := notifiers.NewWebhookNotifier(req.ID, url)
		if headers, ok := req.Config["headers"].(map[string]any); ok {
			for k, v := range headers {
				if vStr, ok := v.(string); ok {
					wh.SetHeader(k, vStr)
				}
			}
		}
		notifier = wh
	case "websocket":
		notifier = notifiers.NewWebSocketNotifier(req.ID)
	default:
		http.Error(w, "unknown notifier type: "+req.Type, http.StatusBadRequest)
		return
	}

	if err := s.notifiers.RegisterNotifier(notifier); err != nil {
		_ = notifier.Close()
		http.Error(w, "cannot register notifier: "+err.Error(), http.StatusBadRequest)
		return
	}
	s.logger.Infof("Notifier registered: id=%s type=%s", req.ID, req.Type)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("notifier registered"))
}

// GET /notifiers/{id}/ws
func (s *Server) handleNotifierStream(w http.ResponseWriter, r *http.Request, id string) {
	n, exists := s.notifiers.GetNotifier(id)
	if !exists {
		http.Error(w, "notifier not found", http.StatusNotFound)
		return
	}
	ws, ok := n.(*notifiers.WebSocketNotifier)
	if !ok {
		http.Error(w, "notifier "+id+" is not a websocket notifier", http.StatusBadRequest)
		return
	}
	// Upgrade has already replied on failure.
	if err := ws.Upgrade(w, r); err != nil {
		s.logger.Warnf("WebSocket upgrade failed: notifier=%s error=%v", id, err)
	}
}

// DELETE /notifiers/{id}
func (s *Server) handleUnregisterNotifier(w http.ResponseWriter, _ *http.Request, id string) {
	if id == "" {
		http.Error(w, "notifier ID is required", http.StatusBadRequest)
		return
	}
	if err := s.notifiers.UnregisterNotifier(id); err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("notifier unregistered"))
}

// routes builds the server mux.
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/grids", s.handleListGrids)
	mux.HandleFunc("/grid/", s.handleGridRoutes)
	mux.HandleFunc("/notifiers", s.handleNotifiersRoutes)
	mux.HandleFunc("/notifiers/", s.handleNotifiersRoutes)
	return mux
}
