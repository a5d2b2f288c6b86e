// Package statelog records every committed cycle of a grid to SQLite so runs
// can be inspected after the fact. It is an output log; the engine never reads
// it back.
package statelog

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/daniacca/epicell/internal/epi"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS cell_cycles (
	grid_id      TEXT    NOT NULL,
	cycle        INTEGER NOT NULL,
	cell_id      TEXT    NOT NULL,
	susceptible  REAL    NOT NULL,
	exposed      REAL    NOT NULL,
	infected     REAL    NOT NULL,
	asymptomatic REAL    NOT NULL,
	recovered    REAL    NOT NULL,
	fatalities   REAL    NOT NULL,
	state_json   TEXT    NOT NULL,
	PRIMARY KEY (grid_id, cycle, cell_id)
);
CREATE INDEX IF NOT EXISTS idx_cell_cycles_cell ON cell_cycles (grid_id, cell_id, cycle);
`

// Row is one cell at one cycle.
type Row struct {
	GridID epi.GridID
	Cycle  int64
	CellID epi.CellID
	Totals epi.Totals
	State  epi.State
}

// Store is a SQLite-backed epi.Recorder.
type Store struct {
	sqlDB *sql.DB
}

var _ epi.Recorder = (*Store)(nil)

// Open opens (creating if needed) the state log at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("state log path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// RecordCycle writes every cell of the record in one transaction. Recording
// the same cycle twice overwrites it.
func (s *Store) RecordCycle(ctx context.Context, record epi.CycleRecord) error {
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("state log is not configured")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO cell_cycles
			(grid_id, cycle, cell_id, susceptible, exposed, infected, asymptomatic, recovered, fatalities, state_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for id, st := range record.States {
		payload, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode state of %s: %w", id, err)
		}
		t := st.Totals()
		if _, err := stmt.ExecContext(ctx,
			string(record.GridID), record.Time, string(id),
			t.Susceptible, t.Exposed, t.Infected, t.Asymptomatic, t.Recovered, t.Fatalities,
			string(payload),
		); err != nil {
			return fmt.Errorf("insert %s cycle %d: %w", id, record.Time, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// CellSeries returns every recorded cycle of one cell in cycle order.
func (s *Store) CellSeries(ctx context.Context, gridID epi.GridID, cellID epi.CellID) ([]Row, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
		SELECT grid_id, cycle, cell_id, susceptible, exposed, infected, asymptomatic, recovered, fatalities, state_json
		FROM cell_cycles
		WHERE grid_id = ? AND cell_id = ?
		ORDER BY cycle`,
		string(gridID), string(cellID),
	)
	if err != nil {
		return nil, fmt.Errorf("query cell series: %w", err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var (
			row     Row
			grid    string
			cell    string
			payload string
		)
		if err := rows.Scan(&grid, &row.Cycle, &cell,
			&row.Totals.Susceptible, &row.Totals.Exposed, &row.Totals.Infected,
			&row.Totals.Asymptomatic, &row.Totals.Recovered, &row.Totals.Fatalities,
			&payload,
		); err != nil {
			return nil, fmt.Errorf("scan cell series: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &row.State); err != nil {
			return nil, fmt.Errorf("decode state: %w", err)
		}
		row.GridID = epi.GridID(grid)
		row.CellID = epi.CellID(cell)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cell series: %w", err)
	}
	return out, nil
}

// LastCycle returns the highest recorded cycle of a grid, or 0.
func (s *Store) LastCycle(ctx context.Context, gridID epi.GridID) (int64, error) {
	var last sql.NullInt64
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT MAX(cycle) FROM cell_cycles WHERE grid_id = ?`, string(gridID),
	).Scan(&last)
	if err != nil {
		return 0, fmt.Errorf("query last cycle: %w", err)
	}
	return last.Int64, nil
}
