// Package checkpoint persists run history and per-table cursor positions in
// SQLite so an interrupted download can resume where it left off.
package checkpoint

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/valtiodata/eduskunta-fetch/internal/api"
	"github.com/valtiodata/eduskunta-fetch/internal/fetch"
)

// State manages download state in SQLite.
type State struct {
	db *sql.DB
	mu sync.Mutex
}

// Run represents one download run.
type Run struct {
	ID          string
	StartedAt   time.Time
	CompletedAt *time.Time
	Status      string // running, success, failed, cancelled, resumed
	Config      string
}

// TableProgress is the saved state of one table within a run.
type TableProgress struct {
	RunID        string
	TableName    string
	Status       string // pending, running, completed, failed, cancelled
	Mode         string
	NextPage     int
	NextPKStart  int64
	RowsDone     int64
	PagesDone    int64
	ErrorMessage string
	UpdatedAt    time.Time
}

// New opens (creating if needed) the state database under dataDir.
func New(dataDir string) (*State, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "state.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening state database: %w", err)
	}

	s := &State{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating state schema: %w", err)
	}
	return s, nil
}

func (s *State) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		status TEXT NOT NULL DEFAULT 'running',
		config TEXT
	);

	CREATE TABLE IF NOT EXISTS tables (
		run_id TEXT REFERENCES runs(id),
		table_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		mode TEXT,
		next_page INTEGER DEFAULT 0,
		next_pk_start INTEGER DEFAULT 1,
		rows_done INTEGER DEFAULT 0,
		pages_done INTEGER DEFAULT 0,
		error_message TEXT,
		updated_at TEXT,
		UNIQUE(run_id, table_name)
	);

	CREATE INDEX IF NOT EXISTS idx_tables_run_status ON tables(run_id, status);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *State) Close() error {
	return s.db.Close()
}

// NewRunID returns a short random run identifier.
func NewRunID() string {
	return uuid.New().String()[:8]
}

// CreateRun records the start of a run. config is stored as JSON for the
// history command.
func (s *State) CreateRun(id string, config any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	configJSON, _ := json.Marshal(config)
	_, err := s.db.Exec(`
		INSERT INTO runs (id, started_at, status, config)
		VALUES (?, datetime('now'), 'running', ?)
	`, id, string(configJSON))
	return err
}

// CompleteRun marks a run terminal.
func (s *State) CompleteRun(id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		UPDATE runs SET completed_at = datetime('now'), status = ? WHERE id = ?
	`, status, id)
	return err
}

// MarkRunAsResumed flags that a later run picked up this run's work.
func (s *State) MarkRunAsResumed(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`UPDATE runs SET status = 'resumed' WHERE id = ?`, id)
	return err
}

// GetLastIncompleteRun returns the most recent run if it left work behind,
// or nil. A run is resumable while it is still 'running' (crashed process)
// and after it ended 'cancelled' (interrupt) or 'failed'; successful and
// already-resumed runs are not.
func (s *State) GetLastIncompleteRun() (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT id, started_at, completed_at, status, config
		FROM runs WHERE status IN ('running', 'cancelled', 'failed')
		ORDER BY started_at DESC, rowid DESC LIMIT 1
	`)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// GetRun returns a run by ID, or nil if absent.
func (s *State) GetRun(id string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRow(`
		SELECT id, started_at, completed_at, status, config FROM runs WHERE id = ?
	`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// GetAllRuns returns runs newest first.
func (s *State) GetAllRuns() ([]Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT id, started_at, completed_at, status, config
		FROM runs ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(r rowScanner) (*Run, error) {
	var run Run
	var started string
	var completed, config sql.NullString
	if err := r.Scan(&run.ID, &started, &completed, &run.Status, &config); err != nil {
		return nil, err
	}
	run.StartedAt, _ = time.Parse("2006-01-02 15:04:05", started)
	if completed.Valid {
		t, _ := time.Parse("2006-01-02 15:04:05", completed.String)
		run.CompletedAt = &t
	}
	run.Config = config.String
	return &run, nil
}

// InitTable registers a table in a run as pending.
func (s *State) InitTable(runID, table string, mode api.AddressingMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO tables (run_id, table_name, status, mode, updated_at)
		VALUES (?, ?, 'pending', ?, datetime('now'))
		ON CONFLICT(run_id, table_name) DO NOTHING
	`, runID, table, mode.String())
	return err
}

// MarkTableStatus sets a table's status and optional error message.
func (s *State) MarkTableStatus(runID, table, status, errorMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		UPDATE tables SET status = ?, error_message = ?, updated_at = datetime('now')
		WHERE run_id = ? AND table_name = ?
	`, status, errorMsg, runID, table)
	return err
}

// GetRunTables returns the per-table progress of a run.
func (s *State) GetRunTables(runID string) ([]TableProgress, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`
		SELECT run_id, table_name, status, COALESCE(mode, ''), next_page, next_pk_start,
		       rows_done, pages_done, COALESCE(error_message, ''), COALESCE(updated_at, '')
		FROM tables WHERE run_id = ? ORDER BY table_name
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TableProgress
	for rows.Next() {
		var tp TableProgress
		var updated string
		if err := rows.Scan(&tp.RunID, &tp.TableName, &tp.Status, &tp.Mode,
			&tp.NextPage, &tp.NextPKStart, &tp.RowsDone, &tp.PagesDone,
			&tp.ErrorMessage, &updated); err != nil {
			return nil, err
		}
		tp.UpdatedAt, _ = time.Parse("2006-01-02 15:04:05", updated)
		out = append(out, tp)
	}
	return out, rows.Err()
}

// ResumePositions builds cursor positions for tables that did not complete
// in the given run. Completed tables are absent from the result so callers
// can skip them.
func (s *State) ResumePositions(runID string) (map[string]fetch.CursorPosition, map[string]bool, error) {
	tables, err := s.GetRunTables(runID)
	if err != nil {
		return nil, nil, err
	}

	positions := make(map[string]fetch.CursorPosition)
	completed := make(map[string]bool)
	for _, tp := range tables {
		if tp.Status == "completed" {
			completed[tp.TableName] = true
			continue
		}
		mode := api.ModePageIndex
		if tp.Mode == api.ModePKAscending.String() {
			mode = api.ModePKAscending
		}
		positions[tp.TableName] = fetch.CursorPosition{
			Mode:        mode,
			NextPage:    tp.NextPage,
			NextPKStart: tp.NextPKStart,
			Rows:        tp.RowsDone,
			Pages:       tp.PagesDone,
		}
	}
	return positions, completed, nil
}

// RunSaver binds cursor persistence to a run, satisfying the download
// engine's checkpoint hook.
type RunSaver struct {
	state *State
	runID string
}

// Saver returns a cursor saver scoped to runID.
func (s *State) Saver(runID string) *RunSaver {
	return &RunSaver{state: s, runID: runID}
}

// SaveCursor upserts a table's cursor position.
func (rs *RunSaver) SaveCursor(table string, pos fetch.CursorPosition) error {
	rs.state.mu.Lock()
	defer rs.state.mu.Unlock()
	_, err := rs.state.db.Exec(`
		INSERT INTO tables (run_id, table_name, status, mode, next_page, next_pk_start, rows_done, pages_done, updated_at)
		VALUES (?, ?, 'running', ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(run_id, table_name) DO UPDATE SET
			status = 'running',
			mode = excluded.mode,
			next_page = excluded.next_page,
			next_pk_start = excluded.next_pk_start,
			rows_done = excluded.rows_done,
			pages_done = excluded.pages_done,
			updated_at = excluded.updated_at
	`, rs.runID, table, pos.Mode.String(), pos.NextPage, pos.NextPKStart, pos.Rows, pos.Pages)
	return err
}

var _ fetch.CheckpointSaver = (*RunSaver)(nil)
