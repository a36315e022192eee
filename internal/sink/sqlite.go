package sink

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLite stores tables in a single SQLite database file. The engine may
// append to different tables concurrently, but SQLite has a single writer,
// so all writes go through one mutex.
type SQLite struct {
	db *sql.DB
	mu sync.Mutex

	ensured map[string]bool
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	return &SQLite{db: db, ensured: make(map[string]bool)}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// DB exposes the underlying handle for read-only consumers (export, explore).
func (s *SQLite) DB() *sql.DB {
	return s.db
}

func (s *SQLite) EnsureTable(ctx context.Context, table string, columns []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureTable(ctx, table, columns)
}

func (s *SQLite) ensureTable(ctx context.Context, table string, columns []string) error {
	if s.ensured[table] {
		return nil
	}
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = quoteIdent(col) + " TEXT"
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(table), strings.Join(defs, ", "))
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}
	s.ensured[table] = true
	return nil
}

func (s *SQLite) DropTable(ctx context.Context, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ensured, table)
	if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quoteIdent(table)); err != nil {
		return fmt.Errorf("dropping table %s: %w", table, err)
	}
	return nil
}

func (s *SQLite) Append(ctx context.Context, table string, columns []string, rows [][]string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureTable(ctx, table, columns); err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning tx: %w", err)
	}
	defer tx.Rollback()

	placeholders := "(" + strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",") + ")"
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = quoteIdent(col)
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES %s", quoteIdent(table), strings.Join(quoted, ", "), placeholders))
	if err != nil {
		return 0, fmt.Errorf("preparing insert for %s: %w", table, err)
	}
	defer stmt.Close()

	args := make([]any, len(columns))
	for _, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("table %s: row has %d values, want %d", table, len(row), len(columns))
		}
		for i, v := range row {
			args[i] = v
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return 0, fmt.Errorf("inserting into %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing %s: %w", table, err)
	}
	return len(rows), nil
}

func (s *SQLite) RowCount(ctx context.Context, table string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exists, err := s.tableExists(ctx, table)
	if err != nil || !exists {
		return 0, err
	}
	var n int64
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoteIdent(table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return n, nil
}

// TableExists reports whether table is present in the database.
func (s *SQLite) TableExists(ctx context.Context, table string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tableExists(ctx, table)
}

func (s *SQLite) tableExists(ctx context.Context, table string) (bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListTables returns the stored table names, excluding SQLite internals.
func (s *SQLite) ListTables(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Query runs an arbitrary read query and materializes the result as strings.
// NULLs come back as empty strings, matching how the API delivers row data.
func (s *SQLite) Query(ctx context.Context, query string, args ...any) ([]string, [][]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var out [][]string
	for rows.Next() {
		vals := make([]sql.NullString, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, nil, err
		}
		row := make([]string, len(cols))
		for i, v := range vals {
			row[i] = v.String
		}
		out = append(out, row)
	}
	return cols, out, rows.Err()
}

// quoteIdent quotes an identifier for SQLite. API table and column names are
// plain identifiers, but quoting keeps reserved words and odd casing safe.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
