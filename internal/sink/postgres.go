package sink

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres stores tables in a PostgreSQL schema using COPY for bulk inserts.
// Useful when the download feeds a shared database instead of a local file.
type Postgres struct {
	pool   *pgxpool.Pool
	schema string
}

// OpenPostgres connects to dsn and ensures schema exists. An empty schema
// defaults to "eduskunta".
func OpenPostgres(ctx context.Context, dsn, schema string) (*Postgres, error) {
	if schema == "" {
		schema = "eduskunta"
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}
	p := &Postgres{pool: pool, schema: schema}
	if _, err := pool.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+p.quoteIdent(schema)); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema %s: %w", schema, err)
	}
	return p, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) qualified(table string) string {
	return p.quoteIdent(p.schema) + "." + p.quoteIdent(table)
}

func (p *Postgres) quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(strings.ToLower(name), `"`, `""`) + `"`
}

func (p *Postgres) EnsureTable(ctx context.Context, table string, columns []string) error {
	defs := make([]string, len(columns))
	for i, col := range columns {
		defs[i] = p.quoteIdent(col) + " TEXT"
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", p.qualified(table), strings.Join(defs, ", "))
	if _, err := p.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("creating table %s: %w", table, err)
	}
	return nil
}

func (p *Postgres) DropTable(ctx context.Context, table string) error {
	if _, err := p.pool.Exec(ctx, "DROP TABLE IF EXISTS "+p.qualified(table)); err != nil {
		return fmt.Errorf("dropping table %s: %w", table, err)
	}
	return nil
}

func (p *Postgres) Append(ctx context.Context, table string, columns []string, rows [][]string) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := p.EnsureTable(ctx, table, columns); err != nil {
		return 0, err
	}

	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = strings.ToLower(c)
	}
	src := make([][]any, len(rows))
	for i, row := range rows {
		if len(row) != len(columns) {
			return 0, fmt.Errorf("table %s: row has %d values, want %d", table, len(row), len(columns))
		}
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = v
		}
		src[i] = vals
	}

	n, err := p.pool.CopyFrom(ctx,
		pgx.Identifier{strings.ToLower(p.schema), strings.ToLower(table)},
		cols, pgx.CopyFromRows(src))
	if err != nil {
		return 0, fmt.Errorf("copying into %s: %w", table, err)
	}
	return int(n), nil
}

func (p *Postgres) TableExists(ctx context.Context, table string) (bool, error) {
	var exists bool
	err := p.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema=$1 AND table_name=$2)",
		strings.ToLower(p.schema), strings.ToLower(table)).Scan(&exists)
	return exists, err
}

func (p *Postgres) RowCount(ctx context.Context, table string) (int64, error) {
	exists, err := p.TableExists(ctx, table)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	var n int64
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM "+p.qualified(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return n, nil
}
