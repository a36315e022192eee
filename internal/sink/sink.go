// Package sink stores downloaded rows. All Eduskunta row data arrives as
// strings, so sinks create plain text columns and leave typing to consumers.
package sink

import "context"

// Sink is a destination for downloaded tables. Implementations must make
// Append durable before returning; the engine serializes appends per table
// but calls concurrently across tables.
type Sink interface {
	// EnsureTable creates the table if it does not exist.
	EnsureTable(ctx context.Context, table string, columns []string) error

	// DropTable removes the table if it exists. Used for fresh downloads.
	DropTable(ctx context.Context, table string) error

	// Append inserts rows and returns the number committed.
	Append(ctx context.Context, table string, columns []string, rows [][]string) (int, error)

	// TableExists reports whether the table is present.
	TableExists(ctx context.Context, table string) (bool, error)

	// RowCount returns the number of stored rows, or 0 if the table is absent.
	RowCount(ctx context.Context, table string) (int64, error)

	Close() error
}

var (
	_ Sink = (*SQLite)(nil)
	_ Sink = (*Postgres)(nil)
)
