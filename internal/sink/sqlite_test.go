package sink

import (
	"context"
	"path/filepath"
	"testing"
)

func openTestSink(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_AppendAndCount(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	cols := []string{"Id", "Nimi"}
	n, err := s.Append(ctx, "MemberOfParliament", cols, [][]string{
		{"1", "Virtanen"},
		{"2", "Korhonen"},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if n != 2 {
		t.Errorf("committed = %d, want 2", n)
	}

	n, err = s.Append(ctx, "MemberOfParliament", cols, [][]string{{"3", "Nieminen"}})
	if err != nil {
		t.Fatalf("second Append: %v", err)
	}
	if n != 1 {
		t.Errorf("committed = %d, want 1", n)
	}

	count, err := s.RowCount(ctx, "MemberOfParliament")
	if err != nil {
		t.Fatalf("RowCount: %v", err)
	}
	if count != 3 {
		t.Errorf("RowCount = %d, want 3", count)
	}
}

func TestSQLite_RowCountMissingTable(t *testing.T) {
	s := openTestSink(t)
	count, err := s.RowCount(context.Background(), "Nothing")
	if err != nil {
		t.Fatalf("RowCount: %v", err)
	}
	if count != 0 {
		t.Errorf("RowCount = %d, want 0", count)
	}
}

func TestSQLite_DropTable(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, "t", []string{"Id"}, [][]string{{"1"}}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.DropTable(ctx, "t"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
	exists, err := s.TableExists(ctx, "t")
	if err != nil {
		t.Fatalf("TableExists: %v", err)
	}
	if exists {
		t.Error("table still exists after drop")
	}

	// Re-append after drop recreates the table.
	if _, err := s.Append(ctx, "t", []string{"Id"}, [][]string{{"2"}}); err != nil {
		t.Fatalf("Append after drop: %v", err)
	}
	count, _ := s.RowCount(ctx, "t")
	if count != 1 {
		t.Errorf("RowCount = %d, want 1", count)
	}
}

func TestSQLite_RowWidthMismatch(t *testing.T) {
	s := openTestSink(t)
	_, err := s.Append(context.Background(), "t", []string{"A", "B"}, [][]string{{"only-one"}})
	if err == nil {
		t.Fatal("expected error for mismatched row width")
	}
}

func TestSQLite_ListTablesAndQuery(t *testing.T) {
	s := openTestSink(t)
	ctx := context.Background()

	s.Append(ctx, "Beta", []string{"Id"}, [][]string{{"1"}})
	s.Append(ctx, "Alpha", []string{"Id", "V"}, [][]string{{"1", "x"}, {"2", "y"}})

	names, err := s.ListTables(ctx)
	if err != nil {
		t.Fatalf("ListTables: %v", err)
	}
	if len(names) != 2 || names[0] != "Alpha" || names[1] != "Beta" {
		t.Errorf("ListTables = %v, want [Alpha Beta]", names)
	}

	cols, rows, err := s.Query(ctx, `SELECT "V" FROM "Alpha" ORDER BY "Id"`)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(cols) != 1 || cols[0] != "V" {
		t.Errorf("cols = %v, want [V]", cols)
	}
	if len(rows) != 2 || rows[0][0] != "x" || rows[1][0] != "y" {
		t.Errorf("rows = %v", rows)
	}
}
