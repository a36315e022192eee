package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/valtiodata/eduskunta-fetch/internal/sink"
)

func seededSink(t *testing.T) *sink.SQLite {
	t.Helper()
	s, err := sink.OpenSQLite(filepath.Join(t.TempDir(), "export.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	ctx := context.Background()
	s.Append(ctx, "MemberOfParliament", []string{"Id", "Nimi"}, [][]string{
		{"1", "Virtanen"},
		{"2", "Korhonen"},
		{"3", "Nieminen"},
	})
	return s
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"csv": FormatCSV, "JSON": FormatJSON, "xlsx": FormatExcel, "excel": FormatExcel} {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v", in, got, err)
		}
	}
	if _, err := ParseFormat("parquet"); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestRun_CSV(t *testing.T) {
	s := seededSink(t)
	dir := t.TempDir()

	paths, err := Run(context.Background(), s, Options{Format: FormatCSV, OutputDir: dir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(paths) != 1 {
		t.Fatalf("paths = %v", paths)
	}

	f, err := os.Open(paths[0])
	if err != nil {
		t.Fatalf("opening export: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("reading csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("records = %d, want header + 3 rows", len(records))
	}
	if records[0][1] != "Nimi" {
		t.Errorf("header = %v", records[0])
	}
}

func TestRun_JSONWithLimit(t *testing.T) {
	s := seededSink(t)
	dir := t.TempDir()

	paths, err := Run(context.Background(), s, Options{
		Tables: []string{"MemberOfParliament"}, Format: FormatJSON, OutputDir: dir, Limit: 2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	data, err := os.ReadFile(paths[0])
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	var objs []map[string]string
	if err := json.Unmarshal(data, &objs); err != nil {
		t.Fatalf("parsing json: %v", err)
	}
	if len(objs) != 2 {
		t.Fatalf("objects = %d, want 2", len(objs))
	}
	if objs[0]["Nimi"] == "" {
		t.Errorf("object = %v", objs[0])
	}
}

func TestRun_Where(t *testing.T) {
	s := seededSink(t)
	dir := t.TempDir()

	paths, err := Run(context.Background(), s, Options{
		Format: FormatJSON, OutputDir: dir, Where: `"Id" > '1'`,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	data, _ := os.ReadFile(paths[0])
	var objs []map[string]string
	json.Unmarshal(data, &objs)
	if len(objs) != 2 {
		t.Errorf("objects = %d, want 2", len(objs))
	}
}

func TestRun_Excel(t *testing.T) {
	s := seededSink(t)
	dir := t.TempDir()

	paths, err := Run(context.Background(), s, Options{Format: FormatExcel, OutputDir: dir})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	info, err := os.Stat(paths[0])
	if err != nil {
		t.Fatalf("stat export: %v", err)
	}
	if info.Size() == 0 {
		t.Error("empty xlsx file")
	}
}

func TestRun_EmptyDatabase(t *testing.T) {
	s, err := sink.OpenSQLite(filepath.Join(t.TempDir(), "empty.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	defer s.Close()

	if _, err := Run(context.Background(), s, Options{Format: FormatCSV, OutputDir: t.TempDir()}); err == nil {
		t.Error("expected error for empty database")
	}
}
