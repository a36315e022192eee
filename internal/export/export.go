// Package export writes downloaded tables out as CSV, JSON, or Excel files.
package export

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/valtiodata/eduskunta-fetch/internal/logging"
)

// Format is an output file format.
type Format string

const (
	FormatCSV   Format = "csv"
	FormatJSON  Format = "json"
	FormatExcel Format = "xlsx"
)

// ParseFormat validates a format string.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	case "xlsx", "excel":
		return FormatExcel, nil
	default:
		return "", fmt.Errorf("unknown export format %q (want csv, json, or xlsx)", s)
	}
}

// Source reads stored tables. *sink.SQLite satisfies this.
type Source interface {
	ListTables(ctx context.Context) ([]string, error)
	Query(ctx context.Context, query string, args ...any) ([]string, [][]string, error)
}

// Options selects what to export and where.
type Options struct {
	Tables    []string // empty = all stored tables
	Format    Format
	OutputDir string
	Limit     int64  // rows per table, 0 = all
	Where     string // optional SQL filter, applied to every exported table
}

// Run exports the selected tables, one file per table, and returns the paths
// written.
func Run(ctx context.Context, src Source, opts Options) ([]string, error) {
	tables := opts.Tables
	if len(tables) == 0 {
		var err error
		tables, err = src.ListTables(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing tables: %w", err)
		}
	}
	if len(tables) == 0 {
		return nil, fmt.Errorf("nothing to export: database has no tables")
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "."
	}
	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	var written []string
	for _, table := range tables {
		path, err := exportTable(ctx, src, table, opts)
		if err != nil {
			return written, fmt.Errorf("exporting %s: %w", table, err)
		}
		logging.Info("exported %s to %s", table, path)
		written = append(written, path)
	}
	return written, nil
}

func exportTable(ctx context.Context, src Source, table string, opts Options) (string, error) {
	query := fmt.Sprintf(`SELECT * FROM "%s"`, strings.ReplaceAll(table, `"`, `""`))
	if opts.Where != "" {
		query += " WHERE " + opts.Where
	}
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", opts.Limit)
	}

	cols, rows, err := src.Query(ctx, query)
	if err != nil {
		return "", err
	}

	path := filepath.Join(opts.OutputDir, table+"."+string(opts.Format))
	switch opts.Format {
	case FormatCSV:
		err = writeCSV(path, cols, rows)
	case FormatJSON:
		err = writeJSON(path, cols, rows)
	case FormatExcel:
		err = writeExcel(path, table, cols, rows)
	default:
		err = fmt.Errorf("unknown format %q", opts.Format)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

func writeCSV(path string, cols []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(cols); err != nil {
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeJSON(path string, cols []string, rows [][]string) error {
	out := make([]map[string]string, len(rows))
	for i, row := range rows {
		obj := make(map[string]string, len(cols))
		for j, col := range cols {
			obj[col] = row[j]
		}
		out[i] = obj
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeExcel(path, sheet string, cols []string, rows [][]string) error {
	// Excel sheet names max out at 31 characters.
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, row := range rows {
		vals := make([]any, len(row))
		for j, v := range row {
			vals[j] = v
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &vals); err != nil {
			return err
		}
	}
	return f.SaveAs(path)
}
