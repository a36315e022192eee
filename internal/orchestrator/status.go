package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valtiodata/eduskunta-fetch/internal/exitcodes"
)

// ShowStatus prints the most recent incomplete run and its per-table
// progress.
func (o *Orchestrator) ShowStatus() error {
	run, err := o.state.GetLastIncompleteRun()
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.StateError)
	}
	if run == nil {
		fmt.Println("No active download")
		return nil
	}

	fmt.Printf("Run: %s\n", run.ID)
	fmt.Printf("Status: %s\n", run.Status)
	fmt.Printf("Started: %s\n", run.StartedAt.Format(time.RFC3339))

	tables, err := o.state.GetRunTables(run.ID)
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.StateError)
	}
	if len(tables) == 0 {
		return nil
	}

	fmt.Printf("\n%-30s %-12s %12s %8s\n", "Table", "Status", "Rows", "Pages")
	fmt.Println(strings.Repeat("-", 66))
	for _, t := range tables {
		fmt.Printf("%-30s %-12s %12d %8d\n", t.TableName, t.Status, t.RowsDone, t.PagesDone)
		if t.ErrorMessage != "" {
			fmt.Printf("  error: %s\n", t.ErrorMessage)
		}
	}
	return nil
}

// ShowHistory prints all recorded runs, newest first.
func (o *Orchestrator) ShowHistory() error {
	runs, err := o.state.GetAllRuns()
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.StateError)
	}
	if len(runs) == 0 {
		fmt.Println("No download history")
		return nil
	}

	fmt.Printf("%-10s %-20s %-20s %-10s\n", "ID", "Started", "Completed", "Status")
	fmt.Println(strings.Repeat("-", 62))
	for _, r := range runs {
		completed := "-"
		if r.CompletedAt != nil {
			completed = r.CompletedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("%-10s %-20s %-20s %-10s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), completed, r.Status)
	}
	return nil
}

// ListTables prints the API's available tables with server-side row counts
// and, when present, local row counts. showColumns additionally fetches each
// table's column names.
func (o *Orchestrator) ListTables(ctx context.Context, showColumns bool) error {
	tables, err := o.client.ListTables(ctx)
	if err != nil {
		return exitcodes.NewExitError(fmt.Errorf("listing tables: %w", err), exitcodes.NetworkError)
	}
	counts, err := o.client.TableCounts(ctx)
	if err != nil {
		return exitcodes.NewExitError(fmt.Errorf("fetching row counts: %w", err), exitcodes.NetworkError)
	}

	fmt.Printf("Found %d tables\n\n", len(tables))
	fmt.Printf("%-35s %12s %12s\n", "Table", "API rows", "Local rows")
	fmt.Println(strings.Repeat("-", 62))
	for _, name := range tables {
		local, err := o.store.RowCount(ctx, name)
		if err != nil {
			local = 0
		}
		fmt.Printf("%-35s %12d %12d\n", name, counts[name], local)

		if showColumns {
			cols, err := o.client.TableColumns(ctx, name)
			if err != nil {
				fmt.Printf("  columns unavailable: %v\n", err)
			} else {
				fmt.Printf("  columns: %s\n", strings.Join(cols, ", "))
			}
			fmt.Println()
		}
	}
	return nil
}
