// Package orchestrator wires the API client, download engine, sink, and
// checkpoint state into complete runs.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/valtiodata/eduskunta-fetch/internal/api"
	"github.com/valtiodata/eduskunta-fetch/internal/checkpoint"
	"github.com/valtiodata/eduskunta-fetch/internal/config"
	"github.com/valtiodata/eduskunta-fetch/internal/exitcodes"
	"github.com/valtiodata/eduskunta-fetch/internal/fetch"
	"github.com/valtiodata/eduskunta-fetch/internal/logging"
	"github.com/valtiodata/eduskunta-fetch/internal/notify"
	"github.com/valtiodata/eduskunta-fetch/internal/progress"
	"github.com/valtiodata/eduskunta-fetch/internal/ratelimit"
	"github.com/valtiodata/eduskunta-fetch/internal/sink"
)

// defaultPKColumns lists tables known to carry an integer primary key the
// API can paginate on. Config table overrides take precedence.
var defaultPKColumns = map[string]string{
	"SaliDBAanestys":         "AanestysId",
	"SaliDBAanestysEdustaja": "EdustajaId",
	"SaliDBPuheenvuoro":      "PuheenvuoroId",
	"VaskiData":              "Id",
}

// Orchestrator coordinates download runs.
type Orchestrator struct {
	config   *config.Config
	client   *api.Client
	store    sink.Sink
	state    *checkpoint.State
	notifier *notify.Notifier
	tracker  *progress.Tracker
}

// New builds an orchestrator from configuration. showProgress controls the
// terminal progress bar.
func New(cfg *config.Config, showProgress bool) (*Orchestrator, error) {
	dataDir := cfg.Download.DataDir
	if dataDir == "" {
		var err error
		dataDir, err = config.DefaultDataDir()
		if err != nil {
			return nil, exitcodes.NewExitError(fmt.Errorf("resolving data dir: %w", err), exitcodes.IOError)
		}
	}

	state, err := checkpoint.New(dataDir)
	if err != nil {
		return nil, exitcodes.NewExitError(err, exitcodes.StateError)
	}

	store, err := openSink(cfg, dataDir)
	if err != nil {
		state.Close()
		return nil, err
	}

	opts := api.DefaultOptions()
	opts.BaseURL = cfg.API.BaseURL
	opts.Timeout = time.Duration(cfg.API.TimeoutSeconds) * time.Second
	opts.UserAgent = cfg.API.UserAgent

	return &Orchestrator{
		config:   cfg,
		client:   api.NewClient(opts),
		store:    store,
		state:    state,
		notifier: notify.New(&cfg.Notify),
		tracker:  progress.New(showProgress),
	}, nil
}

func openSink(cfg *config.Config, dataDir string) (sink.Sink, error) {
	if cfg.Database.PostgresDSN != "" {
		pg, err := sink.OpenPostgres(context.Background(), cfg.Database.PostgresDSN, cfg.Database.PostgresSchema)
		if err != nil {
			return nil, exitcodes.NewExitError(err, exitcodes.NetworkError)
		}
		return pg, nil
	}

	path := cfg.Database.Path
	if path == "" {
		path = filepath.Join(dataDir, "eduskunta.db")
	}
	s, err := sink.OpenSQLite(path)
	if err != nil {
		return nil, exitcodes.NewExitError(err, exitcodes.IOError)
	}
	return s, nil
}

// Close releases the sink and state database.
func (o *Orchestrator) Close() {
	o.store.Close()
	o.state.Close()
}

// State exposes run history for the status and history commands.
func (o *Orchestrator) State() *checkpoint.State {
	return o.state
}

// Store exposes the sink for export and explore.
func (o *Orchestrator) Store() sink.Sink {
	return o.store
}

// Download runs a fresh download of the requested tables. If tables is
// empty and all is false, the default table set is used.
func (o *Orchestrator) Download(ctx context.Context, tables []string, all bool) error {
	specs, err := o.resolveTables(ctx, tables, all)
	if err != nil {
		return err
	}
	return o.run(ctx, specs, nil)
}

// Resume picks up the most recent incomplete run. Completed tables are
// skipped; partially downloaded tables continue from their saved cursors.
func (o *Orchestrator) Resume(ctx context.Context) error {
	prev, err := o.state.GetLastIncompleteRun()
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.StateError)
	}
	if prev == nil {
		fmt.Println("No incomplete run to resume")
		return nil
	}

	positions, completed, err := o.state.ResumePositions(prev.ID)
	if err != nil {
		return exitcodes.NewExitError(err, exitcodes.StateError)
	}

	var names []string
	for name := range positions {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		logging.Info("run %s has no unfinished tables", prev.ID)
		if err := o.state.CompleteRun(prev.ID, "success"); err != nil {
			return exitcodes.NewExitError(err, exitcodes.StateError)
		}
		return nil
	}

	logging.Info("resuming run %s: %d tables remaining, %d already completed",
		prev.ID, len(names), len(completed))
	if err := o.state.MarkRunAsResumed(prev.ID); err != nil {
		return exitcodes.NewExitError(err, exitcodes.StateError)
	}

	specs, err := o.resolveTables(ctx, names, false)
	if err != nil {
		return err
	}
	return o.run(ctx, specs, positions)
}

// run executes one download run over specs. resume holds saved cursor
// positions; resumed tables keep their sink rows instead of starting over.
func (o *Orchestrator) run(ctx context.Context, specs []fetch.TableSpec, resume map[string]fetch.CursorPosition) error {
	runID := checkpoint.NewRunID()
	start := time.Now()
	logging.Info("starting run %s: %d tables, concurrency %d, rate %.0f req/s",
		runID, len(specs), o.config.Download.Concurrency, o.config.API.RatePerSecond)

	if err := o.state.CreateRun(runID, o.config); err != nil {
		return exitcodes.NewExitError(fmt.Errorf("creating run: %w", err), exitcodes.StateError)
	}
	for _, spec := range specs {
		if err := o.state.InitTable(runID, spec.Name, spec.Mode()); err != nil {
			return exitcodes.NewExitError(err, exitcodes.StateError)
		}
	}

	// Fresh tables start empty; resumed tables keep what they have, and
	// keep_tables turns the drop off entirely so runs append instead.
	if !o.config.Download.KeepTables {
		for _, spec := range specs {
			if resume != nil {
				if _, ok := resume[spec.Name]; ok {
					continue
				}
			}
			if err := o.store.DropTable(ctx, spec.Name); err != nil {
				o.state.CompleteRun(runID, "failed")
				return exitcodes.NewExitError(err, exitcodes.IOError)
			}
		}
	}

	if total, err := o.totalRows(ctx, specs, resume); err == nil {
		o.tracker.SetTotal(total)
	}

	o.notifier.RunStarted(runID, len(specs))

	retry := fetch.RetryConfig{
		MaxAttempts:    o.config.Download.MaxRetries,
		InitialBackoff: time.Duration(o.config.Download.RetryBackoffMs) * time.Millisecond,
	}
	sched := fetch.NewScheduler(o.client, ratelimit.New(o.config.API.RatePerSecond), o.store, fetch.Options{
		Concurrency: o.config.Download.Concurrency,
		PerPage:     o.config.Download.PerPage,
		RowLimit:    o.config.Download.RowLimit,
		ReadAhead:   o.config.Download.ReadAhead,
		Retry:       retry,
	})
	sched.SetCheckpoint(o.state.Saver(runID))
	sched.SetObserver(o.tracker)

	summary, runErr := sched.Run(ctx, specs, resume)
	o.tracker.Finish()

	for _, out := range summary.Outcomes {
		msg := ""
		if out.Err != nil {
			msg = out.Err.Error()
		}
		if err := o.state.MarkTableStatus(runID, out.Table, out.State.String(), msg); err != nil {
			logging.Warn("recording outcome for %s: %v", out.Table, err)
		}
	}

	duration := time.Since(start)
	printSummary(summary, duration)

	switch {
	case runErr != nil:
		o.state.CompleteRun(runID, "cancelled")
		o.notifier.RunFailed(runID, summary.Failed(), summary.Rows(), "cancelled")
		return exitcodes.NewExitError(runErr, exitcodes.Cancelled)
	case !summary.Ok():
		o.state.CompleteRun(runID, "failed")
		failed := summary.Failed()
		o.notifier.RunFailed(runID, failed, summary.Rows(), fmt.Sprintf("%d tables failed", len(failed)))
		return exitcodes.NewExitError(
			fmt.Errorf("%d of %d tables failed: %s", len(failed), len(specs), strings.Join(failed, ", ")),
			exitcodes.DownloadError)
	default:
		o.state.CompleteRun(runID, "success")
		o.notifier.RunCompleted(runID, len(specs), summary.Rows(), duration)
		return nil
	}
}

// resolveTables validates requested tables against the API's table list and
// builds download specs with pk columns and priorities applied. With
// skip_validation set, explicitly named tables are taken on trust and the
// table list is never fetched; a bad name then surfaces as a download error.
func (o *Orchestrator) resolveTables(ctx context.Context, tables []string, all bool) ([]fetch.TableSpec, error) {
	if o.config.Download.SkipValidation && !all && len(tables) > 0 {
		selected := o.filterTables(tables)
		if len(selected) == 0 {
			return nil, exitcodes.NewExitError(
				fmt.Errorf("no tables to download after applying filters"),
				exitcodes.ConfigError)
		}
		return o.buildSpecs(selected), nil
	}

	available, err := o.client.ListTables(ctx)
	if err != nil {
		return nil, exitcodes.NewExitError(fmt.Errorf("listing tables: %w", err), exitcodes.NetworkError)
	}
	availSet := make(map[string]bool, len(available))
	for _, name := range available {
		availSet[name] = true
	}
	logging.Debug("API reports %d tables", len(available))

	var selected []string
	switch {
	case all:
		selected = available
	case len(tables) > 0:
		var unknown []string
		for _, name := range tables {
			if !availSet[name] {
				unknown = append(unknown, name)
			}
		}
		if len(unknown) > 0 {
			return nil, exitcodes.NewExitError(
				fmt.Errorf("unknown tables: %s", strings.Join(unknown, ", ")),
				exitcodes.ValidationError)
		}
		selected = tables
	default:
		selected = []string{"SaliDBAanestys"}
		logging.Info("no tables specified, defaulting to %s", selected[0])
	}

	selected = o.filterTables(selected)
	if len(selected) == 0 {
		return nil, exitcodes.NewExitError(
			fmt.Errorf("no tables to download after applying filters"),
			exitcodes.ConfigError)
	}

	return o.buildSpecs(selected), nil
}

// buildSpecs turns table names into download specs with pk columns and
// priorities applied from config overrides.
func (o *Orchestrator) buildSpecs(selected []string) []fetch.TableSpec {
	overrides := make(map[string]config.TableConfig)
	for _, t := range o.config.Download.Tables {
		overrides[t.Name] = t
	}

	specs := make([]fetch.TableSpec, 0, len(selected))
	for _, name := range selected {
		spec := fetch.TableSpec{Name: name, PKColumn: defaultPKColumns[name]}
		if ov, ok := overrides[name]; ok {
			if ov.PKColumn != "" {
				spec.PKColumn = ov.PKColumn
			}
			spec.Priority = ov.Priority
		}
		specs = append(specs, spec)
	}
	return specs
}

// filterTables applies the include/exclude glob patterns from config.
func (o *Orchestrator) filterTables(tables []string) []string {
	include := o.config.Download.IncludeTables
	exclude := o.config.Download.ExcludeTables
	if len(include) == 0 && len(exclude) == 0 {
		return tables
	}

	var filtered, skipped []string
	for _, name := range tables {
		lower := strings.ToLower(name)

		if len(include) > 0 {
			matched := false
			for _, pattern := range include {
				if ok, _ := filepath.Match(strings.ToLower(pattern), lower); ok {
					matched = true
					break
				}
			}
			if !matched {
				skipped = append(skipped, name)
				continue
			}
		}

		excluded := false
		for _, pattern := range exclude {
			if ok, _ := filepath.Match(strings.ToLower(pattern), lower); ok {
				excluded = true
				skipped = append(skipped, name)
				break
			}
		}
		if excluded {
			continue
		}
		filtered = append(filtered, name)
	}

	if len(skipped) > 0 {
		logging.Info("skipped %d tables by filter: %v", len(skipped), skipped)
	}
	return filtered
}

// totalRows estimates the run's total row count for the progress bar, using
// the counts endpoint and subtracting rows already downloaded on resume.
func (o *Orchestrator) totalRows(ctx context.Context, specs []fetch.TableSpec, resume map[string]fetch.CursorPosition) (int64, error) {
	counts, err := o.client.TableCounts(ctx)
	if err != nil {
		logging.Debug("row counts unavailable: %v", err)
		return 0, err
	}

	var total int64
	limit := o.config.Download.RowLimit
	for _, spec := range specs {
		n := counts[spec.Name]
		if limit > 0 && n > limit {
			n = limit
		}
		if pos, ok := resume[spec.Name]; ok {
			n -= pos.Rows
			if n < 0 {
				n = 0
			}
		}
		total += n
	}
	return total, nil
}

func printSummary(summary *fetch.Summary, duration time.Duration) {
	fmt.Printf("\nRun finished in %s\n", duration.Round(time.Second))
	fmt.Printf("%-30s %-12s %12s %8s\n", "Table", "Status", "Rows", "Pages")
	fmt.Println(strings.Repeat("-", 66))
	for _, out := range summary.Outcomes {
		fmt.Printf("%-30s %-12s %12d %8d\n", out.Table, out.State, out.Rows, out.Pages)
	}
	fmt.Printf("\nTotal: %d rows\n", summary.Rows())
}
