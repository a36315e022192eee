// Package fetch is the download engine: it turns a list of table specs into
// a bounded set of concurrent, rate-limited, retried page requests, walks
// each table's pagination cursor to completion, and hands completed pages to
// a sink in per-table order.
package fetch

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/valtiodata/eduskunta-fetch/internal/api"
	"github.com/valtiodata/eduskunta-fetch/internal/logging"
)

// ErrCancelled is returned by Run when the context was cancelled before all
// tables finished. Distinct from per-table failure.
var ErrCancelled = errors.New("download cancelled")

// task is one pending page request travelling from a coordinator to a worker.
type task struct {
	req   api.PageRequest
	seq   int64
	reply chan taskResult
}

type taskResult struct {
	seq  int64
	page *api.RowsPage
	err  error
}

// Options configures the scheduler.
type Options struct {
	// Concurrency is the shared worker-pool size. Default: 5.
	Concurrency int

	// PerPage is the page size requested from the API. Default: api.MaxPerPage.
	PerPage int

	// RowLimit caps rows per table; 0 means unlimited.
	RowLimit int64

	// ReadAhead is the in-flight page window per table in page-index mode.
	// Default: 4. pk-ascending tables always hold one outstanding request.
	ReadAhead int

	// Retry configures the per-task retry loop.
	Retry RetryConfig
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = 5
	}
	if o.PerPage <= 0 || o.PerPage > api.MaxPerPage {
		o.PerPage = api.MaxPerPage
	}
	if o.ReadAhead <= 0 {
		o.ReadAhead = 4
	}
	o.Retry = o.Retry.withDefaults()
	return o
}

// Summary aggregates per-table outcomes of one run.
type Summary struct {
	Outcomes []TableOutcome
	Duration time.Duration
}

// Completed returns the names of tables that finished successfully.
func (s *Summary) Completed() []string { return s.tablesIn(StateCompleted) }

// Failed returns the names of tables that ended failed.
func (s *Summary) Failed() []string { return s.tablesIn(StateFailed) }

// Rows returns the total number of rows applied across all tables.
func (s *Summary) Rows() int64 {
	var n int64
	for _, o := range s.Outcomes {
		n += o.Rows
	}
	return n
}

// Ok reports whether every table completed.
func (s *Summary) Ok() bool {
	for _, o := range s.Outcomes {
		if o.State != StateCompleted {
			return false
		}
	}
	return true
}

func (s *Summary) tablesIn(state TableState) []string {
	var names []string
	for _, o := range s.Outcomes {
		if o.State == state {
			names = append(names, o.Table)
		}
	}
	return names
}

// Scheduler multiplexes all tables' page fetches over a shared worker pool
// and a shared rate limiter.
type Scheduler struct {
	fetcher    PageFetcher
	gate       RequestGate
	appender   Appender
	opts       Options
	clock      Clock
	checkpoint CheckpointSaver
	observer   Observer
}

// NewScheduler creates a scheduler. fetcher, gate, and appender are required.
func NewScheduler(fetcher PageFetcher, gate RequestGate, appender Appender, opts Options) *Scheduler {
	return &Scheduler{
		fetcher:  fetcher,
		gate:     gate,
		appender: appender,
		opts:     opts.withDefaults(),
		clock:    realClock{},
		observer: nopObserver{},
	}
}

// SetClock replaces the backoff clock. Used by tests.
func (s *Scheduler) SetClock(c Clock) { s.clock = c }

// SetCheckpoint attaches a cursor persistence hook.
func (s *Scheduler) SetCheckpoint(cp CheckpointSaver) { s.checkpoint = cp }

// SetObserver attaches a progress observer.
func (s *Scheduler) SetObserver(o Observer) { s.observer = o }

// Run downloads all tables in specs and blocks until every table reaches a
// terminal state. Tables are started in priority order but run concurrently;
// at most Options.Concurrency page requests are in flight at any instant.
//
// resume maps table names to previously saved cursor positions; tables not
// present start fresh.
//
// Per-table failures do not abort sibling tables and are reported in the
// summary. The returned error is non-nil only for cancellation.
func (s *Scheduler) Run(ctx context.Context, specs []TableSpec, resume map[string]CursorPosition) (*Summary, error) {
	start := time.Now()

	ordered := make([]TableSpec, len(specs))
	copy(ordered, specs)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].Priority != ordered[j].Priority {
			return ordered[i].Priority < ordered[j].Priority
		}
		return ordered[i].Name < ordered[j].Name
	})

	tasks := make(chan *task)
	var workers sync.WaitGroup
	for i := 0; i < s.opts.Concurrency; i++ {
		workers.Add(1)
		go func() {
			defer workers.Done()
			s.worker(ctx, tasks)
		}()
	}

	// Starts are staggered: the next table is not launched until the
	// previous one's first page request has been handed to the pool, so
	// priority order holds at the worker queue and not just at goroutine
	// creation.
	outcomes := make(chan TableOutcome, len(ordered))
	var coordinators sync.WaitGroup
	for _, spec := range ordered {
		cursor := NewCursor(spec, s.opts.PerPage, s.opts.RowLimit)
		if pos, ok := resume[spec.Name]; ok {
			cursor.Restore(pos)
		}
		started := make(chan struct{})
		co := &coordinator{
			spec:       spec,
			cursor:     cursor,
			appender:   s.appender,
			checkpoint: s.checkpoint,
			observer:   s.observer,
			submit:     signalFirst(s.submit(tasks), started),
			readAhead:  s.opts.ReadAhead,
		}
		done := make(chan struct{})
		coordinators.Add(1)
		go func() {
			defer coordinators.Done()
			outcomes <- co.run(ctx)
			close(done)
		}()
		// A restored cursor may be exhausted and never submit at all.
		select {
		case <-started:
		case <-done:
		}
	}

	coordinators.Wait()
	close(tasks)
	workers.Wait()
	close(outcomes)

	summary := &Summary{Duration: time.Since(start)}
	byName := make(map[string]TableOutcome, len(ordered))
	for o := range outcomes {
		byName[o.Table] = o
		switch o.State {
		case StateCompleted:
			logging.Info("table %s completed: %d rows in %d pages", o.Table, o.Rows, o.Pages)
		case StateFailed:
			logging.Error("table %s failed after %d rows: %v", o.Table, o.Rows, o.Err)
		case StateCancelled:
			logging.Warn("table %s cancelled after %d rows", o.Table, o.Rows)
		}
	}
	// Report in start order, not completion order.
	for _, spec := range ordered {
		summary.Outcomes = append(summary.Outcomes, byName[spec.Name])
	}

	if ctx.Err() != nil {
		return summary, ErrCancelled
	}
	return summary, nil
}

// submit returns the coordinator-side enqueue function.
func (s *Scheduler) submit(tasks chan<- *task) func(ctx context.Context, t *task) bool {
	return func(ctx context.Context, t *task) bool {
		select {
		case tasks <- t:
			return true
		case <-ctx.Done():
			return false
		}
	}
}

// signalFirst closes started once the first submit has resolved, whether it
// was accepted or the context was cancelled.
func signalFirst(submit func(ctx context.Context, t *task) bool, started chan<- struct{}) func(ctx context.Context, t *task) bool {
	var once sync.Once
	return func(ctx context.Context, t *task) bool {
		ok := submit(ctx, t)
		once.Do(func() { close(started) })
		return ok
	}
}

// worker pulls tasks off the shared queue and executes them under the rate
// limiter with retry. Reply channels are buffered to the coordinator's
// window, so the send never blocks.
func (s *Scheduler) worker(ctx context.Context, tasks <-chan *task) {
	for t := range tasks {
		page, err := fetchWithRetry(ctx, s.fetcher, s.gate, s.clock, s.opts.Retry, t.req)
		t.reply <- taskResult{seq: t.seq, page: page, err: err}
	}
}
