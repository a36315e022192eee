package fetch

import (
	"context"
	"fmt"

	"github.com/valtiodata/eduskunta-fetch/internal/api"
	"github.com/valtiodata/eduskunta-fetch/internal/logging"
)

// TableState is the lifecycle of one table download.
type TableState int

const (
	StatePending TableState = iota
	StateInProgress
	StateCompleted
	StateFailed
	StateCancelled
)

func (s TableState) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateInProgress:
		return "in-progress"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// TableOutcome is the final result of one table's download.
type TableOutcome struct {
	Table string
	State TableState
	Rows  int64
	Pages int64
	Err   error
}

// Appender receives completed pages. Implementations are expected to be
// durable when Append returns; the engine serializes calls per table but may
// call concurrently across tables.
type Appender interface {
	Append(ctx context.Context, table string, columns []string, rows [][]string) (int, error)
}

// CheckpointSaver persists cursor positions for resumption. Optional.
type CheckpointSaver interface {
	SaveCursor(table string, pos CursorPosition) error
}

// Observer is notified of download progress. Optional.
type Observer interface {
	TableStarted(table string)
	RowsAppended(table string, n int)
	TableFinished(table string)
}

type nopObserver struct{}

func (nopObserver) TableStarted(string)      {}
func (nopObserver) RowsAppended(string, int) {}
func (nopObserver) TableFinished(string)     {}

// coordinator drives one table's cursor to exhaustion through the shared
// worker pool. Pages are handed to the appender strictly in cursor order,
// and the cursor only advances after a successful append.
type coordinator struct {
	spec       TableSpec
	cursor     *Cursor
	appender   Appender
	checkpoint CheckpointSaver
	observer   Observer
	submit     func(ctx context.Context, t *task) bool
	readAhead  int
}

func (co *coordinator) run(ctx context.Context) TableOutcome {
	co.observer.TableStarted(co.spec.Name)
	defer co.observer.TableFinished(co.spec.Name)

	window := 1
	if co.cursor.Mode() == api.ModePageIndex && co.readAhead > 1 {
		window = co.readAhead
	}

	results := make(chan taskResult, window)
	pending := make(map[int64]*api.RowsPage, window)
	var issued, applySeq int64
	outstanding := 0

	for {
		for outstanding < window && !co.cursor.Exhausted() {
			req, ok := co.cursor.Next()
			if !ok {
				break
			}
			t := &task{req: req, seq: issued, reply: results}
			issued++
			if !co.submit(ctx, t) {
				return co.outcome(StateCancelled, ctx.Err())
			}
			outstanding++
		}

		if outstanding == 0 {
			break
		}

		select {
		case <-ctx.Done():
			return co.outcome(StateCancelled, ctx.Err())
		case res := <-results:
			outstanding--
			if res.err != nil {
				if api.Kind(res.err) == api.KindCancelled {
					return co.outcome(StateCancelled, res.err)
				}
				return co.outcome(StateFailed, res.err)
			}
			pending[res.seq] = res.page

			for {
				page, ok := pending[applySeq]
				if !ok {
					break
				}
				delete(pending, applySeq)
				applySeq++

				if co.cursor.Exhausted() {
					// Read-ahead past the end of the table; discard.
					continue
				}
				if err := co.apply(ctx, page); err != nil {
					if api.Kind(err) == api.KindCancelled {
						return co.outcome(StateCancelled, err)
					}
					return co.outcome(StateFailed, err)
				}
			}
		}
	}

	return co.outcome(StateCompleted, nil)
}

// apply hands one page to the sink and then advances the cursor, in that
// order, so a crash can lose at most the in-flight page.
func (co *coordinator) apply(ctx context.Context, page *api.RowsPage) error {
	rows := co.cursor.PlanApply(page)
	if len(rows) > 0 {
		committed, err := co.appender.Append(ctx, co.spec.Name, page.ColumnNames, rows)
		if err != nil {
			return fmt.Errorf("sink append for %s: %w", co.spec.Name, err)
		}
		if committed != len(rows) {
			return fmt.Errorf("sink append for %s: committed %d of %d rows", co.spec.Name, committed, len(rows))
		}
		co.observer.RowsAppended(co.spec.Name, len(rows))
	}

	co.cursor.Advance(page, len(rows))
	co.cursor.SetTotalRows(page.RowCount)

	if co.checkpoint != nil {
		if err := co.checkpoint.SaveCursor(co.spec.Name, co.cursor.Position()); err != nil {
			logging.Warn("saving cursor for %s: %v", co.spec.Name, err)
		}
	}
	return nil
}

func (co *coordinator) outcome(state TableState, err error) TableOutcome {
	if err != nil {
		err = fmt.Errorf("table %s: %w", co.spec.Name, err)
	}
	return TableOutcome{
		Table: co.spec.Name,
		State: state,
		Rows:  co.cursor.Rows(),
		Pages: co.cursor.Pages(),
		Err:   err,
	}
}
