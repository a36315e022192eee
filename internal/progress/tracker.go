// Package progress renders a terminal progress bar for downloads.
package progress

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/valtiodata/eduskunta-fetch/internal/logging"
)

// Tracker tracks download progress across concurrently running tables.
// It satisfies the download engine's observer hook.
type Tracker struct {
	bar       *progressbar.ProgressBar
	enabled   bool
	total     int64
	current   atomic.Int64
	startTime time.Time

	mu           sync.Mutex
	activeTables map[string]int
}

// New creates a progress tracker. When enabled is false, or stdout is not a
// terminal, the bar is suppressed and only the final summary is logged.
func New(enabled bool) *Tracker {
	return &Tracker{
		enabled:      enabled && term.IsTerminal(int(os.Stdout.Fd())),
		startTime:    time.Now(),
		activeTables: make(map[string]int),
	}
}

// SetTotal sets the total number of rows expected. Zero means unknown, which
// renders a spinner instead of a percentage.
func (t *Tracker) SetTotal(total int64) {
	if !t.enabled {
		return
	}
	t.total = total
	if total <= 0 {
		total = -1
	}
	t.bar = progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription("Downloading"),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// TableStarted marks a table as actively downloading.
func (t *Tracker) TableStarted(table string) {
	t.mu.Lock()
	t.activeTables[table]++
	count := len(t.activeTables)
	t.mu.Unlock()

	if t.bar != nil {
		t.describe(count, table)
		t.bar.RenderBlank()
	}
}

// RowsAppended advances the bar by n rows.
func (t *Tracker) RowsAppended(table string, n int) {
	t.current.Add(int64(n))
	if t.bar != nil {
		t.bar.Add64(int64(n))
	}
}

// TableFinished marks a table as done downloading.
func (t *Tracker) TableFinished(table string) {
	t.mu.Lock()
	t.activeTables[table]--
	if t.activeTables[table] <= 0 {
		delete(t.activeTables, table)
	}
	count := len(t.activeTables)
	var remaining string
	for name := range t.activeTables {
		remaining = name
		break
	}
	t.mu.Unlock()

	if t.bar != nil && count > 0 {
		t.describe(count, remaining)
	}
}

func (t *Tracker) describe(count int, table string) {
	if count == 1 {
		t.bar.Describe(fmt.Sprintf("Downloading %s", table))
	} else {
		t.bar.Describe(fmt.Sprintf("Downloading (%d tables)", count))
	}
}

// Current returns the number of rows counted so far.
func (t *Tracker) Current() int64 {
	return t.current.Load()
}

// Finish completes the bar and logs the throughput summary.
func (t *Tracker) Finish() {
	if t.bar != nil {
		t.bar.Finish()
		fmt.Println()
	}

	elapsed := time.Since(t.startTime)
	rowsPerSec := float64(t.current.Load()) / elapsed.Seconds()
	logging.Info("Download complete: %d rows in %s (%.0f rows/sec)",
		t.current.Load(), elapsed.Round(time.Second), rowsPerSec)
}
