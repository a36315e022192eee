// Package notify sends run lifecycle events to a webhook.
package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/valtiodata/eduskunta-fetch/internal/config"
	"github.com/valtiodata/eduskunta-fetch/internal/logging"
)

// Notifier posts JSON events to a configured webhook URL.
type Notifier struct {
	config     *config.NotifyConfig
	httpClient *http.Client
}

// Event is the JSON payload posted to the webhook.
type Event struct {
	Event     string   `json:"event"` // run_started, run_completed, run_failed
	RunID     string   `json:"run_id"`
	Timestamp string   `json:"timestamp"`
	Tables    int      `json:"tables,omitempty"`
	Rows      int64    `json:"rows,omitempty"`
	Duration  string   `json:"duration,omitempty"`
	Failed    []string `json:"failed_tables,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// New creates a webhook notifier.
func New(cfg *config.NotifyConfig) *Notifier {
	if cfg == nil {
		cfg = &config.NotifyConfig{}
	}
	return &Notifier{
		config: cfg,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// IsEnabled returns true if notifications are configured.
func (n *Notifier) IsEnabled() bool {
	return n.config != nil && n.config.Enabled && n.config.WebhookURL != ""
}

// RunStarted reports the start of a download run.
func (n *Notifier) RunStarted(runID string, tableCount int) {
	n.send(Event{Event: "run_started", RunID: runID, Tables: tableCount})
}

// RunCompleted reports a successful run.
func (n *Notifier) RunCompleted(runID string, tableCount int, rows int64, duration time.Duration) {
	n.send(Event{
		Event:    "run_completed",
		RunID:    runID,
		Tables:   tableCount,
		Rows:     rows,
		Duration: duration.Round(time.Second).String(),
	})
}

// RunFailed reports a run that ended with failed tables or an error.
func (n *Notifier) RunFailed(runID string, failedTables []string, rows int64, errMsg string) {
	n.send(Event{
		Event:  "run_failed",
		RunID:  runID,
		Rows:   rows,
		Failed: failedTables,
		Error:  errMsg,
	})
}

// send posts the event. Notification failures are logged, never fatal.
func (n *Notifier) send(ev Event) {
	if !n.IsEnabled() {
		return
	}
	ev.Timestamp = time.Now().Format(time.RFC3339)

	body, err := json.Marshal(ev)
	if err != nil {
		logging.Warn("marshaling webhook event: %v", err)
		return
	}
	resp, err := n.httpClient.Post(n.config.WebhookURL, "application/json", bytes.NewReader(body))
	if err != nil {
		logging.Warn("posting webhook event: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		logging.Warn("webhook returned %s for %s event", resp.Status, ev.Event)
	}
}
