package notify

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/valtiodata/eduskunta-fetch/internal/config"
)

func TestNotifier_Disabled(t *testing.T) {
	n := New(&config.NotifyConfig{Enabled: false, WebhookURL: "http://example.invalid"})
	if n.IsEnabled() {
		t.Error("notifier enabled without enabled flag")
	}
	// Must not panic or attempt network traffic.
	n.RunStarted("abc", 3)
	n.RunCompleted("abc", 3, 100, time.Second)
}

func TestNotifier_PostsEvents(t *testing.T) {
	var got []Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var ev Event
		if err := json.Unmarshal(body, &ev); err != nil {
			t.Errorf("bad event payload: %v", err)
		}
		got = append(got, ev)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(&config.NotifyConfig{Enabled: true, WebhookURL: srv.URL})
	n.RunStarted("run1", 5)
	n.RunCompleted("run1", 5, 12345, 90*time.Second)
	n.RunFailed("run2", []string{"VaskiData"}, 10, "server error")

	if len(got) != 3 {
		t.Fatalf("events = %d, want 3", len(got))
	}
	if got[0].Event != "run_started" || got[0].Tables != 5 {
		t.Errorf("first event = %+v", got[0])
	}
	if got[1].Event != "run_completed" || got[1].Rows != 12345 || got[1].Duration != "1m30s" {
		t.Errorf("second event = %+v", got[1])
	}
	if got[2].Event != "run_failed" || len(got[2].Failed) != 1 || got[2].Error == "" {
		t.Errorf("third event = %+v", got[2])
	}
	for _, ev := range got {
		if ev.Timestamp == "" {
			t.Error("event missing timestamp")
		}
	}
}
