package checkpoint

import (
	"testing"

	"github.com/valtiodata/eduskunta-fetch/internal/api"
	"github.com/valtiodata/eduskunta-fetch/internal/fetch"
)

func openTestState(t *testing.T) *State {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestState(t)

	id := NewRunID()
	if len(id) != 8 {
		t.Fatalf("run id %q, want 8 chars", id)
	}
	if err := s.CreateRun(id, map[string]any{"tables": []string{"VaskiData"}}); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}

	run, err := s.GetLastIncompleteRun()
	if err != nil {
		t.Fatalf("GetLastIncompleteRun: %v", err)
	}
	if run == nil || run.ID != id {
		t.Fatalf("incomplete run = %+v, want id %s", run, id)
	}

	if err := s.CompleteRun(id, "success"); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}
	run, err = s.GetLastIncompleteRun()
	if err != nil {
		t.Fatalf("GetLastIncompleteRun after complete: %v", err)
	}
	if run != nil {
		t.Errorf("incomplete run = %+v, want nil", run)
	}

	runs, err := s.GetAllRuns()
	if err != nil {
		t.Fatalf("GetAllRuns: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != "success" || runs[0].CompletedAt == nil {
		t.Errorf("runs = %+v", runs)
	}
}

func TestCancelledRunIsResumable(t *testing.T) {
	s := openTestState(t)

	id := NewRunID()
	if err := s.CreateRun(id, nil); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	// An interrupted download records the run as cancelled; resume must
	// still find it.
	if err := s.CompleteRun(id, "cancelled"); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}
	run, err := s.GetLastIncompleteRun()
	if err != nil {
		t.Fatalf("GetLastIncompleteRun: %v", err)
	}
	if run == nil || run.ID != id {
		t.Fatalf("incomplete run = %+v, want id %s", run, id)
	}

	if err := s.MarkRunAsResumed(id); err != nil {
		t.Fatalf("MarkRunAsResumed: %v", err)
	}
	run, err = s.GetLastIncompleteRun()
	if err != nil {
		t.Fatalf("GetLastIncompleteRun after resume: %v", err)
	}
	if run != nil {
		t.Errorf("resumed run still reported incomplete: %+v", run)
	}
}

func TestFailedRunIsResumable(t *testing.T) {
	s := openTestState(t)

	id := NewRunID()
	if err := s.CreateRun(id, nil); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if err := s.CompleteRun(id, "failed"); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}
	run, err := s.GetLastIncompleteRun()
	if err != nil {
		t.Fatalf("GetLastIncompleteRun: %v", err)
	}
	if run == nil || run.ID != id {
		t.Fatalf("incomplete run = %+v, want id %s", run, id)
	}
}

func TestSaveCursorAndResume(t *testing.T) {
	s := openTestState(t)

	runID := NewRunID()
	if err := s.CreateRun(runID, nil); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	for _, name := range []string{"done", "partial"} {
		if err := s.InitTable(runID, name, api.ModePKAscending); err != nil {
			t.Fatalf("InitTable %s: %v", name, err)
		}
	}

	saver := s.Saver(runID)
	pos := fetch.CursorPosition{Mode: api.ModePKAscending, NextPKStart: 101, Rows: 100, Pages: 1}
	if err := saver.SaveCursor("partial", pos); err != nil {
		t.Fatalf("SaveCursor: %v", err)
	}
	// Second save overwrites.
	pos.NextPKStart, pos.Rows, pos.Pages = 201, 200, 2
	if err := saver.SaveCursor("partial", pos); err != nil {
		t.Fatalf("second SaveCursor: %v", err)
	}
	if err := s.MarkTableStatus(runID, "done", "completed", ""); err != nil {
		t.Fatalf("MarkTableStatus: %v", err)
	}

	positions, completed, err := s.ResumePositions(runID)
	if err != nil {
		t.Fatalf("ResumePositions: %v", err)
	}
	if !completed["done"] {
		t.Error("completed table missing from completed set")
	}
	if _, ok := positions["done"]; ok {
		t.Error("completed table present in resume positions")
	}
	got, ok := positions["partial"]
	if !ok {
		t.Fatal("partial table missing from resume positions")
	}
	if got.NextPKStart != 201 || got.Rows != 200 || got.Pages != 2 || got.Mode != api.ModePKAscending {
		t.Errorf("resume position = %+v", got)
	}
}

func TestMarkTableStatusRecordsError(t *testing.T) {
	s := openTestState(t)
	runID := NewRunID()
	s.CreateRun(runID, nil)
	s.InitTable(runID, "t", api.ModePageIndex)

	if err := s.MarkTableStatus(runID, "t", "failed", "server error"); err != nil {
		t.Fatalf("MarkTableStatus: %v", err)
	}
	tables, err := s.GetRunTables(runID)
	if err != nil {
		t.Fatalf("GetRunTables: %v", err)
	}
	if len(tables) != 1 || tables[0].Status != "failed" || tables[0].ErrorMessage != "server error" {
		t.Errorf("tables = %+v", tables)
	}
}
