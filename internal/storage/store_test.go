package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/timeboxd/timeboxd/internal/plan"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "timeboxd.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleSummary(id string, started time.Time) *plan.Summary {
	return &plan.Summary{
		RunID:         id,
		StartedAt:     started,
		FinishedAt:    started.Add(3 * time.Second),
		TasksFetched:  2,
		EventsCreated: 3,
		Processed: []plan.TaskResult{
			{TaskID: "t1", Title: "Write report", EventIDs: []string{"ev-1", "ev-2"}},
			{TaskID: "t2", Title: "Pay invoice", Error: "create event: boom"},
		},
	}
}

func TestRecordRunAndHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	if err := s.RecordRun(ctx, sampleSummary("run-1", base)); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordRun(ctx, sampleSummary("run-2", base.Add(time.Hour))); err != nil {
		t.Fatal(err)
	}

	sums, err := s.History(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(sums))
	}
	// Newest first.
	if sums[0].RunID != "run-2" || sums[1].RunID != "run-1" {
		t.Errorf("order = %s, %s", sums[0].RunID, sums[1].RunID)
	}

	got := sums[1]
	if got.TasksFetched != 2 || got.EventsCreated != 3 {
		t.Errorf("counters = %+v", got)
	}
	if !got.StartedAt.Equal(base) {
		t.Errorf("StartedAt = %v", got.StartedAt)
	}
	if len(got.Processed) != 2 || got.Processed[0].EventIDs[1] != "ev-2" {
		t.Errorf("Processed = %+v", got.Processed)
	}
	if !got.Processed[1].Failed() || got.Processed[1].Error != "create event: boom" {
		t.Errorf("failed task = %+v", got.Processed[1])
	}
}

func TestHistory_Limit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		sum := sampleSummary(string(rune('a'+i)), base.Add(time.Duration(i)*time.Minute))
		if err := s.RecordRun(ctx, sum); err != nil {
			t.Fatal(err)
		}
	}

	sums, err := s.History(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 2 || sums[0].RunID != "e" {
		t.Errorf("history = %+v", sums)
	}
}

func TestLastRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	last, err := s.LastRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last != nil {
		t.Errorf("expected nil before any run, got %+v", last)
	}

	base := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	if err := s.RecordRun(ctx, sampleSummary("run-1", base)); err != nil {
		t.Fatal(err)
	}
	last, err = s.LastRun(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if last == nil || last.RunID != "run-1" {
		t.Errorf("last = %+v", last)
	}
}

func TestRecordRun_Replaces(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	sum := sampleSummary("run-1", base)
	if err := s.RecordRun(ctx, sum); err != nil {
		t.Fatal(err)
	}
	sum.EventsCreated = 9
	if err := s.RecordRun(ctx, sum); err != nil {
		t.Fatal(err)
	}

	sums, err := s.History(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(sums) != 1 || sums[0].EventsCreated != 9 {
		t.Errorf("history = %+v", sums)
	}
}

func TestRecordTask(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.RecordTask(ctx, "t1", "Write report", false); err != nil {
		t.Fatal(err)
	}
	// A later run can flip the planned flag in place.
	if err := s.RecordTask(ctx, "t1", "Write report", true); err != nil {
		t.Fatal(err)
	}

	var planned int
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM items`).Scan(&count); err != nil {
		t.Fatal(err)
	}
	if err := s.db.QueryRow(`SELECT planned FROM items WHERE task_id = ?`, "t1").Scan(&planned); err != nil {
		t.Fatal(err)
	}
	if count != 1 || planned != 1 {
		t.Errorf("items: count=%d planned=%d", count, planned)
	}
}

func TestRecordEvent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 3, 10, 0, 0, 0, time.UTC)

	err := s.RecordEvent(ctx, "run-1", "t1", "ev-1", "Write report", start, start.Add(45*time.Minute), true)
	if err != nil {
		t.Fatal(err)
	}

	var title string
	var overflow int
	row := s.db.QueryRow(`SELECT title, overflow FROM events WHERE event_id = ?`, "ev-1")
	if err := row.Scan(&title, &overflow); err != nil {
		t.Fatal(err)
	}
	if title != "Write report" || overflow != 1 {
		t.Errorf("event row = %q overflow=%d", title, overflow)
	}
}
