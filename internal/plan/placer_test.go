package plan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/timeboxd/timeboxd/pkg/logger"
)

type fakeSource struct {
	tasks    []Task
	fetchErr error
	markErr  error
	marked   map[string][]string
}

func (f *fakeSource) FetchDueUnplanned(context.Context) ([]Task, error) {
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	return f.tasks, nil
}

func (f *fakeSource) MarkPlanned(_ context.Context, taskID string, eventIDs []string) error {
	if f.markErr != nil {
		return f.markErr
	}
	if f.marked == nil {
		f.marked = make(map[string][]string)
	}
	f.marked[taskID] = eventIDs
	return nil
}

type createdEvent struct {
	Title       string
	Start, End  time.Time
	Description string
}

type fakeCalendar struct {
	// busy returns the busy intervals for a queried window.
	busy      func(start, end time.Time) []BusyInterval
	createErr error
	created   []createdEvent
	queryErr  error
	nextID    int
}

func (f *fakeCalendar) QueryBusy(_ context.Context, start, end time.Time) ([]BusyInterval, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.busy == nil {
		return nil, nil
	}
	return f.busy(start, end), nil
}

func (f *fakeCalendar) CreateEvent(_ context.Context, title string, start, end time.Time, description string) (string, error) {
	if f.createErr != nil {
		return "", f.createErr
	}
	f.nextID++
	f.created = append(f.created, createdEvent{Title: title, Start: start, End: end, Description: description})
	return fmt.Sprintf("ev-%d", f.nextID), nil
}

func newTestPlacer(src *fakeSource, cal *fakeCalendar, now time.Time) *Placer {
	return &Placer{
		Source:    src,
		Calendar:  cal,
		Breakdown: &Breakdown{Estimator: NewEstimator(0)},
		WorkStart: ClockTime{9, 0},
		WorkEnd:   ClockTime{18, 0},
		Location:  time.UTC,
		Now:       func() time.Time { return now },
		Log:       logger.NewNopLogger(),
	}
}

func day(d, hour, min int) time.Time {
	return time.Date(2025, 3, d, hour, min, 0, 0, time.UTC)
}

func TestRun_PlacesSingleSubtaskAtCursor(t *testing.T) {
	src := &fakeSource{tasks: []Task{{
		ID:              "t1",
		Title:           "Quarterly filing",
		Due:             day(6, 18, 0),
		EstimateMinutes: 45,
	}}}
	cal := &fakeCalendar{}
	p := newTestPlacer(src, cal, day(3, 10, 0))

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.TasksFetched != 1 || sum.EventsCreated != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if len(cal.created) != 1 {
		t.Fatalf("expected one event, got %d", len(cal.created))
	}
	ev := cal.created[0]
	// Run starts mid-workday: the cursor, not the workday start, wins.
	if !ev.Start.Equal(day(3, 10, 0)) {
		t.Errorf("event start = %v, want 10:00", ev.Start)
	}
	if got := ev.End.Sub(ev.Start); got != 45*time.Minute {
		t.Errorf("event duration = %v, want 45m", got)
	}
	ids, ok := src.marked["t1"]
	if !ok || len(ids) != 1 {
		t.Errorf("task not marked planned with one event id: %v", src.marked)
	}
	if len(sum.Processed) != 1 || sum.Processed[0].Failed() {
		t.Errorf("processed = %+v", sum.Processed)
	}
}

func TestRun_StartsAtWorkdayStartBeforeHours(t *testing.T) {
	src := &fakeSource{tasks: []Task{{ID: "t1", Title: "Water the plants", Due: day(4, 18, 0)}}}
	cal := &fakeCalendar{}
	p := newTestPlacer(src, cal, day(3, 6, 30))

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !cal.created[0].Start.Equal(day(3, 9, 0)) {
		t.Errorf("event start = %v, want workday start 09:00", cal.created[0].Start)
	}
}

func TestRun_SkipsBusyDayThenPlacesNextDay(t *testing.T) {
	src := &fakeSource{tasks: []Task{{ID: "t1", Title: "Prepare deck", Due: day(6, 18, 0), EstimateMinutes: 60}}}
	cal := &fakeCalendar{busy: func(start, _ time.Time) []BusyInterval {
		if start.Day() == 3 {
			return []BusyInterval{{Start: day(3, 9, 0), End: day(3, 18, 0)}}
		}
		return nil
	}}
	p := newTestPlacer(src, cal, day(3, 9, 0))

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !cal.created[0].Start.Equal(day(4, 9, 0)) {
		t.Errorf("event start = %v, want next day 09:00", cal.created[0].Start)
	}
}

func TestRun_OverflowAfterDeadline(t *testing.T) {
	fullDay := func(d int) []BusyInterval {
		return []BusyInterval{{Start: day(d, 9, 0), End: day(d, 18, 0)}}
	}
	src := &fakeSource{tasks: []Task{{ID: "t1", Title: "File taxes", Due: day(4, 12, 0), EstimateMinutes: 45}}}
	cal := &fakeCalendar{busy: func(start, _ time.Time) []BusyInterval {
		return fullDay(start.Day())
	}}
	p := newTestPlacer(src, cal, day(3, 9, 30))

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.EventsCreated != 1 {
		t.Fatalf("expected exactly one event, summary = %+v", sum)
	}
	ev := cal.created[0]
	// Everything through the due date is booked; the forced slot lands
	// at workday start the day after the deadline, conflicts or not.
	if !ev.Start.Equal(day(5, 9, 0)) {
		t.Errorf("overflow start = %v, want 2025-03-05 09:00", ev.Start)
	}
	if !strings.HasPrefix(ev.Title, overflowMarker) {
		t.Errorf("overflow title %q lacks marker", ev.Title)
	}
	if ev.Description != descOverflow {
		t.Errorf("overflow description = %q", ev.Description)
	}
}

func TestRun_OverflowPrefersGapOverForcedSlot(t *testing.T) {
	src := &fakeSource{tasks: []Task{{ID: "t1", Title: "File taxes", Due: day(4, 12, 0), EstimateMinutes: 45}}}
	cal := &fakeCalendar{busy: func(start, _ time.Time) []BusyInterval {
		d := start.Day()
		if d <= 4 {
			return []BusyInterval{{Start: day(d, 9, 0), End: day(d, 18, 0)}}
		}
		// Day 5 is only busy until noon.
		return []BusyInterval{{Start: day(5, 9, 0), End: day(5, 12, 0)}}
	}}
	p := newTestPlacer(src, cal, day(3, 9, 30))

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !cal.created[0].Start.Equal(day(5, 12, 5)) {
		t.Errorf("overflow should use the free gap, start = %v", cal.created[0].Start)
	}
}

func TestRun_CursorKeepsSubtasksDisjoint(t *testing.T) {
	src := &fakeSource{tasks: []Task{{
		ID:             "t1",
		Title:          "Write report and email client",
		Due:            day(6, 18, 0),
		NeedsBreakdown: true,
	}}}
	cal := &fakeCalendar{}
	p := newTestPlacer(src, cal, day(3, 9, 0))

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(cal.created) != 2 {
		t.Fatalf("expected two events, got %d", len(cal.created))
	}
	first, second := cal.created[0], cal.created[1]
	if got := first.End.Sub(first.Start); got != 60*time.Minute {
		t.Errorf("deep-work session duration = %v", got)
	}
	if got := second.End.Sub(second.Start); got != 25*time.Minute {
		t.Errorf("light-work session duration = %v", got)
	}
	if want := first.End.Add(5 * time.Minute); !second.Start.Equal(want) {
		t.Errorf("second session starts at %v, want cursor %v", second.Start, want)
	}
}

func TestRun_CursorOrdersAcrossTasks(t *testing.T) {
	src := &fakeSource{tasks: []Task{
		{ID: "t1", Title: "First thing", Due: day(6, 18, 0), EstimateMinutes: 30},
		{ID: "t2", Title: "Second thing", Due: day(6, 18, 0), EstimateMinutes: 30},
	}}
	cal := &fakeCalendar{}
	p := newTestPlacer(src, cal, day(3, 9, 0))

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(cal.created) != 2 {
		t.Fatalf("expected two events, got %d", len(cal.created))
	}
	if cal.created[1].Start.Before(cal.created[0].End) {
		t.Errorf("placements overlap: %+v", cal.created)
	}
}

func TestRun_SkipsTaskWithoutDue(t *testing.T) {
	src := &fakeSource{tasks: []Task{{ID: "t1", Title: "Someday maybe"}}}
	cal := &fakeCalendar{}
	p := newTestPlacer(src, cal, day(3, 9, 0))

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if sum.EventsCreated != 0 || len(cal.created) != 0 {
		t.Errorf("no-due task must not be placed: %+v", sum)
	}
	if len(sum.Processed) != 0 {
		t.Errorf("no-due task must not appear in processed: %+v", sum.Processed)
	}
	if len(src.marked) != 0 {
		t.Errorf("no-due task must not be marked planned: %v", src.marked)
	}
}

func TestRun_FetchFailureFailsRun(t *testing.T) {
	src := &fakeSource{fetchErr: errors.New("store unreachable")}
	p := newTestPlacer(src, &fakeCalendar{}, day(3, 9, 0))

	if _, err := p.Run(context.Background()); err == nil {
		t.Fatal("expected run error when the task fetch fails")
	}
}

func TestRun_TaskFailureDoesNotStopRun(t *testing.T) {
	src := &fakeSource{tasks: []Task{
		{ID: "t1", Title: "Broken", Due: day(6, 18, 0), EstimateMinutes: 30},
		{ID: "t2", Title: "Fine", Due: day(6, 18, 0), EstimateMinutes: 30},
	}}
	// The first busy query fails, failing the first task; the calendar
	// recovers for the second task.
	cal := &fakeCalendar{}
	p := newTestPlacer(src, cal, day(3, 9, 0))
	p.Calendar = &flakyCalendar{inner: cal, failFirst: 1, err: errors.New("calendar down")}

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Processed) != 2 {
		t.Fatalf("expected both tasks in the summary, got %+v", sum.Processed)
	}
	if !sum.Processed[0].Failed() {
		t.Error("first task should be recorded as failed")
	}
	if sum.Processed[1].Failed() {
		t.Errorf("second task should succeed: %+v", sum.Processed[1])
	}
	if sum.EventsCreated != 1 {
		t.Errorf("failed task must contribute zero events, got %d", sum.EventsCreated)
	}
	if _, ok := src.marked["t1"]; ok {
		t.Error("failed task must not be marked planned")
	}
	if _, ok := src.marked["t2"]; !ok {
		t.Error("second task should be marked planned")
	}
}

// flakyCalendar fails the first N busy queries, then delegates.
type flakyCalendar struct {
	inner     Calendar
	failFirst int
	err       error
	calls     int
}

func (f *flakyCalendar) QueryBusy(ctx context.Context, start, end time.Time) ([]BusyInterval, error) {
	f.calls++
	if f.calls <= f.failFirst {
		return nil, f.err
	}
	return f.inner.QueryBusy(ctx, start, end)
}

func (f *flakyCalendar) CreateEvent(ctx context.Context, title string, start, end time.Time, description string) (string, error) {
	return f.inner.CreateEvent(ctx, title, start, end, description)
}

func TestRun_MarkPlannedFailureRecorded(t *testing.T) {
	src := &fakeSource{
		tasks:   []Task{{ID: "t1", Title: "Fine", Due: day(6, 18, 0), EstimateMinutes: 30}},
		markErr: errors.New("store write failed"),
	}
	cal := &fakeCalendar{}
	p := newTestPlacer(src, cal, day(3, 9, 0))

	sum, err := p.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Processed) != 1 || !sum.Processed[0].Failed() {
		t.Fatalf("expected recorded failure, got %+v", sum.Processed)
	}
	if sum.EventsCreated != 0 {
		t.Errorf("failed task must contribute zero events, got %d", sum.EventsCreated)
	}
}

func TestRun_EmitsProgress(t *testing.T) {
	src := &fakeSource{tasks: []Task{{ID: "t1", Title: "Fine", Due: day(6, 18, 0), EstimateMinutes: 30}}}
	cal := &fakeCalendar{}
	p := newTestPlacer(src, cal, day(3, 9, 0))

	var kinds []ProgressKind
	p.OnProgress = func(ev Progress) { kinds = append(kinds, ev.Kind) }

	if _, err := p.Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	want := []ProgressKind{
		ProgressRunStarted,
		ProgressTaskStarted,
		ProgressEventCreated,
		ProgressTaskPlanned,
		ProgressRunCompleted,
	}
	if len(kinds) != len(want) {
		t.Fatalf("progress kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("progress[%d] = %s, want %s", i, kinds[i], want[i])
		}
	}
}
