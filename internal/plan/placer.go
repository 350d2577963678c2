package plan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/timeboxd/timeboxd/pkg/logger"
)

// TaskSource is the task store seen by the placer.
type TaskSource interface {
	// FetchDueUnplanned returns the tasks that have a due date set and
	// have not been planned yet, in store order.
	FetchDueUnplanned(ctx context.Context) ([]Task, error)

	// MarkPlanned flags a task as planned and records the created event
	// ids in placement order. Idempotent; called at most once per task
	// per run.
	MarkPlanned(ctx context.Context, taskID string, eventIDs []string) error
}

// Calendar is the calendar backend seen by the placer.
type Calendar interface {
	// QueryBusy returns the busy intervals overlapping [start, end),
	// ascending by interval start.
	QueryBusy(ctx context.Context, start, end time.Time) ([]BusyInterval, error)

	// CreateEvent inserts an event and returns its identifier.
	CreateEvent(ctx context.Context, title string, start, end time.Time, description string) (string, error)
}

// ProgressKind identifies a placer progress notification.
type ProgressKind string

const (
	ProgressRunStarted   ProgressKind = "run.started"
	ProgressTaskStarted  ProgressKind = "run.taskStarted"
	ProgressEventCreated ProgressKind = "run.eventCreated"
	ProgressTaskPlanned  ProgressKind = "run.taskPlanned"
	ProgressTaskFailed   ProgressKind = "run.taskFailed"
	ProgressRunCompleted ProgressKind = "run.completed"
)

// Progress is a placer progress notification, pushed to watchers while a
// run is in flight.
type Progress struct {
	Kind          ProgressKind `json:"kind"`
	RunID         string       `json:"run_id"`
	TaskID        string       `json:"task_id,omitempty"`
	Title         string       `json:"title,omitempty"`
	EventID       string       `json:"event_id,omitempty"`
	Start         time.Time    `json:"start,omitempty"`
	End           time.Time    `json:"end,omitempty"`
	Overflow      bool         `json:"overflow,omitempty"`
	Error         string       `json:"error,omitempty"`
	TasksFetched  int          `json:"tasks_fetched,omitempty"`
	EventsCreated int          `json:"events_created,omitempty"`
}

// Event titles and descriptions. Overflow placements carry a marker so
// they are recognizable on the calendar.
const (
	descScheduled  = "Auto-scheduled by timeboxd"
	descOverflow   = "Auto-scheduled by timeboxd (deadline overflow)"
	overflowMarker = "⚠️ "
)

// Placer drives one run: it fetches due tasks, breaks each into
// subtasks, and places every subtask into the first free calendar gap
// before the deadline, overflowing to the day after the deadline when
// the search is exhausted.
//
// A single mutable cursor, advanced to slot end plus buffer after every
// placement, serializes all placements: two subtasks placed in the same
// run can never overlap, within or across tasks. The placer is not safe
// for concurrent runs; the caller serializes invocations.
type Placer struct {
	Source    TaskSource
	Calendar  Calendar
	Breakdown *Breakdown

	WorkStart ClockTime
	WorkEnd   ClockTime
	Location  *time.Location

	// BufferMinutes left after each busy interval and placed session.
	// Zero means DefaultBufferMinutes.
	BufferMinutes int

	// Now supplies the run's start instant; nil means time.Now.
	Now func() time.Time

	Log logger.Logger

	// OnProgress, when set, receives progress notifications.
	OnProgress func(Progress)
}

// Run executes one placement pass and returns its summary. A nil error
// with per-task Error fields set means the run completed but some tasks
// could not be placed; a non-nil error means the run could not start at
// all (task fetch failed).
func (p *Placer) Run(ctx context.Context) (*Summary, error) {
	if p.Source == nil || p.Calendar == nil || p.Breakdown == nil || p.Location == nil {
		return nil, errors.New("placer is not fully configured")
	}
	now := p.now().In(p.Location)
	sum := &Summary{
		RunID:     uuid.NewString(),
		StartedAt: now,
		Processed: []TaskResult{},
	}

	tasks, err := p.Source.FetchDueUnplanned(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch due tasks: %w", err)
	}
	sum.TasksFetched = len(tasks)
	p.emit(Progress{Kind: ProgressRunStarted, RunID: sum.RunID, TasksFetched: len(tasks)})

	// Do not schedule anything before this instant. Monotonically
	// non-decreasing for the whole run.
	cursor := now

	for _, task := range tasks {
		if task.Due.IsZero() {
			// No deadline to search against; leave the task untouched.
			continue
		}
		p.emit(Progress{Kind: ProgressTaskStarted, RunID: sum.RunID, TaskID: task.ID, Title: task.Title})
		res := TaskResult{TaskID: task.ID, Title: task.Title}

		subs := p.Breakdown.Subtasks(ctx, task.Title, task.NeedsBreakdown, task.EstimateMinutes, task.Notes)
		placed, next, err := p.placeTask(ctx, sum.RunID, task, subs, cursor)
		// Keep the cursor past any sessions that made it onto the
		// calendar before a failure, so later tasks cannot land on them.
		cursor = next
		if err == nil {
			err = p.Source.MarkPlanned(ctx, task.ID, eventIDs(placed))
			if err != nil {
				err = fmt.Errorf("mark planned: %w", err)
			}
		}
		if err != nil {
			res.Error = err.Error()
			p.logError("task %s (%q) failed: %v", task.ID, task.Title, err)
			p.emit(Progress{Kind: ProgressTaskFailed, RunID: sum.RunID, TaskID: task.ID, Title: task.Title, Error: res.Error})
			sum.Processed = append(sum.Processed, res)
			continue
		}
		res.EventIDs = eventIDs(placed)
		sum.EventsCreated += len(placed)
		sum.Processed = append(sum.Processed, res)
		p.emit(Progress{Kind: ProgressTaskPlanned, RunID: sum.RunID, TaskID: task.ID, Title: task.Title})
	}

	sum.FinishedAt = p.now().In(p.Location)
	p.emit(Progress{Kind: ProgressRunCompleted, RunID: sum.RunID, TasksFetched: sum.TasksFetched, EventsCreated: sum.EventsCreated})
	return sum, nil
}

// placeTask places every subtask of one task in order. On failure it
// returns the events created so far together with the cursor reached, so
// the caller can keep later tasks clear of the partial placements.
func (p *Placer) placeTask(ctx context.Context, runID string, task Task, subs []Subtask, cursor time.Time) ([]PlacedEvent, time.Time, error) {
	var placed []PlacedEvent
	for _, s := range subs {
		ev, next, err := p.placeSubtask(ctx, runID, task, s, cursor)
		if err != nil {
			return placed, cursor, err
		}
		placed = append(placed, ev)
		cursor = next
	}
	return placed, cursor, nil
}

// placeSubtask searches successive workdays starting at the cursor's day
// for the first gap that fits, then falls back to the overflow placement
// the day after the deadline. It returns the created event and the
// advanced cursor (slot end plus buffer).
func (p *Placer) placeSubtask(ctx context.Context, runID string, task Task, s Subtask, cursor time.Time) (PlacedEvent, time.Time, error) {
	buffer := p.buffer()

	window := cursor
	for !window.After(task.Due) {
		dayStart, dayEnd := Workday(window, p.WorkStart, p.WorkEnd, p.Location)
		startFrom := maxTime(cursor, dayStart)

		busy, err := p.Calendar.QueryBusy(ctx, dayStart, dayEnd)
		if err != nil {
			return PlacedEvent{}, cursor, fmt.Errorf("query busy %s: %w", dayStart.Format("2006-01-02"), err)
		}
		if start, end, ok := FindGap(busy, startFrom, dayEnd, s.Minutes, buffer); ok {
			return p.createEvent(ctx, runID, task, s, start, end, false)
		}
		window = dayStart.AddDate(0, 0, 1)
	}

	// Deadline exhausted: guaranteed placement the day after the due
	// date. One more gap search, then a forced slot at workday start
	// regardless of conflicts. The forced slot may double-book; that is
	// the documented trade-off for never losing a session.
	dayStart, dayEnd := Workday(task.Due.AddDate(0, 0, 1), p.WorkStart, p.WorkEnd, p.Location)
	busy, err := p.Calendar.QueryBusy(ctx, dayStart, dayEnd)
	if err != nil {
		return PlacedEvent{}, cursor, fmt.Errorf("query busy (overflow) %s: %w", dayStart.Format("2006-01-02"), err)
	}
	start, end, ok := FindGap(busy, dayStart, dayEnd, s.Minutes, buffer)
	if !ok {
		start = dayStart
		end = dayStart.Add(time.Duration(s.Minutes) * time.Minute)
	}
	return p.createEvent(ctx, runID, task, s, start, end, true)
}

// createEvent inserts the calendar event for a subtask and advances the
// cursor past it.
func (p *Placer) createEvent(ctx context.Context, runID string, task Task, s Subtask, start, end time.Time, overflow bool) (PlacedEvent, time.Time, error) {
	title := eventTitle(task.Title, s.Title, overflow)
	desc := descScheduled
	if overflow {
		desc = descOverflow
	}
	id, err := p.Calendar.CreateEvent(ctx, title, start, end, desc)
	if err != nil {
		return PlacedEvent{}, start, fmt.Errorf("create event: %w", err)
	}
	ev := PlacedEvent{EventID: id, Start: start, End: end}
	p.emit(Progress{
		Kind:     ProgressEventCreated,
		RunID:    runID,
		TaskID:   task.ID,
		Title:    title,
		EventID:  id,
		Start:    start,
		End:      end,
		Overflow: overflow,
	})
	next := end.Add(time.Duration(p.buffer()) * time.Minute)
	return ev, next, nil
}

// eventTitle renders the calendar title for a subtask. Single-session
// tasks keep the bare task title; overflow placements are marked.
func eventTitle(taskTitle, subTitle string, overflow bool) string {
	title := taskTitle
	if subTitle != "" && subTitle != taskTitle {
		title = taskTitle + " - " + subTitle
	}
	if overflow {
		title = overflowMarker + title
	}
	return title
}

func (p *Placer) buffer() int {
	if p.BufferMinutes > 0 {
		return p.BufferMinutes
	}
	return DefaultBufferMinutes
}

func (p *Placer) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Placer) emit(ev Progress) {
	if p.OnProgress != nil {
		p.OnProgress(ev)
	}
}

func (p *Placer) logError(format string, args ...interface{}) {
	if p.Log != nil {
		p.Log.Error(format, args...)
	}
}

func eventIDs(placed []PlacedEvent) []string {
	ids := make([]string, 0, len(placed))
	for _, ev := range placed {
		ids = append(ids, ev.EventID)
	}
	return ids
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}
