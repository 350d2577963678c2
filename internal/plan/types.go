// Package plan implements the scheduling core of timeboxd: estimating how
// long a task should take, breaking it into subtasks, finding free gaps in
// a workday and placing the resulting sessions on a calendar before the
// task's deadline.
package plan

import "time"

// Task is a due, unplanned task fetched from the task store.
type Task struct {
	// ID is the task store's identifier (a Notion page id).
	ID string

	// Title is the task's display title.
	Title string

	// Due is the task's deadline. Zero when the task carries no due
	// instant; such tasks are skipped entirely by the placer.
	Due time.Time

	// EstimateMinutes is the user-supplied duration override in minutes.
	// Zero or negative means no override.
	EstimateMinutes int

	// NeedsBreakdown reports whether the user asked for the task to be
	// split into multiple sessions.
	NeedsBreakdown bool

	// Notes is optional free text given to the suggester as context.
	Notes string
}

// Subtask is a single time-boxed work session derived from a task.
// Minutes is always within [MinBlockMinutes, MaxBlockMinutes].
type Subtask struct {
	Title   string `json:"title"`
	Minutes int    `json:"minutes"`
}

// BusyInterval is an existing calendar commitment, half-open [Start, End).
type BusyInterval struct {
	Start time.Time
	End   time.Time
}

// PlacedEvent is the output of a successful placement.
type PlacedEvent struct {
	EventID string    `json:"event_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
}

// TaskResult is the per-task outcome included in a run summary.
type TaskResult struct {
	TaskID   string   `json:"task_id"`
	Title    string   `json:"title"`
	EventIDs []string `json:"event_ids,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// Failed reports whether the task's placement was aborted.
func (r TaskResult) Failed() bool {
	return r.Error != ""
}

// Summary is the result of one placement run. It is always populated,
// even when individual tasks failed.
type Summary struct {
	RunID         string       `json:"run_id"`
	StartedAt     time.Time    `json:"started_at"`
	FinishedAt    time.Time    `json:"finished_at"`
	TasksFetched  int          `json:"tasks_fetched"`
	EventsCreated int          `json:"events_created"`
	Processed     []TaskResult `json:"processed"`
}
