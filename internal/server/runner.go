// Package server exposes the daemon over HTTP: a small JSON surface for
// humans and scripts, a JSON-RPC 2.0 bridge for the CLI, and a
// WebSocket endpoint that pushes run progress to watchers.
package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/timeboxd/timeboxd/internal/plan"
	"github.com/timeboxd/timeboxd/internal/storage"
	"github.com/timeboxd/timeboxd/pkg/logger"
)

// ErrRunInProgress is returned when a trigger arrives while a run is
// already executing. Runs are strictly serialized; callers retry later.
var ErrRunInProgress = errors.New("a run is already in progress")

// testEventTitle marks throwaway events created by connectivity checks.
const testEventTitle = "timeboxd test event"

// Runner serializes placement runs and keeps their outcomes. It is the
// single entry point for both scheduled and manually triggered runs.
type Runner struct {
	Placer   *plan.Placer
	Calendar plan.Calendar
	Store    *storage.Store
	Location *time.Location
	Log      logger.Logger

	mu     sync.Mutex
	stateM sync.Mutex
	active bool
	last   *plan.Summary
}

// Trigger executes one run. Returns ErrRunInProgress when another run
// holds the lock.
func (r *Runner) Trigger(ctx context.Context) (*plan.Summary, error) {
	if !r.mu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer r.mu.Unlock()

	r.setActive(true)
	defer r.setActive(false)

	sum, err := r.Placer.Run(ctx)
	if err != nil {
		return nil, err
	}
	if r.Store != nil {
		if err := r.Store.RecordRun(ctx, sum); err != nil {
			r.Log.Warning("persist run %s: %v", sum.RunID, err)
		}
	}
	r.setLast(sum)
	return sum, nil
}

// Running reports whether a run is executing right now.
func (r *Runner) Running() bool {
	r.stateM.Lock()
	defer r.stateM.Unlock()
	return r.active
}

// Last returns the most recent completed run, consulting the store when
// no run has happened in this process yet.
func (r *Runner) Last(ctx context.Context) (*plan.Summary, error) {
	r.stateM.Lock()
	last := r.last
	r.stateM.Unlock()
	if last != nil {
		return last, nil
	}
	if r.Store == nil {
		return nil, nil
	}
	return r.Store.LastRun(ctx)
}

// History returns up to limit stored run summaries, newest first.
func (r *Runner) History(ctx context.Context, limit int) ([]plan.Summary, error) {
	if r.Store == nil {
		return nil, nil
	}
	return r.Store.History(ctx, limit)
}

// TestEvent inserts a short throwaway event a few minutes from now to
// verify calendar credentials end to end.
func (r *Runner) TestEvent(ctx context.Context) (*plan.PlacedEvent, error) {
	start := time.Now().In(r.Location).Add(5 * time.Minute).Truncate(time.Minute)
	end := start.Add(15 * time.Minute)
	id, err := r.Calendar.CreateEvent(ctx, testEventTitle, start, end, "Connectivity check, safe to delete")
	if err != nil {
		return nil, fmt.Errorf("create test event: %w", err)
	}
	return &plan.PlacedEvent{EventID: id, Start: start, End: end}, nil
}

func (r *Runner) setActive(v bool) {
	r.stateM.Lock()
	r.active = v
	r.stateM.Unlock()
}

func (r *Runner) setLast(sum *plan.Summary) {
	r.stateM.Lock()
	r.last = sum
	r.stateM.Unlock()
}
