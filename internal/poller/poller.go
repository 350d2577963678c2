// Package poller drives automatic placement runs. It sleeps until the
// next tick of either a fixed interval or a cron expression and fires
// the run callback, one run at a time.
package poller

import (
	"context"
	"errors"
	"time"

	"github.com/adhocore/gronx"

	"github.com/timeboxd/timeboxd/internal/server"
	"github.com/timeboxd/timeboxd/pkg/logger"
)

// maxSleepCap bounds a single timer sleep so clock adjustments and very
// distant cron ticks are re-evaluated regularly.
const maxSleepCap = 60 * time.Second

// Poller fires the run callback on a schedule.
type Poller struct {
	// Interval between runs. Ignored when CronExpr is set.
	Interval time.Duration

	// CronExpr, when non-empty, replaces the fixed interval with a
	// 5-field cron schedule.
	CronExpr string

	// Run executes one placement pass.
	Run func(ctx context.Context) error

	// Kick requests an immediate run out of schedule.
	Kick chan struct{}

	Log logger.Logger
}

// Start blocks until ctx is cancelled, firing runs at each tick. The
// loop is the only goroutine touching the timer.
func (p *Poller) Start(ctx context.Context) {
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	next := p.nextTick(time.Now())

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		dur := time.Until(next)
		if dur > maxSleepCap {
			dur = maxSleepCap
		}
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	timerCh := resetTimer()

	for {
		select {
		case <-ctx.Done():
			return

		case <-p.Kick:
			p.fire(ctx)
			next = p.nextTick(time.Now())
			timerCh = resetTimer()

		case <-timerCh:
			// The sleep cap wakes the loop early; only fire on a real
			// tick.
			if time.Now().Before(next) {
				timerCh = resetTimer()
				continue
			}
			p.fire(ctx)
			next = p.nextTick(time.Now())
			timerCh = resetTimer()
		}
	}
}

// nextTick computes the instant of the next run after now.
func (p *Poller) nextTick(now time.Time) time.Time {
	if p.CronExpr != "" {
		next, err := gronx.NextTickAfter(p.CronExpr, now, false)
		if err == nil {
			return next
		}
		if p.Log != nil {
			p.Log.Error("cron %q: %v, falling back to interval", p.CronExpr, err)
		}
	}
	return now.Add(p.Interval)
}

func (p *Poller) fire(ctx context.Context) {
	err := p.Run(ctx)
	switch {
	case err == nil:
	case errors.Is(err, server.ErrRunInProgress):
		if p.Log != nil {
			p.Log.Info("skipping tick, %v", err)
		}
	default:
		if p.Log != nil {
			p.Log.Error("scheduled run failed: %v", err)
		}
	}
}
