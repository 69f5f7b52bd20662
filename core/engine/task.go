package engine

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// task is a recurring background driver with its own timer and a
// single-flight guard: a tick that fires while the previous one is still
// running is skipped outright, never queued.
type task struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context)
	logger   *zap.Logger

	inFlight atomic.Bool
	lastRun  atomic.Int64 // unix nanos of the last started tick
}

func newTask(name string, interval time.Duration, run func(ctx context.Context), logger *zap.Logger) *task {
	return &task{
		name:     name,
		interval: interval,
		run:      run,
		logger:   logger,
	}
}

// enabled reports whether the task should run at all. Non-positive
// intervals disable the driver.
func (t *task) enabled() bool {
	return t.interval > 0
}

// start launches the timer loop. It returns immediately; the loop exits
// when ctx is cancelled. An in-flight tick runs to completion.
func (t *task) start(ctx context.Context) {
	if !t.enabled() {
		t.logger.Info("Driver disabled", zap.String("driver", t.name))
		return
	}

	go func() {
		ticker := time.NewTicker(t.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				t.tick(ctx)
			}
		}
	}()
}

// tick runs one iteration unless the previous one is still in flight.
func (t *task) tick(ctx context.Context) {
	if !t.inFlight.CompareAndSwap(false, true) {
		t.logger.Debug("Skipping tick, previous still running", zap.String("driver", t.name))
		return
	}
	t.lastRun.Store(time.Now().UnixNano())

	go func() {
		defer t.inFlight.Store(false)
		t.run(ctx)
	}()
}

// LastRun returns the start time of the most recent tick, zero if none ran yet.
func (t *task) LastRun() time.Time {
	n := t.lastRun.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
