package engine

import (
	"sync"
	"time"

	"github.com/coder/quartz"
)

// rolloverTimer is a single-shot, re-armable deferred action. Arming it again
// cancels the previous action; a callback that lost the race with Stop or Arm
// does nothing.
type rolloverTimer struct {
	clock quartz.Clock

	mu    sync.Mutex
	timer *quartz.Timer
	gen   uint64
}

func newRolloverTimer(clock quartz.Clock) *rolloverTimer {
	return &rolloverTimer{clock: clock}
}

// Arm schedules fire after d, replacing any pending action.
func (r *rolloverTimer) Arm(d time.Duration, fire func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
	}
	r.gen++
	gen := r.gen
	r.timer = r.clock.AfterFunc(d, func() {
		r.mu.Lock()
		if gen != r.gen {
			r.mu.Unlock()
			return
		}
		r.timer = nil
		r.gen++
		r.mu.Unlock()
		fire()
	}, "engine", "rollover")
}

// Stop cancels the pending action, if any.
func (r *rolloverTimer) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
	r.gen++
}

// Pending reports whether an action is scheduled.
func (r *rolloverTimer) Pending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.timer != nil
}
