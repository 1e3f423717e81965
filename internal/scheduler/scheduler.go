// Package scheduler coalesces bursts of counter changes into leaderboard syncs.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
)

// DefaultQuiet is the debounce interval between the last change and a sync.
const DefaultQuiet = 2 * time.Second

// SyncFunc performs one sync. It should return promptly once ctx is done.
type SyncFunc func(ctx context.Context)

// Scheduler runs SyncFunc once per burst of Notify calls, after the burst has
// been quiet for the configured interval. At most one SyncFunc runs at a time;
// requests that arrive while one is running collapse into a single rerun.
type Scheduler struct {
	clock  quartz.Clock
	quiet  time.Duration
	syncFn SyncFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	timer   *quartz.Timer
	gen     uint64
	running bool
	pending bool
	closed  bool
}

// New creates a scheduler. A nil clock uses the real clock and a non-positive
// quiet interval uses DefaultQuiet.
func New(clock quartz.Clock, quiet time.Duration, syncFn SyncFunc) *Scheduler {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if quiet <= 0 {
		quiet = DefaultQuiet
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		clock:  clock,
		quiet:  quiet,
		syncFn: syncFn,
		ctx:    ctx,
		cancel: cancel,
	}
}

// Notify records a change and restarts the quiet period.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.stopTimerLocked()
	gen := s.gen
	s.timer = s.clock.AfterFunc(s.quiet, func() {
		s.mu.Lock()
		if gen != s.gen {
			s.mu.Unlock()
			return
		}
		s.timer = nil
		s.mu.Unlock()
		s.run()
	}, "scheduler", "debounce")
}

// Trigger starts a sync now, skipping the quiet period. A pending debounced
// sync is absorbed into this one.
func (s *Scheduler) Trigger() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.stopTimerLocked()
	s.mu.Unlock()
	go s.run()
}

// Pending reports whether a debounced sync is waiting for its quiet period.
func (s *Scheduler) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.timer != nil
}

// Close cancels the pending sync, cancels the context of a running one and
// waits for it to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	s.stopTimerLocked()
	s.mu.Unlock()
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) stopTimerLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) run() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if s.running {
		s.pending = true
		s.mu.Unlock()
		return
	}
	s.running = true
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	for {
		s.syncFn(s.ctx)

		s.mu.Lock()
		if s.pending && !s.closed {
			s.pending = false
			s.mu.Unlock()
			continue
		}
		s.pending = false
		s.running = false
		s.mu.Unlock()
		return
	}
}
