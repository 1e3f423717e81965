// Package engine owns the keystroke counters: it applies increments, rolls the
// counters over at day boundaries and persists every change.
//
// All counter mutations go through a single mutex so that the total, the
// minute histogram and the key histogram of one event are applied together.
// Readers receive copies and never observe a partial update.
package engine

import (
	"context"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/keyrace/internal/model"
)

const (
	// RolloverDelay is how long the previous day's tail stays visible after a rollover.
	RolloverDelay = 1200 * time.Second
	// DegradedAfter is the number of consecutive failed writes that marks persistence degraded.
	DegradedAfter = 3
)

// Store persists the counter state.
type Store interface {
	LoadState(ctx context.Context, loc *time.Location) (model.Counters, model.PendingTail, error)
	SaveState(ctx context.Context, c model.Counters, tail model.PendingTail) error
}

// Archiver receives the final total of each finished day.
type Archiver interface {
	RecordDay(ctx context.Context, dt model.DailyTotal) error
}

// Notifier is told about every counter change.
type Notifier interface {
	Notify()
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the clock used for rollover timers and startup checks.
func WithClock(clock quartz.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLocation sets the time zone used for calendar decomposition.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		e.loc = loc
	}
}

// WithNotifier registers the downstream notifier, usually a sync scheduler.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithArchiver stores finished days.
func WithArchiver(a Archiver) Option {
	return func(e *Engine) {
		e.archiver = a
	}
}

// PersistStatus reports the health of background writes.
type PersistStatus struct {
	Failures int
	Degraded bool
	LastErr  error
}

// Engine is the aggregation engine.
type Engine struct {
	mu       sync.RWMutex
	c        model.Counters
	tail     model.PendingTail
	tailGen  uint64
	rollover *rolloverTimer

	store    Store
	archiver Archiver
	notifier Notifier
	clock    quartz.Clock
	loc      *time.Location
	persist  *persister

	subsMu sync.Mutex
	subs   []chan struct{}
}

// New creates an engine with empty counters. Call Load to restore persisted state.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store: store,
		clock: quartz.NewReal(),
		loc:   time.Local,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.rollover = newRolloverTimer(e.clock)
	e.persist = newPersister(e.save, e.archive)
	return e
}

// Load restores counters from the store and rolls them over if they belong
// to an earlier day.
func (e *Engine) Load(ctx context.Context) error {
	c, tail, err := e.store.LoadState(ctx, e.loc)
	if err != nil {
		return err
	}
	now := e.clock.Now()

	expired := false
	e.mu.Lock()
	e.c = c
	e.tail = tail
	if !tail.Since.IsZero() {
		remaining := RolloverDelay - now.Sub(tail.Since)
		if remaining <= 0 {
			e.expireTailLocked()
			expired = true
		} else {
			e.armTailLocked(remaining)
		}
	}
	e.mu.Unlock()

	log.Info().
		Uint64("total", c.Total).
		Str("day", c.LastDay.String()).
		Msg("loaded counters")
	if !e.MaybeRollDay(now) && expired {
		e.persist.request()
	}
	return nil
}

// Record counts one key-down. Codes outside [0, 255] count towards the total
// and the minute histogram only.
func (e *Engine) Record(code int, at time.Time) {
	local := at.In(e.loc)

	e.mu.Lock()
	if e.rollLocked(local) {
		log.Info().Str("day", e.c.LastDay.String()).Msg("day rolled over")
	}
	e.c.Total++
	e.c.Minutes[model.MinuteOfDay(local)]++
	if code >= 0 && code < model.KeyCodes {
		e.c.Keys[code]++
	}
	e.c.LastUpdate = at
	e.mu.Unlock()

	e.changed()
}

// Snapshot returns a copy of the current counters.
func (e *Engine) Snapshot() model.Counters {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.c
}

// MaybeRollDay rolls the counters over when now falls on a later calendar day
// than the counters. It reports whether a rollover happened.
func (e *Engine) MaybeRollDay(now time.Time) bool {
	e.mu.Lock()
	rolled := e.rollLocked(now.In(e.loc))
	day := e.c.LastDay
	e.mu.Unlock()

	if rolled {
		log.Info().Str("day", day.String()).Msg("day rolled over")
		e.changed()
	}
	return rolled
}

// TailPending reports whether the previous day's tail is still waiting to be cleared.
func (e *Engine) TailPending() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.tail.Since.IsZero()
}

// PersistStatus returns the background write status.
func (e *Engine) PersistStatus() PersistStatus {
	return e.persist.status()
}

// Subscribe returns a channel that receives a value after counters change.
// Notifications are coalesced; a slow reader sees one pending signal.
func (e *Engine) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	e.subsMu.Lock()
	e.subs = append(e.subs, ch)
	e.subsMu.Unlock()
	return ch
}

// Close cancels the rollover timer and flushes pending writes.
func (e *Engine) Close() error {
	e.rollover.Stop()
	return e.persist.close()
}

func (e *Engine) rollLocked(local time.Time) bool {
	day := model.DayOf(local)
	if e.c.LastDay.IsZero() {
		e.c.LastDay = day
		return false
	}
	// A clock stepped back to an earlier day keeps the current counters.
	if !e.c.LastDay.Before(day) {
		return false
	}

	finished := model.DailyTotal{Day: e.c.LastDay, Total: e.c.Total}
	consecutive := e.c.LastDay.Next() == day

	var keep [model.TailMinutes]uint32
	if consecutive {
		copy(keep[:], e.c.Minutes[model.MinutesPerDay-model.TailMinutes:])
	}
	e.c.Total = 0
	e.c.Keys = [model.KeyCodes]uint32{}
	e.c.Minutes = [model.MinutesPerDay]uint32{}
	copy(e.c.Minutes[model.MinutesPerDay-model.TailMinutes:], keep[:])
	e.c.LastDay = day

	if consecutive {
		e.tail = model.PendingTail{Values: keep, Since: local}
		e.armTailLocked(RolloverDelay)
	} else {
		e.tail = model.PendingTail{}
		e.tailGen++
		e.rollover.Stop()
	}
	e.persist.queueDay(finished)
	return true
}

func (e *Engine) armTailLocked(d time.Duration) {
	e.tailGen++
	gen := e.tailGen
	e.rollover.Arm(d, func() {
		e.expireTail(gen)
	})
}

func (e *Engine) expireTail(gen uint64) {
	e.mu.Lock()
	if gen != e.tailGen || e.tail.Since.IsZero() {
		e.mu.Unlock()
		return
	}
	e.expireTailLocked()
	e.mu.Unlock()

	log.Debug().Msg("cleared previous day tail")
	e.changed()
}

// expireTailLocked removes the preserved tail counts. Counts recorded into
// those buckets after the rollover stay in place.
func (e *Engine) expireTailLocked() {
	base := model.MinutesPerDay - model.TailMinutes
	for i, v := range e.tail.Values {
		cur := e.c.Minutes[base+i]
		if v > cur {
			v = cur
		}
		e.c.Minutes[base+i] = cur - v
	}
	e.tail = model.PendingTail{}
	e.tailGen++
}

func (e *Engine) changed() {
	e.persist.request()
	e.broadcast()
	if e.notifier != nil {
		e.notifier.Notify()
	}
}

func (e *Engine) broadcast() {
	e.subsMu.Lock()
	defer e.subsMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (e *Engine) save(ctx context.Context) error {
	e.mu.RLock()
	c := e.c
	tail := e.tail
	e.mu.RUnlock()
	return e.store.SaveState(ctx, c, tail)
}

func (e *Engine) archive(ctx context.Context, dt model.DailyTotal) error {
	if e.archiver == nil {
		return nil
	}
	return e.archiver.RecordDay(ctx, dt)
}
