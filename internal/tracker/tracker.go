// Package tracker wires key capture, the counting engine, leaderboard sync
// and chart projection into one running service.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/verte-zerg/keyrace/internal/config"
	"github.com/verte-zerg/keyrace/internal/engine"
	"github.com/verte-zerg/keyrace/internal/keytap"
	"github.com/verte-zerg/keyrace/internal/leaderboard"
	"github.com/verte-zerg/keyrace/internal/model"
	"github.com/verte-zerg/keyrace/internal/scheduler"
	"github.com/verte-zerg/keyrace/internal/stats"
	"github.com/verte-zerg/keyrace/internal/store"
)

// HookDisabledText is the status shown when key capture stops.
const HookDisabledText = "Lost event tap!"

// dayCheckInterval bounds how late an idle rollover can be noticed.
const dayCheckInterval = time.Minute

// Store is the persistence used by the tracker.
type Store interface {
	engine.Store
	engine.Archiver
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Uploader reports the count and returns the leaderboard.
type Uploader interface {
	Upload(ctx context.Context, count uint64, onlyFollows bool) ([]model.Player, error)
}

// Deps are the collaborators of a Tracker. Store and Source are required.
type Deps struct {
	Store    Store
	Source   keytap.Source
	Uploader Uploader
	Clock    quartz.Clock
	Location *time.Location
	Registry *prometheus.Registry
}

// Tracker is the running keyrace service.
type Tracker struct {
	store    Store
	source   keytap.Source
	uploader Uploader
	clock    quartz.Clock
	loc      *time.Location
	registry *prometheus.Registry

	engine  *engine.Engine
	sched   *scheduler.Scheduler
	board   leaderboard.Board
	metrics *metrics

	mu           sync.RWMutex
	settings     config.Settings
	onlyFollows  bool
	fileFollows  bool
	hookDisabled bool
	hookErr      error
	views        model.DerivedViews

	subsMu sync.Mutex
	subs   []chan struct{}
}

// New assembles a tracker from resolved settings.
func New(settings config.Settings, deps Deps) (*Tracker, error) {
	if deps.Store == nil {
		return nil, fmt.Errorf("tracker: store is required")
	}
	if deps.Source == nil {
		return nil, fmt.Errorf("tracker: key source is required")
	}
	t := &Tracker{
		store:       deps.Store,
		source:      deps.Source,
		uploader:    deps.Uploader,
		clock:       deps.Clock,
		loc:         deps.Location,
		registry:    deps.Registry,
		settings:    settings,
		onlyFollows: settings.OnlyFollows,
		fileFollows: settings.OnlyFollows,
	}
	if t.clock == nil {
		t.clock = quartz.NewReal()
	}
	if t.loc == nil {
		t.loc = time.Local
	}
	if t.registry == nil {
		t.registry = prometheus.NewRegistry()
	}
	if t.uploader == nil {
		t.uploader = leaderboard.NewClient(settings.Host, t.token, leaderboard.WithTimeout(settings.Timeout))
	}
	t.sched = scheduler.New(t.clock, settings.Debounce, t.sync)
	t.engine = engine.New(deps.Store,
		engine.WithClock(t.clock),
		engine.WithLocation(t.loc),
		engine.WithNotifier(t.sched),
		engine.WithArchiver(deps.Store),
	)
	t.metrics = newMetrics(t.registry, t)
	return t, nil
}

// Run loads persisted state, performs the initial sync and captures keys
// until ctx is done. Pending writes are flushed before it returns.
func (t *Tracker) Run(ctx context.Context) error {
	defer func() {
		t.sched.Close()
		if err := t.engine.Close(); err != nil {
			log.Err(err).Msg("final counter write failed")
		}
	}()
	if err := t.loadFilter(ctx); err != nil {
		return err
	}
	if err := t.engine.Load(ctx); err != nil {
		return fmt.Errorf("failed to load counters: %w", err)
	}

	t.refreshViews()
	t.sched.Trigger()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t.runSource(gctx)
		return nil
	})
	g.Go(func() error {
		t.forwardChanges(gctx)
		return nil
	})
	g.Go(func() error {
		w := t.clock.TickerFunc(gctx, dayCheckInterval, func() error {
			t.engine.MaybeRollDay(t.clock.Now())
			return nil
		}, "tracker", "rollday")
		if err := w.Wait(); err != nil && gctx.Err() == nil {
			return err
		}
		return nil
	})
	return g.Wait()
}

func (t *Tracker) runSource(ctx context.Context) {
	err := t.source.Run(ctx, t)
	if ctx.Err() != nil {
		return
	}
	if err == nil {
		err = errors.New("key source stopped")
	}
	t.HookDisabled(err)
	<-ctx.Done()
}

func (t *Tracker) forwardChanges(ctx context.Context) {
	changes := t.engine.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-changes:
			t.broadcast()
		}
	}
}

// KeyDown records a key press. It implements keytap.Handler.
func (t *Tracker) KeyDown(code int, at time.Time) {
	t.engine.Record(code, at)
	t.metrics.keystrokes.Inc()

	t.mu.RLock()
	disabled := t.hookDisabled
	t.mu.RUnlock()
	if disabled {
		t.mu.Lock()
		t.hookDisabled = false
		t.hookErr = nil
		t.mu.Unlock()
		log.Info().Msg("key capture resumed")
	}
}

// HookDisabled marks key capture as lost. It implements keytap.Handler.
func (t *Tracker) HookDisabled(err error) {
	t.mu.Lock()
	t.hookDisabled = true
	t.hookErr = err
	t.mu.Unlock()
	log.Error().Err(err).Msg("key capture disabled")
	t.broadcast()
}

// SetVisibilityFilter switches between the global leaderboard and followed
// users only, persists the choice and resyncs immediately.
func (t *Tracker) SetVisibilityFilter(ctx context.Context, onlyFollows bool) error {
	t.mu.Lock()
	t.onlyFollows = onlyFollows
	t.mu.Unlock()
	log.Info().Bool("only_follows", onlyFollows).Msg("leaderboard filter changed")

	err := t.store.Set(ctx, store.KeyOnlyFollows, store.EncodeBool(onlyFollows))
	if err != nil {
		log.Err(err).Msg("failed to persist leaderboard filter")
	}
	t.sched.Trigger()
	return err
}

// OnlyFollows reports the current visibility filter.
func (t *Tracker) OnlyFollows() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.onlyFollows
}

// Reload applies a changed config file. Token changes apply to the next
// sync. The filter switches only when the file's only-follows value differs
// from the one read last, so a filter set at runtime survives unrelated edits.
// Other settings need a restart.
func (t *Tracker) Reload(ctx context.Context, fc config.FileConfig) {
	t.mu.Lock()
	next, err := fc.Apply(t.settings)
	if err != nil {
		t.mu.Unlock()
		log.Warn().Err(err).Msg("ignoring invalid config")
		return
	}
	tokenChanged := next.Token != t.settings.Token
	stale := restartRequired(t.settings, next)
	t.settings.Token = next.Token
	filterChanged := fc.Sync.OnlyFollows != nil && *fc.Sync.OnlyFollows != t.fileFollows
	if fc.Sync.OnlyFollows != nil {
		t.fileFollows = *fc.Sync.OnlyFollows
	}
	t.mu.Unlock()

	if len(stale) > 0 {
		log.Warn().Strs("settings", stale).Msg("config change takes effect after restart")
	}

	if filterChanged {
		if err := t.SetVisibilityFilter(ctx, *fc.Sync.OnlyFollows); err != nil {
			log.Warn().Err(err).Msg("filter change not persisted")
		}
		return
	}
	if tokenChanged {
		t.sched.Trigger()
	}
}

// restartRequired lists settings that differ but are only read at startup.
func restartRequired(cur, next config.Settings) []string {
	var names []string
	if cur.Host != next.Host {
		names = append(names, "host")
	}
	if cur.Debounce != next.Debounce {
		names = append(names, "debounce")
	}
	if cur.Timeout != next.Timeout {
		names = append(names, "timeout")
	}
	if cur.Device != next.Device {
		names = append(names, "device")
	}
	if cur.Listen != next.Listen {
		names = append(names, "listen")
	}
	if cur.LogLevel != next.LogLevel {
		names = append(names, "log level")
	}
	return names
}

// Sync requests an immediate leaderboard sync.
func (t *Tracker) Sync() {
	t.sched.Trigger()
}

// Snapshot returns a copy of today's counters.
func (t *Tracker) Snapshot() model.Counters {
	return t.engine.Snapshot()
}

// Views returns the chart views computed at the last sync.
func (t *Tracker) Views() model.DerivedViews {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.views
}

// ViewsNow projects the current counters.
func (t *Tracker) ViewsNow() model.DerivedViews {
	return stats.Project(t.engine.Snapshot(), t.Now())
}

// Now returns the tracker clock time in the tracking location.
func (t *Tracker) Now() time.Time {
	return t.clock.Now().In(t.loc)
}

// Players returns the latest leaderboard.
func (t *Tracker) Players() []model.Player {
	return t.board.Players()
}

// Status reports degraded conditions.
func (t *Tracker) Status() model.Status {
	persist := t.engine.PersistStatus()
	syncAt, syncErr := t.board.LastSync()

	t.mu.RLock()
	defer t.mu.RUnlock()
	st := model.Status{
		HookDisabled:    t.hookDisabled,
		PersistDegraded: persist.Degraded,
		PersistFailures: persist.Failures,
		LastSyncAt:      syncAt,
		OnlyFollows:     t.onlyFollows,
	}
	if t.hookErr != nil {
		st.HookError = t.hookErr.Error()
	}
	if syncErr != nil {
		st.LastSyncError = syncErr.Error()
	}
	return st
}

// Registry returns the registry holding the tracker metrics.
func (t *Tracker) Registry() *prometheus.Registry {
	return t.registry
}

// Subscribe returns a channel that is signalled after counters, status or
// the leaderboard change. Signals coalesce.
func (t *Tracker) Subscribe() <-chan struct{} {
	ch := make(chan struct{}, 1)
	t.subsMu.Lock()
	t.subs = append(t.subs, ch)
	t.subsMu.Unlock()
	return ch
}

func (t *Tracker) broadcast() {
	t.subsMu.Lock()
	defer t.subsMu.Unlock()
	for _, ch := range t.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (t *Tracker) token() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.settings.Token
}

func (t *Tracker) loadFilter(ctx context.Context) error {
	raw, ok, err := t.store.Get(ctx, store.KeyOnlyFollows)
	if err != nil {
		return fmt.Errorf("failed to load leaderboard filter: %w", err)
	}
	if !ok {
		return nil
	}
	v, err := store.DecodeBool(raw)
	if err != nil {
		log.Warn().Err(err).Msg("ignoring corrupt leaderboard filter")
		return nil
	}
	t.mu.Lock()
	t.onlyFollows = v
	t.mu.Unlock()
	return nil
}

func (t *Tracker) sync(ctx context.Context) {
	count := t.engine.Snapshot().Total
	onlyFollows := t.OnlyFollows()

	start := t.clock.Now()
	players, err := t.uploader.Upload(ctx, count, onlyFollows)
	t.board.Apply(players, err, t.clock.Now())
	t.metrics.observeSync(err, t.clock.Since(start))

	switch {
	case errors.Is(err, leaderboard.ErrNoToken):
		log.Debug().Msg("no token configured, skipping leaderboard upload")
	case ctx.Err() != nil:
		return
	case err != nil:
		log.Warn().Err(err).Uint64("count", count).Msg("leaderboard sync failed")
	default:
		log.Debug().Uint64("count", count).Int("players", len(players)).Msg("leaderboard synced")
	}
	t.refreshViews()
	t.broadcast()
}

func (t *Tracker) refreshViews() {
	views := t.ViewsNow()
	t.mu.Lock()
	t.views = views
	t.mu.Unlock()
}
