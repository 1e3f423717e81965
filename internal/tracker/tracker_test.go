package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/verte-zerg/keyrace/internal/config"
	"github.com/verte-zerg/keyrace/internal/keytap"
	"github.com/verte-zerg/keyrace/internal/leaderboard"
	"github.com/verte-zerg/keyrace/internal/model"
	"github.com/verte-zerg/keyrace/internal/store"
)

type memStore struct {
	mu   sync.Mutex
	c    model.Counters
	tail model.PendingTail
	kv   map[string][]byte
	days []model.DailyTotal
}

func newMemStore() *memStore {
	return &memStore{kv: map[string][]byte{}}
}

func (m *memStore) LoadState(_ context.Context, loc *time.Location) (model.Counters, model.PendingTail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.c
	if !c.LastUpdate.IsZero() {
		c.LastDay = model.DayOf(c.LastUpdate.In(loc))
	}
	return c, m.tail, nil
}

func (m *memStore) SaveState(_ context.Context, c model.Counters, tail model.PendingTail) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c, m.tail = c, tail
	return nil
}

func (m *memStore) RecordDay(_ context.Context, dt model.DailyTotal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.days = append(m.days, dt)
	return nil
}

func (m *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.kv[key]
	return v, ok, nil
}

func (m *memStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kv[key] = value
	return nil
}

type upload struct {
	count       uint64
	onlyFollows bool
}

type fakeUploader struct {
	mu      sync.Mutex
	calls   []upload
	players []model.Player
	err     error
}

func (f *fakeUploader) Upload(_ context.Context, count uint64, onlyFollows bool) ([]model.Player, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, upload{count: count, onlyFollows: onlyFollows})
	if f.err != nil {
		return nil, f.err
	}
	return f.players, nil
}

func (f *fakeUploader) set(players []model.Player, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.players, f.err = players, err
}

func (f *fakeUploader) uploads() []upload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]upload(nil), f.calls...)
}

type fixture struct {
	tracker  *Tracker
	store    *memStore
	uploader *fakeUploader
	clock    *quartz.Mock
	errs     chan error
	ctx      context.Context
}

var start = time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, st *memStore, source keytap.Source) *fixture {
	t.Helper()
	clock := quartz.NewMock(t)
	clock.Set(start)
	errs := make(chan error, 1)
	if source == nil {
		source = keytap.ChanSource{Events: make(chan model.KeyEvent), Errors: errs}
	}
	up := &fakeUploader{}
	settings := config.Defaults()
	tr, err := New(settings, Deps{
		Store:    st,
		Source:   source,
		Uploader: up,
		Clock:    clock,
		Location: time.UTC,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	done := make(chan error, 1)
	go func() {
		done <- tr.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})

	f := &fixture{tracker: tr, store: st, uploader: up, clock: clock, errs: errs, ctx: ctx}
	// The initial upload happens once state is loaded.
	f.waitUploads(t, 1)
	return f
}

func (f *fixture) waitUploads(t *testing.T, n int) []upload {
	t.Helper()
	require.Eventually(t, func() bool {
		return len(f.uploader.uploads()) >= n
	}, 5*time.Second, time.Millisecond)
	return f.uploader.uploads()
}

func TestNewRequiresStoreAndSource(t *testing.T) {
	_, err := New(config.Defaults(), Deps{Source: keytap.ChanSource{}})
	require.Error(t, err)
	_, err = New(config.Defaults(), Deps{Store: newMemStore()})
	require.Error(t, err)
}

func TestInitialSyncThenDebounced(t *testing.T) {
	f := newFixture(t, newMemStore(), nil)
	require.Equal(t, upload{count: 0}, f.uploader.uploads()[0])

	for i := 0; i < 3; i++ {
		f.tracker.KeyDown('a', start)
	}
	require.Len(t, f.uploader.uploads(), 1)

	f.clock.Advance(config.DefaultDebounce).MustWait(f.ctx)
	calls := f.waitUploads(t, 2)
	require.Len(t, calls, 2)
	require.Equal(t, uint64(3), calls[1].count)

	require.Eventually(t, func() bool {
		return f.tracker.Views().Letters[0] == 3
	}, 5*time.Second, time.Millisecond)
	require.EqualValues(t, 3, f.tracker.ViewsNow().Hourly[10])
}

func TestSyncFailureKeepsPlayers(t *testing.T) {
	f := newFixture(t, newMemStore(), nil)
	players := []model.Player{{Name: "ann", Count: 40}}
	f.uploader.set(players, nil)
	f.tracker.Sync()
	f.waitUploads(t, 2)
	require.Eventually(t, func() bool {
		return len(f.tracker.Players()) == 1
	}, 5*time.Second, time.Millisecond)

	f.uploader.set(nil, &leaderboard.SyncError{Kind: leaderboard.Unreachable, Err: errors.New("offline")})
	f.tracker.Sync()
	f.waitUploads(t, 3)
	require.Eventually(t, func() bool {
		return f.tracker.Status().LastSyncError != ""
	}, 5*time.Second, time.Millisecond)
	require.Equal(t, players, f.tracker.Players())
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(f.tracker.metrics.syncs.WithLabelValues("unreachable")) == 1
	}, 5*time.Second, time.Millisecond)
}

func TestSetVisibilityFilterPersistsAndResyncs(t *testing.T) {
	st := newMemStore()
	f := newFixture(t, st, nil)

	require.NoError(t, f.tracker.SetVisibilityFilter(context.Background(), true))
	require.True(t, f.tracker.OnlyFollows())
	raw, ok, err := st.Get(context.Background(), store.KeyOnlyFollows)
	require.NoError(t, err)
	require.True(t, ok)
	v, err := store.DecodeBool(raw)
	require.NoError(t, err)
	require.True(t, v)

	calls := f.waitUploads(t, 2)
	require.True(t, calls[1].onlyFollows)
	require.True(t, f.tracker.Status().OnlyFollows)
}

func TestFilterRestoredFromStore(t *testing.T) {
	st := newMemStore()
	st.kv[store.KeyOnlyFollows] = store.EncodeBool(true)
	f := newFixture(t, st, nil)
	require.True(t, f.uploader.uploads()[0].onlyFollows)
}

func TestReloadSwitchesFilter(t *testing.T) {
	f := newFixture(t, newMemStore(), nil)
	on := true
	f.tracker.Reload(context.Background(), config.FileConfig{Sync: config.SyncConfig{OnlyFollows: &on}})
	calls := f.waitUploads(t, 2)
	require.True(t, calls[1].onlyFollows)

	// An unchanged value does not resync.
	f.tracker.Reload(context.Background(), config.FileConfig{Sync: config.SyncConfig{OnlyFollows: &on}})
	require.Never(t, func() bool {
		return len(f.uploader.uploads()) > 2
	}, 50*time.Millisecond, 5*time.Millisecond)
}

func TestReloadKeepsRuntimeFilter(t *testing.T) {
	t.Setenv(config.TokenEnv, "")
	f := newFixture(t, newMemStore(), nil)
	require.NoError(t, f.tracker.SetVisibilityFilter(context.Background(), true))
	f.waitUploads(t, 2)

	// The file still holds the startup value; only the token changed.
	off := false
	token := "new-token"
	f.tracker.Reload(context.Background(), config.FileConfig{Sync: config.SyncConfig{OnlyFollows: &off, Token: &token}})
	calls := f.waitUploads(t, 3)
	require.True(t, calls[2].onlyFollows)
	require.True(t, f.tracker.OnlyFollows())
}

func TestRestartRequired(t *testing.T) {
	cur := config.Defaults()
	require.Empty(t, restartRequired(cur, cur))

	next := cur
	next.Host = "https://example.test"
	next.Debounce = 5 * time.Second
	next.Token = "changed"
	next.OnlyFollows = true
	require.Equal(t, []string{"host", "debounce"}, restartRequired(cur, next))
}

func TestHookDisabledAndRecovered(t *testing.T) {
	f := newFixture(t, newMemStore(), nil)
	sub := f.tracker.Subscribe()

	f.errs <- errors.New("tap disabled by timeout")
	require.Eventually(t, func() bool {
		return f.tracker.Status().HookDisabled
	}, 5*time.Second, time.Millisecond)
	require.Equal(t, "tap disabled by timeout", f.tracker.Status().HookError)
	select {
	case <-sub:
	case <-time.After(time.Second):
		t.Fatal("expected status notification")
	}

	f.tracker.KeyDown('x', start)
	require.False(t, f.tracker.Status().HookDisabled)
	require.EqualValues(t, 1, testutil.ToFloat64(f.tracker.metrics.keystrokes))
}

type failingSource struct{}

func (failingSource) Run(context.Context, keytap.Handler) error {
	return keytap.ErrNotAvailable
}

func TestUnavailableSourceIsNotFatal(t *testing.T) {
	f := newFixture(t, newMemStore(), failingSource{})
	require.Eventually(t, func() bool {
		return f.tracker.Status().HookDisabled
	}, 5*time.Second, time.Millisecond)
	require.Contains(t, f.tracker.Status().HookError, "not available")
}

func TestCountersPersistedOnShutdown(t *testing.T) {
	st := newMemStore()
	clock := quartz.NewMock(t)
	clock.Set(start)
	tr, err := New(config.Defaults(), Deps{
		Store:    st,
		Source:   keytap.ChanSource{Events: make(chan model.KeyEvent)},
		Uploader: &fakeUploader{},
		Clock:    clock,
		Location: time.UTC,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- tr.Run(ctx)
	}()
	require.Eventually(t, func() bool {
		return len(tr.Views().RecentMinutes) == model.RecentWindow
	}, 5*time.Second, time.Millisecond)
	tr.KeyDown('k', start)
	tr.KeyDown('k', start)
	cancel()
	require.NoError(t, <-done)

	c, _, err := st.LoadState(context.Background(), time.UTC)
	require.NoError(t, err)
	require.EqualValues(t, 2, c.Total)
	require.EqualValues(t, 2, c.Keys['k'])
}
