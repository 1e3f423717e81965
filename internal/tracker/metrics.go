package tracker

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/verte-zerg/keyrace/internal/leaderboard"
)

const namespace = "keyrace"

type metrics struct {
	keystrokes   prometheus.Counter
	syncs        *prometheus.CounterVec
	syncDuration prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer, t *Tracker) *metrics {
	f := promauto.With(reg)
	m := &metrics{
		keystrokes: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "keystrokes_total",
			Help:      "Key-down events recorded since start.",
		}),
		syncs: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Leaderboard sync attempts, partitioned by result.",
		}, []string{"result"}),
		syncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of leaderboard uploads.",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "today_keystrokes",
		Help:      "Keystrokes counted today.",
	}, func() float64 {
		return float64(t.engine.Snapshot().Total)
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "leaderboard_players",
		Help:      "Players in the last leaderboard received.",
	}, func() float64 {
		return float64(len(t.board.Players()))
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "hook_disabled",
		Help:      "1 when key capture has been lost.",
	}, func() float64 {
		return boolGauge(t.Status().HookDisabled)
	})
	f.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "persist_degraded",
		Help:      "1 after repeated failed counter writes.",
	}, func() float64 {
		return boolGauge(t.engine.PersistStatus().Degraded)
	})
	return m
}

func (m *metrics) observeSync(err error, d time.Duration) {
	result := "ok"
	var syncErr *leaderboard.SyncError
	switch {
	case errors.Is(err, leaderboard.ErrNoToken):
		result = "skipped"
	case errors.As(err, &syncErr):
		result = syncErr.Kind.String()
	case err != nil:
		result = "error"
	}
	m.syncs.WithLabelValues(result).Inc()
	if result != "skipped" {
		m.syncDuration.Observe(d.Seconds())
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
