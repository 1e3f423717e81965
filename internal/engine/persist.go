package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/verte-zerg/keyrace/internal/model"
)

const flushTimeout = 5 * time.Second

// persister serializes store writes on one goroutine. Requests that arrive
// while a write is running collapse into a single follow-up write of the
// latest state.
type persister struct {
	save    func(ctx context.Context) error
	archive func(ctx context.Context, dt model.DailyTotal) error

	wake   chan struct{}
	dirty  atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu       sync.Mutex
	days     []model.DailyTotal
	failures int
	lastErr  error
}

func newPersister(save func(ctx context.Context) error, archive func(ctx context.Context, dt model.DailyTotal) error) *persister {
	ctx, cancel := context.WithCancel(context.Background())
	p := &persister{
		save:    save,
		archive: archive,
		wake:    make(chan struct{}, 1),
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go p.run()
	return p
}

func (p *persister) request() {
	p.dirty.Store(true)
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *persister) queueDay(dt model.DailyTotal) {
	p.mu.Lock()
	p.days = append(p.days, dt)
	p.mu.Unlock()
}

func (p *persister) run() {
	defer close(p.done)
	for {
		select {
		case <-p.ctx.Done():
			if !p.pending() {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
			p.flush(ctx)
			cancel()
			return
		case <-p.wake:
			p.flush(p.ctx)
		}
	}
}

func (p *persister) flush(ctx context.Context) {
	p.mu.Lock()
	days := p.days
	p.days = nil
	p.mu.Unlock()

	for i, dt := range days {
		if err := p.archive(ctx, dt); err != nil {
			log.Err(err).Str("day", dt.Day.String()).Msg("failed to archive daily total")
			p.mu.Lock()
			p.days = append(days[i:], p.days...)
			p.mu.Unlock()
			break
		}
	}

	p.dirty.Store(false)
	err := p.save(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.dirty.Store(true)
		p.failures++
		p.lastErr = err
		ev := log.Warn()
		if p.failures >= DegradedAfter {
			ev = log.Error()
		}
		ev.Err(err).Int("failures", p.failures).Msg("failed to persist counters")
		return
	}
	if p.failures >= DegradedAfter {
		log.Info().Msg("persistence recovered")
	}
	p.failures = 0
	p.lastErr = nil
}

// pending reports whether unsaved changes or unarchived days remain.
func (p *persister) pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dirty.Load() || len(p.days) > 0
}

func (p *persister) status() PersistStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PersistStatus{
		Failures: p.failures,
		Degraded: p.failures >= DegradedAfter,
		LastErr:  p.lastErr,
	}
}

// close stops the writer after a final flush and returns the last write error.
func (p *persister) close() error {
	p.cancel()
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr
}
