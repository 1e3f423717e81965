// Package keytap delivers key-down events from the operating system.
//
// A Source reports each key-down as the character code it produced, so that
// 'a' and 'A' land in different histogram slots. Keys that produce no
// character are reported with code -1 and count towards totals only.
// Modifier presses are not reported.
package keytap

import (
	"context"
	"errors"
	"time"

	"github.com/verte-zerg/keyrace/internal/model"
)

// ErrNotAvailable is returned when no keyboard can be captured.
var ErrNotAvailable = errors.New("keyboard capture not available")

// Handler receives events from a Source.
type Handler interface {
	// KeyDown is called once per key press, in arrival order.
	KeyDown(code int, at time.Time)
	// HookDisabled is called when the OS stops delivering events. The
	// source keeps running and may deliver further events if capture recovers.
	HookDisabled(err error)
}

// Source produces key-down events until ctx is done.
type Source interface {
	Run(ctx context.Context, h Handler) error
}

// ChanSource replays events and hook failures from channels. It is used by
// tests and by embedders that capture keys themselves.
type ChanSource struct {
	Events <-chan model.KeyEvent
	Errors <-chan error
}

// Run forwards events until ctx is done or Events is closed.
func (s ChanSource) Run(ctx context.Context, h Handler) error {
	errs := s.Errors
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-s.Events:
			if !ok {
				return nil
			}
			h.KeyDown(ev.Code, ev.At)
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			h.HookDisabled(err)
		}
	}
}
