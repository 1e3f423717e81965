package leaderboard

import (
	"errors"
	"sync"
	"time"

	"github.com/verte-zerg/keyrace/internal/model"
)

// Board holds the most recent leaderboard. A failed sync keeps the previous players.
type Board struct {
	mu      sync.RWMutex
	players []model.Player
	syncAt  time.Time
	lastErr error
}

// Apply records the outcome of an upload made at at. Players are replaced
// only on success; ErrNoToken leaves the board untouched.
func (b *Board) Apply(players []model.Player, err error, at time.Time) {
	if errors.Is(err, ErrNoToken) {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastErr = err
	if err != nil {
		return
	}
	b.players = append([]model.Player(nil), players...)
	b.syncAt = at
}

// Players returns a copy of the current leaderboard.
func (b *Board) Players() []model.Player {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]model.Player(nil), b.players...)
}

// LastSync returns the time of the last successful sync and the error of the
// most recent attempt.
func (b *Board) LastSync() (time.Time, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.syncAt, b.lastErr
}
