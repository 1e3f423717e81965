// Package store handles SQLite persistence.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/verte-zerg/keyrace/internal/model"

	_ "modernc.org/sqlite" // SQLite driver.
)

// Keys used for the counter state.
const (
	KeyCount       = "keyCount"
	KeyMinutes     = "minutes"
	KeyKeys        = "keys"
	KeyLastUpdated = "keyCountLastUpdated"
	KeyLastDay     = "keyCountDay"
	KeyOnlyFollows = "onlyShowFollows"
	KeyTail        = "rolloverTail"
	KeyTailSince   = "rolloverTailSince"
)

// Store wraps SQLite access for counter state and daily history.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database and applies migrations.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Writes come from a single persister goroutine; one connection keeps
	// SQLite from returning SQLITE_BUSY to concurrent readers.
	db.SetMaxOpenConns(1)
	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		if cerr := db.Close(); cerr != nil {
			// Best-effort close on migration failure.
			_ = cerr
		}
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value BLOB NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS daily_totals (
			day TEXT PRIMARY KEY,
			total INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the value stored under key. The boolean is false when the key is absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// RecordDay stores the final total for a finished day. A later call for the
// same day keeps the larger total.
func (s *Store) RecordDay(ctx context.Context, dt model.DailyTotal) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO daily_totals (day, total) VALUES (?, ?)
		 ON CONFLICT(day) DO UPDATE SET total = MAX(total, excluded.total)`,
		dt.Day.String(), dt.Total)
	if err != nil {
		return fmt.Errorf("record day %s: %w", dt.Day, err)
	}
	return nil
}

// ListDays returns archived daily totals in ascending day order.
func (s *Store) ListDays(ctx context.Context, cfg model.StatsConfig) ([]model.DailyTotal, error) {
	clauses := []string{"1=1"}
	args := []any{}
	if cfg.Since != nil {
		clauses = append(clauses, "day >= ?")
		args = append(args, cfg.Since.Format("2006-01-02"))
	}
	query := fmt.Sprintf(`SELECT day, total FROM daily_totals
		WHERE %s
		ORDER BY day ASC`, strings.Join(clauses, " AND "))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := rows.Close(); cerr != nil {
			// Best-effort rows close.
			_ = cerr
		}
	}()

	var days []model.DailyTotal
	for rows.Next() {
		var dayText string
		var dt model.DailyTotal
		if err := rows.Scan(&dayText, &dt.Total); err != nil {
			return nil, err
		}
		parsed, err := time.Parse("2006-01-02", dayText)
		if err != nil {
			return nil, err
		}
		dt.Day = model.DayOf(parsed)
		days = append(days, dt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if cfg.Last > 0 && len(days) > cfg.Last {
		days = days[len(days)-cfg.Last:]
	}
	return days, nil
}

// LoadState reads the persisted counter state and any pending rollover tail.
// Missing keys leave zero values. Without a stored day, LastDay is derived from
// the last update instant in loc.
func (s *Store) LoadState(ctx context.Context, loc *time.Location) (model.Counters, model.PendingTail, error) {
	c, err := s.loadCounters(ctx, loc)
	if err != nil {
		return c, model.PendingTail{}, err
	}
	tail, err := s.loadTail(ctx)
	return c, tail, err
}

func (s *Store) loadTail(ctx context.Context) (model.PendingTail, error) {
	var tail model.PendingTail
	data, ok, err := s.Get(ctx, KeyTailSince)
	if err != nil || !ok {
		return tail, err
	}
	if tail.Since, err = DecodeTime(data); err != nil {
		return tail, fmt.Errorf("decode %s: %w", KeyTailSince, err)
	}
	data, ok, err = s.Get(ctx, KeyTail)
	if err != nil || !ok {
		return model.PendingTail{}, err
	}
	values, err := DecodeUints(data)
	if err != nil {
		return model.PendingTail{}, fmt.Errorf("decode %s: %w", KeyTail, err)
	}
	copy(tail.Values[:], values)
	return tail, nil
}

func (s *Store) loadCounters(ctx context.Context, loc *time.Location) (model.Counters, error) {
	var c model.Counters
	if data, ok, err := s.Get(ctx, KeyCount); err != nil {
		return c, err
	} else if ok {
		if c.Total, err = DecodeUint(data); err != nil {
			return c, fmt.Errorf("decode %s: %w", KeyCount, err)
		}
	}
	if data, ok, err := s.Get(ctx, KeyMinutes); err != nil {
		return c, err
	} else if ok {
		values, err := DecodeUints(data)
		if err != nil {
			return c, fmt.Errorf("decode %s: %w", KeyMinutes, err)
		}
		copy(c.Minutes[:], values)
	}
	if data, ok, err := s.Get(ctx, KeyKeys); err != nil {
		return c, err
	} else if ok {
		values, err := DecodeUints(data)
		if err != nil {
			return c, fmt.Errorf("decode %s: %w", KeyKeys, err)
		}
		copy(c.Keys[:], values)
	}
	if data, ok, err := s.Get(ctx, KeyLastUpdated); err != nil {
		return c, err
	} else if ok {
		if c.LastUpdate, err = DecodeTime(data); err != nil {
			return c, fmt.Errorf("decode %s: %w", KeyLastUpdated, err)
		}
		if !c.LastUpdate.IsZero() {
			c.LastDay = model.DayOf(c.LastUpdate.In(loc))
		}
	}
	// A rollover with no keystrokes since moves the day but not LastUpdate.
	if data, ok, err := s.Get(ctx, KeyLastDay); err != nil {
		return c, err
	} else if ok {
		if c.LastDay, err = DecodeDay(data); err != nil {
			return c, fmt.Errorf("decode %s: %w", KeyLastDay, err)
		}
	}
	return c, nil
}

// SaveState writes the counter state and pending tail in a single transaction.
func (s *Store) SaveState(ctx context.Context, c model.Counters, tail model.PendingTail) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				// Best-effort rollback.
				_ = rerr
			}
		}
	}()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	values := []struct {
		key   string
		value []byte
	}{
		{KeyCount, EncodeUint(c.Total)},
		{KeyMinutes, EncodeUints(c.Minutes[:])},
		{KeyKeys, EncodeUints(c.Keys[:])},
		{KeyLastUpdated, EncodeTime(c.LastUpdate)},
		{KeyTail, EncodeUints(tail.Values[:])},
		{KeyTailSince, EncodeTime(tail.Since)},
	}
	if !c.LastDay.IsZero() {
		values = append(values, struct {
			key   string
			value []byte
		}{KeyLastDay, EncodeDay(c.LastDay)})
	}
	for _, kv := range values {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
			kv.key, kv.value, now); err != nil {
			return fmt.Errorf("set %s: %w", kv.key, err)
		}
	}
	return tx.Commit()
}
