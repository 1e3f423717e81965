// Package model defines shared data structures.
package model

import "time"

const (
	// MinutesPerDay is the number of minute-of-day buckets.
	MinutesPerDay = 1440
	// KeyCodes is the number of tracked key codes.
	KeyCodes = 256
	// TailMinutes is the number of buckets kept across a day rollover.
	TailMinutes = 20
	// RecentWindow is the length of the rolling minutes view (last 20 plus current).
	RecentWindow = TailMinutes + 1
)

// Day identifies a calendar day.
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf returns the calendar day of t in t's location.
func DayOf(t time.Time) Day {
	y, m, d := t.Date()
	return Day{Year: y, Month: m, Day: d}
}

// IsZero reports whether the day is unset.
func (d Day) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Next returns the following calendar day.
func (d Day) Next() Day {
	return DayOf(time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, time.UTC).AddDate(0, 0, 1))
}

// Before reports whether d is an earlier calendar day than other.
func (d Day) Before(other Day) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// String formats the day as YYYY-MM-DD.
func (d Day) String() string {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}

// MinuteOfDay returns the bucket index hour*60+minute for t.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// Counters is the engine-owned keystroke state for one day.
type Counters struct {
	Total      uint64
	Minutes    [MinutesPerDay]uint32
	Keys       [KeyCodes]uint32
	LastDay    Day
	LastUpdate time.Time
}

// PendingTail holds minute buckets kept across a rollover that still have to
// be cleared. Since is the rollover instant; a zero Since means nothing is pending.
type PendingTail struct {
	Values [TailMinutes]uint32
	Since  time.Time
}

// KeyEvent is a raw key-down notification.
type KeyEvent struct {
	Code int
	At   time.Time
}

// HeatKey is one physical key of the keyboard heat map.
type HeatKey struct {
	Label []string `json:"label" yaml:"label"`
	Count uint32   `json:"count" yaml:"count"`
}

// KeyboardHeat is the per-physical-key count, row by row.
type KeyboardHeat struct {
	Rows [][]HeatKey `json:"rows" yaml:"rows"`
	Max  uint32      `json:"max" yaml:"max"`
}

// DerivedViews are chart projections of Counters.
type DerivedViews struct {
	RecentMinutes []uint32     `json:"recent_minutes" yaml:"recent_minutes"`
	Hourly        [24]uint32   `json:"hourly" yaml:"hourly"`
	Letters       []uint32     `json:"letters" yaml:"letters"`
	Symbols       []uint32     `json:"symbols" yaml:"symbols"`
	Keyboard      KeyboardHeat `json:"keyboard" yaml:"keyboard"`
}

// Player is a leaderboard entry in server order.
type Player struct {
	Name  string `json:"username" yaml:"username"`
	Count uint64 `json:"score" yaml:"score"`
	Image string `json:"image,omitempty" yaml:"image,omitempty"`
}

// Status captures degraded conditions surfaced to the UI.
type Status struct {
	HookDisabled    bool      `json:"hook_disabled"`
	HookError       string    `json:"hook_error,omitempty"`
	PersistDegraded bool      `json:"persist_degraded"`
	PersistFailures int       `json:"persist_failures"`
	LastSyncAt      time.Time `json:"last_sync_at"`
	LastSyncError   string    `json:"last_sync_error,omitempty"`
	OnlyFollows     bool      `json:"only_follows"`
}

// DailyTotal is the archived keystroke total for a finished day.
type DailyTotal struct {
	Day   Day
	Total uint64
}

// StatsConfig defines filters and options for stats output.
type StatsConfig struct {
	Since       *time.Time
	Last        int
	CurveWindow int
	Top         int
}
