package stats

import (
	"time"

	"github.com/verte-zerg/keyrace/internal/model"
)

const (
	letterFirst = 'a'
	letterCount = 26
	symbolFirst = '!'
	symbolCount = 25
)

// Project derives the chart views from a counters snapshot. now selects the
// current minute for the rolling window and must be in the engine's location.
func Project(c model.Counters, now time.Time) model.DerivedViews {
	return model.DerivedViews{
		RecentMinutes: RecentMinutes(c.Minutes, model.MinuteOfDay(now)),
		Hourly:        Hourly(c.Minutes),
		Letters:       Letters(c.Keys),
		Symbols:       Symbols(c.Keys),
		Keyboard:      HeatMap(c.Keys),
	}
}

// RecentMinutes returns the buckets for the last 20 minutes plus current,
// oldest first, wrapping across midnight.
func RecentMinutes(minutes [model.MinutesPerDay]uint32, current int) []uint32 {
	out := make([]uint32, model.RecentWindow)
	for i := range out {
		idx := current - (model.RecentWindow - 1) + i
		idx = ((idx % model.MinutesPerDay) + model.MinutesPerDay) % model.MinutesPerDay
		out[i] = minutes[idx]
	}
	return out
}

// Hourly folds the minute buckets into 24 hourly totals.
func Hourly(minutes [model.MinutesPerDay]uint32) [24]uint32 {
	var hours [24]uint32
	for i, v := range minutes {
		hours[i/60] += v
	}
	return hours
}

// Letters returns the counts for 'a' through 'z'.
func Letters(keys [model.KeyCodes]uint32) []uint32 {
	return keySlice(keys, letterFirst, letterCount)
}

// Symbols returns the counts for '!' through '9'.
func Symbols(keys [model.KeyCodes]uint32) []uint32 {
	return keySlice(keys, symbolFirst, symbolCount)
}

func keySlice(keys [model.KeyCodes]uint32, first, n int) []uint32 {
	out := make([]uint32, n)
	copy(out, keys[first:first+n])
	return out
}
