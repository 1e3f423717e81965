package stats

import (
	"testing"
	"time"

	"github.com/verte-zerg/keyrace/internal/model"
)

func TestProjectScenario(t *testing.T) {
	var c model.Counters
	c.Total = 3
	c.Minutes[600] = 3
	c.Keys[97] = 3

	views := Project(c, time.Date(2024, 1, 1, 10, 5, 0, 0, time.UTC))
	if views.Letters[0] != 3 {
		t.Fatalf("expected letters[0]=3, got %d", views.Letters[0])
	}
	if len(views.Letters) != 26 || len(views.Symbols) != 25 {
		t.Fatalf("unexpected view lengths: %d letters, %d symbols", len(views.Letters), len(views.Symbols))
	}
	if views.Hourly[10] != 3 {
		t.Fatalf("expected hour 10 = 3, got %d", views.Hourly[10])
	}
	if len(views.RecentMinutes) != model.RecentWindow {
		t.Fatalf("expected %d recent minutes, got %d", model.RecentWindow, len(views.RecentMinutes))
	}
	// 10:00 is five minutes before 10:05, the last entry.
	if views.RecentMinutes[model.RecentWindow-6] != 3 {
		t.Fatalf("unexpected recent minutes: %v", views.RecentMinutes)
	}
	if views.Keyboard.Max != 3 {
		t.Fatalf("expected keyboard max 3, got %d", views.Keyboard.Max)
	}
}

func TestRecentMinutesWrapsMidnight(t *testing.T) {
	var minutes [model.MinutesPerDay]uint32
	for i := range minutes {
		minutes[i] = uint32(i)
	}
	got := RecentMinutes(minutes, 5)
	if len(got) != 21 {
		t.Fatalf("expected 21 entries, got %d", len(got))
	}
	// Oldest first: 23:45 .. 23:59, then 00:00 .. 00:05.
	if got[0] != 1425 || got[14] != 1439 || got[15] != 0 || got[20] != 5 {
		t.Fatalf("unexpected wrap: %v", got)
	}

	got = RecentMinutes(minutes, 20)
	if got[0] != 0 || got[20] != 20 {
		t.Fatalf("unexpected window at minute 20: %v", got)
	}
	got = RecentMinutes(minutes, 19)
	if got[0] != 1439 || got[20] != 19 {
		t.Fatalf("unexpected window at minute 19: %v", got)
	}
}

func TestHourlyFold(t *testing.T) {
	var minutes [model.MinutesPerDay]uint32
	minutes[0] = 1
	minutes[59] = 2
	minutes[60] = 4
	minutes[1439] = 8
	hours := Hourly(minutes)
	if hours[0] != 3 || hours[1] != 4 || hours[23] != 8 {
		t.Fatalf("unexpected hourly fold: %v", hours)
	}
	var sum uint32
	for _, h := range hours {
		sum += h
	}
	if sum != 15 {
		t.Fatalf("expected sum 15, got %d", sum)
	}
}

func TestSymbolsRange(t *testing.T) {
	var keys [model.KeyCodes]uint32
	keys['!'] = 1
	keys['9'] = 2
	keys[' '] = 5
	keys[':'] = 7
	symbols := Symbols(keys)
	if symbols[0] != 1 || symbols[24] != 2 {
		t.Fatalf("unexpected symbols: %v", symbols)
	}
	for i, v := range symbols[1:24] {
		if v != 0 {
			t.Fatalf("unexpected count %d at %d", v, i+1)
		}
	}
}

func TestProjectIsPure(t *testing.T) {
	var c model.Counters
	c.Minutes[100] = 2
	c.Keys['k'] = 2
	now := time.Date(2024, 3, 1, 1, 45, 0, 0, time.UTC)
	a := Project(c, now)
	b := Project(c, now)
	if a.Keyboard.Max != b.Keyboard.Max || a.Hourly != b.Hourly || a.Letters[10] != b.Letters[10] {
		t.Fatalf("projections differ: %+v vs %+v", a, b)
	}
}
