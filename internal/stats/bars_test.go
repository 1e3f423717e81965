package stats

import (
	"strings"
	"testing"
)

func TestBarChartLines(t *testing.T) {
	c := BarChart{
		Title:  "Test",
		Labels: []string{"a", "b", "c"},
		Values: []uint32{0, 8, 16},
		Height: 2,
	}
	lines := c.Lines()
	want := []string{
		"Test (max 16)",
		"  █",
		" ██",
		"abc",
	}
	if len(lines) != len(want) {
		t.Fatalf("expected %d lines, got %d: %q", len(want), len(lines), lines)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d: expected %q, got %q", i, want[i], lines[i])
		}
	}
}

func TestBarChartSmallValuesVisible(t *testing.T) {
	c := BarChart{Values: []uint32{1, 1000}, Height: 1}
	lines := c.Lines()
	if !strings.HasPrefix(lines[0], "▁") {
		t.Fatalf("expected a visible bar for a small value, got %q", lines[0])
	}
}

func TestBarChartSparseLabels(t *testing.T) {
	c := BarChart{
		Labels: []string{":00", ":01", ":02", ":03", ":04", ":05"},
		Values: []uint32{1, 1, 1, 1, 1, 1},
		Height: 1,
		Every:  3,
	}
	lines := c.Lines()
	if lines[len(lines)-1] != ":00:03" {
		t.Fatalf("unexpected label line %q", lines[len(lines)-1])
	}
}
