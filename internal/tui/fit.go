package tui

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// clipLines truncates plain text lines to width cells. A width of zero
// leaves them unchanged.
func clipLines(lines []string, width int) []string {
	if width <= 0 {
		return lines
	}
	out := make([]string, len(lines))
	for i, line := range lines {
		out[i] = runewidth.Truncate(line, width, "…")
	}
	return out
}

// fitHeight keeps the first n lines.
func fitHeight(lines []string, n int) []string {
	if len(lines) <= n {
		return lines
	}
	return lines[:n]
}

// sideBySide places right next to left separated by gap cells. When both do
// not fit in width they are stacked instead.
func sideBySide(left, right []string, gap, width int) []string {
	leftWidth := blockWidth(left)
	if width > 0 && leftWidth+gap+blockWidth(right) > width {
		out := make([]string, 0, len(left)+len(right)+1)
		out = append(out, left...)
		out = append(out, "")
		return append(out, right...)
	}
	n := max(len(left), len(right))
	out := make([]string, n)
	for i := 0; i < n; i++ {
		var l, r string
		if i < len(left) {
			l = left[i]
		}
		if i < len(right) {
			r = right[i]
		}
		if r == "" {
			out[i] = l
			continue
		}
		out[i] = runewidth.FillRight(l, leftWidth) + strings.Repeat(" ", gap) + r
	}
	return out
}

func blockWidth(lines []string) int {
	w := 0
	for _, line := range lines {
		w = max(w, runewidth.StringWidth(line))
	}
	return w
}
