package stats

import (
	"fmt"
	"io"
	"strings"

	"github.com/mattn/go-runewidth"
)

const barBlocks = " ▁▂▃▄▅▆▇█"

// BarChart is a vertical bar chart with one labelled column per value.
type BarChart struct {
	Title  string
	Labels []string
	Values []uint32
	// Height is the number of text rows used for bars.
	Height int
	// Every prints every n-th label; zero picks a spacing that avoids overlap.
	Every int
}

// Lines renders the chart.
func (c BarChart) Lines() []string {
	if len(c.Values) == 0 {
		return nil
	}
	height := c.Height
	if height <= 0 {
		height = 6
	}
	every := c.Every
	if every <= 0 {
		every = 1
	}

	// Sparse labels run across neighbouring columns instead of widening them.
	colWidth := 1
	if every == 1 {
		for _, label := range c.Labels {
			if w := runewidth.StringWidth(label); w > colWidth {
				colWidth = w
			}
		}
	}

	var maxVal uint32
	for _, v := range c.Values {
		if v > maxVal {
			maxVal = v
		}
	}

	blocks := []rune(barBlocks)
	levels := len(blocks) - 1
	lines := make([]string, 0, height+2)
	if c.Title != "" {
		lines = append(lines, fmt.Sprintf("%s (max %s)", c.Title, CompactCount(float64(maxVal))))
	}
	for row := height - 1; row >= 0; row-- {
		var b strings.Builder
		for i, v := range c.Values {
			if i > 0 && colWidth > 1 {
				b.WriteByte(' ')
			}
			fill := 0
			if maxVal > 0 {
				fill = int(uint64(v) * uint64(height*levels) / uint64(maxVal))
			}
			if v > 0 && fill == 0 {
				fill = 1
			}
			cell := fill - row*levels
			switch {
			case cell <= 0:
				cell = 0
			case cell > levels:
				cell = levels
			}
			b.WriteString(strings.Repeat(string(blocks[cell]), colWidth))
		}
		lines = append(lines, strings.TrimRight(b.String(), " "))
	}
	lines = append(lines, c.labelLine(colWidth, every))
	return lines
}

func (c BarChart) labelLine(colWidth, every int) string {
	var b strings.Builder
	pos := 0
	for i := range c.Values {
		start := i * colWidth
		if colWidth > 1 {
			start += i
		}
		if i%every != 0 || i >= len(c.Labels) || start < pos {
			continue
		}
		b.WriteString(strings.Repeat(" ", start-pos))
		b.WriteString(c.Labels[i])
		pos = start + runewidth.StringWidth(c.Labels[i])
	}
	return b.String()
}

// Render writes the chart to w followed by a blank line.
func (c BarChart) Render(w io.Writer) error {
	for _, line := range c.Lines() {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}
