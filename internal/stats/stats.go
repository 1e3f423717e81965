package stats

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/verte-zerg/keyrace/internal/model"
)

const sparkChars = " .:-=+*#%@"

// MovingAverage computes a rolling mean over the provided window size.
func MovingAverage(values []float64, window int) []float64 {
	out := make([]float64, len(values))
	if window <= 1 {
		copy(out, values)
		return out
	}
	var sum float64
	for i, v := range values {
		sum += v
		den := float64(i + 1)
		if i >= window {
			sum -= values[i-window]
			den = float64(window)
		}
		out[i] = sum / den
	}
	return out
}

// Sparkline renders a single-line ASCII sparkline for the values.
func Sparkline(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	minVal, maxVal := seriesMinMax(values)
	if math.Abs(maxVal-minVal) < 1e-9 {
		return strings.Repeat(string(sparkChars[len(sparkChars)/2]), len(values))
	}
	var b strings.Builder
	for _, v := range values {
		pos := (v - minVal) / (maxVal - minVal)
		idx := int(math.Round(pos * float64(len(sparkChars)-1)))
		idx = max(0, min(idx, len(sparkChars)-1))
		b.WriteByte(sparkChars[idx])
	}
	return b.String()
}

// DaySummary aggregates a run of daily totals.
type DaySummary struct {
	Days    int
	Total   uint64
	Average float64
	Best    model.DailyTotal
}

// Summarize computes the summary of days.
func Summarize(days []model.DailyTotal) DaySummary {
	var s DaySummary
	for _, d := range days {
		s.Days++
		s.Total += d.Total
		if d.Total > s.Best.Total {
			s.Best = d
		}
	}
	if s.Days > 0 {
		s.Average = float64(s.Total) / float64(s.Days)
	}
	return s
}

// RenderSummary prints today's count and the archived history summary.
func RenderSummary(w io.Writer, today model.Counters, days []model.DailyTotal) error {
	if _, err := fmt.Fprintln(w, FormatCount(today.Total)); err != nil {
		return err
	}
	if !today.LastUpdate.IsZero() {
		if _, err := fmt.Fprintf(w, "Last key: %s\n", humanize.Time(today.LastUpdate)); err != nil {
			return err
		}
	}
	if len(days) == 0 {
		_, err := fmt.Fprint(w, "No finished days recorded yet.\n\n")
		return err
	}
	s := Summarize(days)
	lines := []string{
		"",
		"History",
		fmt.Sprintf("Days: %d", s.Days),
		fmt.Sprintf("Total keys: %s", humanize.Comma(int64(s.Total))),
		fmt.Sprintf("Avg keys/day: %s", humanize.CommafWithDigits(s.Average, 1)),
		fmt.Sprintf("Best day: %s (%s keys)", s.Best.Day, humanize.Comma(int64(s.Best.Total))),
		"",
	}
	for _, line := range lines {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

// RenderToday prints the chart views of today's counters.
func RenderToday(w io.Writer, today model.Counters, now time.Time) error {
	views := Project(today, now)
	charts := []BarChart{
		{Title: "Last 20 minutes", Labels: MinuteLabels(model.MinuteOfDay(now)), Values: views.RecentMinutes, Every: 5},
		{Title: "Hours", Labels: HourLabels(), Values: views.Hourly[:], Every: 6},
		{Title: "Letters", Labels: LetterLabels(), Values: views.Letters},
		{Title: "Numbers and symbols", Labels: SymbolLabels(), Values: views.Symbols},
	}
	for _, c := range charts {
		if err := c.Render(w); err != nil {
			return err
		}
	}
	return RenderKeyboard(w, views.Keyboard)
}

// RenderKeyboard prints the heat map as rows of key labels with their counts.
func RenderKeyboard(w io.Writer, heat model.KeyboardHeat) error {
	if _, err := fmt.Fprintln(w, "Keyboard"); err != nil {
		return err
	}
	for i, row := range heat.Rows {
		cells := make([]string, 0, len(row))
		for _, k := range row {
			cells = append(cells, fmt.Sprintf("%s %s%s", strings.Join(k.Label, ""), heatShade(k.Count, heat.Max), CompactCount(float64(k.Count))))
		}
		if _, err := fmt.Fprintln(w, strings.Repeat(" ", i)+strings.Join(cells, "  ")); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}

func heatShade(count, maxCount uint32) string {
	shades := []rune(" ░▒▓█")
	if maxCount == 0 || count == 0 {
		return string(shades[0])
	}
	idx := 1 + int(uint64(count)*uint64(len(shades)-2)/uint64(maxCount))
	return string(shades[min(idx, len(shades)-1)])
}

// RenderDailyCurve plots archived daily totals with a moving average.
func RenderDailyCurve(w io.Writer, days []model.DailyTotal, window, totalWidth, height int, useColor bool) error {
	if len(days) == 0 {
		return nil
	}
	totals := make([]float64, len(days))
	for i, d := range days {
		totals[i] = float64(d.Total)
	}
	width := 0
	if totalWidth > 0 {
		width = PlotWidthFor(totalWidth)
	}
	return PlotSeriesWithColor(w, fmt.Sprintf("Keys per day (%s to %s)", days[0].Day, days[len(days)-1].Day), []Series{
		{Name: "Keys", Values: totals},
		{Name: fmt.Sprintf("%d-day avg", max(window, 1)), Values: MovingAverage(totals, window)},
	}, width, height, useColor)
}

// RenderKeyTable prints the most pressed keys.
func RenderKeyTable(w io.Writer, keys [model.KeyCodes]uint32, n int) error {
	top := TopKeys(keys, n)
	if len(top) == 0 {
		_, err := fmt.Fprintln(w, "No keys recorded today.")
		return err
	}
	var total uint64
	for _, v := range keys {
		total += uint64(v)
	}
	if _, err := fmt.Fprintln(w, "Top Keys"); err != nil {
		return err
	}
	rows := make([][]string, 0, len(top))
	for _, k := range top {
		rows = append(rows, []string{
			k.Label,
			humanize.Comma(int64(k.Count)),
			fmt.Sprintf("%.1f%%", float64(k.Count)/float64(total)*100),
		})
	}
	for _, line := range formatTable([]string{"Key", "Count", "Share"}, rows, map[int]bool{1: true, 2: true}) {
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "")
	return err
}
