package stats

import (
	"fmt"

	"github.com/dustin/go-humanize"

	"github.com/verte-zerg/keyrace/internal/model"
)

// FormatCount renders the status title for today's count.
func FormatCount(count uint64) string {
	switch count {
	case 0:
		return "Waiting for first keystroke..."
	case 1:
		return "👍 First key!"
	}
	suffix := ""
	if count < 100 {
		suffix = " today"
	}
	return countPrefix(count) + humanize.Comma(int64(count)) + " keys" + suffix
}

func countPrefix(count uint64) string {
	switch {
	case count < 500:
		return "👍 "
	case count < 1000:
		return "🏃 "
	case count < 5000:
		return "💨 "
	case count < 10000:
		return "🙌 "
	case count < 20000:
		return "🚀 "
	case count < 30000:
		return "🥳 "
	case count <= 40000:
		return "🔥 "
	case count <= 60000:
		return "🤯 "
	default:
		return ""
	}
}

// HourLabel returns the axis label for hour h of the day.
func HourLabel(h int) string {
	switch {
	case h == 0:
		return "12am"
	case h < 12:
		return fmt.Sprintf("%dam", h)
	case h == 12:
		return "noon"
	default:
		return fmt.Sprintf("%dpm", h-12)
	}
}

// HourLabels returns the 24 hour axis labels.
func HourLabels() []string {
	out := make([]string, 24)
	for h := range out {
		out[h] = HourLabel(h)
	}
	return out
}

// MinuteLabels returns ":MM" labels for the rolling window ending at current.
func MinuteLabels(current int) []string {
	out := make([]string, model.RecentWindow)
	for i := range out {
		idx := current - (model.RecentWindow - 1) + i
		idx = ((idx % model.MinutesPerDay) + model.MinutesPerDay) % model.MinutesPerDay
		out[i] = fmt.Sprintf(":%02d", idx%60)
	}
	return out
}

// LetterLabels returns "a" through "z".
func LetterLabels() []string {
	return runeLabels(letterFirst, letterCount)
}

// SymbolLabels returns "!" through "9".
func SymbolLabels() []string {
	return runeLabels(symbolFirst, symbolCount)
}

func runeLabels(first, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = string(rune(first + i))
	}
	return out
}

// KeyLabel names a key code for tables.
func KeyLabel(code int) string {
	switch {
	case code == ' ':
		return "<space>"
	case code == '\t':
		return "<tab>"
	case code == '\n' || code == '\r':
		return "<enter>"
	case code == 0x08 || code == 0x7f:
		return "<backspace>"
	case code == 0x1b:
		return "<esc>"
	case code > ' ' && code < 0x7f:
		return string(rune(code))
	default:
		return fmt.Sprintf("0x%02x", code)
	}
}
