package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/verte-zerg/keyrace/internal/model"
)

// Source is the read side of the store used by reports.
type Source interface {
	LoadState(ctx context.Context, loc *time.Location) (model.Counters, model.PendingTail, error)
	ListDays(ctx context.Context, cfg model.StatsConfig) ([]model.DailyTotal, error)
}

// Report contains precomputed data for stats rendering.
type Report struct {
	GeneratedAt time.Time
	Today       model.Counters
	Views       model.DerivedViews
	Days        []model.DailyTotal
	TopKeys     []KeyCount
}

// BuildReport loads today's counters and the archived history. Counters
// persisted on an earlier day are reported as an empty today.
func BuildReport(ctx context.Context, src Source, cfg model.StatsConfig, now time.Time) (Report, error) {
	today, _, err := src.LoadState(ctx, now.Location())
	if err != nil {
		return Report{}, fmt.Errorf("load counters: %w", err)
	}
	if today.LastDay != model.DayOf(now) {
		today = model.Counters{LastDay: model.DayOf(now)}
	}
	days, err := src.ListDays(ctx, cfg)
	if err != nil {
		return Report{}, fmt.Errorf("list days: %w", err)
	}
	if cfg.Last > 0 && len(days) > cfg.Last {
		days = days[len(days)-cfg.Last:]
	}
	top := cfg.Top
	if top <= 0 {
		top = 10
	}
	return Report{
		GeneratedAt: now,
		Today:       today,
		Views:       Project(today, now),
		Days:        days,
		TopKeys:     TopKeys(today.Keys, top),
	}, nil
}

type exportDay struct {
	Day   string `json:"day" yaml:"day"`
	Total uint64 `json:"total" yaml:"total"`
}

type export struct {
	GeneratedAt time.Time          `json:"generated_at" yaml:"generated_at"`
	Today       uint64             `json:"today" yaml:"today"`
	Title       string             `json:"title" yaml:"title"`
	Views       model.DerivedViews `json:"views" yaml:"views"`
	TopKeys     []KeyCount         `json:"top_keys" yaml:"top_keys"`
	Days        []exportDay        `json:"days" yaml:"days"`
}

func (r Report) export() export {
	days := make([]exportDay, len(r.Days))
	for i, d := range r.Days {
		days[i] = exportDay{Day: d.Day.String(), Total: d.Total}
	}
	return export{
		GeneratedAt: r.GeneratedAt,
		Today:       r.Today.Total,
		Title:       FormatCount(r.Today.Total),
		Views:       r.Views,
		TopKeys:     r.TopKeys,
		Days:        days,
	}
}

// WriteJSON writes the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r.export())
}

// WriteYAML writes the report as YAML.
func (r Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r.export()); err != nil {
		return err
	}
	return enc.Close()
}

// WriteText renders the report for a terminal of the given width.
func (r Report) WriteText(w io.Writer, cfg model.StatsConfig, width int, useColor bool) error {
	if err := RenderSummary(w, r.Today, r.Days); err != nil {
		return err
	}
	if err := RenderToday(w, r.Today, r.GeneratedAt); err != nil {
		return err
	}
	if err := RenderKeyTable(w, r.Today.Keys, len(r.TopKeys)); err != nil {
		return err
	}
	return RenderDailyCurve(w, r.Days, cfg.CurveWindow, width, defaultPlotHeight, useColor)
}
