package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/verte-zerg/keyrace/internal/config"
	"github.com/verte-zerg/keyrace/internal/model"
	"github.com/verte-zerg/keyrace/internal/stats"
	"github.com/verte-zerg/keyrace/internal/store"
)

func strPtr(s string) *string { return &s }

func boolPtr(b bool) *bool { return &b }

func TestResolveSettingsFlagsWin(t *testing.T) {
	t.Setenv(config.TokenEnv, "")
	cmd := newRootCmd()
	if err := cmd.ParseFlags([]string{"--host", "http://flag", "--debounce", "5s"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}
	fc := config.FileConfig{
		Sync: config.SyncConfig{
			Host:        strPtr("http://file"),
			Token:       strPtr("file-token"),
			OnlyFollows: boolPtr(true),
			Debounce:    strPtr("9s"),
			Timeout:     strPtr("3s"),
		},
		Track: config.TrackConfig{Device: strPtr("/dev/input/event3")},
	}
	s, err := resolveSettings(cmd, fc)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.Host != "http://flag" || s.Debounce != 5*time.Second {
		t.Fatalf("expected flags to win, got %+v", s)
	}
	if s.Timeout != 3*time.Second || !s.OnlyFollows || s.Token != "file-token" || s.Device != "/dev/input/event3" {
		t.Fatalf("expected config values, got %+v", s)
	}
}

func TestResolveSettingsTokenEnv(t *testing.T) {
	t.Setenv(config.TokenEnv, "env-token")
	cmd := newRootCmd()
	s, err := resolveSettings(cmd, config.FileConfig{Sync: config.SyncConfig{Token: strPtr("file-token")}})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if s.Token != "env-token" {
		t.Fatalf("expected env token, got %q", s.Token)
	}
}

func TestResolveSettingsInvalidDuration(t *testing.T) {
	cmd := newRootCmd()
	if _, err := resolveSettings(cmd, config.FileConfig{Sync: config.SyncConfig{Timeout: strPtr("soon")}}); err == nil {
		t.Fatalf("expected invalid duration error")
	}
}

func TestSplitDevices(t *testing.T) {
	got := splitDevices(" /dev/input/event1, ,/dev/input/event2 ")
	if strings.Join(got, "|") != "/dev/input/event1|/dev/input/event2" {
		t.Fatalf("unexpected devices: %v", got)
	}
	if splitDevices("") != nil {
		t.Fatalf("expected nil for empty value")
	}
}

func TestDefaultConfigTemplateParses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := config.LoadConfig(path); err != nil {
		t.Fatalf("template should parse: %v", err)
	}
}

func openStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "keyrace.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return st
}

func TestWriteStatus(t *testing.T) {
	st := openStore(t)
	ctx := context.Background()
	now := time.Now()
	var c model.Counters
	c.Total = 3
	c.Keys['a'] = 3
	c.Minutes[model.MinuteOfDay(now)] = 3
	c.LastUpdate = now
	if err := st.SaveState(ctx, c, model.PendingTail{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.Set(ctx, store.KeyOnlyFollows, store.EncodeBool(true)); err != nil {
		t.Fatalf("set filter: %v", err)
	}

	var buf bytes.Buffer
	if err := writeStatus(ctx, &buf, st, now); err != nil {
		t.Fatalf("status: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"3 keys today", "Top keys: a 3", "Leaderboard: following", "Days recorded: 0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestWriteReportFormats(t *testing.T) {
	report := stats.Report{GeneratedAt: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)}
	var buf bytes.Buffer
	if err := writeReport(&buf, report, model.StatsConfig{CurveWindow: 7}, "json"); err != nil {
		t.Fatalf("json: %v", err)
	}
	if !strings.Contains(buf.String(), `"generated_at"`) {
		t.Fatalf("unexpected json: %s", buf.String())
	}
	buf.Reset()
	if err := writeReport(&buf, report, model.StatsConfig{CurveWindow: 7}, "yaml"); err != nil {
		t.Fatalf("yaml: %v", err)
	}
	if !strings.Contains(buf.String(), "generated_at:") {
		t.Fatalf("unexpected yaml: %s", buf.String())
	}
	if err := writeReport(&buf, report, model.StatsConfig{}, "xml"); err == nil {
		t.Fatalf("expected unknown format error")
	}
}
