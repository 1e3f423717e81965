package store

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/verte-zerg/keyrace/internal/model"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "keyrace.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		_ = st.Close()
	})
	return st
}

func TestGetSet(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	if _, ok, err := st.Get(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected absent key, got ok=%v err=%v", ok, err)
	}
	if err := st.Set(ctx, KeyOnlyFollows, EncodeBool(true)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := st.Set(ctx, KeyOnlyFollows, EncodeBool(false)); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	data, ok, err := st.Get(ctx, KeyOnlyFollows)
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	v, err := DecodeBool(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if v {
		t.Fatalf("expected overwritten value false")
	}
}

func TestSaveAndLoadCounters(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	var c model.Counters
	c.Total = 70000
	c.Minutes[0] = 1
	c.Minutes[600] = 300
	c.Minutes[1439] = 70000
	c.Keys[97] = 65536
	c.LastUpdate = time.Date(2024, 1, 1, 23, 59, 30, 0, time.UTC)

	var tail model.PendingTail
	tail.Values[19] = 70000
	tail.Since = time.Date(2024, 1, 2, 0, 1, 0, 0, time.UTC)

	if err := st.SaveState(ctx, c, tail); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, gotTail, err := st.LoadState(ctx, time.UTC)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if gotTail.Values != tail.Values || !gotTail.Since.Equal(tail.Since) {
		t.Fatalf("tail mismatch: %+v", gotTail)
	}
	if got.Total != c.Total || got.Minutes != c.Minutes || got.Keys != c.Keys {
		t.Fatalf("counters mismatch after reload")
	}
	if !got.LastUpdate.Equal(c.LastUpdate) {
		t.Fatalf("expected last update %v, got %v", c.LastUpdate, got.LastUpdate)
	}
	if got.LastDay != (model.Day{Year: 2024, Month: time.January, Day: 1}) {
		t.Fatalf("unexpected last day %v", got.LastDay)
	}
}

func TestStoredDayWinsOverLastUpdate(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()

	var c model.Counters
	c.LastUpdate = time.Date(2024, 1, 1, 23, 50, 0, 0, time.UTC)
	c.LastDay = model.Day{Year: 2024, Month: time.January, Day: 2}
	if err := st.SaveState(ctx, c, model.PendingTail{}); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, _, err := st.LoadState(ctx, time.UTC)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.LastDay != c.LastDay {
		t.Fatalf("expected day %v, got %v", c.LastDay, got.LastDay)
	}
	if !got.LastUpdate.Equal(c.LastUpdate) {
		t.Fatalf("expected last update %v, got %v", c.LastUpdate, got.LastUpdate)
	}
}

func TestMsgpackDay(t *testing.T) {
	day := model.Day{Year: 2024, Month: time.February, Day: 29}
	got, err := DecodeDay(EncodeDay(day))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != day {
		t.Fatalf("expected %v, got %v", day, got)
	}
	if _, err := DecodeDay(EncodeUint(7)); err == nil {
		t.Fatalf("expected error decoding int as day")
	}
}

func TestLoadCountersEmptyStore(t *testing.T) {
	st := openTestStore(t)
	got, tail, err := st.LoadState(context.Background(), time.UTC)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !tail.Since.IsZero() {
		t.Fatalf("expected no pending tail, got %+v", tail)
	}
	if got.Total != 0 || !got.LastDay.IsZero() || !got.LastUpdate.IsZero() {
		t.Fatalf("expected zero counters, got total=%d day=%v", got.Total, got.LastDay)
	}
}

func TestRecordAndListDays(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	days := []model.DailyTotal{
		{Day: model.Day{Year: 2024, Month: time.January, Day: 2}, Total: 20},
		{Day: model.Day{Year: 2024, Month: time.January, Day: 1}, Total: 10},
		{Day: model.Day{Year: 2024, Month: time.January, Day: 3}, Total: 30},
	}
	for _, d := range days {
		if err := st.RecordDay(ctx, d); err != nil {
			t.Fatalf("record day: %v", err)
		}
	}
	// A smaller total for an existing day does not overwrite it.
	if err := st.RecordDay(ctx, model.DailyTotal{Day: days[0].Day, Total: 5}); err != nil {
		t.Fatalf("record day: %v", err)
	}

	all, err := st.ListDays(ctx, model.StatsConfig{})
	if err != nil {
		t.Fatalf("list days: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 days, got %d", len(all))
	}
	if all[0].Total != 10 || all[1].Total != 20 || all[2].Total != 30 {
		t.Fatalf("unexpected order or totals: %+v", all)
	}

	since := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	recent, err := st.ListDays(ctx, model.StatsConfig{Since: &since, Last: 1})
	if err != nil {
		t.Fatalf("list days: %v", err)
	}
	if len(recent) != 1 || recent[0].Total != 30 {
		t.Fatalf("unexpected filtered days: %+v", recent)
	}
}

func TestMsgpackUints(t *testing.T) {
	values := make([]uint32, 300)
	values[0] = 0x7f
	values[1] = 0xff
	values[2] = 0xffff
	values[3] = 0xffffffff
	got, err := DecodeUints(EncodeUints(values))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(values) {
		t.Fatalf("expected %d values, got %d", len(values), len(got))
	}
	for i := range values {
		if got[i] != values[i] {
			t.Fatalf("index %d: expected %d, got %d", i, values[i], got[i])
		}
	}

	small := []uint32{1, 2, 3}
	if enc := EncodeUints(small); !bytes.Equal(enc, []byte{0x93, 0x01, 0x02, 0x03}) {
		t.Fatalf("unexpected fixarray encoding: %x", enc)
	}
}

func TestMsgpackRejectsWrongType(t *testing.T) {
	if _, err := DecodeUints(EncodeBool(true)); err == nil {
		t.Fatalf("expected error decoding bool as array")
	}
	if _, err := DecodeUint([]byte{0xd0, 0xff}); err == nil {
		t.Fatalf("expected error decoding negative int")
	}
	if _, err := DecodeTime(EncodeUint(3)); err == nil {
		t.Fatalf("expected error decoding int as time")
	}
}
