package stats

import (
	"testing"

	"github.com/verte-zerg/keyrace/internal/model"
)

func TestTopKeys(t *testing.T) {
	var keys [model.KeyCodes]uint32
	keys['e'] = 9
	keys[' '] = 12
	keys['a'] = 9
	keys['z'] = 1

	top := TopKeys(keys, 3)
	if len(top) != 3 {
		t.Fatalf("expected 3 keys, got %d", len(top))
	}
	if top[0].Label != "<space>" || top[1].Label != "a" || top[2].Label != "e" {
		t.Fatalf("unexpected order: %+v", top)
	}
	if got := TopKeys(keys, 10); len(got) != 4 {
		t.Fatalf("expected only used keys, got %d", len(got))
	}
	if got := TopKeys(keys, 0); got != nil {
		t.Fatalf("expected nil for n=0, got %v", got)
	}
}
