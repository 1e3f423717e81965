package stats

import (
	"sort"

	"github.com/verte-zerg/keyrace/internal/model"
)

// KeyCount is one entry of the key frequency ranking.
type KeyCount struct {
	Code  int    `json:"code" yaml:"code"`
	Label string `json:"label" yaml:"label"`
	Count uint32 `json:"count" yaml:"count"`
}

// TopKeys returns the n most pressed key codes. Ties keep code order; unused
// codes are never returned.
func TopKeys(keys [model.KeyCodes]uint32, n int) []KeyCount {
	if n <= 0 {
		return nil
	}
	items := make([]KeyCount, 0, len(keys))
	for code, count := range keys {
		if count == 0 {
			continue
		}
		items = append(items, KeyCount{Code: code, Label: KeyLabel(code), Count: count})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Count > items[j].Count
	})
	if n > len(items) {
		n = len(items)
	}
	return items[:n]
}
