package stats

import (
	"strings"

	"github.com/verte-zerg/keyrace/internal/model"
)

type physicalKey struct {
	label []string
	codes []byte
}

// usLayout is the US ANSI layout. A key counts every character it can produce.
var usLayout = buildLayout([][]string{
	{"`~", "1!", "2@", "3#", "4$", "5%", "6^", "7&", "8*", "9(", "0)", "-_", "=+"},
	{"qQ", "wW", "eE", "rR", "tT", "yY", "uU", "iI", "oO", "pP", "[{", "]}", `\|`},
	{"aA", "sS", "dD", "fF", "gG", "hH", "jJ", "kK", "lL", ";:", `'"`},
	{"zZ", "xX", "cC", "vV", "bB", "nN", "mM", ",<", ".>", "/?"},
})

func buildLayout(rows [][]string) [][]physicalKey {
	out := make([][]physicalKey, 0, len(rows)+1)
	for _, row := range rows {
		keys := make([]physicalKey, 0, len(row))
		for _, chars := range row {
			k := physicalKey{codes: []byte(chars)}
			if chars[0] >= 'a' && chars[0] <= 'z' {
				k.label = []string{strings.ToUpper(chars[:1])}
			} else {
				k.label = []string{chars[:1], chars[1:]}
			}
			keys = append(keys, k)
		}
		out = append(out, keys)
	}
	out = append(out, []physicalKey{{label: []string{"space"}, codes: []byte{' '}}})
	return out
}

// HeatMap applies the physical layout to the key histogram.
func HeatMap(keys [model.KeyCodes]uint32) model.KeyboardHeat {
	heat := model.KeyboardHeat{Rows: make([][]model.HeatKey, 0, len(usLayout))}
	for _, row := range usLayout {
		out := make([]model.HeatKey, 0, len(row))
		for _, k := range row {
			var count uint32
			for _, code := range k.codes {
				count += keys[code]
			}
			if count > heat.Max {
				heat.Max = count
			}
			out = append(out, model.HeatKey{Label: k.label, Count: count})
		}
		heat.Rows = append(heat.Rows, out)
	}
	return heat
}
