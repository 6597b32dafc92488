package parser

import (
	"strconv"
	"strings"
)

// HeaderNames copies a header row, strips a UTF-8 BOM from the first cell,
// names blank cells col_<n> (1-based) and suffixes repeated names with _<k>
// so no column is silently overwritten.
func HeaderNames(hdr []string) []string {
	out := make([]string, len(hdr))
	seen := make(map[string]int, len(hdr))
	for i, h := range hdr {
		if i == 0 {
			h = strings.TrimPrefix(h, "\uFEFF")
		}
		h = strings.TrimSpace(h)
		if h == "" {
			h = ColumnName(i)
		}
		if n := seen[h]; n > 0 {
			seen[h] = n + 1
			h = h + "_" + strconv.Itoa(n+1)
		} else {
			seen[h] = 1
		}
		out[i] = h
	}
	return out
}

// ColumnName is the positional name of the i-th (0-based) column.
func ColumnName(i int) string { return "col_" + strconv.Itoa(i+1) }
