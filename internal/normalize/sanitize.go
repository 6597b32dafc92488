package normalize

import (
	"strings"
	"unicode"
)

// MaxValueRunes caps the length of any stored value.
const MaxValueRunes = 10000

// Sanitize removes control characters, collapses whitespace runs to a single
// space, trims, and truncates to MaxValueRunes.
func Sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	space := false
	n := 0
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r), r == '\uFEFF':
			continue
		}
		if space && n > 0 {
			// The separator only goes in when the rune after it fits too.
			if n+2 > MaxValueRunes {
				break
			}
			b.WriteByte(' ')
			n++
		}
		if n == MaxValueRunes {
			break
		}
		space = false
		b.WriteRune(r)
		n++
	}
	return b.String()
}
