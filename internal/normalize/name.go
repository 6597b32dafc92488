package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FieldName canonicalizes a source field name: lower-case, accents removed,
// every run of characters outside [a-z0-9] replaced by one underscore, and
// leading/trailing underscores trimmed. A name with nothing left becomes "col".
func FieldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))

	// Decompose, drop nonspacing marks, recompose.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}

	var b strings.Builder
	b.Grow(len(folded))
	pending := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pending && b.Len() > 0 {
				b.WriteByte('_')
			}
			pending = false
			b.WriteRune(r)
			continue
		}
		pending = true
	}
	name := b.String()
	if name == "" {
		return "col"
	}
	if name[0] >= '0' && name[0] <= '9' {
		name = "_" + name
	}
	return name
}

// DefaultSynonyms maps common alternative spellings to the canonical core
// field names.
func DefaultSynonyms() map[string]string {
	return map[string]string{
		"fname":         "first_name",
		"lname":         "last_name",
		"full_name":     "name",
		"email_address": "email",
		"e_mail":        "email",
		"phone_number":  "phone",
		"mobile":        "phone",
		"date_of_birth": "dob",
		"birth_date":    "dob",
	}
}
