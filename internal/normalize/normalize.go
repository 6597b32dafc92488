// Package normalize turns reader records into flat, canonically named,
// string-valued records and tracks the union of field names seen in a run so
// every record can be backfilled to the same column set.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"unify/pkg/records"
)

// Reserved column names. The normalizer drops them from input records; they
// are recomputed for every run.
const (
	KeyColumn       = "canonical_key"
	TimestampColumn = "ingest_timestamp"
)

// CoreFields are the identity and contact fields, in output column order.
var CoreFields = []string{"name", "first_name", "last_name", "email", "phone", "dob"}

// lowered lists the identity text fields whose values are case-folded.
var lowered = map[string]bool{
	"name": true, "first_name": true, "last_name": true, "email": true, "phone": true,
}

// Record is a normalized record: canonical field name to sanitized text.
type Record map[string]string

// Options configures a Normalizer.
type Options struct {
	// Separator joins parent and child keys of nested maps. Default "_".
	Separator string
	// Synonyms extends DefaultSynonyms; keys are matched after FieldName.
	Synonyms map[string]string
}

// Normalizer is safe for concurrent use once built.
type Normalizer struct {
	sep      string
	synonyms map[string]string
}

// New builds a Normalizer from opt.
func New(opt Options) *Normalizer {
	n := &Normalizer{sep: opt.Separator, synonyms: DefaultSynonyms()}
	if n.sep == "" {
		n.sep = "_"
	}
	for from, to := range opt.Synonyms {
		n.synonyms[FieldName(from)] = FieldName(to)
	}
	return n
}

// Normalize flattens in, canonicalizes its field names, applies the synonym
// table and sanitizes every value. When two source fields fold to the same
// name the first non-empty value in sorted source-key order wins.
func (n *Normalizer) Normalize(in records.Record) Record {
	flat := make(map[string]string, len(in))
	n.flatten("", map[string]any(in), flat)

	out := make(Record, len(flat))
	for name, v := range flat {
		if name == KeyColumn || name == TimestampColumn {
			continue
		}
		out[name] = v
	}

	// Synonyms never overwrite a field the record already carries.
	for _, name := range sortedKeys(out) {
		to, ok := n.synonyms[name]
		if !ok || to == name {
			continue
		}
		if _, exists := out[to]; exists {
			continue
		}
		out[to] = out[name]
		delete(out, name)
	}

	for k, v := range out {
		if lowered[k] {
			out[k] = strings.ToLower(v)
		}
	}
	return out
}

func (n *Normalizer) flatten(prefix string, m map[string]any, out map[string]string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		name := FieldName(k)
		if prefix != "" {
			name = prefix + n.sep + name
		}
		switch v := m[k].(type) {
		case map[string]any:
			n.flatten(name, v, out)
		case records.Record:
			n.flatten(name, v, out)
		case []any:
			if len(v) > 0 {
				if first, ok := v[0].(map[string]any); ok {
					n.flatten(name, first, out)
					continue
				}
			}
			put(out, name, listText(v))
		default:
			put(out, name, Sanitize(Text(v)))
		}
	}
}

func put(out map[string]string, name, v string) {
	if prev, ok := out[name]; ok && prev != "" {
		return
	}
	out[name] = v
}

func listText(v []any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return Sanitize(fmt.Sprint(v))
	}
	return Sanitize(string(b))
}

// Text renders a scalar reader value as text. nil is the empty string.
func Text(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func sortedKeys(r Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
