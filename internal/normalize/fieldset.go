package normalize

import (
	"sort"
	"sync"
)

// FieldSet is the union of field names observed across a run. Readers running
// in parallel Observe into one shared set; Names is read after the barrier.
type FieldSet struct {
	mu    sync.Mutex
	names map[string]struct{}
}

// NewFieldSet returns an empty set.
func NewFieldSet() *FieldSet {
	return &FieldSet{names: make(map[string]struct{})}
}

// Observe adds every key of r.
func (s *FieldSet) Observe(r Record) {
	s.mu.Lock()
	for k := range r {
		s.names[k] = struct{}{}
	}
	s.mu.Unlock()
}

// Add adds names directly, e.g. the columns of a previous artifact.
func (s *FieldSet) Add(names ...string) {
	s.mu.Lock()
	for _, k := range names {
		if k == KeyColumn || k == TimestampColumn {
			continue
		}
		s.names[k] = struct{}{}
	}
	s.mu.Unlock()
}

func (s *FieldSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.names)
}

// Names returns the observed names, sorted.
func (s *FieldSet) Names() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.names))
	for k := range s.names {
		out = append(out, k)
	}
	s.mu.Unlock()
	sort.Strings(out)
	return out
}

// Backfill sets every name in fields that r lacks to the empty string.
func Backfill(r Record, fields []string) {
	for _, f := range fields {
		if _, ok := r[f]; !ok {
			r[f] = ""
		}
	}
}

// ColumnOrder returns the output column order for a field set:
// canonical_key, the core fields present in fields, every other field
// sorted, then ingest_timestamp.
func ColumnOrder(fields []string) []string {
	present := make(map[string]bool, len(fields))
	for _, f := range fields {
		present[f] = true
	}
	out := make([]string, 0, len(fields)+2)
	out = append(out, KeyColumn)
	core := make(map[string]bool, len(CoreFields))
	for _, f := range CoreFields {
		core[f] = true
		if present[f] {
			out = append(out, f)
		}
	}
	rest := make([]string, 0, len(fields))
	for f := range present {
		if !core[f] && f != KeyColumn && f != TimestampColumn {
			rest = append(rest, f)
		}
	}
	sort.Strings(rest)
	out = append(out, rest...)
	return append(out, TimestampColumn)
}
