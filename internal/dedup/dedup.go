// Package dedup collapses records that share a canonical key.
//
// Set is policy driven, like a single-batch de-duplicator, but spans a whole
// run: records are added in merge order and the winner for each key is chosen
// by the policy:
//
//   - "keep-last"  : the latest occurrence wins (default)
//   - "keep-first" : the earliest occurrence wins
//
// There is no field-level reconciliation between duplicates. Iteration yields
// winners ordered by the position of the winning occurrence.
package dedup

import (
	"fmt"
	"strings"

	"unify/internal/identity"
	"unify/internal/normalize"
)

type Policy string

const (
	KeepLast  Policy = "keep-last"
	KeepFirst Policy = "keep-first"
)

// ParsePolicy accepts the config spelling; empty means KeepLast.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return KeepLast, nil
	case KeepLast, KeepFirst:
		return p, nil
	default:
		return "", fmt.Errorf("dedup: unknown policy %q", s)
	}
}

// Entry is one surviving record.
type Entry struct {
	Key    identity.Key
	Record normalize.Record
}

// Set is an ordered keep-last (or keep-first) map keyed by canonical key.
// It is not safe for concurrent use; the merge runs on one goroutine.
type Set struct {
	policy  Policy
	index   map[identity.Key]int
	entries []Entry
	live    []bool
	dups    int
}

func New(policy Policy) *Set {
	if policy == "" {
		policy = KeepLast
	}
	return &Set{policy: policy, index: make(map[identity.Key]int)}
}

// Add merges r under key and reports whether it replaced or lost to an
// earlier record with the same key.
func (s *Set) Add(key identity.Key, r normalize.Record) (duplicate bool) {
	i, seen := s.index[key]
	if seen {
		s.dups++
		if s.policy == KeepFirst {
			return true
		}
		s.live[i] = false
		s.entries[i].Record = nil
	}
	s.index[key] = len(s.entries)
	s.entries = append(s.entries, Entry{Key: key, Record: r})
	s.live = append(s.live, true)
	return seen
}

// Len is the number of distinct keys.
func (s *Set) Len() int { return len(s.index) }

// Duplicates is the number of records removed by the merge.
func (s *Set) Duplicates() int { return s.dups }

// Each calls fn for every winner in order, stopping at the first error.
func (s *Set) Each(fn func(Entry) error) error {
	for i, e := range s.entries {
		if !s.live[i] {
			continue
		}
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

// Entries returns the winners in order.
func (s *Set) Entries() []Entry {
	out := make([]Entry, 0, len(s.index))
	_ = s.Each(func(e Entry) error {
		out = append(out, e)
		return nil
	})
	return out
}
