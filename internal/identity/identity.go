// Package identity derives the canonical key that decides which records
// describe the same entity.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"unify/internal/normalize"
)

// Key is the hex-encoded sha256 of a record's identity values.
type Key string

// Policy decides what happens to a record whose identity fields are all empty.
type Policy string

const (
	// PolicyReject skips such records; Key returns ErrEmptyIdentity.
	PolicyReject Policy = "reject"
	// PolicyCollapse keys them like any other record, so they all share
	// the key of the empty tuple.
	PolicyCollapse Policy = "collapse"
)

// ErrEmptyIdentity is returned for records with no identity values under
// PolicyReject.
var ErrEmptyIdentity = errors.New("empty identity")

// DefaultFields is the identity field order used when none is configured.
var DefaultFields = []string{"name", "email", "phone", "dob"}

const sep = "||"

// Keyer computes canonical keys. The field order is part of the key contract:
// changing it changes every key.
type Keyer struct {
	fields []string
	policy Policy
}

// New builds a Keyer. An empty fields list uses DefaultFields; an empty policy
// is PolicyReject.
func New(fields []string, policy Policy) (*Keyer, error) {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	switch policy {
	case "":
		policy = PolicyReject
	case PolicyReject, PolicyCollapse:
	default:
		return nil, fmt.Errorf("identity: unknown empty-identity policy %q", policy)
	}
	return &Keyer{fields: append([]string(nil), fields...), policy: policy}, nil
}

func (k *Keyer) Fields() []string { return k.fields }

// Key hashes the trimmed, case-folded identity values of r joined by "||".
func (k *Keyer) Key(r normalize.Record) (Key, error) {
	fold := cases.Fold()
	vals := make([]string, len(k.fields))
	empty := true
	for i, f := range k.fields {
		v := strings.TrimSpace(r[f])
		if v != "" {
			empty = false
			v = fold.String(v)
		}
		vals[i] = v
	}
	if empty && k.policy == PolicyReject {
		return "", ErrEmptyIdentity
	}
	sum := sha256.Sum256([]byte(strings.Join(vals, sep)))
	return Key(hex.EncodeToString(sum[:])), nil
}
