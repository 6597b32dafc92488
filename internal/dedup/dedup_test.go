package dedup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unify/internal/identity"
	"unify/internal/normalize"
)

func rec(reason string) normalize.Record { return normalize.Record{"reason": reason} }

func TestSet(t *testing.T) {
	t.Parallel()

	tests := []struct {
		policy Policy
		want   []Entry
	}{
		{KeepLast, []Entry{{"k2", rec("C")}, {"k1", rec("D")}}},
		{KeepFirst, []Entry{{"k1", rec("A")}, {"k2", rec("C")}}},
	}
	for _, tt := range tests {
		t.Run(string(tt.policy), func(t *testing.T) {
			t.Parallel()
			s := New(tt.policy)
			assert.False(t, s.Add("k1", rec("A")))
			assert.True(t, s.Add("k1", rec("B")))
			assert.False(t, s.Add("k2", rec("C")))
			assert.True(t, s.Add("k1", rec("D")))

			assert.Equal(t, tt.want, s.Entries())
			assert.Equal(t, 2, s.Len())
			assert.Equal(t, 2, s.Duplicates())
		})
	}
}

func TestSet_EachStops(t *testing.T) {
	t.Parallel()
	s := New("")
	for _, k := range []identity.Key{"a", "b", "c"} {
		s.Add(k, rec(string(k)))
	}
	var seen []identity.Key
	err := s.Each(func(e Entry) error {
		seen = append(seen, e.Key)
		if e.Key == "b" {
			return assert.AnError
		}
		return nil
	})
	require.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, []identity.Key{"a", "b"}, seen)
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()
	p, err := ParsePolicy(" Keep-First ")
	require.NoError(t, err)
	assert.Equal(t, KeepFirst, p)

	p, err = ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, KeepLast, p)

	_, err = ParsePolicy("most-complete")
	assert.Error(t, err)
}
