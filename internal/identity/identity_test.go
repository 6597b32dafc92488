package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unify/internal/normalize"
)

func hash(s string) Key {
	sum := sha256.Sum256([]byte(s))
	return Key(hex.EncodeToString(sum[:]))
}

func TestKey(t *testing.T) {
	t.Parallel()
	k, err := New(nil, "")
	require.NoError(t, err)
	assert.Equal(t, DefaultFields, k.Fields())

	got, err := k.Key(normalize.Record{"name": " Ada ", "email": "ADA@X.org", "city": "ignored"})
	require.NoError(t, err)
	assert.Equal(t, hash("ada||ada@x.org||||"), got)
	assert.Len(t, string(got), 64)

	again, err := k.Key(normalize.Record{"name": "ada", "email": "ada@x.org", "city": "other"})
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestKey_FieldOrderMatters(t *testing.T) {
	t.Parallel()
	a, _ := New([]string{"email", "name"}, PolicyReject)
	b, _ := New([]string{"name", "email"}, PolicyReject)
	r := normalize.Record{"name": "n", "email": "e"}

	ka, err := a.Key(r)
	require.NoError(t, err)
	kb, err := b.Key(r)
	require.NoError(t, err)
	assert.NotEqual(t, ka, kb)
}

func TestKey_EmptyIdentity(t *testing.T) {
	t.Parallel()
	r := normalize.Record{"name": "  ", "city": "Brno"}

	reject, _ := New(nil, PolicyReject)
	_, err := reject.Key(r)
	assert.ErrorIs(t, err, ErrEmptyIdentity)

	collapse, _ := New(nil, PolicyCollapse)
	got, err := collapse.Key(r)
	require.NoError(t, err)
	assert.Equal(t, hash("||||||"), got)
}

func TestNew_UnknownPolicy(t *testing.T) {
	t.Parallel()
	_, err := New(nil, "merge")
	assert.Error(t, err)
}
