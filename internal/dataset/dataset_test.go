package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unify/internal/dedup"
	"unify/internal/identity"
	"unify/internal/normalize"
)

var fixed = time.Date(2024, 3, 1, 9, 15, 30, 999, time.UTC)

func entries() []dedup.Entry {
	return []dedup.Entry{
		{Key: identity.Key("k1"), Record: normalize.Record{"name": "ada", "city": "london"}},
		{Key: identity.Key("k2"), Record: normalize.Record{"name": "bob", "city": ""}},
		{Key: identity.Key("k3"), Record: normalize.Record{"name": "cy", "city": "brno"}},
	}
}

var columns = []string{"canonical_key", "name", "city", "ingest_timestamp"}

func readAll(t *testing.T, a *Artifact, batch int) ([][]string, []int) {
	t.Helper()
	var rows [][]string
	var sizes []int
	require.NoError(t, a.Scan(context.Background(), batch, func(b [][]string) error {
		sizes = append(sizes, len(b))
		rows = append(rows, b...)
		return nil
	}))
	return rows, sizes
}

func TestWriteThenOpen(t *testing.T) {
	t.Parallel()
	out := filepath.Join(t.TempDir(), "dataset")

	m, err := Write(context.Background(), out, columns, entries(), Options{RunID: "r1", Now: func() time.Time { return fixed }})
	require.NoError(t, err)
	assert.Equal(t, "r1", m.RunID)
	assert.Equal(t, int64(3), m.Rows)
	assert.Equal(t, fixed.Truncate(time.Second), m.IngestTimestamp)
	assert.Equal(t, []Shard{{File: "part-00000.parquet", Rows: 3}}, m.Shards)

	_, err = os.Stat(out + ".staging-r1")
	assert.True(t, os.IsNotExist(err))

	a, err := Open(out)
	require.NoError(t, err)
	assert.Equal(t, columns, a.Columns())
	assert.EqualValues(t, 3, a.Rows())

	rows, sizes := readAll(t, a, 2)
	assert.Equal(t, []int{2, 1}, sizes)
	assert.Equal(t, [][]string{
		{"k1", "ada", "london", "2024-03-01T09:15:30Z"},
		{"k2", "bob", "", "2024-03-01T09:15:30Z"},
		{"k3", "cy", "brno", "2024-03-01T09:15:30Z"},
	}, rows)
}

func TestWrite_Sharded(t *testing.T) {
	t.Parallel()
	out := filepath.Join(t.TempDir(), "dataset")

	m, err := Write(context.Background(), out, columns, entries(), Options{ShardCount: 4})
	require.NoError(t, err)
	require.Len(t, m.Shards, 4)

	var total int64
	for i, s := range m.Shards {
		assert.Equal(t, ShardFile(i), s.File)
		total += s.Rows
	}
	assert.EqualValues(t, 3, total)

	a, err := Open(out)
	require.NoError(t, err)
	rows, _ := readAll(t, a, 100)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.Len(t, r, len(columns))
	}
}

func TestShardOf_Stable(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0, ShardOf("anything", 1))
	for _, k := range []string{"a", "b", "c"} {
		s := ShardOf(k, 8)
		assert.Equal(t, s, ShardOf(k, 8))
		assert.True(t, s >= 0 && s < 8)
	}
}

func TestWrite_ReplacesPreviousAtomically(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "dataset")

	_, err := Write(ctx, out, columns, entries(), Options{RunID: "one"})
	require.NoError(t, err)
	_, err = Write(ctx, out, columns, entries()[:1], Options{RunID: "two"})
	require.NoError(t, err)

	a, err := Open(out)
	require.NoError(t, err)
	assert.Equal(t, "two", a.Manifest.RunID)
	assert.EqualValues(t, 1, a.Rows())

	_, err = os.Stat(out + ".old-two")
	assert.True(t, os.IsNotExist(err))
}

func TestWrite_FailureLeavesPrevious(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	out := filepath.Join(t.TempDir(), "dataset")

	_, err := Write(ctx, out, columns, entries(), Options{RunID: "good"})
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = Write(canceled, out, columns, entries(), Options{RunID: "bad"})
	require.Error(t, err)

	_, err = os.Stat(out + ".staging-bad")
	assert.True(t, os.IsNotExist(err))
	a, err := Open(out)
	require.NoError(t, err)
	assert.Equal(t, "good", a.Manifest.RunID)
}

func TestOpen_Incomplete(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "part-00000.parquet"), []byte("x"), 0o644))

	_, err := Open(dir)
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestDiscover(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := t.TempDir()

	for _, name := range []string{"run-b", "run-a"} {
		_, err := Write(ctx, filepath.Join(root, name), columns, entries(), Options{RunID: name})
		require.NoError(t, err)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(root, "run-c.staging-x"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "empty"), 0o755))

	arts, err := Discover(root)
	require.NoError(t, err)
	require.Len(t, arts, 2)
	assert.Equal(t, "run-a", arts[0].Manifest.RunID)
	assert.Equal(t, "run-b", arts[1].Manifest.RunID)

	single, err := Discover(filepath.Join(root, "run-a"))
	require.NoError(t, err)
	require.Len(t, single, 1)

	_, err = Discover(filepath.Join(root, "empty"))
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestDiscover_BrokenManifest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	root := t.TempDir()

	_, err := Write(ctx, filepath.Join(root, "run-a"), columns, entries(), Options{RunID: "run-a"})
	require.NoError(t, err)
	broken := filepath.Join(root, "run-b")
	require.NoError(t, os.MkdirAll(broken, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(broken, ManifestName), []byte("{not json"), 0o644))

	arts, err := Discover(root)
	require.NoError(t, err)
	require.Len(t, arts, 1)
	assert.Equal(t, "run-a", arts[0].Manifest.RunID)

	_, err = Discover(broken)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrIncomplete)
}
