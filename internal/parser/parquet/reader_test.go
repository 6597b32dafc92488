package parquet

import (
	"context"
	"database/sql/driver"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unify/internal/columnar"
	"unify/internal/parser"
	"unify/internal/parser/parsertest"
	"unify/internal/source"
	"unify/pkg/records"
)

func TestStream_Snapshot(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	db, err := columnar.Open(ctx)
	require.NoError(t, err)
	defer db.Close()

	path := filepath.Join(t.TempDir(), "part-00000.parquet")
	rows := [][]driver.Value{{"k1", "ada"}, {"k2", "bob"}}
	i := 0
	_, err = db.WriteParquet(ctx, path, []columnar.Column{{"canonical_key", columnar.TypeText}, {"name", columnar.TypeText}},
		func() ([]driver.Value, error) {
			if i == len(rows) {
				return nil, nil
			}
			i++
			return rows[i-1], nil
		})
	require.NoError(t, err)

	res := parsertest.Run(t, Reader{}, source.RawFile{Path: path, Format: source.FormatParquet})
	require.NoError(t, res.Err)
	assert.Equal(t, []records.Record{
		{"canonical_key": "k1", "name": "ada"},
		{"canonical_key": "k2", "name": "bob"},
	}, res.Records)
}

func TestStream_NotParquet(t *testing.T) {
	t.Parallel()

	rf := parsertest.WriteFile(t, "bad.parquet", []byte("PAR1 but not really"), source.FormatParquet)
	res := parsertest.Run(t, Reader{}, rf)
	assert.ErrorIs(t, res.Err, parser.ErrCorruptSource)
}
