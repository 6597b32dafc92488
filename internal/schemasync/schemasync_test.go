package schemasync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unify/internal/ddl"
	"unify/internal/storage"
)

// spyRepo records DDL and serves a canned description.
type spyRepo struct {
	cols      []storage.Column
	exists    bool
	descErr   error
	execErr   error
	statement []string
}

func (s *spyRepo) Dialect() ddl.Dialect {
	return ddl.Dialect{
		Name:      "spy",
		Quote:     ddl.QuoteDouble,
		Types:     map[ddl.Kind]string{ddl.Text: "TEXT", ddl.Timestamp: "TIMESTAMP"},
		AddColumn: "ADD COLUMN",
	}
}
func (s *spyRepo) Describe(context.Context) ([]storage.Column, bool, error) {
	return s.cols, s.exists, s.descErr
}
func (s *spyRepo) Exec(_ context.Context, sql string) error {
	if s.execErr != nil {
		return s.execErr
	}
	s.statement = append(s.statement, sql)
	return nil
}
func (s *spyRepo) InsertChunk(context.Context, []string, [][]any) (int64, error) { return 0, nil }
func (s *spyRepo) Close() {}

func TestDiff(t *testing.T) {
	t.Parallel()

	got := Diff([]string{"name", "email", "company_name"}, []storage.Column{{Name: "name"}, {Name: "EMAIL"}})
	assert.Equal(t, []string{"company_name"}, got)
	assert.Empty(t, Diff([]string{"name"}, []storage.Column{{Name: "name"}, {Name: "extra"}}))
}

// A target with {name, email} and an artifact adding company_name gets
// exactly one additive statement.
func TestSync_AddsOnlyMissing(t *testing.T) {
	t.Parallel()
	repo := &spyRepo{exists: true, cols: []storage.Column{{Name: "name"}, {Name: "email"}}}

	plan, err := Sync(context.Background(), repo, "master_records", []string{"name", "email", "company_name"})
	require.NoError(t, err)
	assert.False(t, plan.Create)
	assert.Equal(t, []string{`ALTER TABLE "master_records" ADD COLUMN "company_name" TEXT`}, repo.statement)
}

func TestSync_TimestampColumnIsTemporal(t *testing.T) {
	t.Parallel()
	repo := &spyRepo{exists: true, cols: []storage.Column{{Name: "canonical_key"}}}

	_, err := Sync(context.Background(), repo, "t", []string{"canonical_key", "ingest_timestamp"})
	require.NoError(t, err)
	assert.Equal(t, []string{`ALTER TABLE "t" ADD COLUMN "ingest_timestamp" TIMESTAMP`}, repo.statement)
}

func TestSync_CreatesMissingTable(t *testing.T) {
	t.Parallel()
	repo := &spyRepo{}

	plan, err := Sync(context.Background(), repo, "master_records",
		[]string{"canonical_key", "email", "zip", "ingest_timestamp"})
	require.NoError(t, err)
	require.True(t, plan.Create)

	var names []string
	for _, c := range plan.Table.Columns {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{
		"canonical_key", "name", "first_name", "last_name", "email", "phone", "dob", "zip", "ingest_timestamp",
	}, names)
	assert.Equal(t, []string{"canonical_key"}, plan.Table.OrderBy)
	require.Len(t, repo.statement, 1)
	assert.Contains(t, repo.statement[0], `"canonical_key" TEXT NOT NULL`)
	assert.Contains(t, repo.statement[0], `"ingest_timestamp" TIMESTAMP`)
}

func TestSync_UpToDateIssuesNothing(t *testing.T) {
	t.Parallel()
	repo := &spyRepo{exists: true, cols: []storage.Column{{Name: "canonical_key"}, {Name: "name"}}}

	plan, err := Sync(context.Background(), repo, "t", []string{"canonical_key", "name"})
	require.NoError(t, err)
	assert.True(t, plan.Empty())
	assert.Empty(t, repo.statement)
}

func TestSync_Failures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	tests := []struct {
		name string
		repo *spyRepo
		cols []string
	}{
		{"unreachable", &spyRepo{descErr: errors.New("dial tcp: connection refused")}, []string{"name"}},
		{"malformed name", &spyRepo{exists: true}, []string{"name", "Bad Name"}},
		{"ddl rejected", &spyRepo{exists: true, execErr: errors.New("permission denied")}, []string{"name"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Sync(ctx, tt.repo, "t", tt.cols)
			assert.ErrorIs(t, err, ErrSchemaSync)
			assert.Empty(t, tt.repo.statement)
		})
	}
}
