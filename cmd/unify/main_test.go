package main

import (
	"bytes"
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unify/internal/config"
	"unify/internal/ingest"
)

func TestParseStage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    config.Stage
		wantErr bool
	}{
		{"", config.StageAll, false},
		{"all", config.StageAll, false},
		{"ingest", config.StageIngest, false},
		{"load", config.StageLoad, false},
		{"deploy", 0, true},
	}
	for _, tt := range tests {
		got, err := parseStage(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}

func TestStorageConfig(t *testing.T) {
	t.Parallel()
	d := config.Destination{Kind: "postgres", Host: "db", Port: 5432, User: "u", Password: "p", Database: "d", Table: "t", DSN: "x"}
	sc := storageConfig(d)
	assert.Equal(t, "postgres", sc.Kind)
	assert.Equal(t, 5432, sc.Port)
	assert.Equal(t, "x", sc.DSN)
	assert.Equal(t, "t", sc.Table)
}

func TestConfigCheck_Invalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("runtime:\n  batch_size: 0\n"), 0o644))

	root := newRootCmd()
	root.SetArgs([]string{"config", "check", "--config", path, "--stage", "ingest"})
	root.SetOut(&bytes.Buffer{})
	err := root.ExecuteContext(context.Background())
	assert.ErrorIs(t, err, errInvalidConfig)
}

func TestConfigCheck_Valid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ok.yaml")
	require.NoError(t, os.WriteFile(path, []byte("job: nightly\ninput_path: in\n"), 0o644))

	var out bytes.Buffer
	root := newRootCmd()
	root.SetArgs([]string{"config", "check", "--config", path, "--stage", "ingest"})
	root.SetOut(&out)
	require.NoError(t, root.ExecuteContext(context.Background()))
	assert.Contains(t, out.String(), "configuration is valid")
	assert.Contains(t, out.String(), "[MASKED]")
}

// Ingest two files, load the dataset into SQLite twice: the table is created
// on the first load and every load appends.
func TestIngestThenLoad_SQLite(t *testing.T) {
	t.Parallel()
	input := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(input, "a.csv"),
		[]byte("name,email,phone\nAda,ada@x.org,1\nGrace,grace@x.org,2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(input, "b.json"),
		[]byte(`{"full_name":"Ada","email":"ada@x.org","phone":"1","company":"X"}`+"\n"), 0o644))

	cfg := config.Default()
	cfg.InputPath = input
	cfg.OutputPath = filepath.Join(t.TempDir(), "master")
	cfg.Destination.Kind = "sqlite"
	cfg.Destination.Database = filepath.Join(t.TempDir(), "dest.db")
	cfg.Destination.Table = "master_records"
	cfg.Runtime.BatchSize = 1

	opt, err := ingest.OptionsFrom(cfg)
	require.NoError(t, err)
	sum, err := ingest.Run(context.Background(), opt)
	require.NoError(t, err)
	require.Equal(t, int64(2), sum.Written)

	ctx := context.Background()
	require.NoError(t, runLoad(ctx, cfg))

	db, err := sql.Open("sqlite", cfg.Destination.Database)
	require.NoError(t, err)
	defer db.Close()

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM master_records`).Scan(&n))
	assert.Equal(t, 2, n)

	var company string
	require.NoError(t, db.QueryRow(`SELECT company FROM master_records WHERE name = 'ada'`).Scan(&company))
	assert.Equal(t, "X", company)

	require.NoError(t, runLoad(ctx, cfg))
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM master_records`).Scan(&n))
	assert.Equal(t, 4, n)
}

func TestRunLoad_NoArtifact(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.OutputPath = t.TempDir()
	cfg.Destination.Kind = "sqlite"
	cfg.Destination.Database = filepath.Join(t.TempDir(), "dest.db")

	require.Error(t, runLoad(context.Background(), cfg))
}
