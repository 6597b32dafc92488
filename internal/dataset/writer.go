package dataset

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/xxh3"

	"unify/internal/columnar"
	"unify/internal/dedup"
	"unify/internal/normalize"
)

// Options configures one Write.
type Options struct {
	// RunID names the staging directory and is recorded in the manifest.
	// Empty generates a random UUID.
	RunID string
	// ShardCount is the number of part files; values below 1 mean 1.
	ShardCount int
	// Now supplies the run timestamp; nil uses time.Now.
	Now func() time.Time
}

// ShardFile is the name of shard i.
func ShardFile(i int) string { return fmt.Sprintf("part-%05d.parquet", i) }

// ShardOf assigns a canonical key to one of n shards.
func ShardOf(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(xxh3.HashString(key) % uint64(n))
}

// Write serializes entries to output atomically. columns is the full output
// column order including canonical_key and ingest_timestamp. Shards are
// written into a staging sibling, the manifest last, then the staging
// directory replaces output. On failure output is left as it was.
func Write(ctx context.Context, output string, columns []string, entries []dedup.Entry, opt Options) (*Manifest, error) {
	if opt.RunID == "" {
		opt.RunID = uuid.NewString()
	}
	if opt.ShardCount < 1 {
		opt.ShardCount = 1
	}
	now := time.Now
	if opt.Now != nil {
		now = opt.Now
	}
	ts := now().UTC().Truncate(time.Second)

	staging := output + ".staging-" + opt.RunID
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return nil, fmt.Errorf("dataset: staging: %w", err)
	}
	ok := false
	defer func() {
		if !ok {
			os.RemoveAll(staging)
		}
	}()

	parts := make([][]int, opt.ShardCount)
	for i, e := range entries {
		s := ShardOf(string(e.Key), opt.ShardCount)
		parts[s] = append(parts[s], i)
	}

	cols := make([]columnar.Column, len(columns))
	for i, c := range columns {
		cols[i] = columnar.Column{Name: c, Type: columnar.TypeText}
		if c == normalize.TimestampColumn {
			cols[i].Type = columnar.TypeTimestamp
		}
	}

	db, err := columnar.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	m := &Manifest{RunID: opt.RunID, IngestTimestamp: ts, Columns: columns}
	for s, idx := range parts {
		i := 0
		next := func() ([]driver.Value, error) {
			if i == len(idx) {
				return nil, nil
			}
			e := entries[idx[i]]
			i++
			row := make([]driver.Value, len(columns))
			for j, c := range columns {
				switch c {
				case normalize.KeyColumn:
					row[j] = string(e.Key)
				case normalize.TimestampColumn:
					row[j] = ts
				default:
					row[j] = e.Record[c]
				}
			}
			return row, nil
		}
		name := ShardFile(s)
		n, err := db.WriteParquet(ctx, filepath.Join(staging, name), cols, next)
		if err != nil {
			return nil, fmt.Errorf("dataset: shard %s: %w", name, err)
		}
		m.Shards = append(m.Shards, Shard{File: name, Rows: n})
		m.Rows += n
	}

	if err := writeManifest(staging, m); err != nil {
		return nil, fmt.Errorf("dataset: manifest: %w", err)
	}
	if err := swap(staging, output, opt.RunID); err != nil {
		return nil, err
	}
	ok = true
	log.Printf("dataset: wrote run=%s rows=%d shards=%d dir=%s", m.RunID, m.Rows, len(m.Shards), output)
	return m, nil
}

// swap moves staging into place. An existing output is parked as
// <output>.old-<runid> until the rename succeeds, then removed.
func swap(staging, output, runID string) error {
	old := output + ".old-" + runID
	_, err := os.Stat(output)
	hadOld := err == nil
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("dataset: stat output: %w", err)
	}
	if hadOld {
		if err := os.Rename(output, old); err != nil {
			return fmt.Errorf("dataset: park previous output: %w", err)
		}
	}
	if err := os.Rename(staging, output); err != nil {
		if hadOld {
			if rerr := os.Rename(old, output); rerr != nil {
				log.Printf("dataset: restore previous output failed: %v (left at %s)", rerr, old)
			}
		}
		return fmt.Errorf("dataset: publish: %w", err)
	}
	if hadOld {
		if err := os.RemoveAll(old); err != nil {
			log.Printf("dataset: remove previous output %s: %v", old, err)
		}
	}
	return nil
}
