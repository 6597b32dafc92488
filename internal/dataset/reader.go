package dataset

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"unify/internal/columnar"
)

// Artifact is a complete dataset directory.
type Artifact struct {
	Dir      string
	Manifest Manifest
}

// Open reads the manifest in dir and checks every shard is present.
func Open(dir string) (*Artifact, error) {
	m, err := readManifest(dir)
	if err != nil {
		return nil, err
	}
	for _, s := range m.Shards {
		if _, err := os.Stat(filepath.Join(dir, s.File)); err != nil {
			return nil, fmt.Errorf("dataset: %s: shard %s: %w", dir, s.File, err)
		}
	}
	return &Artifact{Dir: dir, Manifest: *m}, nil
}

// Discover returns the artifacts under root. root itself may be an artifact;
// otherwise every complete artifact directory directly under it is returned
// in name order. Staging and parked directories are ignored, and broken
// subdirectories are logged and skipped. A broken root is an error.
func Discover(root string) ([]*Artifact, error) {
	a, err := Open(root)
	if err == nil {
		return []*Artifact{a}, nil
	}
	if !errors.Is(err, ErrIncomplete) {
		return nil, fmt.Errorf("dataset: discover: %w", err)
	}
	ents, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("dataset: discover %s: %w", root, err)
	}
	var out []*Artifact
	for _, e := range ents {
		name := e.Name()
		if !e.IsDir() || strings.HasPrefix(name, ".") || strings.Contains(name, ".staging-") || strings.Contains(name, ".old-") {
			continue
		}
		a, err := Open(filepath.Join(root, name))
		if err != nil {
			if !errors.Is(err, ErrIncomplete) {
				log.Printf("dataset: skip %s: %v", name, err)
			}
			continue
		}
		out = append(out, a)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("dataset: discover %s: %w", root, ErrIncomplete)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Dir < out[j].Dir })
	return out, nil
}

// Columns returns the artifact's column order.
func (a *Artifact) Columns() []string { return append([]string(nil), a.Manifest.Columns...) }

// Rows returns the total row count recorded in the manifest.
func (a *Artifact) Rows() int64 { return a.Manifest.Rows }

// Scan streams rows shard by shard in manifest order, calling fn with up to
// batch rows at a time. Each row holds one text value per Columns() entry;
// the slices passed to fn are not reused.
func (a *Artifact) Scan(ctx context.Context, batch int, fn func(rows [][]string) error) error {
	if batch < 1 {
		batch = 1
	}
	db, err := columnar.Open(ctx)
	if err != nil {
		return err
	}
	defer db.Close()

	want := a.Manifest.Columns
	buf := make([][]string, 0, min(batch, 4096))
	for _, s := range a.Manifest.Shards {
		path := filepath.Join(a.Dir, s.File)
		var pos []int
		err := db.Scan(ctx, path, func(cols, vals []string) error {
			if pos == nil {
				p, err := positions(want, cols)
				if err != nil {
					return fmt.Errorf("dataset: %s: %w", path, err)
				}
				pos = p
			}
			row := make([]string, len(want))
			for i, p := range pos {
				row[i] = vals[p]
			}
			buf = append(buf, row)
			if len(buf) == batch {
				if err := fn(buf); err != nil {
					return err
				}
				buf = make([][]string, 0, cap(buf))
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	if len(buf) > 0 {
		return fn(buf)
	}
	return nil
}

func positions(want, got []string) ([]int, error) {
	idx := make(map[string]int, len(got))
	for i, c := range got {
		idx[c] = i
	}
	out := make([]int, len(want))
	for i, c := range want {
		p, ok := idx[c]
		if !ok {
			return nil, fmt.Errorf("shard lacks column %q", c)
		}
		out[i] = p
	}
	return out, nil
}
