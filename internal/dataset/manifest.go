// Package dataset writes and reads the run artifact: a directory of Parquet
// shards plus a manifest. The manifest is written last, so a directory
// without one is never treated as a complete artifact.
package dataset

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// ManifestName is the file that marks a complete artifact.
const ManifestName = "_manifest.json"

// ErrIncomplete is returned when a directory has no manifest.
var ErrIncomplete = errors.New("dataset: artifact incomplete (no manifest)")

// Shard is one Parquet file of the artifact.
type Shard struct {
	File string `json:"file"`
	Rows int64  `json:"rows"`
}

// Manifest describes a complete artifact.
type Manifest struct {
	RunID           string    `json:"run_id"`
	IngestTimestamp time.Time `json:"ingest_timestamp"`
	Columns         []string  `json:"columns"`
	Shards          []Shard   `json:"shards"`
	Rows            int64     `json:"rows"`
}

func writeManifest(dir string, m *Manifest) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, ManifestName), append(b, '\n'), 0o644)
}

func readManifest(dir string) (*Manifest, error) {
	b, err := os.ReadFile(filepath.Join(dir, ManifestName))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%s: %w", dir, ErrIncomplete)
	}
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("%s: manifest: %w", dir, err)
	}
	if len(m.Columns) == 0 {
		return nil, fmt.Errorf("%s: manifest has no columns", dir)
	}
	return &m, nil
}
