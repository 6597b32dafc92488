// Package storage contains the destination-agnostic contract the schema
// synchronizer and batch loader talk to, a factory registry that backends
// join at init time, and transient-error classification for retries.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"unify/internal/ddl"
)

// Column is a column as the destination reports it.
type Column struct {
	Name string
	Type string
}

// Repository is one open connection to a destination table.
type Repository interface {
	// Dialect renders DDL for this backend.
	Dialect() ddl.Dialect

	// Describe returns the table's columns in ordinal order. exists is false
	// when the table is absent.
	Describe(ctx context.Context) (cols []Column, exists bool, err error)

	// Exec runs a single DDL statement.
	Exec(ctx context.Context, sql string) error

	// InsertChunk inserts rows (aligned to columns) all-or-nothing and
	// returns the number of rows committed.
	InsertChunk(ctx context.Context, columns []string, rows [][]any) (int64, error)

	Close()
}

// Config is the backend-agnostic connection description built from
// config.Destination.
type Config struct {
	Kind     string
	Host     string
	Port     int
	User     string
	Password string
	Secure   bool
	Database string
	Table    string

	// DSN overrides the individual connection fields when set.
	DSN string
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register adds (or replaces) the factory for kind. Backends call it from
// init; tests may override a kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens a Repository for cfg.Kind.
func New(ctx context.Context, cfg Config) (Repository, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns a sorted snapshot of the registered kinds.
func ListKinds() []string {
	mu.RLock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	mu.RUnlock()
	sort.Strings(out)
	return out
}
