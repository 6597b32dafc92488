// Package parser defines the contract shared by every format reader and the
// registry that maps a source.Format to its reader.
//
// A reader streams records into a channel. Problems with a single record are
// reported through onErr and never stop the stream; problems with the file as
// a whole are returned from Stream wrapped in ErrCorruptSource.
package parser

import (
	"context"

	"unify/internal/config"
	"unify/internal/source"
	"unify/pkg/records"
)

// Reader streams the records of one file.
type Reader interface {
	Format() source.Format
	Stream(ctx context.Context, f source.RawFile, out chan<- records.Record, onErr func(line int, err error)) error
}

// Factory builds a Reader from its per-format options block.
type Factory func(opt config.Options) (Reader, error)

// Emit sends rec on out unless ctx is done first.
func Emit(ctx context.Context, out chan<- records.Record, rec records.Record) error {
	select {
	case out <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
