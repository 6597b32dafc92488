// Package loader streams an artifact into a destination in fixed-size
// chunks. Each chunk is one all-or-nothing insert; transient failures are
// retried with exponential backoff and jitter. Chunks are issued by a single
// producer so chunk indexes follow artifact row order, and a bounded set of
// workers runs the inserts.
//
// Logging: on every committed chunk a progress line is emitted with running
// totals and rows/sec since the previous commit.
//
// Loading is append-only: running it twice against the same artifact
// inserts the rows twice.
package loader

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"unify/internal/normalize"
	"unify/internal/storage"
)

// ErrChunkInsert marks a chunk that could not be committed.
var ErrChunkInsert = errors.New("chunk insert failed")

// ChunkError describes the chunk that stopped a load.
type ChunkError struct {
	Index    int   // 0-based chunk number
	Offset   int64 // artifact row offset of the chunk's first row
	Rows     int
	Attempts int
	Err      error
}

func (e *ChunkError) Error() string {
	return fmt.Sprintf("chunk %d (rows %d-%d) failed after %d attempt(s): %v",
		e.Index, e.Offset, e.Offset+int64(e.Rows)-1, e.Attempts, e.Err)
}

func (e *ChunkError) Unwrap() []error { return []error{ErrChunkInsert, e.Err} }

// Chunk is one unit of insertion.
type Chunk struct {
	Index  int
	Offset int64
	Rows   [][]any
}

// Source is a chunked row source; *dataset.Artifact satisfies it.
type Source interface {
	Columns() []string
	Scan(ctx context.Context, batch int, fn func(rows [][]string) error) error
}

// Options tunes a load.
type Options struct {
	BatchSize  int           // rows per chunk; default 50000
	Workers    int           // chunk inserts in flight; default 1
	MaxRetries int           // retries after the first attempt for transient errors
	Backoff    time.Duration // first retry delay, doubled per retry; default 500ms
	MaxBackoff time.Duration // cap on a single delay; default 30s

	// Now supplies the load time used for rows without an ingest timestamp.
	Now func() time.Time
}

func (o *Options) defaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = 50000
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.Backoff <= 0 {
		o.Backoff = 500 * time.Millisecond
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Result summarizes a load. CommittedRows counts the contiguous prefix of
// committed chunks: every artifact row before that offset is in the
// destination. InsertedRows also counts committed chunks beyond a gap when
// several workers were in flight.
type Result struct {
	Columns         []string
	Chunks          int
	CommittedChunks int
	CommittedRows   int64
	InsertedRows    int64
	Retries         int
	Elapsed         time.Duration
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Load reads src and inserts it into repo. On failure the returned Result
// still reports what was committed.
func Load(ctx context.Context, repo storage.Repository, src Source, opt Options) (Result, error) {
	opt.defaults()
	start := time.Now()

	cols, tsIdx, appendTS := insertColumns(src.Columns())
	loadTime := opt.Now().UTC().Truncate(time.Second)
	res := Result{Columns: cols}

	var (
		mu        sync.Mutex
		committed = map[int]int64{}
		progress  = newProgress(start)
	)

	g, gctx := errgroup.WithContext(ctx)
	chunks := make(chan Chunk)

	g.Go(func() error {
		defer close(chunks)
		var (
			index  int
			offset int64
		)
		return src.Scan(gctx, opt.BatchSize, func(rows [][]string) error {
			c := Chunk{Index: index, Offset: offset, Rows: convert(rows, tsIdx, appendTS, loadTime)}
			index++
			offset += int64(len(rows))
			select {
			case chunks <- c:
				mu.Lock()
				res.Chunks++
				mu.Unlock()
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})

	for w := 0; w < opt.Workers; w++ {
		g.Go(func() error {
			for c := range chunks {
				if gctx.Err() != nil {
					return nil
				}
				n, retries, err := insert(ctx, gctx, repo, cols, c, opt)
				mu.Lock()
				res.Retries += retries
				if err == nil {
					committed[c.Index] = n
					progress.commit(n)
				}
				mu.Unlock()
				if err != nil {
					return err
				}
			}
			return nil
		})
	}

	err := g.Wait()

	idx := make([]int, 0, len(committed))
	for i, n := range committed {
		idx = append(idx, i)
		res.InsertedRows += n
	}
	sort.Ints(idx)
	for want, i := range idx {
		if i != want {
			break
		}
		res.CommittedChunks++
		res.CommittedRows += committed[i]
	}
	res.Elapsed = time.Since(start)

	if err != nil {
		log.Printf("loader: stopped chunks=%d committed_chunks=%d committed_rows=%d inserted=%d err=%v",
			res.Chunks, res.CommittedChunks, res.CommittedRows, res.InsertedRows, err)
		return res, err
	}
	log.Printf("loader: done chunks=%d total_inserted=%d retries=%d elapsed=%s",
		res.Chunks, res.InsertedRows, res.Retries, res.Elapsed.Truncate(time.Millisecond))
	return res, nil
}

// insert runs one chunk with retries. The insert itself is shielded from
// cancellation so an in-flight chunk finishes or fails on its own; run
// cancellation only stops further attempts.
func insert(parent, run context.Context, repo storage.Repository, cols []string, c Chunk, opt Options) (int64, int, error) {
	ictx := context.WithoutCancel(parent)
	var err error
	for attempt := 1; ; attempt++ {
		var n int64
		n, err = repo.InsertChunk(ictx, cols, c.Rows)
		if err == nil {
			return n, attempt - 1, nil
		}
		if attempt > opt.MaxRetries || !storage.IsTransient(err) {
			return 0, attempt - 1, &ChunkError{Index: c.Index, Offset: c.Offset, Rows: len(c.Rows), Attempts: attempt, Err: err}
		}
		d := backoff(opt.Backoff, opt.MaxBackoff, attempt)
		log.Printf("loader: chunk %d attempt %d failed, retrying in %s: %v", c.Index, attempt, d.Truncate(time.Millisecond), err)
		if serr := sleep(run, d); serr != nil {
			return 0, attempt - 1, &ChunkError{Index: c.Index, Offset: c.Offset, Rows: len(c.Rows), Attempts: attempt, Err: errors.Join(err, serr)}
		}
	}
}

// backoff returns base*2^(attempt-1) capped at max, jittered into [d/2, d].
func backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 1; i < attempt && d < max; i++ {
		d *= 2
	}
	if d > max {
		d = max
	}
	half := d / 2
	if half <= 0 {
		return d
	}
	return half + rand.N(half+1)
}

// Columns returns the destination column list for an artifact's columns:
// ingest_timestamp is appended when the artifact lacks it.
func Columns(artifact []string) []string {
	cols, _, _ := insertColumns(artifact)
	return cols
}

// insertColumns returns the insert column list, the index of the ingest
// timestamp, and whether the timestamp is appended because the artifact
// lacks it.
func insertColumns(src []string) ([]string, int, bool) {
	for i, c := range src {
		if c == normalize.TimestampColumn {
			return src, i, false
		}
	}
	cols := append(append([]string(nil), src...), normalize.TimestampColumn)
	return cols, len(cols) - 1, true
}

// convert turns text rows into insert values: every column is a string
// except the ingest timestamp, which is parsed (or filled with the load time).
func convert(rows [][]string, tsIdx int, appendTS bool, loadTime time.Time) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		width := len(r)
		if appendTS {
			width++
		}
		vals := make([]any, width)
		for j, v := range r {
			vals[j] = v
		}
		vals[tsIdx] = parseTimestamp(vals[tsIdx], loadTime)
		out[i] = vals
	}
	return out
}

func parseTimestamp(v any, fallback time.Time) time.Time {
	s, _ := v.(string)
	if s == "" {
		return fallback
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	return fallback
}

type progress struct {
	start, last time.Time
	batches     int64
	total       int64
}

func newProgress(start time.Time) *progress { return &progress{start: start, last: start} }

func (p *progress) commit(n int64) {
	p.batches++
	p.total += n
	now := time.Now()
	since := now.Sub(p.last)
	rps := float64(0)
	if since > 0 {
		rps = float64(n) / since.Seconds()
	}
	log.Printf(
		"batch #%d: rps=%.0f inserted=%d total_inserted=%d elapsed=%s since_last=%s",
		p.batches,
		rps,
		n,
		p.total,
		now.Sub(p.start).Truncate(time.Millisecond),
		since.Truncate(time.Millisecond),
	)
	p.last = now
}
