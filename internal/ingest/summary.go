package ingest

import (
	"log"
	"sync"
	"sync/atomic"
	"time"

	"unify/internal/dataset"
	"unify/internal/metrics"
)

// errAggLimit is how many messages of each skip class are kept for the log.
const errAggLimit = 10

// errAgg counts messages of one class and keeps the first few.
type errAgg struct {
	mu    sync.Mutex
	limit int
	count int64
	first []string
}

func newErrAgg(limit int) *errAgg { return &errAgg{limit: limit} }

func (a *errAgg) add(msg string) {
	a.mu.Lock()
	if len(a.first) < a.limit {
		a.first = append(a.first, msg)
	}
	a.count++
	a.mu.Unlock()
}

// Count returns how many messages were added.
func (a *errAgg) Count() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

// First returns a copy of the retained messages.
func (a *errAgg) First() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.first...)
}

func (a *errAgg) log(title string) {
	first := a.First()
	n := a.Count()
	if n == 0 {
		return
	}
	log.Printf("%s: %d (showing first %d)", title, n, len(first))
	for i, s := range first {
		log.Printf("  #%03d: %s", i+1, s)
	}
}

// Summary reports what an ingestion did. Counters filled by reader workers
// are concurrency safe.
//
// Row accounting holds for a successful run:
//
//	read + previous == written + duplicates + empty_identity
type Summary struct {
	Files    int
	Read     atomic.Int64
	Previous int64

	Unsupported    *errAgg
	FailedFiles    *errAgg
	CorruptRecords *errAgg
	EmptyIdentity  *errAgg

	EncodingWarnings atomic.Int64

	Duplicates int64
	Written    int64
	Columns    []string
	Manifest   *dataset.Manifest
	Elapsed    time.Duration
}

func newSummary() *Summary {
	return &Summary{
		Unsupported:    newErrAgg(errAggLimit),
		FailedFiles:    newErrAgg(errAggLimit),
		CorruptRecords: newErrAgg(errAggLimit),
		EmptyIdentity:  newErrAgg(errAggLimit),
	}
}

func (s *Summary) log() {
	s.Unsupported.log("unsupported files")
	s.FailedFiles.log("failed files")
	s.CorruptRecords.log("corrupt records")
	s.EmptyIdentity.log("empty identity rejects")

	read := s.Read.Load()
	log.Printf(
		"summary: files=%d files_failed=%d unsupported=%d read=%d previous=%d corrupt_records=%d empty_identity=%d duplicates=%d written=%d columns=%d encoding_warnings=%d elapsed=%s",
		s.Files,
		s.FailedFiles.Count(),
		s.Unsupported.Count(),
		read,
		s.Previous,
		s.CorruptRecords.Count(),
		s.EmptyIdentity.Count(),
		s.Duplicates,
		s.Written,
		len(s.Columns),
		s.EncodingWarnings.Load(),
		s.Elapsed.Truncate(time.Millisecond),
	)

	if s.Manifest == nil {
		return
	}
	in := read + s.Previous
	out := s.Written + s.Duplicates + s.EmptyIdentity.Count()
	if in != out {
		log.Printf("WARNING: row accounting mismatch: in=%d accounted=%d (delta=%d)", in, out, in-out)
	}
}

func (s *Summary) record(job string) {
	metrics.RecordRow(job, metrics.KindRead, s.Read.Load())
	metrics.RecordRow(job, metrics.KindCorrupt, s.CorruptRecords.Count())
	metrics.RecordRow(job, metrics.KindEmptyIdentity, s.EmptyIdentity.Count())
	metrics.RecordRow(job, metrics.KindDuplicate, s.Duplicates)
	metrics.RecordRow(job, metrics.KindWritten, s.Written)
	metrics.RecordRow(job, metrics.KindFileFailed, s.FailedFiles.Count())
	metrics.RecordRow(job, metrics.KindUnsupported, s.Unsupported.Count())
	metrics.RecordRow(job, metrics.KindEncoding, s.EncodingWarnings.Load())
}
