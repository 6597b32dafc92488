// Package ingest runs one ingestion: scan the input directory, read and
// normalize every file on a bounded worker pool, wait for all readers
// (the FieldSet barrier), then backfill, key, deduplicate and write the
// dataset artifact.
//
// Per-file problems (unsupported format, corrupt file, corrupt record,
// undecodable charset) are counted and logged; they never fail the run.
// Failures of the run itself (unreadable input directory, cancellation,
// artifact write) are returned.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"unify/internal/config"
	"unify/internal/dataset"
	"unify/internal/dedup"
	"unify/internal/identity"
	"unify/internal/metrics"
	"unify/internal/normalize"
	"unify/internal/parser"
	"unify/internal/source"
	"unify/pkg/records"
)

// streamBuffer sizes the channel between a reader and its normalizer.
const streamBuffer = 256

// Options configures a Run.
type Options struct {
	Job        string
	InputPath  string
	OutputPath string

	ReaderWorkers int
	ShardCount    int

	IdentityFields []string
	EmptyIdentity  identity.Policy
	DedupPolicy    dedup.Policy
	MergePrevious  bool

	Normalize normalize.Options
	Readers   map[string]config.Options

	// RunID and Now are passed to the dataset writer; zero values generate
	// a UUID and use the wall clock.
	RunID string
	Now   func() time.Time
}

// OptionsFrom maps a loaded Config onto run options.
func OptionsFrom(cfg *config.Config) (Options, error) {
	policy, err := dedup.ParsePolicy(cfg.Normalize.DedupPolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		Job:            cfg.Job,
		InputPath:      cfg.InputPath,
		OutputPath:     cfg.OutputPath,
		ReaderWorkers:  cfg.Runtime.ReaderWorkers,
		ShardCount:     cfg.Runtime.ShardCount,
		IdentityFields: cfg.Normalize.IdentityFields,
		EmptyIdentity:  identity.Policy(cfg.Normalize.EmptyIdentity),
		DedupPolicy:    policy,
		MergePrevious:  cfg.Normalize.MergePrevious,
		Normalize: normalize.Options{
			Separator: cfg.Normalize.FlattenSeparator,
			Synonyms:  cfg.Normalize.Synonyms,
		},
		Readers: cfg.Readers,
	}, nil
}

// fileResult is what one reader worker hands to the merge phase.
type fileResult struct {
	file    source.RawFile
	records []normalize.Record
	skipped int64
	failed  error
}

type run struct {
	opt    Options
	norm   *normalize.Normalizer
	keyer  *identity.Keyer
	fields *normalize.FieldSet
	sum    *Summary
}

// Run executes one ingestion and returns its summary. The summary is
// returned (and logged) even when err is non-nil, with whatever was counted.
func Run(ctx context.Context, opt Options) (*Summary, error) {
	if opt.ReaderWorkers < 1 {
		opt.ReaderWorkers = 1
	}
	keyer, err := identity.New(opt.IdentityFields, opt.EmptyIdentity)
	if err != nil {
		return nil, err
	}
	r := &run{
		opt:    opt,
		norm:   normalize.New(opt.Normalize),
		keyer:  keyer,
		fields: normalize.NewFieldSet(),
		sum:    newSummary(),
	}

	start := time.Now()
	err = r.execute(ctx)
	r.sum.Elapsed = time.Since(start)
	r.sum.log()
	r.sum.record(opt.Job)
	metrics.RecordStep(opt.Job, "ingest", err, r.sum.Elapsed)
	return r.sum, err
}

func (r *run) execute(ctx context.Context) error {
	step := time.Now()
	files, unsupported, err := source.Scan(ctx, r.opt.InputPath, r.opt.OutputPath)
	metrics.RecordStep(r.opt.Job, "scan", err, time.Since(step))
	if err != nil {
		return err
	}
	r.sum.Files = len(files)
	for _, s := range unsupported {
		log.Printf("skip: unsupported path=%s", s.Path)
		r.sum.Unsupported.add(s.Err.Error())
	}
	log.Printf("ingest: input=%s files=%d unsupported=%d workers=%d", r.opt.InputPath, len(files), len(unsupported), r.opt.ReaderWorkers)

	var previous []normalize.Record
	if r.opt.MergePrevious {
		if previous, err = r.readPrevious(ctx); err != nil {
			return err
		}
	}

	step = time.Now()
	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opt.ReaderWorkers)
	for i, f := range files {
		g.Go(func() error {
			res, err := r.readFile(gctx, f)
			results[i] = res
			return err
		})
	}
	// Barrier: every file has been observed before any record is backfilled.
	err = g.Wait()
	metrics.RecordStep(r.opt.Job, "parse", err, time.Since(step))
	if err != nil {
		return fmt.Errorf("ingest: read: %w", err)
	}

	names := r.fields.Names()
	set := dedup.New(r.opt.DedupPolicy)
	add := func(origin string, recs []normalize.Record) {
		for i, rec := range recs {
			normalize.Backfill(rec, names)
			key, err := r.keyer.Key(rec)
			if errors.Is(err, identity.ErrEmptyIdentity) {
				r.sum.EmptyIdentity.add(fmt.Sprintf("%s: record %d: %v", origin, i+1, err))
				continue
			}
			set.Add(key, rec)
		}
	}
	add("previous artifact", previous)
	for _, res := range results {
		if res.failed == nil {
			add(res.file.Path, res.records)
		}
	}
	r.sum.Duplicates = int64(set.Duplicates())

	if err := ctx.Err(); err != nil {
		return err
	}

	step = time.Now()
	cols := normalize.ColumnOrder(names)
	m, err := dataset.Write(ctx, r.opt.OutputPath, cols, set.Entries(), dataset.Options{
		RunID:      r.opt.RunID,
		ShardCount: r.opt.ShardCount,
		Now:        r.opt.Now,
	})
	metrics.RecordStep(r.opt.Job, "write", err, time.Since(step))
	if err != nil {
		return fmt.Errorf("ingest: write: %w", err)
	}
	r.sum.Manifest = m
	r.sum.Columns = cols
	r.sum.Written = m.Rows
	return nil
}

// readFile streams one file through its reader and the normalizer. Only
// cancellation is returned as an error; file-level failures are recorded in
// the result so the run continues.
func (r *run) readFile(ctx context.Context, f source.RawFile) (fileResult, error) {
	res := fileResult{file: f}
	if f.EncodingErr != nil {
		log.Printf("warn: encoding path=%s charset=%s: %v (reading as UTF-8)", f.Path, f.Encoding, f.EncodingErr)
		r.sum.EncodingWarnings.Add(1)
	}

	rd, err := parser.For(f.Format, r.opt.Readers[string(f.Format)])
	if err != nil {
		res.failed = err
		r.sum.FailedFiles.add(fmt.Sprintf("%s: %v", f.Path, err))
		log.Printf("skip: file path=%s: %v", f.Path, err)
		return res, nil
	}

	out := make(chan records.Record, streamBuffer)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for rec := range out {
			res.records = append(res.records, r.norm.Normalize(rec))
		}
	}()

	var skipped atomic.Int64
	serr := rd.Stream(ctx, f, out, func(line int, err error) {
		skipped.Add(1)
		r.sum.CorruptRecords.add(err.Error())
	})
	close(out)
	<-done
	res.skipped = skipped.Load()

	if serr != nil {
		if cerr := ctx.Err(); cerr != nil {
			return res, cerr
		}
		res.failed = serr
		res.records = nil
		r.sum.FailedFiles.add(serr.Error())
		log.Printf("skip: file path=%s format=%s: %v", f.Path, f.Format, serr)
		return res, nil
	}

	for _, rec := range res.records {
		r.fields.Observe(rec)
	}
	r.sum.Read.Add(int64(len(res.records)))
	log.Printf("file: path=%s format=%s encoding=%s loaded=%d skipped=%d", f.Path, f.Format, f.Encoding, len(res.records), res.skipped)
	return res, nil
}

// readPrevious loads the artifact currently at the output path so this run
// merges over it. A missing artifact is not an error.
func (r *run) readPrevious(ctx context.Context) ([]normalize.Record, error) {
	art, err := dataset.Open(r.opt.OutputPath)
	if errors.Is(err, dataset.ErrIncomplete) {
		log.Printf("merge: no previous artifact at %s", r.opt.OutputPath)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ingest: previous artifact: %w", err)
	}

	cols := art.Columns()
	var out []normalize.Record
	err = art.Scan(ctx, 10000, func(rows [][]string) error {
		for _, row := range rows {
			rec := make(records.Record, len(cols))
			for i, c := range cols {
				rec[c] = row[i]
			}
			// Reserved columns are dropped here and recomputed.
			n := r.norm.Normalize(rec)
			r.fields.Observe(n)
			out = append(out, n)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ingest: previous artifact: %w", err)
	}
	r.sum.Previous = int64(len(out))
	log.Printf("merge: previous run=%s rows=%d", art.Manifest.RunID, len(out))
	return out, nil
}
