package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"unify/internal/config"
	"unify/internal/dataset"
	"unify/internal/loader"
	"unify/internal/metrics"
	"unify/internal/schemasync"
	"unify/internal/storage"
)

func newLoadCmd(g *globalFlags) *cobra.Command {
	var (
		output    string
		table     string
		batchSize int
		workers   int
	)

	cmd := &cobra.Command{
		Use:   "load",
		Short: "Append the dataset at the output path to the destination table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			cfg, err := loadConfig(g, config.StageLoad, func(c *config.Config) {
				if flags.Changed("output") {
					c.OutputPath = output
				}
				if flags.Changed("table") {
					c.Destination.Table = table
				}
				if flags.Changed("batch-size") {
					c.Runtime.BatchSize = batchSize
				}
				if flags.Changed("workers") {
					c.Runtime.LoaderWorkers = workers
				}
			})
			if err != nil {
				return err
			}
			defer setupMetrics(cfg, g.verbose)()

			start := time.Now()
			err = runLoad(cmd.Context(), cfg)
			metrics.RecordStep(cfg.Job, "load", err, time.Since(start))
			return err
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "dataset directory or root of several (overrides output_path)")
	cmd.Flags().StringVar(&table, "table", "", "destination table (overrides destination.table)")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows per insert chunk (overrides batch_size)")
	cmd.Flags().IntVar(&workers, "workers", 0, "chunk inserts in flight (overrides loader_workers)")
	return cmd
}

func storageConfig(d config.Destination) storage.Config {
	return storage.Config{
		Kind:     d.Kind,
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		Secure:   d.Secure,
		Database: d.Database,
		Table:    d.Table,
		DSN:      d.DSN,
	}
}

// runLoad syncs the schema and loads every complete artifact under the
// output path, oldest name first. A schema failure stops before any row is
// inserted for that artifact.
func runLoad(ctx context.Context, cfg *config.Config) error {
	arts, err := dataset.Discover(cfg.OutputPath)
	if err != nil {
		return err
	}

	repo, err := storage.New(ctx, storageConfig(cfg.Destination))
	if err != nil {
		return fmt.Errorf("load: connect %s: %w", cfg.Destination.Kind, err)
	}
	defer repo.Close()

	log.Printf("load: kind=%s table=%s artifacts=%d batch_size=%d workers=%d",
		cfg.Destination.Kind, cfg.Destination.Table, len(arts), cfg.Runtime.BatchSize, cfg.Runtime.LoaderWorkers)

	var total loader.Result
	for _, art := range arts {
		step := time.Now()
		_, err := schemasync.Sync(ctx, repo, cfg.Destination.Table, loader.Columns(art.Columns()))
		metrics.RecordStep(cfg.Job, "schema", err, time.Since(step))
		if err != nil {
			return err
		}

		log.Printf("load: artifact dir=%s run=%s rows=%d", art.Dir, art.Manifest.RunID, art.Rows())
		res, err := loader.Load(ctx, repo, art, loader.Options{
			BatchSize:  cfg.Runtime.BatchSize,
			Workers:    cfg.Runtime.LoaderWorkers,
			MaxRetries: cfg.Runtime.MaxRetries,
			Backoff:    cfg.Runtime.RetryBackoff,
		})
		total.Chunks += res.Chunks
		total.InsertedRows += res.InsertedRows
		total.Retries += res.Retries
		metrics.RecordRow(cfg.Job, metrics.KindInserted, res.InsertedRows)
		metrics.RecordBatches(cfg.Job, int64(res.CommittedChunks))
		if err != nil {
			log.Printf("summary: artifact=%s committed_rows=%d inserted=%d of=%d", art.Dir, res.CommittedRows, res.InsertedRows, art.Rows())
			return fmt.Errorf("load %s: %w", art.Dir, err)
		}
	}

	log.Printf("summary: artifacts=%d chunks=%d inserted=%d retries=%d", len(arts), total.Chunks, total.InsertedRows, total.Retries)
	return nil
}
