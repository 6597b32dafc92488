package main

import (
	"github.com/spf13/cobra"

	"unify/internal/config"
	"unify/internal/ingest"
)

func newIngestCmd(g *globalFlags) *cobra.Command {
	var (
		input, output string
		workers       int
		shards        int
		merge         bool
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Read every file under the input directory and write the deduplicated dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			cfg, err := loadConfig(g, config.StageIngest, func(c *config.Config) {
				if flags.Changed("input") {
					c.InputPath = input
				}
				if flags.Changed("output") {
					c.OutputPath = output
				}
				if flags.Changed("workers") {
					c.Runtime.ReaderWorkers = workers
				}
				if flags.Changed("shards") {
					c.Runtime.ShardCount = shards
				}
				if flags.Changed("merge-previous") {
					c.Normalize.MergePrevious = merge
				}
			})
			if err != nil {
				return err
			}
			defer setupMetrics(cfg, g.verbose)()

			opt, err := ingest.OptionsFrom(cfg)
			if err != nil {
				return err
			}
			_, err = ingest.Run(cmd.Context(), opt)
			return err
		},
	}

	cmd.Flags().StringVar(&input, "input", "", "input directory (overrides input_path)")
	cmd.Flags().StringVar(&output, "output", "", "dataset output directory (overrides output_path)")
	cmd.Flags().IntVar(&workers, "workers", 0, "concurrent file readers (overrides reader_workers)")
	cmd.Flags().IntVar(&shards, "shards", 0, "dataset shard count (overrides shard_count)")
	cmd.Flags().BoolVar(&merge, "merge-previous", false, "merge the existing dataset into this run")
	return cmd
}
