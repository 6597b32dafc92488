package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"unify/internal/config"
)

func newConfigCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the resolved configuration",
	}

	var stage string
	check := &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := parseStage(stage)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(g, st, nil)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}
	check.Flags().StringVar(&stage, "stage", "all", "settings to require: all, ingest or load")

	cmd.AddCommand(check)
	return cmd
}

func parseStage(s string) (config.Stage, error) {
	switch s {
	case "", "all":
		return config.StageAll, nil
	case "ingest":
		return config.StageIngest, nil
	case "load":
		return config.StageLoad, nil
	}
	return 0, fmt.Errorf("unknown stage %q (want all, ingest or load)", s)
}
