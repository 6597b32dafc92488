// Command unify normalizes heterogeneous record files into one deduplicated
// columnar dataset (ingest) and appends that dataset to an analytical store
// (load).
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"unify/internal/config"

	// register every reader and storage backend; config picks which to use.
	_ "unify/internal/parser/all"
	_ "unify/internal/storage/all"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath     string
	verbose        bool
	metricsBackend string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Printf("error: %v", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var g globalFlags

	root := &cobra.Command{
		Use:           "unify",
		Short:         "Normalize record files into a columnar dataset and load it",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.configPath, "config", "", "optional YAML config file")
	root.PersistentFlags().BoolVarP(&g.verbose, "verbose", "v", false, "enable verbose logs")
	root.PersistentFlags().StringVar(&g.metricsBackend, "metrics-backend", "", "metrics backend (none, prometheus, datadog); overrides config")

	root.AddCommand(newIngestCmd(&g), newLoadCmd(&g), newConfigCmd(&g))
	return root
}

// errInvalidConfig is returned when validation finds error-severity issues.
var errInvalidConfig = errors.New("configuration is invalid")

// loadConfig reads, overrides and validates the configuration for stage.
// Issues are printed to stderr; warnings never block.
func loadConfig(g *globalFlags, stage config.Stage, override func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return nil, err
	}
	if g.metricsBackend != "" {
		cfg.Metrics.Backend = g.metricsBackend
	}
	if override != nil {
		override(cfg)
	}

	issues := config.Validate(cfg, stage)
	for _, iss := range issues {
		fmt.Fprintf(os.Stderr, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if config.HasErrors(issues) {
		return nil, errInvalidConfig
	}
	if g.verbose {
		log.Printf("config: %s", cfg)
	}
	return cfg, nil
}
