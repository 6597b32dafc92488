package main

import (
	"log"

	"unify/internal/config"
	"unify/internal/metrics"
	"unify/internal/metrics/datadog"
	"unify/internal/metrics/prompush"
)

// setupMetrics installs the configured backend and returns the flush to run
// at the end of the command. An unusable backend is logged and metrics stay
// disabled.
func setupMetrics(cfg *config.Config, verbose bool) func() {
	var (
		b   metrics.Backend
		err error
	)
	switch cfg.Metrics.Backend {
	case "prometheus", "pushgateway":
		b, err = prompush.NewBackend(cfg.Job, cfg.Metrics.PushgatewayURL)
		if err == nil {
			log.Printf("metrics: backend=prometheus url=%s job=%s", cfg.Metrics.PushgatewayURL, cfg.Job)
		}
	case "datadog", "dogstatsd":
		b, err = datadog.NewBackend(datadog.Config{
			Addr:       cfg.Metrics.StatsdAddr,
			Namespace:  "unify.",
			GlobalTags: []string{"job:" + cfg.Job},
		})
		if err == nil {
			log.Printf("metrics: backend=datadog addr=%s job=%s", cfg.Metrics.StatsdAddr, cfg.Job)
		}
	case "", "none":
		if verbose {
			log.Printf("metrics: disabled")
		}
		return func() {}
	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", cfg.Metrics.Backend)
		return func() {}
	}
	if err != nil {
		log.Printf("metrics: init %s: %v; using nop", cfg.Metrics.Backend, err)
		return func() {}
	}

	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			log.Printf("metrics: flush error: %v", err)
		}
	}
}
