package config

import (
	"fmt"
	"regexp"
	"strings"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError indicates a configuration error that should block execution.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is surfaced to users but does not block execution.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding.
//
// Path is a dotted path into the config (e.g. "destination.kind",
// "normalize.synonyms.cust_mail").
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

// Error implements the error interface so an Issue can be treated as a single
// error in contexts that expect error.
func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue has error severity.
func HasErrors(issues []Issue) bool {
	for _, iss := range issues {
		if iss.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Stage selects which settings must be present.
type Stage int

const (
	StageAll Stage = iota
	StageIngest
	StageLoad
)

var fieldNameRE = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

var separatorRE = regexp.MustCompile(`^[a-z0-9_]+$`)

// Validate performs static checks over c without mutating it.
func Validate(c *Config, stage Stage) []Issue {
	var issues []Issue

	if strings.TrimSpace(c.Job) == "" {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "job",
			Message:  "job is empty; metrics will be unlabeled",
		})
	}
	if stage != StageLoad && strings.TrimSpace(c.InputPath) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "input_path",
			Message:  "input_path must not be empty",
		})
	}
	if strings.TrimSpace(c.OutputPath) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "output_path",
			Message:  "output_path must not be empty",
		})
	}
	if stage != StageIngest {
		issues = append(issues, validateDestination(c.Destination)...)
	}
	issues = append(issues, validateRuntime(c.Runtime)...)
	issues = append(issues, validateNormalize(c.Normalize)...)
	issues = append(issues, validateMetrics(c.Metrics)...)
	return issues
}

func validateDestination(d Destination) []Issue {
	var issues []Issue

	switch d.Kind {
	case "clickhouse", "postgres", "mssql", "mysql", "sqlite":
	case "":
		return append(issues, Issue{
			Severity: SeverityError,
			Path:     "destination.kind",
			Message:  "destination.kind must not be empty",
		})
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "destination.kind",
			Message:  fmt.Sprintf("unknown destination kind %q; ensure a matching backend is registered", d.Kind),
		})
	}

	if d.Kind != "sqlite" && strings.TrimSpace(d.Host) == "" {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "destination.host",
			Message:  "destination.host must not be empty",
		})
	}
	if d.Port < 0 || d.Port > 65535 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "destination.port",
			Message:  fmt.Sprintf("port %d must be 0-65535 (0 selects the driver default)", d.Port),
		})
	}
	if !fieldNameRE.MatchString(d.Table) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "destination.table",
			Message:  fmt.Sprintf("table %q must match %s", d.Table, fieldNameRE),
		})
	}
	return issues
}

func validateRuntime(r Runtime) []Issue {
	var issues []Issue

	if r.BatchSize <= 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.batch_size",
			Message:  fmt.Sprintf("batch_size=%d must be positive", r.BatchSize),
		})
	}
	if r.ReaderWorkers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.reader_workers",
			Message:  "reader_workers must not be negative",
		})
	}
	if r.LoaderWorkers < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.loader_workers",
			Message:  "loader_workers must not be negative",
		})
	}
	if r.MaxRetries < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.max_retries",
			Message:  "max_retries must not be negative",
		})
	}
	if r.RetryBackoff < 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.retry_backoff",
			Message:  "retry_backoff must not be negative",
		})
	}
	if r.ShardCount < 1 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "runtime.shard_count",
			Message:  "shard_count must be at least 1",
		})
	}
	return issues
}

func validateNormalize(n Normalize) []Issue {
	var issues []Issue

	if len(n.IdentityFields) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "normalize.identity_fields",
			Message:  "at least one identity field is required",
		})
	}
	for i, f := range n.IdentityFields {
		if !fieldNameRE.MatchString(f) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     fmt.Sprintf("normalize.identity_fields[%d]", i),
				Message:  fmt.Sprintf("%q is not a canonical field name", f),
			})
		}
	}
	switch n.EmptyIdentity {
	case "reject", "collapse":
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "normalize.empty_identity",
			Message:  fmt.Sprintf("empty_identity %q must be reject or collapse", n.EmptyIdentity),
		})
	}
	switch n.DedupPolicy {
	case "keep-last":
	case "keep-first":
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "normalize.dedup_policy",
			Message:  "keep-first discards newer data for an existing identity",
		})
	default:
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "normalize.dedup_policy",
			Message:  fmt.Sprintf("dedup_policy %q must be keep-last or keep-first", n.DedupPolicy),
		})
	}
	if n.FlattenSeparator == "" || !separatorRE.MatchString(n.FlattenSeparator) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Path:     "normalize.flatten_separator",
			Message:  fmt.Sprintf("flatten_separator %q must be non-empty and use only a-z, 0-9 or _", n.FlattenSeparator),
		})
	}
	for from, to := range n.Synonyms {
		if !fieldNameRE.MatchString(to) {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "normalize.synonyms." + from,
				Message:  fmt.Sprintf("target %q is not a canonical field name", to),
			})
		}
	}
	return issues
}

func validateMetrics(m Metrics) []Issue {
	var issues []Issue

	switch m.Backend {
	case "", "none":
	case "prometheus", "pushgateway":
		if strings.TrimSpace(m.PushgatewayURL) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.pushgateway_url",
				Message:  "prometheus backend requires pushgateway_url",
			})
		}
	case "datadog", "dogstatsd":
		if strings.TrimSpace(m.StatsdAddr) == "" {
			issues = append(issues, Issue{
				Severity: SeverityError,
				Path:     "metrics.statsd_addr",
				Message:  "datadog backend requires statsd_addr",
			})
		}
	default:
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Path:     "metrics.backend",
			Message:  fmt.Sprintf("unknown metrics backend %q; metrics will be disabled", m.Backend),
		})
	}
	return issues
}
