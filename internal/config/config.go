// Package config defines the configuration model shared by the ingest and
// load runs. Every component receives the values it needs from a Config that
// is built once at startup; nothing reads the environment after Load returns.
//
// Values are resolved in this order, later sources winning:
//
//  1. struct-tag defaults (`default:"..."`)
//  2. an optional YAML file (--config)
//  3. a .env file in the working directory, if present
//  4. process environment (`env:"..."`, with `envAlt` fallbacks)
//  5. CLI flags (applied by cmd/unify)
//
// Example (trimmed):
//
//	input_path: data_raw
//	output_path: data_processed/master_dataset
//	destination:
//	  kind: clickhouse
//	  host: localhost
//	  table: master_records
//	runtime:
//	  batch_size: 50000
//	normalize:
//	  synonyms: { cust_email: email }
//	readers:
//	  xml: { record_tag: row }
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the top-level configuration for both entry points.
type Config struct {
	// Job labels metrics and log lines for this deployment.
	Job string `yaml:"job" env:"JOB" default:"unify"`

	// InputPath is the directory scanned for raw files.
	InputPath string `yaml:"input_path" env:"INPUT_PATH" default:"data_raw"`

	// OutputPath is the directory that holds the dataset artifact.
	OutputPath string `yaml:"output_path" env:"OUTPUT_PATH" default:"data_processed/master_dataset"`

	Destination Destination        `yaml:"destination"`
	Runtime     Runtime            `yaml:"runtime"`
	Normalize   Normalize          `yaml:"normalize"`
	Metrics     Metrics            `yaml:"metrics"`
	Readers     map[string]Options `yaml:"readers"`
}

// Destination holds the connection parameters of the analytical store.
type Destination struct {
	// Kind selects the storage backend: clickhouse, postgres, mssql, mysql, sqlite.
	Kind string `yaml:"kind" env:"DESTINATION_KIND" default:"clickhouse"`

	Host     string `yaml:"host" env:"DESTINATION_HOST" envAlt:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `yaml:"port" env:"DESTINATION_PORT" envAlt:"CLICKHOUSE_PORT"`
	User     string `yaml:"user" env:"DESTINATION_USER" envAlt:"CLICKHOUSE_USER" default:"default"`
	Password string `yaml:"password" env:"DESTINATION_PASSWORD" envAlt:"CLICKHOUSE_PASSWORD"`
	Secure   bool   `yaml:"secure" env:"DESTINATION_SECURE" envAlt:"CLICKHOUSE_SECURE" default:"true"`

	// Database is the schema/database name; for sqlite it is the database file.
	Database string `yaml:"database" env:"DESTINATION_DATABASE" default:"default"`

	// DSN, when set, is passed to the driver as-is and overrides the
	// individual connection fields.
	DSN string `yaml:"dsn" env:"DESTINATION_DSN"`

	// Table is the destination table that accumulates normalized records.
	Table string `yaml:"table" env:"DESTINATION_TABLE" default:"master_records"`
}

// Runtime controls concurrency, batching and retry behavior.
type Runtime struct {
	BatchSize     int           `yaml:"batch_size" env:"BATCH_SIZE" default:"50000"`
	ReaderWorkers int           `yaml:"reader_workers" env:"READER_WORKERS" default:"4"`
	LoaderWorkers int           `yaml:"loader_workers" env:"LOADER_WORKERS" default:"1"`
	MaxRetries    int           `yaml:"max_retries" env:"MAX_RETRIES" default:"3"`
	RetryBackoff  time.Duration `yaml:"retry_backoff" env:"RETRY_BACKOFF" default:"500ms"`
	ShardCount    int           `yaml:"shard_count" env:"SHARD_COUNT" default:"1"`
}

// Normalize configures field canonicalization, identity and dedup.
type Normalize struct {
	IdentityFields []string `yaml:"identity_fields" env:"IDENTITY_FIELDS" default:"name,email,phone,dob"`

	// EmptyIdentity decides what happens to records whose identity fields are
	// all empty: "reject" skips them, "collapse" merges them into one slot.
	EmptyIdentity string `yaml:"empty_identity" env:"EMPTY_IDENTITY" default:"reject"`

	// DedupPolicy is "keep-last" (default) or "keep-first".
	DedupPolicy string `yaml:"dedup_policy" env:"DEDUP_POLICY" default:"keep-last"`

	// MergePrevious folds the existing artifact at OutputPath into the merge.
	MergePrevious bool `yaml:"merge_previous" env:"MERGE_PREVIOUS"`

	FlattenSeparator string `yaml:"flatten_separator" env:"FLATTEN_SEPARATOR" default:"_"`

	// Synonyms extends the built-in synonym -> canonical field table.
	Synonyms map[string]string `yaml:"synonyms"`
}

// Metrics selects the metrics backend.
type Metrics struct {
	Backend        string `yaml:"backend" env:"METRICS_BACKEND" default:"none"`
	PushgatewayURL string `yaml:"pushgateway_url" env:"PUSHGATEWAY_URL" default:"http://localhost:9091"`
	StatsdAddr     string `yaml:"statsd_addr" env:"STATSD_ADDR" default:"127.0.0.1:8125"`
}

// ReaderOptions returns the options block for a format, never nil.
func (c *Config) ReaderOptions(format string) Options {
	if o, ok := c.Readers[format]; ok && o != nil {
		return o
	}
	return Options{}
}

// String returns a representation safe for logs; the password is masked.
func (c *Config) String() string {
	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Input: %q, Output: %q, ", c.InputPath, c.OutputPath)
	fmt.Fprintf(&b, "Destination: {Kind: %s, Host: %s, Port: %d, User: %s, Password: [MASKED], Secure: %v, Database: %s, Table: %s}, ",
		c.Destination.Kind, c.Destination.Host, c.Destination.Port, c.Destination.User,
		c.Destination.Secure, c.Destination.Database, c.Destination.Table)
	fmt.Fprintf(&b, "Runtime: {BatchSize: %d, ReaderWorkers: %d, LoaderWorkers: %d, MaxRetries: %d, RetryBackoff: %s, ShardCount: %d}",
		c.Runtime.BatchSize, c.Runtime.ReaderWorkers, c.Runtime.LoaderWorkers,
		c.Runtime.MaxRetries, c.Runtime.RetryBackoff, c.Runtime.ShardCount)
	b.WriteString("}")
	return b.String()
}

// Options is a small helper to fetch typed values from arbitrary maps
// decoded from YAML without introducing a schema for every reader. It
// performs only minimal coercion and returns the provided default when a key
// is absent or of an unexpected type.
type Options map[string]any

// String returns the string value for key or def if key is missing or not a string.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def if key is missing or not a bool.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		if b, ok := v.(bool); ok {
			return b
		}
	}
	return def
}

// Int returns the int value for key or def. YAML and JSON decoders produce
// different numeric types, so the common ones are accepted.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		case uint64:
			return int(n)
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. Escaped tabs ("\t" written literally) are understood.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			if s == `\t` {
				return '\t'
			}
			return []rune(s)[0]
		}
	}
	return def
}

// StringSlice returns a []string for key when the value is a list of strings.
// Returns nil when the key is missing or the value is not a list.
func (o Options) StringSlice(key string) []string {
	if v, ok := o[key]; ok {
		switch vv := v.(type) {
		case []any:
			out := make([]string, 0, len(vv))
			for _, x := range vv {
				if s, ok := x.(string); ok {
					out = append(out, s)
				}
			}
			return out
		case []string:
			return vv
		}
	}
	return nil
}
