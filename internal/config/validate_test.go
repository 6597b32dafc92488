package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mutate   func(*Config)
		stage    Stage
		wantPath string
		wantSev  IssueSeverity
	}{
		{"empty input", func(c *Config) { c.InputPath = "" }, StageIngest, "input_path", SeverityError},
		{"load ignores input", func(c *Config) { c.InputPath = "" }, StageLoad, "", ""},
		{"ingest ignores destination", func(c *Config) { c.Destination.Kind = "" }, StageIngest, "", ""},
		{"empty kind", func(c *Config) { c.Destination.Kind = "" }, StageLoad, "destination.kind", SeverityError},
		{"unknown kind", func(c *Config) { c.Destination.Kind = "oracle" }, StageLoad, "destination.kind", SeverityWarning},
		{"bad table", func(c *Config) { c.Destination.Table = "Master-Records" }, StageLoad, "destination.table", SeverityError},
		{"zero batch", func(c *Config) { c.Runtime.BatchSize = 0 }, StageAll, "runtime.batch_size", SeverityError},
		{"zero shards", func(c *Config) { c.Runtime.ShardCount = 0 }, StageAll, "runtime.shard_count", SeverityError},
		{"bad policy", func(c *Config) { c.Normalize.EmptyIdentity = "drop" }, StageAll, "normalize.empty_identity", SeverityError},
		{"keep-first", func(c *Config) { c.Normalize.DedupPolicy = "keep-first" }, StageAll, "normalize.dedup_policy", SeverityWarning},
		{"bad synonym", func(c *Config) { c.Normalize.Synonyms = map[string]string{"x": "E Mail"} }, StageAll, "normalize.synonyms.x", SeverityError},
		{"no identity", func(c *Config) { c.Normalize.IdentityFields = nil }, StageAll, "normalize.identity_fields", SeverityError},
		{"unknown metrics", func(c *Config) { c.Metrics.Backend = "graphite" }, StageAll, "metrics.backend", SeverityWarning},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Default()
			tt.mutate(c)
			issues := Validate(c, tt.stage)
			if tt.wantPath == "" {
				assert.Empty(t, issues)
				return
			}
			if assert.Len(t, issues, 1) {
				assert.Equal(t, tt.wantPath, issues[0].Path)
				assert.Equal(t, tt.wantSev, issues[0].Severity)
				assert.Equal(t, tt.wantSev == SeverityError, HasErrors(issues))
			}
		})
	}
}
