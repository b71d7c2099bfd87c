package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidDefaults(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown version source", func(c *Config) { c.VersionSource = "redis" }, "version_source"},
		{"postgres without dsn", func(c *Config) { c.VersionSource = VersionSourcePostgres }, "postgres_dsn"},
		{"workers below min", func(c *Config) { c.MergeWorkers = 0 }, "merge_workers"},
		{"workers above max", func(c *Config) { c.MergeWorkers = 65 }, "merge_workers"},
		{"settle not a duration", func(c *Config) { c.WatchSettle = "soon" }, "watch_settle"},
		{"settle too short", func(c *Config) { c.WatchSettle = "1ms" }, "watch_settle"},
		{"document size garbage", func(c *Config) { c.MaxDocumentSize = "lots" }, "max_document_size"},
		{"document size tiny", func(c *Config) { c.MaxDocumentSize = "10B" }, "max_document_size"},
		{"log level", func(c *Config) { c.LogLevel = "verbose" }, "log_level"},
		{"log format", func(c *Config) { c.LogFormat = "xml" }, "log_format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestValidate_PostgresWithDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VersionSource = VersionSourcePostgres
	cfg.PostgresDSN = "postgres://localhost/phylo"

	assert.NoError(t, Validate(cfg))
}

func TestValidate_UnlimitedDocumentSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxDocumentSize = "0"

	assert.NoError(t, Validate(cfg))
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MergeWorkers = -1
	cfg.LogLevel = "loud"
	cfg.LogFormat = "yaml"

	err := Validate(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "merge_workers")
	assert.Contains(t, err.Error(), "log_level")
	assert.Contains(t, err.Error(), "log_format")
}
