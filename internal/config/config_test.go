package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_AllFieldsPopulated(t *testing.T) {
	cfg := DefaultConfig()
	require.NotNil(t, cfg)

	assert.Empty(t, cfg.DBPath)
	assert.Equal(t, VersionSourceSQLite, cfg.VersionSource)
	assert.Empty(t, cfg.PostgresDSN)

	assert.Equal(t, 4, cfg.MergeWorkers)
	assert.Equal(t, "64MiB", cfg.MaxDocumentSize)
	assert.Equal(t, "500ms", cfg.WatchSettle)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "auto", cfg.LogFormat)
}

func TestDefaultConfig_Validates(t *testing.T) {
	assert.NoError(t, Validate(DefaultConfig()))
}

func TestDefaultConfig_ReturnsFreshCopies(t *testing.T) {
	a, b := DefaultConfig(), DefaultConfig()
	a.MergeWorkers = 9

	assert.Equal(t, defaultMergeWorkers, b.MergeWorkers)
}

func TestMergeConfig_Accessors(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, int64(64*1024*1024), cfg.MaxDocumentBytes())
	assert.Equal(t, "500ms", cfg.WatchSettleDuration().String())

	cfg.MaxDocumentSize = "0"
	assert.Zero(t, cfg.MaxDocumentBytes())
}
