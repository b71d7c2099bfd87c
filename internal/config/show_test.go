package config

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderEffective_Defaults(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DBPath = "/data/studies.db"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, "/etc/phylomerge/config.toml", &buf))

	out := buf.String()
	assert.Contains(t, out, "/etc/phylomerge/config.toml")
	assert.Contains(t, out, "[store]")
	assert.Contains(t, out, "[merge]")
	assert.Contains(t, out, "[logging]")
	assert.Contains(t, out, `"/data/studies.db"`)
	assert.Contains(t, out, "merge_workers     = 4")
	assert.NotContains(t, out, "postgres_dsn")
}

func TestRenderEffective_MasksDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.VersionSource = VersionSourcePostgres
	cfg.PostgresDSN = "postgres://user:secret@db/phylo"

	var buf bytes.Buffer
	require.NoError(t, RenderEffective(cfg, "config.toml", &buf))

	assert.Contains(t, buf.String(), "postgres_dsn")
	assert.NotContains(t, buf.String(), "secret")
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestRenderEffective_WriteError(t *testing.T) {
	err := RenderEffective(DefaultConfig(), "config.toml", failingWriter{})
	assert.EqualError(t, err, "disk full")
}
