package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(`# comment
PHYLOMERGE_TESTUTIL_A="quoted"
PHYLOMERGE_TESTUTIL_B = plain
not a pair
PHYLOMERGE_TESTUTIL_C=from-file
`), 0o600))

	t.Setenv("PHYLOMERGE_TESTUTIL_A", "")
	t.Setenv("PHYLOMERGE_TESTUTIL_B", "")
	t.Setenv("PHYLOMERGE_TESTUTIL_C", "from-env")

	LoadDotEnv(path)

	assert.Equal(t, "quoted", os.Getenv("PHYLOMERGE_TESTUTIL_A"))
	assert.Equal(t, "plain", os.Getenv("PHYLOMERGE_TESTUTIL_B"))
	assert.Equal(t, "from-env", os.Getenv("PHYLOMERGE_TESTUTIL_C"))
}

func TestLoadDotEnv_MissingFile(t *testing.T) {
	LoadDotEnv(filepath.Join(t.TempDir(), "missing.env"))
}

func TestFindModuleRoot(t *testing.T) {
	root := FindModuleRoot("")
	require.NotEmpty(t, root)
	assert.FileExists(t, filepath.Join(root, "go.mod"))
}

func TestEnvOrSkip(t *testing.T) {
	t.Setenv("PHYLOMERGE_TESTUTIL_SET", "v")
	assert.Equal(t, "v", EnvOrSkip(t, "PHYLOMERGE_TESTUTIL_SET"))
}
