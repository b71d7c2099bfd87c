//go:build e2e

package e2e

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/phylomerge/testutil"
)

var binaryPath string

func TestMain(m *testing.M) {
	tmpDir, err := os.MkdirTemp("", "phylomerge-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tmpDir, "phylomerge")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = testutil.FindModuleRoot("..")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	code := m.Run()

	os.RemoveAll(tmpDir)
	os.Exit(code)
}

const studyDoc = `{
  "label": "Bees",
  "otu_sets": [{
    "label": "taxa",
    "otus": [{"label": "Apis"}, {"label": "Bombus"}]
  }]
}`

// env is an isolated config file and database.
type env struct {
	dir    string
	config string
	db     string
}

func newEnv(t *testing.T) *env {
	t.Helper()

	dir := t.TempDir()

	return &env{dir: dir, config: filepath.Join(dir, "config.toml"), db: filepath.Join(dir, "studies.db")}
}

func (e *env) command(args ...string) *exec.Cmd {
	cmd := exec.Command(binaryPath, append([]string{"--config", e.config, "--db", e.db}, args...)...)
	cmd.Env = append(os.Environ(), "PHYLOMERGE_CONFIG=", "PHYLOMERGE_DB=", "PHYLOMERGE_POSTGRES_DSN=")

	return cmd
}

// run executes the binary and returns its output and exit status.
func (e *env) run(t *testing.T, args ...string) (string, string, int) {
	t.Helper()

	cmd := e.command(args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), stderr.String(), exitErr.ExitCode()
	}

	require.NoError(t, err)

	return stdout.String(), stderr.String(), 0
}

func TestE2E_MergeExitCodes(t *testing.T) {
	e := newEnv(t)

	good := filepath.Join(e.dir, "bees.json")
	require.NoError(t, os.WriteFile(good, []byte(studyDoc), 0o600))

	stdout, stderr, code := e.run(t, "merge", good)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "entities stamped")

	ghost := filepath.Join(e.dir, "ghost.json")
	require.NoError(t, os.WriteFile(ghost, []byte(`{"id": "nope", "label": "Ghost"}`), 0o600))

	_, stderr, code = e.run(t, "merge", ghost)
	assert.Equal(t, 2, code, stderr)

	require.NoError(t, os.WriteFile(e.config, []byte("merge_workers = \"many\"\n"), 0o600))

	_, _, code = e.run(t, "list")
	assert.Equal(t, 1, code)
}

func TestE2E_WatchInbox(t *testing.T) {
	e := newEnv(t)
	inbox := filepath.Join(e.dir, "inbox")
	require.NoError(t, os.WriteFile(e.config, []byte("watch_settle = \"50ms\"\n"), 0o600))

	watch := e.command("watch", inbox)

	var stderr bytes.Buffer
	watch.Stderr = &stderr

	require.NoError(t, watch.Start())

	exited := make(chan error, 1)
	go func() { exited <- watch.Wait() }()

	t.Cleanup(func() {
		watch.Process.Kill()
	})

	pidFile := filepath.Join(inbox, ".phylomerge-watch.pid")
	require.Eventually(t, func() bool {
		_, err := os.Stat(pidFile)
		return err == nil
	}, 10*time.Second, 50*time.Millisecond, "watch never started")

	// A second watch on the same inbox is refused.
	_, secondErr, code := e.run(t, "watch", inbox)
	assert.Equal(t, 1, code)
	assert.Contains(t, secondErr, "already running")

	require.NoError(t, os.WriteFile(filepath.Join(inbox, "bees.json"), []byte(studyDoc), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(inbox, "broken.json"), []byte(`{"label":`), 0o600))

	require.Eventually(t, func() bool {
		_, doneErr := os.Stat(filepath.Join(inbox, "done", "bees.json"))
		_, failErr := os.Stat(filepath.Join(inbox, "failed", "broken.json"))

		return doneErr == nil && failErr == nil
	}, 10*time.Second, 50*time.Millisecond, "documents never filed")

	_, reloadErr, code := e.run(t, "reload", inbox)
	assert.Equal(t, 0, code, reloadErr)

	require.NoError(t, watch.Process.Signal(syscall.SIGTERM))

	select {
	case err := <-exited:
		assert.NoError(t, err, stderr.String())
	case <-time.After(10 * time.Second):
		t.Fatal("watch did not exit after SIGTERM")
	}

	assert.NoFileExists(t, pidFile)

	stdout, _, code := e.run(t, "list")
	require.Equal(t, 0, code)
	assert.Contains(t, stdout, "Bees")
}
