// Package testutil provides shared helpers for tests that need external
// services. It depends only on stdlib so any package's tests can use it.
package testutil

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

var loadDotEnvOnce sync.Once

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.Trim(strings.TrimSpace(value), "\"'")

		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// EnvOrSkip returns the value of key, consulting the module's .env file
// once, and skips the test when it is unset. Tests against live services
// (a throwaway Postgres database) use it so they run only where configured.
func EnvOrSkip(t testing.TB, key string) string {
	t.Helper()

	loadDotEnvOnce.Do(func() {
		LoadDotEnv(filepath.Join(FindModuleRoot("."), ".env"))
	})

	v := os.Getenv(key)
	if v == "" {
		t.Skipf("%s not set", key)
	}

	return v
}
