package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg, err := decodeFile(path)
	if err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// decodeFile parses path over the defaults and rejects unknown keys. The
// result is not validated: settings may still be completed by overrides.
func decodeFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
// It returns the validated config together with the config file path it
// was read from (which may not exist).
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, string, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	// Validated once below, after every layer is applied.
	cfg := DefaultConfig()

	if _, err := os.Stat(cfgPath); !errors.Is(err, os.ErrNotExist) {
		decoded, err := decodeFile(cfgPath)
		if err != nil {
			return nil, cfgPath, err
		}

		cfg = decoded
	}

	if env.DBPath != "" {
		cfg.DBPath = env.DBPath
	}

	if env.PostgresDSN != "" {
		cfg.PostgresDSN = env.PostgresDSN
	}

	if cli.DBPath != nil {
		cfg.DBPath = *cli.DBPath
	}

	if cli.LogLevel != nil {
		cfg.LogLevel = *cli.LogLevel
	}

	cfg.DBPath = resolveDBPath(cfg.DBPath)

	if err := Validate(cfg); err != nil {
		return nil, cfgPath, fmt.Errorf("config validation: %w", err)
	}

	return cfg, cfgPath, nil
}

// resolveDBPath fills in the platform default and expands a leading "~/".
func resolveDBPath(path string) string {
	if path == "" {
		return DefaultDBPath()
	}

	return expandTilde(path)
}

func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, path[2:])
}
