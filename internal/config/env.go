package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig      = "PHYLOMERGE_CONFIG"
	EnvDB          = "PHYLOMERGE_DB"
	EnvPostgresDSN = "PHYLOMERGE_POSTGRES_DSN"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath  string // PHYLOMERGE_CONFIG: override config file path
	DBPath      string // PHYLOMERGE_DB: database file override
	PostgresDSN string // PHYLOMERGE_POSTGRES_DSN: keeps credentials out of the config file
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:  os.Getenv(EnvConfig),
		DBPath:      os.Getenv(EnvDB),
		PostgresDSN: os.Getenv(EnvPostgresDSN),
	}
}
