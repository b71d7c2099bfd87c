// Package config implements TOML configuration loading, validation, and
// override resolution for phylomerge.
//
// The config file uses flat top-level keys. Settings are grouped by concern
// into embedded structs so that callers can reach them through promoted
// fields (cfg.DBPath, cfg.MergeWorkers) while the code keeps its sections
// apart.
package config

// Version sources a deployment can stamp merges from.
const (
	VersionSourceSQLite   = "sqlite"
	VersionSourcePostgres = "postgres"
)

// Config is the top-level configuration.
type Config struct {
	StoreConfig
	MergeConfig
	LoggingConfig
}

// StoreConfig controls where studies are persisted and where version stamps
// come from. The DSN is kept out of JSON output since it usually carries a
// password.
type StoreConfig struct {
	DBPath        string `toml:"db_path" json:"db_path"`
	VersionSource string `toml:"version_source" json:"version_source"`
	PostgresDSN   string `toml:"postgres_dsn" json:"-"`
}

// MergeConfig controls batch merges and the watch inbox.
type MergeConfig struct {
	MergeWorkers    int    `toml:"merge_workers" json:"merge_workers"`
	MaxDocumentSize string `toml:"max_document_size" json:"max_document_size"`
	WatchSettle     string `toml:"watch_settle" json:"watch_settle"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" json:"log_level"`
	LogFormat string `toml:"log_format" json:"log_format"`
}

// CLIOverrides holds values from command-line flags. Pointer fields
// distinguish "not specified" (nil) from the zero value.
type CLIOverrides struct {
	ConfigPath string
	DBPath     *string
	LogLevel   *string
}
