package config

// Default values for every setting. An empty db_path is resolved against the
// platform data directory at load time.
const (
	defaultDBPath          = ""
	defaultVersionSource   = VersionSourceSQLite
	defaultMergeWorkers    = 4
	defaultMaxDocumentSize = "64MiB"
	defaultWatchSettle     = "500ms"
	defaultLogLevel        = "info"
	defaultLogFormat       = "auto"
)

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		StoreConfig: StoreConfig{
			DBPath:        defaultDBPath,
			VersionSource: defaultVersionSource,
		},
		MergeConfig: MergeConfig{
			MergeWorkers:    defaultMergeWorkers,
			MaxDocumentSize: defaultMaxDocumentSize,
			WatchSettle:     defaultWatchSettle,
		},
		LoggingConfig: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
