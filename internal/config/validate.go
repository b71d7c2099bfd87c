package config

import (
	"errors"
	"fmt"
	"time"
)

// Validation bounds.
const (
	minMergeWorkers = 1
	maxMergeWorkers = 64
	minWatchSettle  = 10 * time.Millisecond
	minDocumentSize = 1024
)

// Validate checks all config values and returns every error found, joined,
// so users can fix the whole file in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateStore(&cfg.StoreConfig)...)
	errs = append(errs, validateMerge(&cfg.MergeConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)

	return errors.Join(errs...)
}

func validateStore(s *StoreConfig) []error {
	var errs []error

	switch s.VersionSource {
	case VersionSourceSQLite:
	case VersionSourcePostgres:
		if s.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("postgres_dsn: required when version_source is %q", VersionSourcePostgres))
		}
	default:
		errs = append(errs, fmt.Errorf("version_source: must be one of %s, %s; got %q",
			VersionSourceSQLite, VersionSourcePostgres, s.VersionSource))
	}

	return errs
}

func validateMerge(m *MergeConfig) []error {
	var errs []error

	if m.MergeWorkers < minMergeWorkers || m.MergeWorkers > maxMergeWorkers {
		errs = append(errs, fmt.Errorf("merge_workers: must be between %d and %d, got %d",
			minMergeWorkers, maxMergeWorkers, m.MergeWorkers))
	}

	if err := validateDuration("watch_settle", m.WatchSettle, minWatchSettle); err != nil {
		errs = append(errs, err)
	}

	n, err := ParseSize(m.MaxDocumentSize)
	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("max_document_size: %w", err))
	case n != 0 && n < minDocumentSize:
		errs = append(errs, fmt.Errorf("max_document_size: must be 0 (unlimited) or >= %d bytes, got %d",
			minDocumentSize, n))
	}

	return errs
}

// validateDuration checks that a duration string is valid and meets a minimum.
func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

// WatchSettleDuration returns watch_settle parsed. Validate must have
// accepted cfg.
func (m *MergeConfig) WatchSettleDuration() time.Duration {
	d, err := time.ParseDuration(m.WatchSettle)
	if err != nil {
		return minWatchSettle
	}

	return d
}

// MaxDocumentBytes returns max_document_size in bytes, 0 meaning unlimited.
func (m *MergeConfig) MaxDocumentBytes() int64 {
	n, err := ParseSize(m.MaxDocumentSize)
	if err != nil {
		return 0
	}

	return n
}
