package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated summary
// to w. This powers "config show", giving visibility into the values left
// after all four override layers have been applied. The Postgres DSN is
// masked because it usually carries a password.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", path)

	ew.printf("[store]\n")
	ew.printf("  db_path        = %q\n", cfg.DBPath)
	ew.printf("  version_source = %q\n", cfg.VersionSource)

	if cfg.PostgresDSN != "" {
		ew.printf("  postgres_dsn   = %q\n", "<set>")
	}

	ew.printf("\n[merge]\n")
	ew.printf("  merge_workers     = %d\n", cfg.MergeWorkers)
	ew.printf("  max_document_size = %q\n", cfg.MaxDocumentSize)
	ew.printf("  watch_settle      = %q\n", cfg.WatchSettle)

	ew.printf("\n[logging]\n")
	ew.printf("  log_level  = %q\n", cfg.LogLevel)
	ew.printf("  log_format = %q\n", cfg.LogFormat)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
