package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tonimelisma/phylomerge/internal/config"
	"github.com/tonimelisma/phylomerge/internal/engine"
	"github.com/tonimelisma/phylomerge/internal/store"
	"github.com/tonimelisma/phylomerge/internal/version"
)

// dbDirPermissions keeps the study database private to its owner.
const dbDirPermissions = 0o700

// session owns everything a command needs to talk to the store.
type session struct {
	store    *store.Store
	engine   *engine.Engine
	registry *prometheus.Registry
	pg       *version.PostgresSource
	logger   *slog.Logger
}

// openSession opens the store and builds an engine configured from cc.
// With the Postgres version source the shared sequence is first advanced past
// every stamp already in the local store, so stamps stay monotonic when a
// database is switched over.
func openSession(ctx context.Context, cc *CLIContext) (*session, error) {
	cfg := cc.Cfg

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), dbDirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	st, err := store.Open(ctx, cfg.DBPath, cc.Logger)
	if err != nil {
		return nil, err
	}

	s := &session{
		store:    st,
		registry: prometheus.NewRegistry(),
		logger:   cc.Logger,
	}

	opts := []engine.Option{
		engine.WithWorkers(cfg.MergeWorkers),
		engine.WithMetrics(engine.NewMetrics(s.registry)),
	}

	if cfg.VersionSource == config.VersionSourcePostgres {
		pg, err := openPostgresSource(ctx, st, cfg.PostgresDSN)
		if err != nil {
			st.Close()
			return nil, err
		}

		s.pg = pg
		opts = append(opts, engine.WithVersionSource(pg))
	}

	s.engine = engine.New(st, cc.Logger, opts...)

	return s, nil
}

func openPostgresSource(ctx context.Context, st *store.Store, dsn string) (*version.PostgresSource, error) {
	pg, err := version.OpenPostgres(ctx, dsn, "")
	if err != nil {
		return nil, err
	}

	floor, err := st.MaxVersion(ctx)
	if err != nil {
		pg.Close()
		return nil, err
	}

	if err := pg.Advance(ctx, floor); err != nil {
		pg.Close()
		return nil, err
	}

	return pg, nil
}

// Close releases the session and, when a metrics file was requested, writes
// the metrics gathered during the command.
func (s *session) Close(metricsFile string) error {
	var errs []error

	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, s.registry); err != nil {
			errs = append(errs, fmt.Errorf("writing metrics file: %w", err))
		}
	}

	if s.pg != nil {
		if err := s.pg.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := s.store.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// withSession runs fn against a fresh session and closes it afterwards.
// A close error is reported only when fn itself succeeded.
func withSession(ctx context.Context, cc *CLIContext, fn func(*session) error) (err error) {
	s, err := openSession(ctx, cc)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := s.Close(cc.Flags.MetricsFile); closeErr != nil {
			if err == nil {
				err = closeErr
			} else {
				s.logger.Warn("closing session", slog.String("error", closeErr.Error()))
			}
		}
	}()

	return fn(s)
}
