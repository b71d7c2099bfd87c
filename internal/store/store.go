// Package store persists study graphs in SQLite. A merge runs inside a single
// transaction: the managed study is loaded, reconciled, stamped and written
// back before commit, so readers never observe a half-merged graph.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite"

	"github.com/tonimelisma/phylomerge/internal/model"
)

const (
	sqlMaxVersion = `SELECT last_version FROM version_counter WHERE id = 1`

	sqlListStudies = `SELECT s.external_id, s.label, s.version,
		(SELECT COUNT(*) FROM otu_sets WHERE study_id = s.id),
		(SELECT COUNT(*) FROM otus WHERE study_id = s.id),
		(SELECT COUNT(*) FROM matrices WHERE study_id = s.id)
		FROM studies s ORDER BY s.label, s.external_id`
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the SQLite database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// StudySummary is one line of the study listing.
type StudySummary struct {
	ExternalID string `json:"id"`
	Label      string `json:"label"`
	Version    int64  `json:"version"`
	OtuSets    int    `json:"otu_sets"`
	Otus       int    `json:"otus"`
	Matrices   int    `json:"matrices"`
}

// Open opens (creating if needed) the database at dbPath and applies any
// pending migrations.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=foreign_keys(ON)&_pragma=busy_timeout(5000)"+
			"&_pragma=journal_size_limit(67108864)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: merges are serialized by the single connection.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("store opened", slog.String("db_path", dbPath))

	return &Store{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// RunInTx runs fn inside a transaction, committing when fn returns nil and
// rolling back otherwise.
func (s *Store) RunInTx(ctx context.Context, fn func(*Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: beginning transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{tx: sqlTx, logger: s.logger}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("store: committing transaction: %w", err)
	}

	return nil
}

// LoadStudy reads the study with the given external identifier.
func (s *Store) LoadStudy(ctx context.Context, externalID string) (*model.Study, error) {
	return loadStudy(ctx, s.db, externalID)
}

// LoadStudyContaining reads the study that owns the entity with the given
// external identifier. The entity may be the study itself.
func (s *Store) LoadStudyContaining(ctx context.Context, externalID string) (*model.Study, error) {
	ref, err := findAnyKind(ctx, s.db, externalID)
	if err != nil {
		return nil, err
	}

	return loadStudy(ctx, s.db, ref.StudyExternalID)
}

// ListStudies returns a summary of every stored study ordered by label.
func (s *Store) ListStudies(ctx context.Context) ([]StudySummary, error) {
	rows, err := s.db.QueryContext(ctx, sqlListStudies)
	if err != nil {
		return nil, fmt.Errorf("store: listing studies: %w", err)
	}
	defer rows.Close()

	var out []StudySummary

	for rows.Next() {
		var sum StudySummary
		if err := rows.Scan(&sum.ExternalID, &sum.Label, &sum.Version, &sum.OtuSets, &sum.Otus, &sum.Matrices); err != nil {
			return nil, fmt.Errorf("store: scanning study summary: %w", err)
		}

		out = append(out, sum)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterating studies: %w", err)
	}

	return out, nil
}

// MaxVersion returns the highest version stamp ever recorded.
func (s *Store) MaxVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := s.db.QueryRowContext(ctx, sqlMaxVersion).Scan(&v); err != nil {
		return 0, fmt.Errorf("store: reading version counter: %w", err)
	}

	return v, nil
}
