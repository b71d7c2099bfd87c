package version

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// DefaultSequence names the Postgres sequence backing PostgresSource.
const DefaultSequence = "phylomerge_version_seq"

const pgxDriver = "pgx"

var sqlOpen = sql.Open

// PostgresSource allocates stamps from a Postgres sequence, so several
// processes can share one stamp space. Sequences are not transactional:
// stamps drawn by a merge that later rolls back leave gaps.
type PostgresSource struct {
	db       *sql.DB
	sequence string
}

// OpenPostgres connects to dsn and creates the sequence if needed. An empty
// sequence name selects DefaultSequence.
func OpenPostgres(ctx context.Context, dsn, sequence string) (*PostgresSource, error) {
	if dsn == "" {
		return nil, errors.New("version: postgres dsn is empty")
	}

	if sequence == "" {
		sequence = DefaultSequence
	}

	db, err := sqlOpen(pgxDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("version: open postgres: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("version: ping postgres: %w", err)
	}

	ident := pgx.Identifier{sequence}.Sanitize()
	if _, err := db.ExecContext(ctx, "CREATE SEQUENCE IF NOT EXISTS "+ident+" AS BIGINT"); err != nil {
		db.Close()
		return nil, fmt.Errorf("version: create sequence %s: %w", sequence, err)
	}

	return &PostgresSource{db: db, sequence: ident}, nil
}

// NextVersion draws the next value of the sequence.
func (p *PostgresSource) NextVersion(ctx context.Context) (int64, error) {
	var v int64
	if err := p.db.QueryRowContext(ctx, "SELECT nextval($1::regclass)", p.sequence).Scan(&v); err != nil {
		return 0, fmt.Errorf("version: nextval: %w", err)
	}

	return v, nil
}

// Advance moves the sequence forward so the next stamp exceeds floor. It is
// used when switching an existing database over to the shared sequence.
func (p *PostgresSource) Advance(ctx context.Context, floor int64) error {
	if floor <= 0 {
		return nil
	}

	_, err := p.db.ExecContext(ctx,
		"SELECT setval($1::regclass, $2) WHERE $2 > (SELECT last_value FROM "+p.sequence+")",
		p.sequence, floor)
	if err != nil {
		return fmt.Errorf("version: advance sequence: %w", err)
	}

	return nil
}

// Close releases the connection pool.
func (p *PostgresSource) Close() error {
	return p.db.Close()
}
