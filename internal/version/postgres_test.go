package version

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/phylomerge/testutil"
)

// postgresDSNEnvVar names a throwaway database for the sequence round trip.
const postgresDSNEnvVar = "PHYLOMERGE_TEST_POSTGRES_DSN"

func TestOpenPostgres_EmptyDSN(t *testing.T) {
	_, err := OpenPostgres(context.Background(), "", "")
	assert.ErrorContains(t, err, "dsn is empty")
}

func TestOpenPostgres_OpenError(t *testing.T) {
	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })

	var gotDriver string

	sqlOpen = func(driver, _ string) (*sql.DB, error) {
		gotDriver = driver
		return nil, errors.New("open fail")
	}

	_, err := OpenPostgres(context.Background(), "postgres://example/db", "")

	require.ErrorContains(t, err, "open fail")
	assert.Equal(t, "pgx", gotDriver)
}

func TestOpenPostgres_UnreachableServer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := OpenPostgres(ctx, "postgres://127.0.0.1:1/none?connect_timeout=1", "")

	assert.Error(t, err)
}

func TestPostgresSource_Sequence(t *testing.T) {
	dsn := testutil.EnvOrSkip(t, postgresDSNEnvVar)

	ctx := context.Background()

	src, err := OpenPostgres(ctx, dsn, "phylomerge_test_seq")
	require.NoError(t, err)
	t.Cleanup(func() { src.Close() })

	v1, err := src.NextVersion(ctx)
	require.NoError(t, err)
	v2, err := src.NextVersion(ctx)
	require.NoError(t, err)
	assert.Greater(t, v2, v1)

	require.NoError(t, src.Advance(ctx, v2+100))

	v3, err := src.NextVersion(ctx)
	require.NoError(t, err)
	assert.Greater(t, v3, v2+100)
}
