package store_test

import (
	"context"
	"os"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"

	"github.com/bancapix/server/internal/db/postgres"
	"github.com/bancapix/server/internal/store"
	"github.com/bancapix/server/internal/store/storetest"
)

// Нужна пустая тестовая база: TEST_DATABASE_URL=postgres://...
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL не задан")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, postgres.Migrate(ctx, pool, store.Migrations))

	storetest.Run(t, func(t *testing.T) store.Store {
		_, err := pool.Exec(ctx, `TRUNCATE deposits, payouts, ledger_entries`)
		require.NoError(t, err)
		return store.NewPostgres(pool)
	})
}
