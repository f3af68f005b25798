package persistence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-credauth"
	"github.com/goliatone/go-credauth/persistence"
)

func TestOpen_SQLiteMemory(t *testing.T) {
	ctx := context.Background()

	db, err := persistence.Open(ctx, persistence.DriverSQLite, "file::memory:?cache=shared", persistence.Options{MaxOpenConns: 8})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	assert.Equal(t, 1, db.Stats().MaxOpenConnections, "in memory databases use a single connection")
	assert.NoError(t, persistence.Ping(db)(ctx))

	require.NoError(t, auth.CreateSchema(ctx, db))
	require.NoError(t, auth.CreateSchema(ctx, db), "schema creation is idempotent")

	repo := auth.NewRepositoryManager(db)
	account, err := repo.Accounts().Register(ctx, &auth.Account{
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "digest",
		Active:       true,
	})
	require.NoError(t, err)

	found, err := repo.Accounts().FindByIdentifierTx(ctx, db, "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, account.ID, found.ID)
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := persistence.Open(context.Background(), "mysql", "root@/db", persistence.Options{})
	assert.ErrorContains(t, err, "unsupported storage driver")
}
