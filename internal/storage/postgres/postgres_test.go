package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"statsidx.io/statsidx/internal/storage"
	"statsidx.io/statsidx/internal/storage/postgres"
	"statsidx.io/statsidx/internal/storage/storagetest"
	"statsidx.io/statsidx/internal/testutil"
)

func openSet(t *testing.T) (storage.Backend, storage.Set) {
	t.Helper()

	ctx := context.Background()
	b := postgres.New(testutil.OpenPGXPool(t, "storage"))
	require.NoError(t, b.Migrate(ctx))
	set, err := b.Open(ctx, testutil.ProductTables)
	require.NoError(t, err)
	return b, set
}

func TestBackendConformance(t *testing.T) {
	testutil.PostgresDSN(t)
	storagetest.Run(t, openSet)
}

func TestOpen_Idempotent(t *testing.T) {
	ctx := context.Background()
	b, _ := openSet(t)

	// Re-running DDL on existing tables is a no-op.
	_, err := b.Open(ctx, testutil.ProductTables)
	require.NoError(t, err)
	require.NoError(t, b.(*postgres.Backend).Migrate(ctx))
	require.Equal(t, storage.DriverPostgres, b.Driver())
}
