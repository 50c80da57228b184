package infrastructure

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statsidx.io/statsidx/internal/config"
	"statsidx.io/statsidx/internal/storage"
	"statsidx.io/statsidx/internal/testutil"
)

func TestOpenStorage_SQLite(t *testing.T) {
	cfg := &config.Config{
		Storage: config.StorageConfig{Driver: storage.DriverSQLite},
		SQLite:  config.SQLiteConfig{Path: filepath.Join(t.TempDir(), "nested", "stats.db")},
	}
	st, err := OpenStorage(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	assert.Nil(t, st.DB)
	assert.Equal(t, storage.DriverSQLite, st.Backend.Driver())
	require.NoError(t, st.Backend.Ping(context.Background()))
}

func TestOpenStorage_UnknownDriver(t *testing.T) {
	_, err := OpenStorage(context.Background(), &config.Config{Storage: config.StorageConfig{Driver: "mysql"}})
	require.Error(t, err)
}

func TestOpenStorage_Postgres(t *testing.T) {
	dsn := testutil.IsolatedPostgresDSN(t, "infra_storage")
	cfg := &config.Config{
		Storage:  config.StorageConfig{Driver: storage.DriverPostgres},
		Database: config.DatabaseConfig{URL: dsn, MaxConns: 4, AutoMigrate: true},
	}
	st, err := OpenStorage(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(st.Close)

	require.NotNil(t, st.DB)
	assert.Equal(t, storage.DriverPostgres, st.Backend.Driver())
}
