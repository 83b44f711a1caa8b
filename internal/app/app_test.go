package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/verstore/internal/config"
	"github.com/rpattn/verstore/internal/ingestion"
	"github.com/rpattn/verstore/internal/repository"
)

func TestNewMemoryApp(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Driver = config.DriverMemory

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewSQLiteAppWithCache(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	cfg := config.DefaultConfig()
	cfg.Store.Driver = config.DriverSQLite
	cfg.SQLite.Path = filepath.Join(t.TempDir(), "verstore.db")
	cfg.Redis.Enabled = true
	cfg.Redis.Addr = mr.Addr()
	cfg.Ingest.IDField = "Code"

	a, err := New(ctx, cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	_, cached := a.Store.(*repository.CachedVersionStore)
	assert.True(t, cached)

	result, err := a.Ingestion.Ingest(ctx, ingestion.Request{
		FileName: "codes.csv",
		Data:     strings.NewReader("Code,Name\nC1,A\n,B\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	assert.Equal(t, 1, result.Invalid)

	latest, err := a.Store.GetLatest(ctx, "C1")
	require.NoError(t, err)
	assert.Equal(t, 1, latest.VersionNumber)
	assert.True(t, mr.Exists("verstore:latest:C1"))

	logs, err := a.Logs.List(ctx, result.BatchID, 0, 0)
	require.NoError(t, err)
	assert.Len(t, logs, 1)
}

func TestMigrateMemoryIsNoop(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Store.Driver = config.DriverMemory
	assert.NoError(t, Migrate(cfg, nil))
}
