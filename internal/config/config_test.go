package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, "belgian_macro.db", cfg.Store.DBPath)
	assert.Equal(t, 30*time.Second, cfg.HTTP.Timeout)
	assert.Equal(t, 2.0, cfg.HTTP.RateLimitPerSec)
	assert.Empty(t, cfg.Catalog.Path)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MACRODB_DB_PATH", "/var/lib/macro.db")
	t.Setenv("MACRODB_LOG_LEVEL", "debug")
	t.Setenv("MACRODB_HTTP_TIMEOUT", "5s")
	t.Setenv("MACRODB_HTTP_RATE_LIMIT_PER_SEC", "0.5")
	t.Setenv("MACRODB_CATALOG_PATH", "catalog.yaml")
	t.Setenv("MACRODB_METRICS_FILE", "/tmp/macrodb.prom")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/macro.db", cfg.Store.DBPath)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, "/tmp/macrodb.prom", cfg.App.MetricsFile)
	assert.Equal(t, "catalog.yaml", cfg.Catalog.Path)

	client := cfg.HTTP.Client()
	assert.Equal(t, 5*time.Second, client.Timeout)
	assert.Equal(t, 0.5, client.RateLimitPerSec)
	assert.Equal(t, "macrodb/0.1", client.UserAgent)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	t.Setenv("MACRODB_HTTP_TIMEOUT", "soon")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadDotEnvFile(t *testing.T) {
	// Registered so the variable set by the file is removed after the test.
	t.Setenv("MACRODB_EXPORT_DIR", "")
	require.NoError(t, os.Unsetenv("MACRODB_EXPORT_DIR"))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# local overrides\nMACRODB_EXPORT_DIR=site/data\n"), 0o600))

	cfg, err := load(path)
	require.NoError(t, err)
	assert.Equal(t, "site/data", cfg.App.ExportDir)
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	_, err := load(filepath.Join(t.TempDir(), ".env"))
	assert.NoError(t, err)
}

func TestLoadRejectsMalformedDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MACRODB-LOG-LEVEL=debug\n"), 0o600))

	_, err := load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), path)
}
