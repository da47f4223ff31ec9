package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, contents string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o600))

	return path
}

func TestLoadWithFile_EmptyPathFallsBackToLoad(t *testing.T) {
	t.Setenv("DEPLOY_QUEUE_DATABASE_URL", "postgres://env-only/db")

	cfg, err := LoadWithFile("")
	require.NoError(t, err)
	assert.Equal(t, "postgres://env-only/db", cfg.DatabaseURL())
}

func TestLoadWithFile_FileValuesApplyWhenEnvUnset(t *testing.T) {
	path := writeYAML(t, `
database:
  url: postgres://file/db
  max_open_conns: 25
log_level: debug
`)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://file/db", cfg.DatabaseURL())
	assert.Equal(t, 25, cfg.MaxOpenConns)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, defaultMaxIdleConns, cfg.MaxIdleConns, "fields absent from the file keep the built-in default")
}

func TestLoadWithFile_EnvOverridesFile(t *testing.T) {
	path := writeYAML(t, `
database:
  url: postgres://file/db
log_level: debug
`)

	t.Setenv("DEPLOY_QUEUE_DATABASE_URL", "postgres://env/db")
	t.Setenv("DEPLOY_QUEUE_LOG_LEVEL", "warn")

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres://env/db", cfg.DatabaseURL(), "env var must win over file")
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadWithFile_DurationFieldsParse(t *testing.T) {
	path := writeYAML(t, `
database:
  conn_max_lifetime: 1h
  conn_max_idle_time: 45s
`)

	cfg, err := LoadWithFile(path)
	require.NoError(t, err)
	assert.Equal(t, time.Hour, cfg.ConnMaxLifetime)
	assert.Equal(t, 45*time.Second, cfg.ConnMaxIdleTime)
}

func TestLoadWithFile_MissingFileIsAnError(t *testing.T) {
	_, err := LoadWithFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
