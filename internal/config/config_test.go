package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, int64(1048576), cfg.MaxBodyBytes)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, "sqlite:silk.db", cfg.DatabaseURL)
	assert.Equal(t, 100.0, cfg.Silk.InterceptPercent)
	assert.Equal(t, []string{"/healthz", "/readyz", "/debug/vars"}, cfg.Silk.IgnorePaths)
	assert.Equal(t, 10000, cfg.Silk.MaxRecordedRequests)
	assert.Equal(t, time.Duration(0), cfg.Silk.Retention)
	assert.False(t, cfg.Silk.Meta)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("APP_ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/silk")
	t.Setenv("SILK_INTERCEPT_PERCENT", "250")
	t.Setenv("SILK_IGNORE_PATHS", "/static")
	t.Setenv("SILK_RETENTION", "72h")
	t.Setenv("SILK_META", "true")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, "postgres://u:p@localhost/silk", cfg.DatabaseURL)
	assert.Equal(t, 100.0, cfg.Silk.InterceptPercent)
	assert.Equal(t, []string{"/static"}, cfg.Silk.IgnorePaths)
	assert.Equal(t, 72*time.Hour, cfg.Silk.Retention)
	assert.True(t, cfg.Silk.Meta)
}

func TestLoad_ProductionWithoutOrigins(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	yaml := "log_level: debug\nsilk:\n  intercept_percent: 25\n  max_recorded_requests: 50\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "silk.yaml"), []byte(yaml), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 25.0, cfg.Silk.InterceptPercent)
	assert.Equal(t, 50, cfg.Silk.MaxRecordedRequests)
}

func TestLoad_BadConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "silk.yaml"), []byte("silk: [unclosed"), 0o600))

	_, err := Load(dir)
	assert.Error(t, err)
}
