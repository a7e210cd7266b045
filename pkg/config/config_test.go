package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func noDotenv(t *testing.T) string {
	return filepath.Join(t.TempDir(), "missing.env")
}

func TestLoadRequiresDatabaseURL(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	_, err := LoadFile(noDotenv(t))
	require.ErrorContains(t, err, "DATABASE_URL is required")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://koravi@localhost/koravi")
	for _, key := range []string{
		"SERVER_PORT", "CACHE_MAX_ENTRIES", "RETRY_MAX_ATTEMPTS", "RETRY_BASE_DELAY_MS",
		"BREAKER_FAILURE_THRESHOLD", "BREAKER_TIMEOUT_SECONDS", "RATE_LIMIT_PER_MINUTE",
		"AUTO_MIGRATE", "CORS_ALLOWED_ORIGINS", "REDIS_URL", "ENVIRONMENT", "LOG_FORMAT", "OTEL_TRACES_SAMPLE_RATIO",
	} {
		t.Setenv(key, "")
	}
	t.Setenv("CACHE_WARM_SCHEDULE", "")
	os.Unsetenv("CACHE_WARM_SCHEDULE")

	cfg, err := LoadFile(noDotenv(t))
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.ServerPort)
	require.Equal(t, 1000, cfg.CacheMaxEntries)
	require.Equal(t, 3, cfg.RetryMaxAttempts)
	require.Equal(t, time.Second, cfg.RetryBaseDelay)
	require.Equal(t, 5, cfg.BreakerFailureThreshold)
	require.Equal(t, 30*time.Second, cfg.BreakerTimeout)
	require.Equal(t, 300, cfg.RateLimitPerMinute)
	require.Equal(t, "@every 5m", cfg.CacheWarmSchedule)
	require.Equal(t, []string{"http://localhost:3000"}, cfg.CORSAllowedOrigins)
	require.True(t, cfg.AutoMigrate)
	require.Empty(t, cfg.RedisURL)
	require.Equal(t, "json", cfg.LogFormat)
	require.Equal(t, 1.0, cfg.TraceSampleRatio)
	require.False(t, cfg.IsProduction())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "memory://")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("RETRY_BASE_DELAY_MS", "250")
	t.Setenv("AUTO_MIGRATE", "off")
	t.Setenv("CACHE_WARM_SCHEDULE", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.koravi.io, ,https://admin.koravi.io")
	t.Setenv("ENVIRONMENT", "Production")

	cfg, err := LoadFile(noDotenv(t))
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.ServerPort)
	require.Equal(t, 250*time.Millisecond, cfg.RetryBaseDelay)
	require.False(t, cfg.AutoMigrate)
	require.Empty(t, cfg.CacheWarmSchedule)
	require.Equal(t, []string{"https://app.koravi.io", "https://admin.koravi.io"}, cfg.CORSAllowedOrigins)
	require.True(t, cfg.IsProduction())
}

func TestLoadRejectsInvalidNumbers(t *testing.T) {
	t.Setenv("DATABASE_URL", "memory://")
	t.Setenv("RETRY_MAX_ATTEMPTS", "zero")
	_, err := LoadFile(noDotenv(t))
	require.ErrorContains(t, err, "invalid RETRY_MAX_ATTEMPTS")

	t.Setenv("RETRY_MAX_ATTEMPTS", "0")
	_, err = LoadFile(noDotenv(t))
	require.ErrorContains(t, err, "below 1")

	t.Setenv("RETRY_MAX_ATTEMPTS", "3")
	t.Setenv("AUTO_MIGRATE", "sometimes")
	_, err = LoadFile(noDotenv(t))
	require.ErrorContains(t, err, "invalid AUTO_MIGRATE")

	t.Setenv("AUTO_MIGRATE", "true")
	t.Setenv("OTEL_TRACES_SAMPLE_RATIO", "1.5")
	_, err = LoadFile(noDotenv(t))
	require.ErrorContains(t, err, "invalid OTEL_TRACES_SAMPLE_RATIO")
}

func TestLoadReadsDotenv(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("SERVER_PORT", "7070")
	os.Unsetenv("DATABASE_URL")

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("DATABASE_URL=postgres://from-dotenv/koravi\nSERVER_PORT=6060\n"), 0o600))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	require.Equal(t, "postgres://from-dotenv/koravi", cfg.DatabaseURL)
	require.Equal(t, 7070, cfg.ServerPort)
}
