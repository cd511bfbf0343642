package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DATA_FILE", "STORE_BACKEND", "AUTOSAVE_INTERVAL", "TOKEN_TTL", "DEBUG_ROUTES"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, ":3000", cfg.Addr())
	assert.Equal(t, "data.json", cfg.DataFile)
	assert.Equal(t, BackendFile, cfg.StoreBackend)
	assert.Equal(t, 30*time.Second, cfg.AutosaveInterval)
	assert.Equal(t, 24*time.Hour, cfg.TokenTTL)
	assert.False(t, cfg.DebugRoutes)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "8099")
	t.Setenv("STORE_BACKEND", "Postgres")
	t.Setenv("AUTOSAVE_INTERVAL", "5s")
	t.Setenv("DEBUG_ROUTES", "true")

	cfg := FromEnv()

	assert.Equal(t, ":8099", cfg.Addr())
	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, 5*time.Second, cfg.AutosaveInterval)
	assert.True(t, cfg.DebugRoutes)
}

func TestFromEnvInvalidValuesFallBack(t *testing.T) {
	t.Setenv("AUTOSAVE_INTERVAL", "soon")
	t.Setenv("STORE_BACKEND", "mongo")
	t.Setenv("DEBUG_ROUTES", "maybe")

	cfg := FromEnv()

	assert.Equal(t, 30*time.Second, cfg.AutosaveInterval)
	assert.Equal(t, BackendFile, cfg.StoreBackend)
	assert.False(t, cfg.DebugRoutes)
}

func TestLoadReadsEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("REDIS_PREFIX=from-file\n"), 0o600))
	t.Setenv("REDIS_PREFIX", "")
	require.NoError(t, os.Unsetenv("REDIS_PREFIX"))

	cfg := Load(envFile)
	t.Cleanup(func() { os.Unsetenv("REDIS_PREFIX") })

	assert.Equal(t, "from-file", cfg.RedisPrefix)
}

func TestLoadMissingEnvFile(t *testing.T) {
	t.Setenv("PORT", "4000")

	cfg := Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.Equal(t, "4000", cfg.Port)
}

func TestJWTSecretFallback(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ENVIRONMENT", "development")
	assert.Equal(t, DevJWTSecret, FromEnv().JWTSecret)

	t.Setenv("ENVIRONMENT", "production")
	first := FromEnv().JWTSecret
	second := FromEnv().JWTSecret
	assert.NotEqual(t, DevJWTSecret, first)
	assert.Len(t, first, 64)
	assert.NotEqual(t, first, second)

	t.Setenv("JWT_SECRET", "configured")
	assert.Equal(t, "configured", FromEnv().JWTSecret)
}
