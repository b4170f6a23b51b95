package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"ENVIRONMENT", "DATABASE_URL", "DATABASE_URL_TEST", "JWT_SECRET",
		"ENABLE_AI_PROCESSING", "OPENAI_API_KEY", "EMBEDDING_ENABLED",
		"OCR_ENABLED", "VECTOR_ENABLED", "EVENTS_WORKER_POOL_SIZE",
		"RATE_LIMIT_WINDOW",
	} {
		t.Setenv(key, "")
	}
}

func TestLoad_FailsWithoutJWTSecret(t *testing.T) {
	clearEnv(t)
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoad_FailsInProductionWithoutDatabaseURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "shh")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestLoad_FailsWhenAIProcessingEnabledWithoutAPIKey(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "shh")
	t.Setenv("ENABLE_AI_PROCESSING", "true")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPENAI_API_KEY")
}

func TestLoad_AppliesDefaultsWhenEnvUnset(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "shh")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiry)
	assert.Equal(t, 4, cfg.Events.WorkerPoolSize)
	assert.Equal(t, 20, cfg.Vector.TopK)
}

func TestLoad_ParsesOverriddenValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("JWT_SECRET", "shh")
	t.Setenv("EVENTS_WORKER_POOL_SIZE", "8")
	t.Setenv("EMBEDDING_ENABLED", "true")
	t.Setenv("OCR_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.Events.WorkerPoolSize)
	assert.True(t, cfg.Embedding.Enabled)
	assert.True(t, cfg.OCR.Enabled)
}

func TestConfig_GetDatabaseURL_PrefersTestURLInTestEnvironment(t *testing.T) {
	cfg := &Config{
		Environment: "test",
		Database:    DatabaseConfig{URL: "prod-url", TestURL: "test-url"},
	}
	assert.Equal(t, "test-url", cfg.GetDatabaseURL())
}

func TestConfig_GetDatabaseURL_FallsBackToURLOutsideTest(t *testing.T) {
	cfg := &Config{
		Environment: "development",
		Database:    DatabaseConfig{URL: "dev-url"},
	}
	assert.Equal(t, "dev-url", cfg.GetDatabaseURL())
}

func TestConfig_EnvironmentPredicates(t *testing.T) {
	assert.True(t, (&Config{Environment: "production"}).IsProduction())
	assert.True(t, (&Config{Environment: "development"}).IsDevelopment())
	assert.True(t, (&Config{Environment: "test"}).IsTest())
	assert.False(t, (&Config{Environment: "production"}).IsTest())
}
