package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("MEILISEARCH_HOST", "meili")
	t.Setenv("RATE_LIMIT_THREAD", "30s")
	t.Setenv("IDEMPOTENCY_WINDOW", "24h")
	t.Setenv("WS_PING_INTERVAL", "15s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Equal(t, "http://meili:7700", cfg.MeiliSearchHost)
	assert.Equal(t, 30*time.Second, cfg.RateLimitThread)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyWindow)
	assert.Equal(t, 15*time.Second, cfg.WSPingInterval)
	assert.NotEmpty(t, cfg.JWTSecret)
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("APP_ENV", "development")
	t.Setenv("IDEMPOTENCY_WINDOW", "24h")
	t.Setenv("WS_PING_INTERVAL", "30s")
	t.Setenv("RATE_LIMIT_THREAD", "soon")
	_, err := Load()
	assert.ErrorContains(t, err, "RATE_LIMIT_THREAD")

	t.Setenv("RATE_LIMIT_THREAD", "30s")
	t.Setenv("APP_ENV", "production")
	t.Setenv("JWT_SECRET", "")
	_, err = Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}
