package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("EXTRA_API_URL", "https://example.test/data")

	cfg, err := LoadConfig(viper.New(), "does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.App.Port)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 24*time.Hour, cfg.Cache.StaleTTL)
	assert.Equal(t, 15*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 10, cfg.RateLimit.StrictMax)
	assert.Equal(t, 5*time.Second, cfg.External.Timeout)
	assert.Equal(t, 500*time.Millisecond, cfg.Valkey.OpTimeout)
	assert.True(t, cfg.IsDevelopment())
	assert.Same(t, cfg, Global)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	t.Setenv("EXTRA_API_URL", "https://example.test/data")
	t.Setenv("RATE_LIMIT_WINDOW_MS", "60000")
	t.Setenv("RATE_LIMIT_MAX_REQUESTS", "50")
	t.Setenv("RATE_LIMIT_STRICT_MAX_REQUESTS", "5")
	t.Setenv("CACHE_TTL", "120")
	t.Setenv("APP_CORS_ALLOWED_ORIGINS", "https://a.test, https://b.test")

	cfg, err := LoadConfig(viper.New(), "does-not-exist.env")
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, 50, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 5, cfg.RateLimit.StrictMax)
	assert.Equal(t, 2*time.Minute, cfg.Cache.TTL)
	assert.Equal(t, []string{"https://a.test", "https://b.test"}, cfg.App.CorsAllowedOrigins)
}

func TestLoadConfig_MissingExternalURL(t *testing.T) {
	t.Setenv("EXTRA_API_URL", "")

	_, err := LoadConfig(viper.New(), "does-not-exist.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "EXTRA_API_URL")
}

func TestValidate_StrictAboveLenient(t *testing.T) {
	t.Setenv("EXTRA_API_URL", "https://example.test/data")
	t.Setenv("RATE_LIMIT_STRICT_MAX_REQUESTS", "500")

	_, err := LoadConfig(viper.New(), "does-not-exist.env")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_STRICT_MAX_REQUESTS")
}
