package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRequiresConsumerKey(t *testing.T) {
	t.Setenv("TDA_CONSUMER_KEY", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TDA_CONSUMER_KEY")
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("TDA_CONSUMER_KEY", "test-key")
	t.Setenv("ENV", "")
	t.Setenv("TDA_BASE_URL", "")
	t.Setenv("REDIS_ENABLED", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Env)
	assert.Equal(t, "https://api.tdameritrade.com/v1", cfg.TDA.BaseURL)
	assert.Equal(t, "http://localhost", cfg.TDA.CallbackURL)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.NotEmpty(t, cfg.TDA.TokenDir)
}

func TestLoadRejectsUnknownEnv(t *testing.T) {
	t.Setenv("TDA_CONSUMER_KEY", "test-key")
	t.Setenv("ENV", "sandbox")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ENV must be one of")
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("SOME_INT", "42")
	t.Setenv("SOME_BOOL", "true")
	t.Setenv("BAD_INT", "not-a-number")

	assert.Equal(t, 42, getEnvAsInt("SOME_INT", 0))
	assert.Equal(t, 7, getEnvAsInt("MISSING_INT", 7))
	assert.Equal(t, 7, getEnvAsInt("BAD_INT", 7))
	assert.True(t, getEnvAsBool("SOME_BOOL", false))
	assert.False(t, getEnvAsBool("MISSING_BOOL", false))
	assert.Equal(t, "fallback", getEnv("MISSING_STRING", "fallback"))
}
