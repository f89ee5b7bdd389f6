package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("LLM_API_KEY", "sk-test")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 15, cfg.RateLimit.RequestsPerWindow)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, time.Second, cfg.RateLimit.BurstInterval)
	assert.Equal(t, 5*time.Minute, cfg.RateLimit.SweepInterval)
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("PORT", "9090")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("RATE_LIMIT_REQUESTS", "30")
	t.Setenv("RATE_LIMIT_WINDOW", "2m")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("FRONTEND_URL", "https://folio.example")
	t.Setenv("METRICS_ENABLED", "off")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 30, cfg.RateLimit.RequestsPerWindow)
	assert.Equal(t, 2*time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.False(t, cfg.IsDevelopment())
	assert.False(t, cfg.Metrics)
}

func TestLoadRequiresAPIKeyForRemoteProvider(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("LLM_BASE_URL", "https://api.example.com/v1")

	_, err := Load()
	assert.ErrorContains(t, err, "LLM_API_KEY")
}

func TestLoadAllowsLocalProviderWithoutKey(t *testing.T) {
	t.Setenv("LLM_API_KEY", "")
	t.Setenv("LLM_BASE_URL", "http://localhost:11434/v1")

	_, err := Load()
	assert.NoError(t, err)
}

func TestValidateRejectsBadValues(t *testing.T) {
	t.Setenv("LLM_API_KEY", "sk-test")
	base, err := Load()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"non-numeric port", func(c *Config) { c.Port = "http" }},
		{"zero limit", func(c *Config) { c.RateLimit.RequestsPerWindow = 0 }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"bad temperature", func(c *Config) { c.LLM.Temperature = 3 }},
		{"no cors origins", func(c *Config) { c.CORSOrigins = nil }},
		{"log enabled without path", func(c *Config) {
			c.ConversationLog.Enabled = true
			c.ConversationLog.Path = ""
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := *base
			cfg.CORSOrigins = append([]string(nil), base.CORSOrigins...)
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestEnvHelpersFallBack(t *testing.T) {
	t.Setenv("X_INT", "abc")
	t.Setenv("X_DUR", "soon")
	t.Setenv("X_BOOL", "maybe")

	assert.Equal(t, 7, getEnvInt("X_INT", 7))
	assert.Equal(t, time.Second, getEnvDuration("X_DUR", time.Second))
	assert.True(t, getEnvBool("X_BOOL", true))
	assert.Equal(t, []string{"x"}, getEnvList("X_UNSET_LIST", []string{"x"}))
}
