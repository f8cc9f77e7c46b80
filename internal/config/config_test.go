package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, StoreMemory, cfg.Store.Backend)
	assert.Equal(t, "gpt-5.3-codex", cfg.Agent.Model)
	assert.Equal(t, 20*time.Second, cfg.Agent.ProposerTimeout)
	assert.False(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 15*time.Minute, cfg.Scheduler.Interval)
	assert.Equal(t, "houra.sync", cfg.Sync.KafkaTopic)
	assert.Equal(t, 5, cfg.Sync.MaxRetries)
	assert.Equal(t, "houra", cfg.Telemetry.ServiceName)
}

func TestFromEnv_PrefixedAndUnprefixedKeys(t *testing.T) {
	t.Setenv("HOURA_PORT", "9090")
	t.Setenv("HOURA_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://houra@localhost/houra")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("HOURA_SCHEDULER_ENABLED", "true")
	t.Setenv("HOURA_SCHEDULER_INTERVAL", "5m")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, StorePostgres, cfg.Store.Backend)
	assert.Equal(t, "postgres://houra@localhost/houra", cfg.Store.DatabaseURL)
	assert.True(t, cfg.GenerativeConfigured())
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.Interval)
}

func TestFromEnv_PrefixedKeyWins(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://fallback")
	t.Setenv("HOURA_DATABASE_URL", "postgres://primary")

	cfg, err := FromEnv()
	require.NoError(t, err)
	assert.Equal(t, "postgres://primary", cfg.Store.DatabaseURL)
}

func TestFromEnv_BadValue(t *testing.T) {
	t.Setenv("HOURA_PORT", "not-a-port")
	_, err := FromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config:")
}

func TestValidate(t *testing.T) {
	valid, err := FromEnv()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"postgres without url", func(c *Config) { c.Store.Backend = StorePostgres }, "DATABASE_URL"},
		{"unknown store", func(c *Config) { c.Store.Backend = "sqlite" }, "HOURA_STORE"},
		{"port out of range", func(c *Config) { c.Server.Port = 70000 }, "HOURA_PORT"},
		{"short jwt secret", func(c *Config) { c.Auth.JWTSecret = "short" }, "HOURA_JWT_SECRET"},
		{"fast scheduler", func(c *Config) { c.Scheduler.Enabled = true; c.Scheduler.Interval = time.Second }, "HOURA_SCHEDULER_INTERVAL"},
		{"zero retries", func(c *Config) { c.Sync.MaxRetries = 0 }, "HOURA_SYNC_MAX_RETRIES"},
		{"bad sample ratio", func(c *Config) { c.Telemetry.SampleRatio = 1.5 }, "HOURA_OTEL_SAMPLE_RATIO"},
		{"zero burst", func(c *Config) { c.RateLimit.Burst = 0 }, "rate limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid
			tt.mutate(&c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_ReportsAllProblems(t *testing.T) {
	c, err := FromEnv()
	require.NoError(t, err)
	c.Server.Port = 0
	c.Sync.MaxRetries = 0

	err = c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HOURA_PORT")
	assert.Contains(t, err.Error(), "HOURA_SYNC_MAX_RETRIES")
}

func TestSyncEnabled(t *testing.T) {
	c := Config{}
	assert.False(t, c.SyncEnabled())
	c.Sync.KafkaBrokers = "localhost:9092"
	assert.True(t, c.SyncEnabled())
}
