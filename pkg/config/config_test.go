package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basestub/basestub/pkg/observability"
	"github.com/basestub/basestub/pkg/storageblob"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:54321", cfg.SupabaseURL)
	assert.False(t, cfg.Debug)
	assert.Equal(t, ":memory:", cfg.Database)
	assert.Equal(t, "54321", cfg.Server.Port)
	assert.Equal(t, "9090", cfg.Server.HealthPort)
	assert.Equal(t, storageblob.TypeMemory, cfg.Storage.Type)
	assert.Equal(t, 30*time.Second, cfg.Pooler.DefaultTimeout)
	assert.Equal(t, 1000, cfg.Pooler.MaxQueueSize)
	assert.Equal(t, 50*time.Millisecond, cfg.Pooler.AgingThreshold)
	assert.Equal(t, observability.InfoLevel, cfg.Observability.LogLevel)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("BASESTUB_SUPABASE_URL", "http://project.local")
	t.Setenv("BASESTUB_DEBUG", "true")
	t.Setenv("BASESTUB_PORT", "8000")
	t.Setenv("BASESTUB_DATABASE", "/tmp/basestub.db")
	t.Setenv("BASESTUB_STORAGE_BACKEND", "s3")
	t.Setenv("BASESTUB_S3_BUCKET", "blobs")
	t.Setenv("BASESTUB_S3_ENDPOINT", "http://localhost:9000")
	t.Setenv("BASESTUB_MAX_QUEUE_SIZE", "10")
	t.Setenv("BASESTUB_AGING_THRESHOLD", "75ms")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "http://project.local", cfg.SupabaseURL)
	assert.True(t, cfg.Debug)
	assert.Equal(t, observability.DebugLevel, cfg.Observability.LogLevel, "debug flag forces debug logging")
	assert.Equal(t, "8000", cfg.Server.Port)
	assert.Equal(t, "/tmp/basestub.db", cfg.Database)
	assert.Equal(t, storageblob.TypeS3, cfg.Storage.Type)
	assert.Equal(t, "blobs", cfg.Storage.S3Bucket)
	assert.Equal(t, 10, cfg.Pooler.MaxQueueSize)
	assert.Equal(t, 75*time.Millisecond, cfg.Pooler.AgingThreshold)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing supabase url", func(c *Config) { c.SupabaseURL = "" }},
		{"missing port", func(c *Config) { c.Server.Port = "" }},
		{"same ports", func(c *Config) { c.Server.HealthPort = c.Server.Port }},
		{"missing database", func(c *Config) { c.Database = "" }},
		{"unknown storage backend", func(c *Config) { c.Storage.Type = "tape" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = storageblob.TypeS3; c.Storage.S3Bucket = "" }},
		{"cache without redis", func(c *Config) { c.Storage.CacheEnabled = true; c.Storage.RedisURL = "" }},
		{"zero queue size", func(c *Config) { c.Pooler.MaxQueueSize = 0 }},
		{"otel without endpoint", func(c *Config) { c.Observability.OTelEnabled = true; c.Observability.OTelEndpoint = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := LoadConfig()
			require.NoError(t, err)
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, observability.DebugLevel, parseLogLevel("debug"))
	assert.Equal(t, observability.WarnLevel, parseLogLevel("WARNING"))
	assert.Equal(t, observability.ErrorLevel, parseLogLevel("error"))
	assert.Equal(t, observability.InfoLevel, parseLogLevel("gibberish"))
}

func TestStorageDisabledIsValid(t *testing.T) {
	t.Setenv("BASESTUB_STORAGE_BACKEND", "disabled")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, storageblob.TypeDisabled, cfg.Storage.Type)
}
