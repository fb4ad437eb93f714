package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8460, cfg.Port)
	assert.Equal(t, KVBackendRedis, cfg.KVBackend)
	assert.Equal(t, "redis://localhost:6379/0", cfg.RedisURL)
	assert.Equal(t, time.Duration(0), cfg.SessionTTL)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("KV_BACKEND", "sqlite")
	t.Setenv("KV_SQLITE_PATH", "/tmp/test.db")
	t.Setenv("SESSION_TTL_SECONDS", "3600")
	t.Setenv("API_KEY", "secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, KVBackendSQLite, cfg.KVBackend)
	assert.Equal(t, "/tmp/test.db", cfg.SQLitePath)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, "secret", cfg.APIKey)
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"PORT": "-1"}},
		{"unknown backend", map[string]string{"KV_BACKEND": "etcd"}},
		{"negative ttl", map[string]string{"SESSION_TTL_SECONDS": "-5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestNonNumericEnvFallsBack(t *testing.T) {
	t.Setenv("PORT", "not-a-number")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8460, cfg.Port)
}
