package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// KV backend selectors.
const (
	KVBackendRedis  = "redis"
	KVBackendSQLite = "sqlite"
	KVBackendMemory = "memory"
)

type Config struct {
	Port   int
	APIKey string

	// Session persistence
	KVBackend  string
	RedisURL   string
	SQLitePath string
	SessionTTL time.Duration
	// Image generation
	ImageAPIBaseURL string
	ImageAPIKey     string
	ImageProModel   string
	ImageFlashModel string
	// 3D reconstruction
	ReconBaseURL string
	ReconAPIKey  string

	LogLevel string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:            envInt("PORT", 8460),
		APIKey:          envStr("API_KEY", ""),
		KVBackend:       envStr("KV_BACKEND", KVBackendRedis),
		RedisURL:        envStr("REDIS_URL", "redis://localhost:6379/0"),
		SQLitePath:      envStr("KV_SQLITE_PATH", "/data/sessions.db"),
		SessionTTL:      time.Duration(envInt("SESSION_TTL_SECONDS", 0)) * time.Second,
		ImageAPIBaseURL: envStr("IMAGE_API_BASE_URL", "https://generativelanguage.googleapis.com"),
		ImageAPIKey:     envStr("IMAGE_API_KEY", ""),
		ImageProModel:   envStr("IMAGE_PRO_MODEL", "gemini-3-pro-image-preview"),
		ImageFlashModel: envStr("IMAGE_FLASH_MODEL", "gemini-2.5-flash-image"),
		ReconBaseURL:    envStr("RECON_API_BASE_URL", "https://queue.fal.run/fal-ai/trellis"),
		ReconAPIKey:     envStr("RECON_API_KEY", ""),
		LogLevel:        envStr("LOG_LEVEL", "info"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Port)
	}
	switch c.KVBackend {
	case KVBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL must not be empty")
		}
	case KVBackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("KV_SQLITE_PATH must not be empty")
		}
	case KVBackendMemory:
	default:
		return fmt.Errorf("KV_BACKEND must be redis, sqlite, or memory, got %q", c.KVBackend)
	}
	if c.ImageAPIBaseURL == "" {
		return fmt.Errorf("IMAGE_API_BASE_URL must not be empty")
	}
	if c.ReconBaseURL == "" {
		return fmt.Errorf("RECON_API_BASE_URL must not be empty")
	}
	if c.SessionTTL < 0 {
		return fmt.Errorf("SESSION_TTL_SECONDS must not be negative")
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
