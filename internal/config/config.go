// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Queue backends accepted in RELAYGATE_QUEUE_BACKEND.
const (
	QueueBackendMemory = "memory"
	QueueBackendRedis  = "redis"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	SecretKey  string

	Workers      int
	QueueSize    int
	QueueBackend string
	TaskTTL      time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	RetryAttempts  int
	RetryBackoff   time.Duration
	RetryJitter    time.Duration
	RequestTimeout time.Duration
	TokenTimeout   time.Duration
}

// HasSecretKey reports whether credential encryption is configured. Without
// it the gateway can still call unauthenticated endpoints.
func (c *Config) HasSecretKey() bool {
	return c.SecretKey != ""
}

// Load reads configuration from environment variables and returns a validated Config.
// RELAYGATE_SECRET_KEY is optional; without it credentials cannot be read or stored.
// Optional variables with defaults: RELAYGATE_LISTEN_ADDR (127.0.0.1:8080),
// RELAYGATE_DB_PATH (relaygate.db), RELAYGATE_WORKERS (4), RELAYGATE_QUEUE_SIZE (256),
// RELAYGATE_QUEUE_BACKEND (memory), RELAYGATE_TASK_TTL (1h),
// RELAYGATE_REDIS_ADDR (127.0.0.1:6379), RELAYGATE_REDIS_PASSWORD, RELAYGATE_REDIS_DB (0),
// RELAYGATE_RETRY_ATTEMPTS (3), RELAYGATE_RETRY_BACKOFF (500ms), RELAYGATE_RETRY_JITTER (500ms),
// RELAYGATE_REQUEST_TIMEOUT (30s), RELAYGATE_TOKEN_TIMEOUT (10s).
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:     envString("RELAYGATE_LISTEN_ADDR", "127.0.0.1:8080"),
		DBPath:         envString("RELAYGATE_DB_PATH", "relaygate.db"),
		SecretKey:      os.Getenv("RELAYGATE_SECRET_KEY"),
		QueueBackend:   envString("RELAYGATE_QUEUE_BACKEND", QueueBackendMemory),
		RedisAddr:      envString("RELAYGATE_REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword:  os.Getenv("RELAYGATE_REDIS_PASSWORD"),
		Workers:        4,
		QueueSize:      256,
		TaskTTL:        time.Hour,
		RetryAttempts:  3,
		RetryBackoff:   500 * time.Millisecond,
		RetryJitter:    500 * time.Millisecond,
		RequestTimeout: 30 * time.Second,
		TokenTimeout:   10 * time.Second,
	}

	ints := []struct {
		key string
		dst *int
		min int
	}{
		{"RELAYGATE_WORKERS", &cfg.Workers, 1},
		{"RELAYGATE_QUEUE_SIZE", &cfg.QueueSize, 0},
		{"RELAYGATE_REDIS_DB", &cfg.RedisDB, 0},
		{"RELAYGATE_RETRY_ATTEMPTS", &cfg.RetryAttempts, 1},
	}
	for _, v := range ints {
		if err := envInt(v.key, v.dst, v.min); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"RELAYGATE_TASK_TTL", &cfg.TaskTTL},
		{"RELAYGATE_RETRY_BACKOFF", &cfg.RetryBackoff},
		{"RELAYGATE_RETRY_JITTER", &cfg.RetryJitter},
		{"RELAYGATE_REQUEST_TIMEOUT", &cfg.RequestTimeout},
		{"RELAYGATE_TOKEN_TIMEOUT", &cfg.TokenTimeout},
	}
	for _, v := range durations {
		if err := envDuration(v.key, v.dst); err != nil {
			return nil, err
		}
	}

	switch cfg.QueueBackend {
	case QueueBackendMemory, QueueBackendRedis:
	default:
		return nil, fmt.Errorf("RELAYGATE_QUEUE_BACKEND must be %q or %q, got %q", QueueBackendMemory, QueueBackendRedis, cfg.QueueBackend)
	}

	return cfg, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func envInt(key string, dst *int, minimum int) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s has invalid integer %q: %w", key, v, err)
	}
	if parsed < minimum {
		return fmt.Errorf("%s must be at least %d, got %d", key, minimum, parsed)
	}
	*dst = parsed
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v, ok := os.LookupEnv(key)
	if !ok {
		return nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s has invalid duration %q: %w", key, v, err)
	}
	if parsed < 0 {
		return fmt.Errorf("%s must not be negative, got %s", key, v)
	}
	*dst = parsed
	return nil
}
