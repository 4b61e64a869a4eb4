package realtime

import (
	"os"
	"strconv"
	"time"
)

// Environment variables consumed by ConfigFromEnv.
const (
	EnvURL               = "REALTIME_URL"
	EnvReconnectAttempts = "REALTIME_RECONNECT_ATTEMPTS"
	EnvReconnectDelay    = "REALTIME_RECONNECT_DELAY"
	EnvTypingTTL         = "REALTIME_TYPING_TTL"
)

// ConfigFromEnv builds a Config from REALTIME_* environment variables.
// Unset or malformed values stay zero, which New resolves to the package
// defaults (5 reconnect attempts, 3s delay, typing eviction disabled).
func ConfigFromEnv() Config {
	return Config{
		URL:               os.Getenv(EnvURL),
		ReconnectAttempts: envInt(EnvReconnectAttempts),
		ReconnectDelay:    envDuration(EnvReconnectDelay),
		TypingTTL:         envDuration(EnvTypingTTL),
	}
}

func envInt(key string) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return 0
}

func envDuration(key string) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return 0
}
