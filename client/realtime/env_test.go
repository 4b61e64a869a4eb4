package realtime_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/vendora/realtime-backend/client/realtime"
)

func TestConfigFromEnv(t *testing.T) {
	t.Run("reads the realtime knobs", func(t *testing.T) {
		t.Setenv(realtime.EnvURL, "wss://api.vendora.io/api/v1/ws")
		t.Setenv(realtime.EnvReconnectAttempts, "8")
		t.Setenv(realtime.EnvReconnectDelay, "500ms")
		t.Setenv(realtime.EnvTypingTTL, "10s")

		cfg := realtime.ConfigFromEnv()

		assert.Equal(t, "wss://api.vendora.io/api/v1/ws", cfg.URL)
		assert.Equal(t, 8, cfg.ReconnectAttempts)
		assert.Equal(t, 500*time.Millisecond, cfg.ReconnectDelay)
		assert.Equal(t, 10*time.Second, cfg.TypingTTL)
	})

	t.Run("unset and malformed values stay zero", func(t *testing.T) {
		t.Setenv(realtime.EnvReconnectAttempts, "many")
		t.Setenv(realtime.EnvReconnectDelay, "soon")

		cfg := realtime.ConfigFromEnv()

		assert.Empty(t, cfg.URL)
		assert.Zero(t, cfg.ReconnectAttempts)
		assert.Zero(t, cfg.ReconnectDelay)
		assert.Zero(t, cfg.TypingTTL)
	})
}
