package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8082", cfg.App.Port)
	assert.Equal(t, "memory", cfg.Stores.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Admission.NonceTTL)
	assert.Equal(t, 10, cfg.Admission.IdentityLimit)
	assert.Equal(t, 50, cfg.Admission.OriginLimit)
	assert.Equal(t, 100, cfg.Queue.MaxSize)
	assert.Equal(t, 3*time.Second, cfg.Queue.TickInterval)
	assert.Len(t, cfg.Admission.BlockedAddresses, 2)
	assert.Equal(t, 5*time.Minute, cfg.Admission.MaxClockSkew)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.BrokerList())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STATE_BACKEND", "redis")
	t.Setenv("QUEUE_TICK_INTERVAL", "500ms")
	t.Setenv("ALLOWED_TOKENS", "0xaaa,0xbbb")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Stores.Backend)
	assert.Equal(t, 500*time.Millisecond, cfg.Queue.TickInterval)
	assert.Equal(t, []string{"0xaaa", "0xbbb"}, cfg.Admission.AllowedTokens)
}

func TestLoad_UnknownBackend(t *testing.T) {
	t.Setenv("STATE_BACKEND", "etcd")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidAmount(t *testing.T) {
	t.Setenv("MAX_AMOUNT", "lots")

	_, err := Load()
	assert.ErrorContains(t, err, "MAX_AMOUNT")
}

func TestLoad_RejectsNonPositiveSettings(t *testing.T) {
	tests := []struct {
		env   string
		value string
	}{
		{"QUEUE_TICK_INTERVAL", "0s"},
		{"QUEUE_TICK_INTERVAL", "-3s"},
		{"RATE_WINDOW", "0s"},
		{"NONCE_TTL", "-1m"},
		{"QUEUE_FULFILL_TIMEOUT", "0s"},
		{"QUEUE_MAX_SIZE", "0"},
		{"RATE_ORIGIN_LIMIT", "-1"},
	}
	for _, tt := range tests {
		t.Run(tt.env+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.env, tt.value)

			_, err := Load()
			assert.ErrorContains(t, err, tt.env)
		})
	}
}

func TestGetRetryConfig(t *testing.T) {
	k := Kafka{RetryMaxAttempts: 3, RetryBaseDelay: time.Second, RetryMaxDelay: time.Minute, RetryJitter: true}
	rc := k.GetRetryConfig()

	assert.Equal(t, 3, rc.MaxAttempts)
	assert.Equal(t, time.Second, rc.BaseDelay)
	assert.Equal(t, time.Minute, rc.MaxDelay)
	assert.True(t, rc.Jitter)
}
