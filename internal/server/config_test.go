package server

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewConfigDefaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, []string{"http://localhost:8080", "https://localhost:5173"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(64*1024), cfg.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 50, RefillInterval: time.Second}, cfg.RateLimit)
	assert.Equal(t, 256, cfg.SendBufferSize)
	assert.True(t, cfg.CloseSuperseded)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod())
	assert.False(t, cfg.TLSEnabled())
}

func TestSanitizedFillsZeroValues(t *testing.T) {
	cfg := Config{MaxMessageSize: -1, SendBufferSize: -5}.Sanitized()

	assert.Equal(t, ":8080", cfg.Port)
	assert.Equal(t, int64(defaultMaxMessageSize), cfg.MaxMessageSize)
	assert.Equal(t, defaultSendBufferSize, cfg.SendBufferSize)
	assert.Equal(t, defaultPongWait, cfg.PongWait)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.False(t, cfg.CloseSuperseded, "an explicit false survives sanitizing")
}

func TestPingPeriodStaysPositive(t *testing.T) {
	t.Setenv("PONG_WAIT", "1ns")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, minPongWait, cfg.PongWait)
	assert.Positive(t, cfg.PingPeriod())

	assert.Equal(t, time.Millisecond, Config{PongWait: time.Nanosecond}.PingPeriod())
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", ":9999")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("MAX_MESSAGE_SIZE", "2048")
	t.Setenv("RATE_LIMIT_BURST", "7")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "3")
	t.Setenv("PONG_WAIT", "30s")
	t.Setenv("CLOSE_SUPERSEDED", "false")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("STUN_URLS", "stun:stun.example.org:3478")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(2048), cfg.MaxMessageSize)
	assert.Equal(t, RateLimitConfig{Burst: 7, RefillInterval: 3 * time.Second}, cfg.RateLimit)
	assert.Equal(t, 30*time.Second, cfg.PongWait)
	assert.False(t, cfg.CloseSuperseded)
	assert.Equal(t, "debug", cfg.LogLevel)
	require.Len(t, cfg.ICEServers, 1)
	assert.Equal(t, []string{"stun:stun.example.org:3478"}, cfg.ICEServers[0].URLs)
}

func TestApplyEnvIgnoresInvalidNumbers(t *testing.T) {
	t.Setenv("MAX_MESSAGE_SIZE", "lots")
	t.Setenv("RATE_LIMIT_BURST", "-3")
	t.Setenv("WRITE_WAIT", "soon")

	cfg, err := NewConfigFromEnv()
	require.NoError(t, err)

	assert.Equal(t, int64(defaultMaxMessageSize), cfg.MaxMessageSize)
	assert.Equal(t, defaultBurst, cfg.RateLimit.Burst)
	assert.Equal(t, defaultWriteWait, cfg.WriteWait)
}

func TestApplyEnvRejectsBadICEServers(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"malformed json", map[string]string{"ICE_SERVERS_JSON": "[{"}},
		{"unsupported scheme", map[string]string{"ICE_SERVERS_JSON": `[{"urls":"http://x"}]`}},
		{"turn without credentials", map[string]string{"TURN_URLS": "turn:turn.example.org"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := NewConfigFromEnv()
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := writeConfigFile(t, "relay.yaml", `
port: ":7000"
allowed_origins: ["*"]
rate_limit:
  burst: 10
  refill_interval: 500ms
pong_wait: 20s
close_superseded: false
ice_servers:
  - urls: stun:stun.example.org:3478
  - urls: [turn:turn.example.org:3478, turns:turn.example.org:5349]
    username: relay
    credential: secret
tls:
  cert_file: /etc/relay/cert.pem
  key_file: /etc/relay/key.pem
log:
  level: warn
  format: json
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":7000", cfg.Port)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, RateLimitConfig{Burst: 10, RefillInterval: 500 * time.Millisecond}, cfg.RateLimit)
	assert.Equal(t, 20*time.Second, cfg.PongWait)
	assert.False(t, cfg.CloseSuperseded)
	require.Len(t, cfg.ICEServers, 2)
	assert.Equal(t, []string{"turn:turn.example.org:3478", "turns:turn.example.org:5349"}, cfg.ICEServers[1].URLs)
	assert.Equal(t, "relay", cfg.ICEServers[1].Username)
	assert.True(t, cfg.TLSEnabled())
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfigJSONC(t *testing.T) {
	path := writeConfigFile(t, "relay.jsonc", `{
	// relay settings
	"port": ":7100",
	"max_message_size": 4096,
	"send_buffer_size": 32, /* per session */
	"ice_servers": [{"urls": "stun:stun.example.org:3478"}],
}`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":7100", cfg.Port)
	assert.Equal(t, int64(4096), cfg.MaxMessageSize)
	assert.Equal(t, 32, cfg.SendBufferSize)
	assert.True(t, cfg.CloseSuperseded)
	require.Len(t, cfg.ICEServers, 1)
}

func TestLoadConfigEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "relay.yml", "port: \":7000\"\n")
	t.Setenv("SERVER_PORT", ":7001")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, ":7001", cfg.Port)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"invalid duration", "relay.yaml", "pong_wait: forever\n"},
		{"negative duration", "relay.yaml", "write_wait: -1s\n"},
		{"bad yaml", "relay.yaml", "port: [\n"},
		{"bad json", "relay.json", "{"},
		{"unknown extension", "relay.toml", "port = 1"},
		{"invalid ice server", "relay.yaml", "ice_servers:\n  - urls: turn:turn.example.org\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfigFile(t, tt.file, tt.content))
			assert.Error(t, err)
		})
	}

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}
