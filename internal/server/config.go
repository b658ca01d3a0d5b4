// Package server provides configuration helpers that define runtime defaults,
// validation, and rate-limiting parameters for the relay.
package server

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

// RateLimitConfig defines the parameters for per-connection message rate limiting.
type RateLimitConfig struct {
	Burst          int
	RefillInterval time.Duration
}

// Config holds the relay configuration. The zero value of every numeric field
// is replaced by its default when the config is sanitized.
type Config struct {
	Port           string
	AllowedOrigins []string
	MaxMessageSize int64
	RateLimit      RateLimitConfig
	SendBufferSize int

	// PongWait is how long a connection may stay silent before it is
	// considered lost. Pings are sent at 9/10 of this interval.
	PongWait        time.Duration
	WriteWait       time.Duration
	ShutdownTimeout time.Duration

	// CloseSuperseded closes the previous connection of a client identity
	// when the same identity joins the same room again.
	CloseSuperseded bool

	ICEServers []webrtc.ICEServer

	TLSCertFile string
	TLSKeyFile  string

	LogLevel  string
	LogFormat string
}

const (
	defaultPort            = ":8080"
	defaultMaxMessageSize  = 64 * 1024
	defaultBurst           = 50
	defaultRefillInterval  = time.Second
	defaultSendBufferSize  = 256
	defaultPongWait        = 60 * time.Second
	minPongWait            = 10 * time.Millisecond
	defaultWriteWait       = 10 * time.Second
	defaultShutdownTimeout = 10 * time.Second
)

func defaultConfig() Config {
	return Config{
		Port: defaultPort,
		AllowedOrigins: []string{
			"http://localhost:8080",
			"https://localhost:5173",
		},
		MaxMessageSize: defaultMaxMessageSize,
		RateLimit: RateLimitConfig{
			Burst:          defaultBurst,
			RefillInterval: defaultRefillInterval,
		},
		SendBufferSize:  defaultSendBufferSize,
		PongWait:        defaultPongWait,
		WriteWait:       defaultWriteWait,
		ShutdownTimeout: defaultShutdownTimeout,
		CloseSuperseded: true,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// Sanitized returns a copy of c with defaults filled in for unset or invalid
// values.
func (c Config) Sanitized() Config {
	if c.Port == "" {
		c.Port = defaultPort
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = defaultBurst
	}
	if c.RateLimit.RefillInterval <= 0 {
		c.RateLimit.RefillInterval = defaultRefillInterval
	}
	if c.SendBufferSize <= 0 {
		c.SendBufferSize = defaultSendBufferSize
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	} else if c.PongWait < minPongWait {
		c.PongWait = minPongWait
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = defaultShutdownTimeout
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
	c.AllowedOrigins = append([]string(nil), c.AllowedOrigins...)
	c.ICEServers = append([]webrtc.ICEServer(nil), c.ICEServers...)
	return c
}

// PingPeriod is the interval between keep-alive pings. It is always
// positive so it can drive a time.Ticker.
func (c Config) PingPeriod() time.Duration {
	return max(c.PongWait*9/10, time.Millisecond)
}

// TLSEnabled reports whether both a certificate and a key are configured.
func (c Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// LoadConfig builds the effective configuration: defaults, then the optional
// config file at path, then environment variables.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		if err := LoadConfigFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := ApplyEnv(&cfg); err != nil {
		return nil, err
	}
	cfg = cfg.Sanitized()
	return &cfg, nil
}

// NewConfigFromEnv creates a Config instance from environment variables.
// Falls back to default values if environment variables are not set.
func NewConfigFromEnv() (*Config, error) {
	return LoadConfig("")
}

// ApplyEnv overrides fields of cfg with the environment variables that are set.
func ApplyEnv(cfg *Config) error {
	if port := os.Getenv("SERVER_PORT"); port != "" {
		cfg.Port = port
	}

	if origins := os.Getenv("ALLOWED_ORIGINS"); origins != "" {
		cfg.AllowedOrigins = parseOrigins(origins)
	}

	if maxSize := os.Getenv("MAX_MESSAGE_SIZE"); maxSize != "" {
		cfg.MaxMessageSize = parseMaxMessageSize(maxSize, cfg.MaxMessageSize)
	}

	if burst := os.Getenv("RATE_LIMIT_BURST"); burst != "" {
		cfg.RateLimit.Burst = parseIntValue(burst, cfg.RateLimit.Burst)
	}

	if interval := os.Getenv("RATE_LIMIT_REFILL_INTERVAL"); interval != "" {
		cfg.RateLimit.RefillInterval = parseRefillInterval(interval, cfg.RateLimit.RefillInterval)
	}

	if size := os.Getenv("SEND_BUFFER_SIZE"); size != "" {
		cfg.SendBufferSize = parseIntValue(size, cfg.SendBufferSize)
	}

	if wait := os.Getenv("PONG_WAIT"); wait != "" {
		cfg.PongWait = parseDuration(wait, cfg.PongWait)
	}

	if wait := os.Getenv("WRITE_WAIT"); wait != "" {
		cfg.WriteWait = parseDuration(wait, cfg.WriteWait)
	}

	if timeout := os.Getenv("SHUTDOWN_TIMEOUT"); timeout != "" {
		cfg.ShutdownTimeout = parseDuration(timeout, cfg.ShutdownTimeout)
	}

	if closeSuperseded := os.Getenv("CLOSE_SUPERSEDED"); closeSuperseded != "" {
		if parsed, err := strconv.ParseBool(closeSuperseded); err == nil {
			cfg.CloseSuperseded = parsed
		}
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = strings.ToLower(level)
	}

	if format := os.Getenv("LOG_FORMAT"); format != "" {
		cfg.LogFormat = strings.ToLower(format)
	}

	if cert := os.Getenv("TLS_CERT_FILE"); cert != "" {
		cfg.TLSCertFile = cert
	}

	if key := os.Getenv("TLS_KEY_FILE"); key != "" {
		cfg.TLSKeyFile = key
	}

	return applyICEEnv(cfg)
}

func applyICEEnv(cfg *Config) error {
	if raw := strings.TrimSpace(os.Getenv("ICE_SERVERS_JSON")); raw != "" {
		servers, err := ParseICEServersJSON(raw)
		if err != nil {
			return fmt.Errorf("ICE_SERVERS_JSON: %w", err)
		}
		cfg.ICEServers = servers
		return nil
	}

	stun, turn := os.Getenv("STUN_URLS"), os.Getenv("TURN_URLS")
	if stun == "" && turn == "" {
		return nil
	}
	servers, err := ParseICEServersFromLists(stun, turn, os.Getenv("TURN_USERNAME"), os.Getenv("TURN_CREDENTIAL"))
	if err != nil {
		return err
	}
	cfg.ICEServers = servers
	return nil
}

func parseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func parseMaxMessageSize(value string, defaultValue int64) int64 {
	if size, err := strconv.ParseInt(value, 10, 64); err == nil && size > 0 {
		return size
	}
	return defaultValue
}

func parseIntValue(value string, defaultValue int) int {
	if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
		return parsed
	}
	return defaultValue
}

func parseRefillInterval(value string, defaultValue time.Duration) time.Duration {
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	return defaultValue
}

func parseDuration(value string, defaultValue time.Duration) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
