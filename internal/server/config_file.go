package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// fileConfig is the on-disk shape of a config file. Durations are Go duration
// strings ("30s", "1m"). Unset fields leave the current value untouched.
type fileConfig struct {
	Port           string   `yaml:"port" json:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	MaxMessageSize int64    `yaml:"max_message_size" json:"max_message_size"`
	RateLimit      struct {
		Burst          int    `yaml:"burst" json:"burst"`
		RefillInterval string `yaml:"refill_interval" json:"refill_interval"`
	} `yaml:"rate_limit" json:"rate_limit"`
	SendBufferSize  int              `yaml:"send_buffer_size" json:"send_buffer_size"`
	PongWait        string           `yaml:"pong_wait" json:"pong_wait"`
	WriteWait       string           `yaml:"write_wait" json:"write_wait"`
	ShutdownTimeout string           `yaml:"shutdown_timeout" json:"shutdown_timeout"`
	CloseSuperseded *bool            `yaml:"close_superseded" json:"close_superseded"`
	ICEServers      []iceServerEntry `yaml:"ice_servers" json:"ice_servers"`
	TLS             struct {
		CertFile string `yaml:"cert_file" json:"cert_file"`
		KeyFile  string `yaml:"key_file" json:"key_file"`
	} `yaml:"tls" json:"tls"`
	Log struct {
		Level  string `yaml:"level" json:"level"`
		Format string `yaml:"format" json:"format"`
	} `yaml:"log" json:"log"`
}

// UnmarshalYAML accepts either a single URL or a list of URLs.
func (s *stringOrStringSlice) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = []string{single}
		return nil
	}
	var many []string
	if err := value.Decode(&many); err != nil {
		return err
	}
	*s = many
	return nil
}

// LoadConfigFile reads the config file at path and applies it on top of cfg.
// Files ending in .yaml or .yml are parsed as YAML; .json and .jsonc files are
// parsed as JSON with comments and trailing commas allowed.
func LoadConfigFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	fc, err := parseConfigFile(filepath.Ext(path), data)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	if err := fc.apply(cfg); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func parseConfigFile(ext string, data []byte) (*fileConfig, error) {
	var fc fileConfig
	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &fc); err != nil {
			return nil, fmt.Errorf("parsing yaml: %w", err)
		}
	case ".json", ".jsonc":
		if err := json.Unmarshal(jsonc.ToJSON(data), &fc); err != nil {
			return nil, fmt.Errorf("parsing json: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", ext)
	}
	return &fc, nil
}

func (fc *fileConfig) apply(cfg *Config) error {
	if fc.Port != "" {
		cfg.Port = fc.Port
	}
	if len(fc.AllowedOrigins) > 0 {
		cfg.AllowedOrigins = fc.AllowedOrigins
	}
	if fc.MaxMessageSize > 0 {
		cfg.MaxMessageSize = fc.MaxMessageSize
	}
	if fc.RateLimit.Burst > 0 {
		cfg.RateLimit.Burst = fc.RateLimit.Burst
	}
	if fc.SendBufferSize > 0 {
		cfg.SendBufferSize = fc.SendBufferSize
	}
	if fc.CloseSuperseded != nil {
		cfg.CloseSuperseded = *fc.CloseSuperseded
	}
	if fc.TLS.CertFile != "" {
		cfg.TLSCertFile = fc.TLS.CertFile
	}
	if fc.TLS.KeyFile != "" {
		cfg.TLSKeyFile = fc.TLS.KeyFile
	}
	if fc.Log.Level != "" {
		cfg.LogLevel = strings.ToLower(fc.Log.Level)
	}
	if fc.Log.Format != "" {
		cfg.LogFormat = strings.ToLower(fc.Log.Format)
	}

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"rate_limit.refill_interval", fc.RateLimit.RefillInterval, &cfg.RateLimit.RefillInterval},
		{"pong_wait", fc.PongWait, &cfg.PongWait},
		{"write_wait", fc.WriteWait, &cfg.WriteWait},
		{"shutdown_timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.value)
		if err != nil || parsed <= 0 {
			return fmt.Errorf("%s: invalid duration %q", d.name, d.value)
		}
		*d.dst = parsed
	}

	if len(fc.ICEServers) > 0 {
		servers, err := buildICEServers(fc.ICEServers)
		if err != nil {
			return err
		}
		cfg.ICEServers = servers
	}
	return nil
}
