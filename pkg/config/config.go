// Package config loads client configuration from YAML with environment
// variable fallbacks.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the client configuration
type Config struct {
	// Backend endpoints
	APIBaseURL    string `yaml:"api_base_url"`
	SocketBaseURL string `yaml:"socket_base_url"`

	// Reconnect behavior
	Reconnect ReconnectConfig `yaml:"reconnect"`

	// Send rate limiting (messages per second; 0 disables)
	SendRatePerSecond float64 `yaml:"send_rate_per_second"`
	SendBurst         int     `yaml:"send_burst"`

	// Optional session-listing cache
	Cache CacheConfig `yaml:"cache"`

	// Observability server (health + metrics); 0 disables
	ObservabilityPort int `yaml:"observability_port"`
}

// ReconnectConfig holds the reconnect budget and pacing.
type ReconnectConfig struct {
	MaxAttempts int    `yaml:"max_attempts"`
	RetryDelay  string `yaml:"retry_delay"`
}

// CacheConfig holds the optional Redis listing-cache settings.
type CacheConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	TTL      string `yaml:"ttl"`
}

// LoadConfig loads configuration from a YAML file. A missing file is
// not an error; defaults and environment variables apply instead.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	// Load endpoints from environment if not in config
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = os.Getenv("RECEIPTLY_API_URL")
	}
	if cfg.SocketBaseURL == "" {
		cfg.SocketBaseURL = os.Getenv("RECEIPTLY_SOCKET_URL")
	}
	if cfg.Cache.Addr == "" {
		cfg.Cache.Addr = os.Getenv("RECEIPTLY_REDIS_ADDR")
	}
	if port := os.Getenv("RECEIPTLY_OBSERVABILITY_PORT"); port != "" && cfg.ObservabilityPort == 0 {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("invalid RECEIPTLY_OBSERVABILITY_PORT: %w", err)
		}
		cfg.ObservabilityPort = p
	}

	// Apply defaults
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = "http://localhost:8000/api/v1"
	}
	if cfg.SocketBaseURL == "" {
		cfg.SocketBaseURL = "ws://localhost:8000/api/v1"
	}
	if cfg.Reconnect.MaxAttempts == 0 {
		cfg.Reconnect.MaxAttempts = 5
	}
	if cfg.Reconnect.RetryDelay == "" {
		cfg.Reconnect.RetryDelay = "3s"
	}
	if cfg.SendBurst == 0 {
		cfg.SendBurst = 3
	}

	if _, err := cfg.RetryDelay(); err != nil {
		return nil, err
	}
	if _, err := cfg.CacheTTL(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// RetryDelay parses the reconnect pacing interval.
func (c *Config) RetryDelay() (time.Duration, error) {
	d, err := time.ParseDuration(c.Reconnect.RetryDelay)
	if err != nil {
		return 0, fmt.Errorf("invalid reconnect retry_delay %q: %w", c.Reconnect.RetryDelay, err)
	}
	return d, nil
}

// CacheTTL parses the listing-cache expiry. Empty means no expiry.
func (c *Config) CacheTTL() (time.Duration, error) {
	if c.Cache.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid cache ttl %q: %w", c.Cache.TTL, err)
	}
	return d, nil
}

// ChatSocketURL builds the per-identity chat socket endpoint.
func (c *Config) ChatSocketURL(identity string) string {
	return c.SocketBaseURL + "/ws/" + url.PathEscape(identity) + "/chat"
}

// SaveConfig saves configuration to a YAML file
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
