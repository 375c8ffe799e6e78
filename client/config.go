package client

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default settings applied by LoadConfig and New.
const (
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResponseSize bounds response body reads: 256 MB.
	DefaultMaxResponseSize int64 = 256 << 20
)

// Config is the client configuration.
type Config struct {
	// BaseURL is resolved against relative request paths. Empty means request
	// paths must be absolute URLs.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each request, including reading the body.
	Timeout time.Duration `yaml:"timeout"`

	// Headers are sent with every request. Per-call headers take precedence.
	Headers map[string]string `yaml:"headers"`

	// RequestsPerSecond limits the outgoing request rate. Zero disables
	// limiting.
	RequestsPerSecond float64 `yaml:"requests_per_second"`

	// Burst is the number of requests allowed at once when limiting is on.
	// Defaults to 1.
	Burst int `yaml:"burst"`

	// MaxResponseSize bounds response body reads.
	MaxResponseSize int64 `yaml:"max_response_size"`
}

// LoadConfig loads and validates a configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.RequestsPerSecond > 0 && c.Burst == 0 {
		c.Burst = 1
	}
	if c.MaxResponseSize == 0 {
		c.MaxResponseSize = DefaultMaxResponseSize
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("base_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("base_url: unsupported scheme %q (supported: http, https)", u.Scheme)
		}
		if u.Host == "" {
			return fmt.Errorf("base_url: host is required")
		}
	}
	if c.Timeout < 0 {
		return fmt.Errorf("timeout must not be negative")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second must not be negative")
	}
	if c.Burst < 0 {
		return fmt.Errorf("burst must not be negative")
	}
	if c.MaxResponseSize < 0 {
		return fmt.Errorf("max_response_size must not be negative")
	}
	return nil
}
