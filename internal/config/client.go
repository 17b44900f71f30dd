// ABOUTME: Configuration loading for the authgate client CLI
// ABOUTME: Loads TOML config with environment variable expansion and client defaults

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Client defaults
const (
	DefaultBaseURL       = "http://localhost:8000"
	DefaultClientTimeout = 30 * time.Second
	DefaultResponseType  = "json"
)

// ClientConfig configures the request pipeline used by the CLI
type ClientConfig struct {
	BaseURL      string        `toml:"base_url"`
	AuthScheme   string        `toml:"auth_scheme"`
	Timeout      time.Duration `toml:"-"`
	ResponseType string        `toml:"response_type"`
	TokenPath    string        `toml:"token_path"`

	// Raw string value for TOML decoding
	TimeoutRaw string `toml:"timeout"`
}

// DefaultClient returns a ClientConfig with defaults filled in.
func DefaultClient() *ClientConfig {
	return &ClientConfig{
		BaseURL:      DefaultBaseURL,
		AuthScheme:   DefaultScheme,
		Timeout:      DefaultClientTimeout,
		ResponseType: DefaultResponseType,
	}
}

// LoadClient reads client config from the given path, expanding environment variables.
// A missing file yields the defaults.
func LoadClient(path string) (*ClientConfig, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultClient(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultClient()
	if _, err := toml.Decode(expandEnvVars(string(data)), cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.TimeoutRaw != "" {
		cfg.Timeout, err = time.ParseDuration(cfg.TimeoutRaw)
		if err != nil {
			return nil, fmt.Errorf("parsing timeout %q: %w", cfg.TimeoutRaw, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks that required config fields are present and valid.
func (c *ClientConfig) Validate() error {
	if c.BaseURL == "" {
		return fmt.Errorf("base_url is required")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("base_url must use http or https scheme")
	}
	if c.AuthScheme == "" {
		return fmt.Errorf("auth_scheme is required")
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	switch c.ResponseType {
	case "json", "text", "blob":
	default:
		return fmt.Errorf("response_type must be json, text, or blob")
	}
	return nil
}
