// ABOUTME: Configuration loading and parsing for the authgate server
// ABOUTME: Supports YAML files with environment variable expansion, duration parsing, and env overrides

package config

import (
	"fmt"
	"os"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// Defaults applied before the config file is read
const (
	DefaultHTTPAddr        = "localhost:5000"
	DefaultTokenTTL        = time.Hour
	DefaultShutdownTimeout = 5 * time.Second
	DefaultScheme          = "Bearer"
	DefaultDriver          = "sqlite"
	DefaultBcryptCost      = bcrypt.DefaultCost
)

// DefaultExemptPrefixes are the routes reachable without a token
var DefaultExemptPrefixes = []string{"/auth", "/health"}

// DefaultCORSOrigins allows browser clients from any origin
var DefaultCORSOrigins = []string{"*"}

// Config represents the complete authgate server configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig holds the listener configuration
type ServerConfig struct {
	HTTPAddr        string        `yaml:"http_addr"`
	ShutdownTimeout time.Duration `yaml:"-"`
	CORSOrigins     []string      `yaml:"cors_origins"` // empty disables CORS headers

	// Raw string value for YAML unmarshaling
	ShutdownTimeoutRaw string `yaml:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path   string `yaml:"path"`
	Driver string `yaml:"driver"` // "sqlite" (modernc) or "sqlite3" (mattn, cgo)
}

// AuthConfig holds token and gate configuration
type AuthConfig struct {
	JWTSecret      string        `yaml:"jwt_secret"`
	Issuer         string        `yaml:"issuer"`
	TokenTTL       time.Duration `yaml:"-"`
	Scheme         string        `yaml:"scheme"`
	ExemptPrefixes []string      `yaml:"exempt_prefixes"`
	ExemptPattern  string        `yaml:"exempt_pattern"` // overrides ExemptPrefixes when set
	BcryptCost     int           `yaml:"bcrypt_cost"`

	// Raw string value for YAML unmarshaling
	TokenTTLRaw string `yaml:"token_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// envOverrides are read from the process environment after the file
type envOverrides struct {
	HTTPAddr  string        `env:"AUTHGATE_HTTP_ADDR"`
	DBPath    string        `env:"AUTHGATE_DB_PATH"`
	JWTSecret string        `env:"AUTHGATE_JWT_SECRET"`
	LogLevel  string        `env:"AUTHGATE_LOG_LEVEL"`
	TokenTTL  time.Duration `env:"AUTHGATE_TOKEN_TTL"`
	Origins   []string      `env:"AUTHGATE_CORS_ORIGINS" envSeparator:","`
}

// Default returns a Config with every optional field filled in.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr:        DefaultHTTPAddr,
			ShutdownTimeout: DefaultShutdownTimeout,
			CORSOrigins:     slices.Clone(DefaultCORSOrigins),
		},
		Database: DatabaseConfig{
			Driver: DefaultDriver,
		},
		Auth: AuthConfig{
			TokenTTL:       DefaultTokenTTL,
			Scheme:         DefaultScheme,
			ExemptPrefixes: slices.Clone(DefaultExemptPrefixes),
			BcryptCost:     DefaultBcryptCost,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
// AUTHGATE_* environment variables override values from the file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from YAML content. See Load.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expandedData), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnv overlays AUTHGATE_* variables onto cfg
func applyEnv(cfg *Config) error {
	var o envOverrides
	if err := env.Parse(&o); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}

	if o.HTTPAddr != "" {
		cfg.Server.HTTPAddr = o.HTTPAddr
	}
	if o.DBPath != "" {
		cfg.Database.Path = o.DBPath
	}
	if o.JWTSecret != "" {
		cfg.Auth.JWTSecret = o.JWTSecret
	}
	if o.LogLevel != "" {
		cfg.Logging.Level = o.LogLevel
	}
	if o.TokenTTL != 0 {
		cfg.Auth.TokenTTL = o.TokenTTL
	}
	if len(o.Origins) > 0 {
		cfg.Server.CORSOrigins = o.Origins
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be positive")
	}
	for _, origin := range c.Server.CORSOrigins {
		if strings.TrimSpace(origin) == "" {
			return fmt.Errorf("server.cors_origins must not contain empty entries")
		}
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Database.Driver {
	case "sqlite", "sqlite3":
	default:
		return fmt.Errorf("database.driver must be \"sqlite\" or \"sqlite3\", got %q", c.Database.Driver)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.Auth.Scheme == "" {
		return fmt.Errorf("auth.scheme is required")
	}
	if c.Auth.ExemptPattern != "" {
		if _, err := regexp.Compile(c.Auth.ExemptPattern); err != nil {
			return fmt.Errorf("auth.exempt_pattern: %w", err)
		}
	}
	if c.Auth.BcryptCost < bcrypt.MinCost || c.Auth.BcryptCost > bcrypt.MaxCost {
		return fmt.Errorf("auth.bcrypt_cost must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Server.ShutdownTimeoutRaw != "" {
		cfg.Server.ShutdownTimeout, err = time.ParseDuration(cfg.Server.ShutdownTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing shutdown_timeout %q: %w", cfg.Server.ShutdownTimeoutRaw, err)
		}
	}

	if cfg.Auth.TokenTTLRaw != "" {
		cfg.Auth.TokenTTL, err = time.ParseDuration(cfg.Auth.TokenTTLRaw)
		if err != nil {
			return fmt.Errorf("parsing token_ttl %q: %w", cfg.Auth.TokenTTLRaw, err)
		}
	}

	return nil
}
