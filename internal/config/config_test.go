// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, defaults, env var expansion and overrides, durations, and client TOML

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv blanks the AUTHGATE_* overrides so the host environment cannot leak into tests
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"AUTHGATE_HTTP_ADDR", "AUTHGATE_DB_PATH", "AUTHGATE_JWT_SECRET",
		"AUTHGATE_LOG_LEVEL", "AUTHGATE_TOKEN_TTL", "AUTHGATE_CORS_ORIGINS",
	} {
		t.Setenv(key, "") // restores the original value on cleanup
		os.Unsetenv(key)
	}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

const minimalConfig = `
database:
  path: "./test.db"
auth:
  jwt_secret: "s3cret"
`

func TestLoad_ValidConfig(t *testing.T) {
	clearEnv(t)
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:8080"
  shutdown_timeout: "10s"

database:
  path: "./test.db"
  driver: "sqlite3"

auth:
  jwt_secret: "s3cret"
  issuer: "authgate"
  token_ttl: "15m"
  scheme: "Token"
  exempt_prefixes:
    - "/auth"
    - "/public"
  bcrypt_cost: 12

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Server.ShutdownTimeout = %v, want %v", cfg.Server.ShutdownTimeout, 10*time.Second)
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Database.Driver != "sqlite3" {
		t.Errorf("Database.Driver = %q, want %q", cfg.Database.Driver, "sqlite3")
	}

	assert.Equal(t, "s3cret", cfg.Auth.JWTSecret)
	assert.Equal(t, "authgate", cfg.Auth.Issuer)
	assert.Equal(t, 15*time.Minute, cfg.Auth.TokenTTL)
	assert.Equal(t, "Token", cfg.Auth.Scheme)
	assert.Equal(t, []string{"/auth", "/public"}, cfg.Auth.ExemptPrefixes)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "config.yaml", minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "localhost:5000", cfg.Server.HTTPAddr)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, "Bearer", cfg.Auth.Scheme)
	assert.Equal(t, []string{"/auth", "/health"}, cfg.Auth.ExemptPrefixes)
	assert.Equal(t, 10, cfg.Auth.BcryptCost)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestDefault_IsolatedSlices(t *testing.T) {
	a := Default()
	a.Auth.ExemptPrefixes[0] = "/changed"
	a.Server.CORSOrigins[0] = "http://changed.example"
	assert.Equal(t, "/auth", Default().Auth.ExemptPrefixes[0])
	assert.Equal(t, "/auth", DefaultExemptPrefixes[0])
	assert.Equal(t, "*", Default().Server.CORSOrigins[0])
}

func TestLoad_CORSOrigins(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeConfig(t, "config.yaml", minimalConfig+`
server:
  cors_origins: ["http://localhost:8000", "https://app.example.com"]
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:8000", "https://app.example.com"}, cfg.Server.CORSOrigins)

	cfg, err = Load(writeConfig(t, "config.yaml", minimalConfig+`
server:
  cors_origins: []
`))
	require.NoError(t, err)
	assert.Empty(t, cfg.Server.CORSOrigins)

	t.Setenv("AUTHGATE_CORS_ORIGINS", "http://a.example,http://b.example")
	cfg, err = Load(writeConfig(t, "config.yaml", minimalConfig))
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.Server.CORSOrigins)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	clearEnv(t)
	t.Setenv("TEST_JWT_SECRET", "secret-from-env")
	t.Setenv("TEST_DB_DIR", "/var/lib/authgate")

	cfg, err := Load(writeConfig(t, "config.yaml", `
database:
  path: "${TEST_DB_DIR}/gateway.db"
auth:
  jwt_secret: "${TEST_JWT_SECRET}"
`))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Auth.JWTSecret != "secret-from-env" {
		t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "secret-from-env")
	}
	if cfg.Database.Path != "/var/lib/authgate/gateway.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/var/lib/authgate/gateway.db")
	}
}

func TestLoad_EnvVarExpansion_UnsetVar(t *testing.T) {
	clearEnv(t)
	os.Unsetenv("UNSET_VAR_FOR_TEST")

	_, err := Load(writeConfig(t, "config.yaml", `
database:
  path: "./test.db"
auth:
  jwt_secret: "${UNSET_VAR_FOR_TEST}"
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth.jwt_secret is required")
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTHGATE_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("AUTHGATE_DB_PATH", "/tmp/override.db")
	t.Setenv("AUTHGATE_JWT_SECRET", "override-secret")
	t.Setenv("AUTHGATE_LOG_LEVEL", "warn")
	t.Setenv("AUTHGATE_TOKEN_TTL", "2h")

	cfg, err := Load(writeConfig(t, "config.yaml", minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.HTTPAddr)
	assert.Equal(t, "/tmp/override.db", cfg.Database.Path)
	assert.Equal(t, "override-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
}

func TestLoad_EnvOverrideInvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("AUTHGATE_TOKEN_TTL", "soon")

	_, err := Load(writeConfig(t, "config.yaml", minimalConfig))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeConfig(t, "config.yaml", "server: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing config file")
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"token ttl", minimalConfig + "  token_ttl: \"forever\"\n", "token_ttl"},
		{"shutdown timeout", minimalConfig + "server:\n  shutdown_timeout: \"later\"\n", "shutdown_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	clearEnv(t)
	tests := []struct {
		name          string
		configContent string
		wantErrSubstr string
	}{
		{
			name: "missing http_addr",
			configContent: minimalConfig + `
server:
  http_addr: ""
`,
			wantErrSubstr: "server.http_addr is required",
		},
		{
			name: "empty cors origin",
			configContent: minimalConfig + `
server:
  cors_origins: ["http://a.example", ""]
`,
			wantErrSubstr: "server.cors_origins",
		},
		{
			name: "missing database path",
			configContent: `
database:
  path: ""
auth:
  jwt_secret: "x"
`,
			wantErrSubstr: "database.path is required",
		},
		{
			name: "unknown driver",
			configContent: `
database:
  path: "./test.db"
  driver: "postgres"
auth:
  jwt_secret: "x"
`,
			wantErrSubstr: "database.driver",
		},
		{
			name: "missing secret",
			configContent: `
database:
  path: "./test.db"
`,
			wantErrSubstr: "auth.jwt_secret is required",
		},
		{
			name:          "non-positive ttl",
			configContent: minimalConfig + "  token_ttl: \"-1m\"\n",
			wantErrSubstr: "auth.token_ttl must be positive",
		},
		{
			name:          "bad exempt pattern",
			configContent: minimalConfig + "  exempt_pattern: \"(\"\n",
			wantErrSubstr: "auth.exempt_pattern",
		},
		{
			name:          "bcrypt cost too high",
			configContent: minimalConfig + "  bcrypt_cost: 99\n",
			wantErrSubstr: "auth.bcrypt_cost",
		},
		{
			name:          "bad log level",
			configContent: minimalConfig + "logging:\n  level: \"loud\"\n",
			wantErrSubstr: "logging.level",
		},
		{
			name:          "bad log format",
			configContent: minimalConfig + "logging:\n  format: \"xml\"\n",
			wantErrSubstr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.configContent))
			if err == nil {
				t.Errorf("Load() expected error containing %q, got nil", tt.wantErrSubstr)
				return
			}

			if !strings.Contains(err.Error(), tt.wantErrSubstr) {
				t.Errorf("Load() error = %q, want error containing %q", err.Error(), tt.wantErrSubstr)
			}
		})
	}
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")
	t.Setenv("BAZ", "qux")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "single env var",
			input:    "${FOO}",
			expected: "bar",
		},
		{
			name:     "env var with surrounding text",
			input:    "prefix-${FOO}-suffix",
			expected: "prefix-bar-suffix",
		},
		{
			name:     "multiple env vars",
			input:    "${FOO}/${BAZ}",
			expected: "bar/qux",
		},
		{
			name:     "no env vars",
			input:    "no-vars-here",
			expected: "no-vars-here",
		},
		{
			name:     "unset env var",
			input:    "${UNSET_VAR}",
			expected: "",
		},
		{
			name:     "empty string",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := expandEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("expandEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLoadClient(t *testing.T) {
	t.Setenv("TEST_API_HOST", "api.example.com")

	cfg, err := LoadClient(writeConfig(t, "client.toml", `
base_url = "https://${TEST_API_HOST}"
auth_scheme = "Token"
timeout = "5s"
response_type = "text"
token_path = "/tmp/token"
`))
	require.NoError(t, err)

	assert.Equal(t, "https://api.example.com", cfg.BaseURL)
	assert.Equal(t, "Token", cfg.AuthScheme)
	assert.Equal(t, 5*time.Second, cfg.Timeout)
	assert.Equal(t, "text", cfg.ResponseType)
	assert.Equal(t, "/tmp/token", cfg.TokenPath)
}

func TestLoadClient_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadClient(filepath.Join(t.TempDir(), "absent.toml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.BaseURL)
	assert.Equal(t, "Bearer", cfg.AuthScheme)
	assert.Equal(t, 30*time.Second, cfg.Timeout)
	assert.Equal(t, "json", cfg.ResponseType)
}

func TestLoadClient_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad toml", `base_url = `, "parsing config"},
		{"bad scheme", `base_url = "ftp://x"`, "http or https"},
		{"bad timeout", `timeout = "whenever"`, "parsing timeout"},
		{"bad response type", `response_type = "xml"`, "response_type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadClient(writeConfig(t, "client.toml", tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
