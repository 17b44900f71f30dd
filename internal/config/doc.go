// Package config handles configuration loading for authgate.
//
// # Overview
//
// The server reads a YAML file; the CLI client reads an optional TOML file.
// Both expand ${VAR_NAME} references against the environment before parsing,
// and both start from defaults so a file only needs the values it changes.
//
// # Server Configuration
//
//	server:
//	  http_addr: "localhost:5000"
//	  shutdown_timeout: "5s"
//	database:
//	  path: "/var/lib/authgate/gateway.db"
//	  driver: "sqlite"          # or "sqlite3" (cgo)
//	auth:
//	  jwt_secret: "${AUTHGATE_SECRET}"
//	  token_ttl: "1h"
//	  scheme: "Bearer"
//	  exempt_prefixes: ["/auth", "/health"]
//	  bcrypt_cost: 10
//	logging:
//	  level: "info"             # debug, info, warn, error
//	  format: "text"            # text or json
//
// Only database.path and auth.jwt_secret have no default.
//
// # Environment Overrides
//
// These variables win over the file when set:
//
//   - AUTHGATE_HTTP_ADDR
//   - AUTHGATE_DB_PATH
//   - AUTHGATE_JWT_SECRET
//   - AUTHGATE_LOG_LEVEL
//   - AUTHGATE_TOKEN_TTL
//
// # Client Configuration
//
//	base_url = "http://localhost:8000"
//	auth_scheme = "Bearer"
//	timeout = "30s"
//	response_type = "json"
//	token_path = "/home/me/.config/authgate/token"
//
// A missing client file is not an error; LoadClient returns the defaults.
package config
