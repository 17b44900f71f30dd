// ABOUTME: Entry point for the authgate server and its command-line client
// ABOUTME: Dispatches serve/init/health and the register, login, and resource commands

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"

	"github.com/2389/authgate/internal/client"
	"github.com/2389/authgate/internal/config"
	"github.com/2389/authgate/internal/gateway"
	"github.com/2389/authgate/internal/store"
)

// Version is set at build time.
var version = "dev"

const banner = `
              _   _                 _
   __ _ _   _| |_| |__   __ _  __ _| |_ ___
  / _' | | | | __| '_ \ / _' |/ _' | __/ _ \
 | (_| | |_| | |_| | | | (_| | (_| | ||  __/
  \__,_|\__,_|\__|_| |_|\__, |\__,_|\__\___|
                        |___/
`

// configDir returns the authgate config directory.
// Priority: XDG_CONFIG_HOME/authgate > ~/.config/authgate
func configDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "." // fallback
		}
		dir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(dir, "authgate")
}

// getConfigPath returns the path to the server config file.
// Priority: AUTHGATE_CONFIG env var > <config dir>/gateway.yaml
func getConfigPath() string {
	if envPath := os.Getenv("AUTHGATE_CONFIG"); envPath != "" {
		return envPath
	}
	return filepath.Join(configDir(), "gateway.yaml")
}

// getClientConfigPath returns the path to the client config file.
// Priority: AUTHGATE_CLIENT_CONFIG env var > <config dir>/client.toml
func getClientConfigPath() string {
	if envPath := os.Getenv("AUTHGATE_CLIENT_CONFIG"); envPath != "" {
		return envPath
	}
	return filepath.Join(configDir(), "client.toml")
}

// getDataPath returns the authgate data directory.
// Priority: XDG_DATA_HOME/authgate > ~/.local/share/authgate
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "authgate")
}

func usage() {
	fmt.Println("Usage: authgate <command>")
	fmt.Println()
	fmt.Println("Server commands:")
	fmt.Println("  serve                          Start the gateway server")
	fmt.Println("  init                           Create config files interactively")
	fmt.Println("  health                         Check gateway health")
	fmt.Println("  users                          List registered users")
	fmt.Println()
	fmt.Println("Client commands:")
	fmt.Println("  register --email E [--password P]    Create an account and save its token")
	fmt.Println("  login --email E [--password P]       Log in and save the issued token")
	fmt.Println("  get <resource> [id] [--where k=v]    Read a collection or record")
	fmt.Println("  delete <resource> [id]               Delete a record")
	fmt.Println("  post <resource> [id] <json|->        Create a record")
	fmt.Println("  put <resource> [id] <json|->         Replace a record")
	fmt.Println("  patch <resource> [id] <json|->       Merge fields into a record")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	args := os.Args[2:]
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "health":
		err = runHealth(ctx)
	case "users":
		err = runUsers(ctx)
	case "register", "login":
		err = runCredentials(ctx, os.Args[1], args)
	case "get", "delete":
		err = runRead(ctx, os.Args[1], args)
	case "post", "put", "patch":
		err = runWrite(ctx, os.Args[1], args)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		var apiErr *client.Error
		if errors.As(err, &apiErr) && apiErr.StatusCode != 0 {
			color.New(color.FgRed).Fprintf(os.Stderr, "Error %d: ", apiErr.StatusCode)
			fmt.Fprintln(os.Stderr, apiErr.Message)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s ", cfg.Database.Path)
	gray.Printf("(%s)\n", cfg.Database.Driver)
	green.Print("    ▶ ")
	fmt.Printf("Token TTL: %s\n", cfg.Auth.TokenTTL)
	fmt.Println()

	logger.Info("starting authgate",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"version", version,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// healthBaseURL turns a listen address into a URL a local client can dial.
// Wildcard and empty hosts become localhost.
func healthBaseURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr
	}
	switch host {
	case "", "0.0.0.0", "::":
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	c, err := client.New(client.Options{
		BaseURL: healthBaseURL(cfg.Server.HTTPAddr),
		Timeout: 5 * time.Second,
		Logger:  slog.New(slog.DiscardHandler),
	})
	if err != nil {
		return err
	}

	payload, err := c.Get(ctx, "health", "", nil)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	var health struct {
		Status string `json:"status"`
		Users  int    `json:"users"`
	}
	if err := payload.Decode(&health); err != nil {
		return fmt.Errorf("decoding health response: %w", err)
	}
	if health.Status != "ok" {
		return fmt.Errorf("unhealthy: %s", health.Status)
	}

	color.New(color.FgGreen).Print("healthy")
	fmt.Printf(" (%d users)\n", health.Users)
	return nil
}

// runUsers opens the configured database directly and lists its users.
func runUsers(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	s, err := store.NewSQLiteStore(cfg.Database.Path,
		store.WithDriver(cfg.Database.Driver),
		store.WithLogger(slog.New(slog.DiscardHandler)),
	)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer s.Close()

	users, err := s.ListUsers(ctx)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		fmt.Println("No users registered.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tEMAIL\tCREATED")
	for _, u := range users {
		fmt.Fprintf(w, "%d\t%s\t%s\n", u.ID, u.Email, u.CreatedAt.Local().Format(time.DateTime))
	}
	return w.Flush()
}

// newSecret returns 32 random bytes, base64 encoded.
func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func isYes(answer string) bool {
	answer = strings.ToLower(answer)
	return answer == "yes" || answer == "y"
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("authgate configuration setup")
	fmt.Println("============================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath())
	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	fmt.Println("\n--- Server Configuration ---")
	httpAddr := prompt(reader, "HTTP address", config.DefaultHTTPAddr)

	fmt.Println("\n--- Database Configuration ---")
	dbPath := prompt(reader, "SQLite database path", filepath.Join(getDataPath(), "gateway.db"))
	driver := prompt(reader, "SQLite driver (sqlite/sqlite3)", config.DefaultDriver)

	fmt.Println("\n--- Token Configuration ---")
	tokenTTL := prompt(reader, "Token lifetime", config.DefaultTokenTTL.String())
	issuer := prompt(reader, "Token issuer (leave empty for none)", "")

	fmt.Println("\n--- Logging Configuration ---")
	logLevel := prompt(reader, "Log level (debug/info/warn/error)", "info")
	logFormat := prompt(reader, "Log format (text/json)", "text")

	secret, err := newSecret()
	if err != nil {
		return err
	}

	var cfg strings.Builder
	cfg.WriteString("# authgate configuration\n")
	cfg.WriteString("# Generated by authgate init\n\n")

	cfg.WriteString("server:\n")
	cfg.WriteString(fmt.Sprintf("  http_addr: \"%s\"\n", httpAddr))
	cfg.WriteString(fmt.Sprintf("  shutdown_timeout: \"%s\"\n", config.DefaultShutdownTimeout))
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	cfg.WriteString(fmt.Sprintf("  path: \"%s\"\n", dbPath))
	cfg.WriteString(fmt.Sprintf("  driver: \"%s\"\n", driver))
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	cfg.WriteString(fmt.Sprintf("  jwt_secret: \"%s\"\n", secret))
	cfg.WriteString(fmt.Sprintf("  token_ttl: \"%s\"\n", tokenTTL))
	if issuer != "" {
		cfg.WriteString(fmt.Sprintf("  issuer: \"%s\"\n", issuer))
	}
	cfg.WriteString("  exempt_prefixes:\n")
	for _, p := range config.DefaultExemptPrefixes {
		cfg.WriteString(fmt.Sprintf("    - \"%s\"\n", p))
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	cfg.WriteString(fmt.Sprintf("  level: \"%s\"\n", logLevel))
	cfg.WriteString(fmt.Sprintf("  format: \"%s\"\n", logFormat))

	// Refuse to write a config serve would reject
	if _, err := config.Parse([]byte(cfg.String())); err != nil {
		return fmt.Errorf("generated config is invalid: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file holds the signing secret
	if err := os.WriteFile(outputFile, []byte(cfg.String()), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	dataDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Printf("Data directory: %s\n", dataDir)

	clientPath := getClientConfigPath()
	if _, err := os.Stat(clientPath); errors.Is(err, os.ErrNotExist) {
		if err := writeClientConfig(clientPath, "http://"+httpAddr); err != nil {
			return err
		}
		fmt.Printf("Client config written to %s\n", clientPath)
	}

	fmt.Println("\nTo start the server:")
	fmt.Println("  authgate serve")

	return nil
}

// writeClientConfig writes a client.toml pointing at baseURL.
func writeClientConfig(path, baseURL string) error {
	cfg := config.DefaultClient()
	cfg.BaseURL = baseURL
	cfg.TimeoutRaw = cfg.Timeout.String()
	cfg.TokenPath = filepath.Join(filepath.Dir(path), "token")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("creating client config: %w", err)
	}
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing client config: %w", err)
	}
	return f.Close()
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
