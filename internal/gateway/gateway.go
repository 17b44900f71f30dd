// ABOUTME: Gateway orchestrator that wires the store, token codec, gate, and HTTP server
// ABOUTME: Manages the HTTP listener, health endpoint, and graceful shutdown lifecycle

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"time"

	"github.com/2389/authgate/internal/auth"
	"github.com/2389/authgate/internal/config"
	"github.com/2389/authgate/internal/store"
)

// Store is everything the gateway persists
type Store interface {
	store.CredentialStore
	store.ResourceStore
}

// Gateway serves the auth endpoints and the guarded resource API.
type Gateway struct {
	config     *config.Config
	store      Store
	codec      *auth.Codec
	handler    http.Handler
	httpServer *http.Server
	logger     *slog.Logger
}

// New opens the configured SQLite store and builds a Gateway on top of it.
func New(cfg *config.Config, logger *slog.Logger) (*Gateway, error) {
	s, err := initStore(cfg, logger)
	if err != nil {
		return nil, err
	}

	gw, err := NewWithStore(cfg, s, logger)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	return gw, nil
}

// initStore creates and returns a store based on config.
func initStore(cfg *config.Config, logger *slog.Logger) (*store.SQLiteStore, error) {
	s, err := store.NewSQLiteStore(cfg.Database.Path,
		store.WithDriver(cfg.Database.Driver),
		store.WithBcryptCost(cfg.Auth.BcryptCost),
		store.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("initializing store: %w", err)
	}
	return s, nil
}

// NewWithStore builds a Gateway around an existing store. The gateway owns s
// from here on and closes it on Shutdown.
func NewWithStore(cfg *config.Config, s Store, logger *slog.Logger) (*Gateway, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var codecOpts []auth.CodecOption
	if cfg.Auth.Issuer != "" {
		codecOpts = append(codecOpts, auth.WithIssuer(cfg.Auth.Issuer))
	}
	codec, err := auth.NewCodec([]byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL, codecOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating token codec: %w", err)
	}

	exempt, err := exemptPolicy(cfg.Auth)
	if err != nil {
		return nil, err
	}

	gw := &Gateway{
		config: cfg,
		store:  s,
		codec:  codec,
		logger: logger.With("component", "gateway"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", gw.handleHealth)
	mux.HandleFunc("POST /auth/register", gw.handleRegister)
	mux.HandleFunc("POST /auth/login", gw.handleLogin)
	gw.registerResourceRoutes(mux)
	mux.HandleFunc("/", gw.handleNotFound)

	gate := auth.Gate(codec, auth.GateConfig{
		Scheme: cfg.Auth.Scheme,
		Exempt: exempt,
		Logger: logger,
	})

	withCORS := corsHandler(cfg.Server.CORSOrigins)
	gw.handler = requestID(accessLog(gw.logger, withCORS(gate(mux))))

	gw.httpServer = &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           gw.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return gw, nil
}

// exemptPolicy builds the gate bypass from config. A pattern wins over prefixes.
func exemptPolicy(cfg config.AuthConfig) (auth.ExemptPolicy, error) {
	if cfg.ExemptPattern != "" {
		re, err := regexp.Compile(cfg.ExemptPattern)
		if err != nil {
			return nil, fmt.Errorf("compiling exempt pattern: %w", err)
		}
		return auth.RegexpPolicy(re), nil
	}
	return auth.PrefixPolicy(cfg.ExemptPrefixes), nil
}

// Handler returns the fully wrapped HTTP handler, for tests and embedding.
func (g *Gateway) Handler() http.Handler {
	return g.handler
}

// Codec returns the token codec the gateway signs with.
func (g *Gateway) Codec() *auth.Codec {
	return g.codec
}

// Run starts the HTTP server and blocks until the context is canceled.
// Returns nil on graceful shutdown (context canceled), or an error if the server fails.
func (g *Gateway) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		_ = g.store.Close()
		return fmt.Errorf("listening on HTTP address: %w", err)
	}
	return g.Serve(ctx, ln)
}

// Serve runs the HTTP server on ln until the context is canceled.
func (g *Gateway) Serve(ctx context.Context, ln net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		g.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		g.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := g.gracefulShutdown()

	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	timeout := g.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops the HTTP server and releases the store.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	errs = appendCloseError(errs, "store close", g.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	users, err := g.store.CountUsers(r.Context())
	if err != nil {
		g.logger.Error("health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"users":  users,
	})
}

// handleNotFound answers any unmatched route.
func (g *Gateway) handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "route not found")
}
