// ABOUTME: HTTP middleware enforcing bearer tokens on every non-exempt route
// ABOUTME: Extracts the token from the Authorization header and adds verified claims to context

package auth

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
)

// DefaultScheme is the Authorization scheme word accepted when none is configured
const DefaultScheme = "Bearer"

// Gate rejection messages
const (
	MsgMalformedAuthorization = "missing or malformed authorization"
	MsgInvalidToken           = "invalid or expired token"
)

// ExemptPolicy decides which requests bypass the gate
type ExemptPolicy interface {
	Exempt(r *http.Request) bool
}

// PrefixPolicy exempts any path equal to one of its prefixes or nested beneath one.
// "/auth" matches "/auth" and "/auth/login" but not "/authors".
type PrefixPolicy []string

// Exempt implements ExemptPolicy
func (p PrefixPolicy) Exempt(r *http.Request) bool {
	path := r.URL.Path
	for _, prefix := range p {
		prefix = strings.TrimSuffix(prefix, "/")
		if prefix == "" {
			continue
		}
		if path == prefix || strings.HasPrefix(path, prefix+"/") {
			return true
		}
	}
	return false
}

type regexpPolicy struct {
	re *regexp.Regexp
}

// RegexpPolicy exempts requests whose path matches re
func RegexpPolicy(re *regexp.Regexp) ExemptPolicy {
	return regexpPolicy{re: re}
}

func (p regexpPolicy) Exempt(r *http.Request) bool {
	return p.re != nil && p.re.MatchString(r.URL.Path)
}

// GateConfig configures the Gate middleware
type GateConfig struct {
	Scheme string       // Authorization scheme word, compared exactly; defaults to DefaultScheme
	Exempt ExemptPolicy // nil guards every request
	Logger *slog.Logger
}

// extractToken splits "<scheme> <token>" and returns the token when scheme matches.
func extractToken(header, scheme string) (string, bool) {
	if header == "" {
		return "", false
	}
	word, token, found := strings.Cut(header, " ")
	if !found || word != scheme {
		return "", false
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", false
	}
	return token, true
}

// Gate creates an HTTP middleware that lets exempt requests through and requires a
// valid token on all others. Claims of admitted requests are stored in the request context.
// Admission trusts the token alone; the credential store is not consulted.
func Gate(verifier TokenVerifier, cfg GateConfig) func(http.Handler) http.Handler {
	scheme := cfg.Scheme
	if scheme == "" {
		scheme = DefaultScheme
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "gate")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Exempt != nil && cfg.Exempt.Exempt(r) {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := extractToken(r.Header.Get("Authorization"), scheme)
			if !ok {
				logger.Info("http auth failure", "reason", "token_extraction_failed",
					"method", r.Method, "path", r.URL.Path)
				WriteUnauthorized(w, MsgMalformedAuthorization)
				return
			}

			claims, err := verifier.Verify(token)
			if err != nil {
				logger.Info("http auth failure", "reason", "token_verification_failed",
					"method", r.Method, "path", r.URL.Path, "error", err)
				WriteUnauthorized(w, MsgInvalidToken)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// errorBody is the JSON shape of every rejection
type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// WriteUnauthorized answers 401 with a {status, message} body.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorBody{Status: http.StatusUnauthorized, Message: message})
}
