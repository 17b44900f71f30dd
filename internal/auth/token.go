// ABOUTME: JWT token issuing and verification for authenticating HTTP requests
// ABOUTME: Uses HS256 signing with a configurable secret, lifetime, and clock

package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token errors
var (
	ErrTokenInvalid   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrSecretRequired = errors.New("jwt secret is required")
	ErrInvalidTTL     = errors.New("token ttl must be positive")
)

// DefaultTTL is the token lifetime used when none is configured
const DefaultTTL = time.Hour

// Claims is the identity carried inside a token.
// Subject is the decimal user id. Times are second-granular.
type Claims struct {
	Subject   string
	Email     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenVerifier defines the interface for token verification
type TokenVerifier interface {
	Verify(token string) (Claims, error)
}

// tokenClaims is the JWT wire form of Claims
type tokenClaims struct {
	Email string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

// Codec issues and verifies HS256 signed JWTs
type Codec struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

var _ TokenVerifier = (*Codec)(nil)

// CodecOption configures a Codec
type CodecOption func(*Codec)

// WithClock overrides the time source used for issuing and expiry checks
func WithClock(now func() time.Time) CodecOption {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIssuer sets the "iss" claim and requires it on verification
func WithIssuer(issuer string) CodecOption {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

// NewCodec creates a codec signing with secret. Tokens live for ttl.
func NewCodec(secret []byte, ttl time.Duration, opts ...CodecOption) (*Codec, error) {
	if len(secret) == 0 {
		return nil, ErrSecretRequired
	}
	if ttl <= 0 {
		return nil, ErrInvalidTTL
	}

	c := &Codec{
		secret: secret,
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TTL returns the configured token lifetime
func (c *Codec) TTL() time.Duration {
	return c.ttl
}

// Issue signs a token for subject valid from now until now+ttl.
func (c *Codec) Issue(subject, email string) (string, Claims, error) {
	return c.IssueAt(subject, email, c.now())
}

// IssueAt signs a token as if issued at now. The result depends only on
// its arguments, the secret, and the ttl.
func (c *Codec) IssueAt(subject, email string, now time.Time) (string, Claims, error) {
	if subject == "" {
		return "", Claims{}, fmt.Errorf("%w: empty subject", ErrTokenInvalid)
	}

	now = now.Truncate(time.Second)
	claims := Claims{
		Subject:   subject,
		Email:     email,
		IssuedAt:  now,
		ExpiresAt: now.Add(c.ttl),
	}

	wire := tokenClaims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Issuer:    c.issuer,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, wire).SignedString(c.secret)
	if err != nil {
		return "", Claims{}, fmt.Errorf("signing token: %w", err)
	}
	return token, claims, nil
}

// Verify validates the token and returns its claims.
// Errors are always ErrTokenInvalid or ErrTokenExpired.
func (c *Codec) Verify(tokenString string) (Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	var wire tokenClaims
	token, err := jwt.ParseWithClaims(tokenString, &wire, func(token *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrTokenExpired
		}
		return Claims{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if !token.Valid || wire.Subject == "" || wire.ExpiresAt == nil {
		return Claims{}, ErrTokenInvalid
	}

	// A token is dead at exp itself, not one tick after
	if !c.now().Before(wire.ExpiresAt.Time) {
		return Claims{}, ErrTokenExpired
	}

	claims := Claims{
		Subject:   wire.Subject,
		Email:     wire.Email,
		ExpiresAt: wire.ExpiresAt.Time,
	}
	if wire.IssuedAt != nil {
		claims.IssuedAt = wire.IssuedAt.Time
	}
	return claims, nil
}
