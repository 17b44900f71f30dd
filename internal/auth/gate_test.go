// ABOUTME: Tests for the bearer-token gate middleware
// ABOUTME: Covers exempt routes, malformed headers, invalid and expired tokens, and failure logging

package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gateTestLogHandler captures log records for testing gate logging.
type gateTestLogHandler struct {
	records []slog.Record
}

func (h *gateTestLogHandler) Enabled(_ context.Context, _ slog.Level) bool { return true }
func (h *gateTestLogHandler) WithAttrs(_ []slog.Attr) slog.Handler         { return h }
func (h *gateTestLogHandler) WithGroup(_ string) slog.Handler              { return h }
func (h *gateTestLogHandler) Handle(_ context.Context, r slog.Record) error {
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *gateTestLogHandler) hasRecordWithReason(reason string) bool {
	for _, r := range h.records {
		var foundReason string
		r.Attrs(func(a slog.Attr) bool {
			if a.Key == "reason" {
				foundReason = a.Value.String()
				return false
			}
			return true
		})
		if foundReason == reason {
			return true
		}
	}
	return false
}

func decodeRejection(t *testing.T, rec *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), "body: %s", rec.Body.String())
	return body
}

func TestGate(t *testing.T) {
	clock := &fakeClock{t: time.Now()}
	codec := newTestCodec(t, WithClock(clock.Now))

	valid, _, err := codec.Issue("42", "a@example.com")
	require.NoError(t, err)

	expiredCodec := newTestCodec(t, WithClock(func() time.Time { return clock.t.Add(-2 * time.Hour) }))
	expired, _, err := expiredCodec.Issue("42", "a@example.com")
	require.NoError(t, err)

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantMsg    string
	}{
		{"exempt login without header", "/auth/login", "", http.StatusOK, ""},
		{"exempt register with garbage", "/auth/register", "Bearer garbage", http.StatusOK, ""},
		{"exempt root of prefix", "/auth", "", http.StatusOK, ""},
		{"prefix is segment aware", "/authors", "", http.StatusUnauthorized, MsgMalformedAuthorization},
		{"no header", "/posts", "", http.StatusUnauthorized, MsgMalformedAuthorization},
		{"basic scheme", "/posts", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, MsgMalformedAuthorization},
		{"lowercase scheme", "/posts", "bearer " + valid, http.StatusUnauthorized, MsgMalformedAuthorization},
		{"scheme without token", "/posts", "Bearer", http.StatusUnauthorized, MsgMalformedAuthorization},
		{"scheme with blank token", "/posts", "Bearer   ", http.StatusUnauthorized, MsgMalformedAuthorization},
		{"bearer garbage", "/posts", "Bearer garbage", http.StatusUnauthorized, MsgInvalidToken},
		{"bearer expired", "/posts", "Bearer " + expired, http.StatusUnauthorized, MsgInvalidToken},
		{"bearer valid", "/posts", "Bearer " + valid, http.StatusOK, ""},
		{"bearer valid nested", "/posts/1", "Bearer " + valid, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			})

			gate := Gate(codec, GateConfig{Exempt: PrefixPolicy{"/auth", "/health"}})

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			gate(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusUnauthorized {
				assert.False(t, called, "handler should not be called")
				body := decodeRejection(t, rec)
				assert.Equal(t, http.StatusUnauthorized, body.Status)
				assert.Equal(t, tt.wantMsg, body.Message)
				assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			} else {
				assert.True(t, called, "handler should be called")
			}
		})
	}
}

func TestGate_ClaimsInContext(t *testing.T) {
	codec := newTestCodec(t)
	token, _, err := codec.Issue("42", "a@example.com")
	require.NoError(t, err)

	var got Claims
	var ok bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, ok = ClaimsFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	Gate(codec, GateConfig{})(next).ServeHTTP(httptest.NewRecorder(), req)

	require.True(t, ok)
	assert.Equal(t, "42", got.Subject)
	assert.Equal(t, "a@example.com", got.Email)
}

func TestGate_ExemptHasNoClaims(t *testing.T) {
	codec := newTestCodec(t)

	ok := true
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, ok = ClaimsFromContext(r.Context())
	})

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	Gate(codec, GateConfig{Exempt: PrefixPolicy{"/auth"}})(next).ServeHTTP(httptest.NewRecorder(), req)

	assert.False(t, ok)
}

func TestGate_CustomScheme(t *testing.T) {
	codec := newTestCodec(t)
	token, _, err := codec.Issue("42", "")
	require.NoError(t, err)

	gate := Gate(codec, GateConfig{Scheme: "Token"})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set("Authorization", "Token "+token)
	rec := httptest.NewRecorder()
	gate(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	gate(next).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRegexpPolicy(t *testing.T) {
	policy := RegexpPolicy(regexp.MustCompile(`^/(auth|public)(/|$)`))

	tests := []struct {
		path string
		want bool
	}{
		{"/auth/login", true},
		{"/public", true},
		{"/public/logo.png", true},
		{"/posts", false},
		{"/authx", false},
	}
	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, tt.path, nil)
		assert.Equal(t, tt.want, policy.Exempt(req), tt.path)
	}

	assert.False(t, RegexpPolicy(nil).Exempt(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestGate_LogsFailure(t *testing.T) {
	codec := newTestCodec(t)
	handler := &gateTestLogHandler{}
	gate := Gate(codec, GateConfig{Logger: slog.New(handler)})
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not be called")
	})

	req := httptest.NewRequest(http.MethodGet, "/posts", nil)
	gate(next).ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, handler.hasRecordWithReason("token_extraction_failed"))

	req = httptest.NewRequest(http.MethodGet, "/posts", nil)
	req.Header.Set("Authorization", "Bearer invalid-token")
	gate(next).ServeHTTP(httptest.NewRecorder(), req)
	assert.True(t, handler.hasRecordWithReason("token_verification_failed"))
}

func TestClaimsFromContext_Missing(t *testing.T) {
	_, ok := ClaimsFromContext(context.Background())
	assert.False(t, ok)

	ctx := WithClaims(context.Background(), Claims{Subject: "1"})
	claims, ok := ClaimsFromContext(ctx)
	assert.True(t, ok)
	assert.Equal(t, "1", claims.Subject)
}
