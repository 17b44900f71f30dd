// ABOUTME: HTTP client for authgate with token attachment and error normalization
// ABOUTME: Wraps the HTTP verbs over a base URL, suffixing resource ids onto the path

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// ResponseType selects how response bodies are treated
type ResponseType string

const (
	ResponseJSON ResponseType = "json"
	ResponseText ResponseType = "text"
	ResponseBlob ResponseType = "blob"
)

const (
	DefaultBaseURL     = "http://localhost:8000"
	DefaultScheme      = "Bearer"
	DefaultTimeout     = 30 * time.Second
	DefaultContentType = "application/json"
)

// Options configures a Client. Zero values take the defaults above.
type Options struct {
	BaseURL      string
	Token        string
	AuthScheme   string
	Timeout      time.Duration
	ResponseType ResponseType
	ContentType  string
	Headers      http.Header
	TokenStore   TokenStore
	HTTPClient   *http.Client
	Logger       *slog.Logger
}

// Validate will validate the options
func (o Options) Validate() error {
	return validation.ValidateStruct(&o,
		validation.Field(&o.BaseURL, validation.Required, is.URL),
		validation.Field(&o.AuthScheme, validation.Required),
		validation.Field(&o.ResponseType, validation.Required, validation.In(ResponseJSON, ResponseText, ResponseBlob)),
	)
}

func (o *Options) applyDefaults() {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if o.AuthScheme == "" {
		o.AuthScheme = DefaultScheme
	}
	if o.Timeout == 0 {
		o.Timeout = DefaultTimeout
	}
	if o.ResponseType == "" {
		o.ResponseType = ResponseJSON
	}
	if o.ContentType == "" {
		o.ContentType = DefaultContentType
	}
}

// Payload is a successful response body
type Payload []byte

// Decode unmarshals a JSON payload into v
func (p Payload) Decode(v any) error {
	return json.Unmarshal(p, v)
}

func (p Payload) String() string {
	return string(p)
}

// Client sends requests through the hook chain
type Client struct {
	baseURL      *url.URL
	scheme       string
	timeout      time.Duration
	responseType ResponseType
	contentType  string
	headers      http.Header
	session      *Session
	httpClient   *http.Client
	logger       *slog.Logger

	requestHooks  []RequestHook
	responseHooks []ResponseHook
}

// New creates a Client. A missing TokenStore gets an in-memory one.
func New(opts Options) (*Client, error) {
	opts.applyDefaults()
	if err := opts.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client options: %w", err)
	}
	if opts.Timeout < 0 {
		return nil, errors.New("invalid client options: timeout must be positive")
	}

	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", base.Scheme)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	headers := make(http.Header)
	for key, values := range opts.Headers {
		headers[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}

	c := &Client{
		baseURL:      base,
		scheme:       opts.AuthScheme,
		timeout:      opts.Timeout,
		responseType: opts.ResponseType,
		contentType:  opts.ContentType,
		headers:      headers,
		session:      NewSession(opts.Token, opts.TokenStore),
		httpClient:   httpClient,
		logger:       logger.With("component", "client"),
	}
	c.requestHooks = []RequestHook{c.mergeHeaders, c.authorize}
	c.responseHooks = []ResponseHook{c.captureToken}
	return c, nil
}

// Session returns the client's token session
func (c *Client) Session() *Session {
	return c.session
}

// Get reads resource, or resource/id when id is set.
func (c *Client) Get(ctx context.Context, resource, id string, query url.Values) (Payload, error) {
	return c.do(ctx, http.MethodGet, c.endpoint(resource, id), query, nil)
}

// Post writes body to resource, or resource/id when id is set.
func (c *Client) Post(ctx context.Context, resource string, body any, query url.Values, id string) (Payload, error) {
	return c.do(ctx, http.MethodPost, c.endpoint(resource, id), query, body)
}

// Delete removes resource, or resource/id when id is set.
func (c *Client) Delete(ctx context.Context, resource, id string, query url.Values) (Payload, error) {
	return c.do(ctx, http.MethodDelete, c.endpoint(resource, id), query, nil)
}

// Put replaces resource, or resource/id when id is set.
func (c *Client) Put(ctx context.Context, resource string, body any, id string) (Payload, error) {
	return c.do(ctx, http.MethodPut, c.endpoint(resource, id), nil, body)
}

// Patch sends a partial update to resource as given. No id is appended.
func (c *Client) Patch(ctx context.Context, resource string, body any) (Payload, error) {
	return c.do(ctx, http.MethodPatch, c.endpoint(resource, ""), nil, body)
}

// credentials is the register and login body
type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and returns the issued token.
// The token is also persisted by the capture hook.
func (c *Client) Register(ctx context.Context, email, password string) (string, error) {
	return c.authenticate(ctx, "auth/register", email, password)
}

// Login exchanges credentials for a token.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {
	return c.authenticate(ctx, "auth/login", email, password)
}

func (c *Client) authenticate(ctx context.Context, path, email, password string) (string, error) {
	payload, err := c.Post(ctx, path, credentials{Email: email, Password: password}, nil, "")
	if err != nil {
		return "", err
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	if err := payload.Decode(&body); err != nil || body.AccessToken == "" {
		return "", &Error{StatusCode: http.StatusOK, Message: "response carried no access token", Err: err}
	}
	return body.AccessToken, nil
}

// endpoint joins resource and the optional id onto the base path.
// Both are taken unescaped; each "/"-separated resource segment is escaped on its own.
func (c *Client) endpoint(resource, id string) *url.URL {
	var segments []string
	if trimmed := strings.Trim(resource, "/"); trimmed != "" {
		for _, seg := range strings.Split(trimmed, "/") {
			segments = append(segments, url.PathEscape(seg))
		}
	}
	if id != "" {
		segments = append(segments, url.PathEscape(id))
	}
	return c.baseURL.JoinPath(segments...)
}

// encodeBody turns a call body into a reader.
// Bytes and strings pass through; url.Values are form encoded; anything else is JSON.
func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case io.Reader:
		return b, "", nil
	case []byte:
		return bytes.NewReader(b), "", nil
	case json.RawMessage:
		return bytes.NewReader(b), "application/json", nil
	case string:
		return strings.NewReader(b), "", nil
	case url.Values:
		return strings.NewReader(b.Encode()), "application/x-www-form-urlencoded", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", fmt.Errorf("encoding request body: %w", err)
		}
		return bytes.NewReader(data), "application/json", nil
	}
}

// do runs one call through the hook chain and normalizes the outcome.
func (c *Client) do(ctx context.Context, method string, u *url.URL, query url.Values, body any) (Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	reader, contentType, err := encodeBody(body)
	if err != nil {
		return nil, normalizeError(nil, err)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return nil, normalizeError(nil, err)
	}
	if reader != nil {
		if contentType == "" {
			contentType = c.contentType
		}
		req.Header.Set("Content-Type", contentType)
	}
	for _, hook := range c.requestHooks {
		if err := hook(ctx, req); err != nil {
			return nil, normalizeError(nil, err)
		}
	}

	start := time.Now()
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "method", method, "url", u.Redacted(), "error", err)
		return nil, normalizeError(nil, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, normalizeError(nil, fmt.Errorf("reading response body: %w", err))
	}

	resp := &Response{StatusCode: httpResp.StatusCode, Header: httpResp.Header, Body: data}
	c.logger.Debug("request completed",
		"method", method,
		"url", u.Redacted(),
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	for _, hook := range c.responseHooks {
		if err := hook(ctx, resp); err != nil {
			return nil, normalizeError(resp, err)
		}
	}

	if !isSuccess(resp.StatusCode) {
		return nil, normalizeError(resp, nil)
	}
	return Payload(resp.Body), nil
}
