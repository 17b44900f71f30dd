// ABOUTME: Ordered before-send and after-receive hooks for the request pipeline
// ABOUTME: Defaults merge headers, attach the bearer token, and capture issued tokens

package client

import (
	"context"
	"encoding/json"
	"net/http"
)

// Response is what response hooks see: the status, headers, and full body.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// RequestHook runs before a request is sent. An error aborts the call.
type RequestHook func(ctx context.Context, req *http.Request) error

// ResponseHook runs on every response before the caller sees it.
type ResponseHook func(ctx context.Context, resp *Response) error

type headerKey struct{}

// WithHeader attaches per-call headers to ctx.
// They are merged after the client's default headers.
func WithHeader(ctx context.Context, h http.Header) context.Context {
	return context.WithValue(ctx, headerKey{}, h)
}

func headerFromContext(ctx context.Context) http.Header {
	h, _ := ctx.Value(headerKey{}).(http.Header)
	return h
}

// isSuccess reports whether status is one the pipeline hands back as a payload.
func isSuccess(status int) bool {
	return status == http.StatusOK || status == http.StatusPartialContent
}

// mergeHeaders copies the client and per-call headers onto the request.
func (c *Client) mergeHeaders(ctx context.Context, req *http.Request) error {
	for _, h := range []http.Header{c.headers, headerFromContext(ctx)} {
		for key, values := range h {
			req.Header.Del(key)
			for _, v := range values {
				req.Header.Add(key, v)
			}
		}
	}
	return nil
}

// authorize sets Authorization from the session. No token, no header.
func (c *Client) authorize(ctx context.Context, req *http.Request) error {
	token, err := c.session.EffectiveToken(ctx)
	if err != nil {
		return err
	}
	if token != "" {
		req.Header.Set("Authorization", c.scheme+" "+token)
	}
	return nil
}

// captureToken persists an access_token found in a successful JSON response.
func (c *Client) captureToken(ctx context.Context, resp *Response) error {
	if !isSuccess(resp.StatusCode) || c.responseType != ResponseJSON {
		return nil
	}

	var body struct {
		AccessToken string `json:"access_token"`
	}
	// Lists and scalars carry no token
	if json.Unmarshal(resp.Body, &body) != nil || body.AccessToken == "" {
		return nil
	}

	if err := c.session.Persist(ctx, body.AccessToken); err != nil {
		return err
	}
	c.logger.Debug("access token captured")
	return nil
}

// Use appends hooks after the defaults. Not safe to call while requests are in flight.
func (c *Client) Use(req []RequestHook, resp []ResponseHook) {
	c.requestHooks = append(c.requestHooks, req...)
	c.responseHooks = append(c.responseHooks, resp...)
}
