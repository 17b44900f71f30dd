// ABOUTME: The single error shape surfaced to pipeline callers
// ABOUTME: Maps transport failures and non-success responses onto *Error

package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// maxMessageLen bounds messages taken from plain-text error bodies
const maxMessageLen = 512

// Error is returned for every failed call.
// StatusCode is 0 when no response was received.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode == 0 {
		return "request failed: " + e.Message
	}
	return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsUnauthorized reports whether err is a 401 from the server.
func IsUnauthorized(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusUnauthorized
}

// errorBody is the {status, message} envelope the gateway answers with
type errorBody struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error"`
}

// normalizeError converts a failed call into *Error.
// resp is nil when the failure happened before a response arrived.
func normalizeError(resp *Response, err error) *Error {
	if err != nil {
		var e *Error
		if errors.As(err, &e) {
			return e
		}
		status := 0
		if resp != nil {
			status = resp.StatusCode
		}
		msg := err.Error()
		if errors.Is(err, context.DeadlineExceeded) {
			msg = "request timed out"
		}
		return &Error{StatusCode: status, Message: msg, Err: err}
	}

	return &Error{StatusCode: resp.StatusCode, Message: responseMessage(resp)}
}

// responseMessage picks the most useful message out of an error response.
func responseMessage(resp *Response) string {
	var body errorBody
	if json.Unmarshal(resp.Body, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}

	text := strings.TrimSpace(string(resp.Body))
	if text != "" && len(text) <= maxMessageLen && !strings.HasPrefix(text, "{") {
		return text
	}
	if s := http.StatusText(resp.StatusCode); s != "" {
		return s
	}
	return fmt.Sprintf("unexpected status %d", resp.StatusCode)
}
