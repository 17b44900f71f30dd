// ABOUTME: JSON response helpers shared by every gateway handler
// ABOUTME: All failures are written as {status, message}

package gateway

import (
	"encoding/json"
	"net/http"
)

// Business-rule rejection messages
const (
	MsgDuplicateCredential = "Email and Password already exist"
	MsgInvalidCredential   = "Incorrect email or password"
	MsgStoreWrite          = "Unable to save credentials"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

// TokenResponse is the body of a successful register or login
type TokenResponse struct {
	AccessToken string `json:"access_token"`
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a {status, message} JSON response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Status: status, Message: message})
}
