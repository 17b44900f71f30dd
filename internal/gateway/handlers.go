// ABOUTME: HTTP handlers for credential registration and login
// ABOUTME: Validates payloads, consults the credential store, and issues access tokens

package gateway

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"

	"github.com/2389/authgate/internal/store"
)

// maxBodyBytes caps request bodies read by any handler
const maxBodyBytes = 1 << 20

// CredentialsPayload is the register and login request body
type CredentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will validate the payload
func (p CredentialsPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, validation.Length(3, 254), is.Email),
		// bcrypt ignores everything past 72 bytes
		validation.Field(&p.Password, validation.Required, validation.Length(1, 72)),
	)
}

// decodeCredentials reads a JSON or form-encoded body
func decodeCredentials(r *http.Request) (CredentialsPayload, error) {
	var p CredentialsPayload

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		var err error
		if mediaType == "multipart/form-data" {
			err = r.ParseMultipartForm(maxBodyBytes)
		} else {
			err = r.ParseForm()
		}
		if err != nil {
			return p, errors.New("invalid form body")
		}
		p.Email = r.PostForm.Get("email")
		p.Password = r.PostForm.Get("password")
	default:
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			return p, errors.New("invalid JSON body")
		}
	}
	return p, nil
}

// readCredentials decodes and validates the request, answering 400 on failure.
func (g *Gateway) readCredentials(w http.ResponseWriter, r *http.Request) (CredentialsPayload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	p, err := decodeCredentials(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return p, false
	}
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return p, false
	}
	return p, true
}

// handleRegister handles POST /auth/register.
// A request whose email and password both match an existing user is rejected.
func (g *Gateway) handleRegister(w http.ResponseWriter, r *http.Request) {
	p, ok := g.readCredentials(w, r)
	if !ok {
		return
	}

	user, err := g.store.Register(r.Context(), p.Email, p.Password)
	switch {
	case errors.Is(err, store.ErrDuplicateCredential):
		g.logger.Info("registration rejected", "reason", "duplicate_credential", "email", p.Email)
		writeError(w, http.StatusBadRequest, MsgDuplicateCredential)
		return
	case errors.Is(err, store.ErrStoreWrite):
		g.logger.Error("registration failed", "reason", "store_write", "error", err)
		writeError(w, http.StatusBadRequest, MsgStoreWrite)
		return
	case err != nil:
		g.logger.Error("registration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	g.logger.Info("user registered", "user_id", user.ID)
	g.issueToken(w, user)
}

// handleLogin handles POST /auth/login.
func (g *Gateway) handleLogin(w http.ResponseWriter, r *http.Request) {
	p, ok := g.readCredentials(w, r)
	if !ok {
		return
	}

	user, found, err := g.store.FindByCredentials(r.Context(), p.Email, p.Password)
	if err != nil {
		g.logger.Error("credential lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !found {
		g.logger.Info("login rejected", "reason", "invalid_credential", "email", p.Email)
		writeError(w, http.StatusBadRequest, MsgInvalidCredential)
		return
	}

	g.logger.Debug("user logged in", "user_id", user.ID)
	g.issueToken(w, user)
}

// issueToken answers 200 {access_token} for user.
func (g *Gateway) issueToken(w http.ResponseWriter, user *store.User) {
	token, _, err := g.codec.Issue(strconv.FormatInt(user.ID, 10), user.Email)
	if err != nil {
		g.logger.Error("issuing token failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, TokenResponse{AccessToken: token})
}
