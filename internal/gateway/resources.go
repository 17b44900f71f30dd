// ABOUTME: Guarded JSON resource API served behind the auth gate
// ABOUTME: Generic CRUD over named collections with query-string equality filters

package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/2389/authgate/internal/auth"
	"github.com/2389/authgate/internal/store"
)

// registerResourceRoutes mounts the collection routes on mux.
func (g *Gateway) registerResourceRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /{collection}", g.requireClaims(g.handleListRecords))
	mux.HandleFunc("POST /{collection}", g.requireClaims(g.handleCreateRecord))
	mux.HandleFunc("GET /{collection}/{id}", g.requireClaims(g.handleGetRecord))
	mux.HandleFunc("PUT /{collection}/{id}", g.requireClaims(g.handleReplaceRecord))
	mux.HandleFunc("PATCH /{collection}/{id}", g.requireClaims(g.handlePatchRecord))
	mux.HandleFunc("DELETE /{collection}/{id}", g.requireClaims(g.handleDeleteRecord))
}

// requireClaims hides the resource API from requests the gate let through as exempt.
// Without it an exempt prefix such as /auth would double as an unguarded collection.
func (g *Gateway) requireClaims(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.ClaimsFromContext(r.Context())
		if !ok {
			g.handleNotFound(w, r)
			return
		}
		g.logger.Debug("resource request", "method", r.Method, "collection", r.PathValue("collection"), "sub", claims.Subject)
		next(w, r)
	}
}

// recordID parses the {id} path segment. Unparseable ids cannot exist.
func recordID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// readBody reads a capped request body
func readBody(w http.ResponseWriter, r *http.Request) (json.RawMessage, error) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// writeStoreError maps a store error to a {status, message} response.
func (g *Gateway) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrInvalidBody):
		writeError(w, http.StatusBadRequest, "request body must be a JSON object")
	default:
		g.logger.Error("resource store failure", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// writeRecord writes a single record body
func writeRecord(w http.ResponseWriter, rec *store.Record) {
	writeJSON(w, http.StatusOK, rec.Body)
}

// handleListRecords handles GET /{collection}.
// Each query parameter filters on a top-level field; the first value wins.
func (g *Gateway) handleListRecords(w http.ResponseWriter, r *http.Request) {
	filter := make(map[string]string)
	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			filter[key] = values[0]
		}
	}

	records, err := g.store.ListRecords(r.Context(), r.PathValue("collection"), filter)
	if err != nil {
		g.writeStoreError(w, err)
		return
	}

	bodies := make([]json.RawMessage, len(records))
	for i, rec := range records {
		bodies[i] = rec.Body
	}
	writeJSON(w, http.StatusOK, bodies)
}

// handleCreateRecord handles POST /{collection}.
func (g *Gateway) handleCreateRecord(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	rec, err := g.store.CreateRecord(r.Context(), r.PathValue("collection"), body)
	if err != nil {
		g.writeStoreError(w, err)
		return
	}
	writeRecord(w, rec)
}

// handleGetRecord handles GET /{collection}/{id}.
func (g *Gateway) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(r)
	if !ok {
		g.writeStoreError(w, store.ErrNotFound)
		return
	}

	rec, err := g.store.GetRecord(r.Context(), r.PathValue("collection"), id)
	if err != nil {
		g.writeStoreError(w, err)
		return
	}
	writeRecord(w, rec)
}

// handleReplaceRecord handles PUT /{collection}/{id}.
func (g *Gateway) handleReplaceRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(r)
	if !ok {
		g.writeStoreError(w, store.ErrNotFound)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	rec, err := g.store.ReplaceRecord(r.Context(), r.PathValue("collection"), id, body)
	if err != nil {
		g.writeStoreError(w, err)
		return
	}
	writeRecord(w, rec)
}

// handlePatchRecord handles PATCH /{collection}/{id}.
func (g *Gateway) handlePatchRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(r)
	if !ok {
		g.writeStoreError(w, store.ErrNotFound)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	rec, err := g.store.PatchRecord(r.Context(), r.PathValue("collection"), id, body)
	if err != nil {
		g.writeStoreError(w, err)
		return
	}
	writeRecord(w, rec)
}

// handleDeleteRecord handles DELETE /{collection}/{id}.
func (g *Gateway) handleDeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := recordID(r)
	if !ok {
		g.writeStoreError(w, store.ErrNotFound)
		return
	}

	if err := g.store.DeleteRecord(r.Context(), r.PathValue("collection"), id); err != nil {
		g.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}
