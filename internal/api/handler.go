// Package api provides HTTP handlers for the portfolio API.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/portfolio/internal/content"
	"github.com/ashureev/portfolio/internal/identity"
	"github.com/ashureev/portfolio/internal/store"
)

const defaultMaxRequestBodySize = 64 << 10

// Handler serves visitor-level endpoints.
type Handler struct {
	repo    store.Repository
	content *content.Store
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, site *content.Store) *Handler {
	return &Handler{repo: repo, content: site}
}

// RegisterRoutes registers visitor routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/me", h.GetMe)
	r.Get("/api/chat/teaser", h.GetTeaser)
}

// GetMe returns the current visitor.
func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	if visitorID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	v, err := h.repo.GetVisitor(r.Context(), visitorID)
	if err != nil {
		slog.Error("Failed to load visitor", "visitor_id", visitorID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load visitor")
		return
	}
	if v == nil {
		Error(w, http.StatusNotFound, "visitor not found")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"visitor_id":     v.VisitorID,
		"has_interacted": v.HasInteracted,
		"first_seen_at":  v.FirstSeenAt,
	})
}

// GetTeaser returns a random chat teaser for visitors who never opened the chat.
func (h *Handler) GetTeaser(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	v, err := h.repo.GetVisitor(r.Context(), visitorID)
	if err != nil {
		slog.Error("Failed to load visitor", "visitor_id", visitorID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load visitor")
		return
	}

	if v != nil && !v.ShouldShowTeaser() {
		JSON(w, http.StatusOK, map[string]interface{}{"show": false})
		return
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"show": true,
		"text": h.content.Teaser(),
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a bounded JSON body into v. It writes the error response
// and returns false on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, maxBytes int64, v interface{}) bool {
	if maxBytes <= 0 {
		maxBytes = defaultMaxRequestBodySize
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
