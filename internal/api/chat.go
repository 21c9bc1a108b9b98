package api

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/portfolio/internal/chat"
	"github.com/ashureev/portfolio/internal/identity"
)

// ChatHandler exposes chat sessions over HTTP.
type ChatHandler struct {
	registry    *chat.Registry
	limiter     *RateLimiter
	timeout     time.Duration
	maxBodySize int64
}

// ChatRequest is the body of a message submission. Trusted mirrors whether
// the browser reported the submitting event as user-initiated.
type ChatRequest struct {
	Text    string `json:"text"`
	Trusted bool   `json:"trusted"`
}

// NewChatHandler creates a chat handler. Completions are bounded by timeout.
func NewChatHandler(registry *chat.Registry, limiter *RateLimiter, timeout time.Duration) *ChatHandler {
	return &ChatHandler{
		registry:    registry,
		limiter:     limiter,
		timeout:     timeout,
		maxBodySize: defaultMaxRequestBodySize,
	}
}

// RegisterRoutes registers chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat/sessions", h.OpenSession)
	r.Delete("/api/chat/sessions/{id}", h.CloseSession)
	r.Get("/api/chat/sessions/{id}/messages", h.GetMessages)
	r.Post("/api/chat/sessions/{id}/messages", h.PostMessage)
}

// OpenSession opens a chat session seeded with the greeting.
func (h *ChatHandler) OpenSession(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	if visitorID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	s := h.registry.Open(r.Context(), visitorID)
	JSON(w, http.StatusCreated, s.Snapshot())
}

// CloseSession discards a session. An in-flight reply is dropped.
func (h *ChatHandler) CloseSession(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	id := chi.URLParam(r, "id")
	if _, err := h.registry.Get(id, visitorID); err != nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}
	h.registry.Close(id, visitorID)
	w.WriteHeader(http.StatusNoContent)
}

// GetMessages returns the session snapshot.
func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, s.Snapshot())
}

// PostMessage submits a message. It returns 202 once the user message and
// placeholder are appended; the reply arrives via polling or /ws/events.
func (h *ChatHandler) PostMessage(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	if h.limiter != nil && !h.limiter.Allow(s.VisitorID()) {
		Error(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	var req ChatRequest
	if !decodeJSON(w, r, h.maxBodySize, &req) {
		return
	}

	var handle chat.Handle
	err := s.Gate().Attempt(req.Trusted, func() error {
		var err error
		handle, err = s.SubmitAsync(r.Context(), req.Text, h.timeout)
		return err
	})
	if err != nil {
		status, msg := chatErrorStatus(err)
		if status == http.StatusInternalServerError {
			slog.Error("Chat submission failed", "session_id", s.ID(), "error", err)
		}
		Error(w, status, msg)
		return
	}

	slog.Info("Chat message submitted",
		"session_id", s.ID(),
		"visitor_id", s.VisitorID(),
		"message_length", len(req.Text),
	)
	JSON(w, http.StatusAccepted, map[string]interface{}{
		"handle":   handle,
		"snapshot": s.Snapshot(),
	})
}

func (h *ChatHandler) session(w http.ResponseWriter, r *http.Request) (*chat.Session, bool) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	s, err := h.registry.Get(chi.URLParam(r, "id"), visitorID)
	if err != nil {
		Error(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, chat.ErrAutomatedAction):
		return http.StatusForbidden, chat.AutomatedActionMessage
	case errors.Is(err, chat.ErrEmptyMessage):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, chat.ErrBusy):
		return http.StatusConflict, err.Error()
	case errors.Is(err, chat.ErrSessionClosed):
		return http.StatusGone, err.Error()
	default:
		return http.StatusInternalServerError, "failed to submit message"
	}
}
