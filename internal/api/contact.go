package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/portfolio/internal/chat"
	"github.com/ashureev/portfolio/internal/contact"
	"github.com/ashureev/portfolio/internal/content"
	"github.com/ashureev/portfolio/internal/identity"
	"github.com/ashureev/portfolio/internal/store"
)

// ContactHandler exposes the email assistant.
type ContactHandler struct {
	svc     *contact.Service
	content *content.Store
	repo    store.Repository
}

type generateEmailRequest struct {
	Prompt  string `json:"prompt"`
	Trusted bool   `json:"trusted"`
}

type sendEmailRequest struct {
	contact.SendRequest
	Trusted bool `json:"trusted"`
}

// NewContactHandler creates a contact handler.
func NewContactHandler(svc *contact.Service, site *content.Store, repo store.Repository) *ContactHandler {
	return &ContactHandler{svc: svc, content: site, repo: repo}
}

// RegisterRoutes registers contact routes.
func (h *ContactHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/contact", func(r chi.Router) {
		r.Get("/templates", h.Templates)
		r.Get("/status", h.Status)
		r.Get("/submissions", h.Submissions)
		r.Post("/generate", h.Generate)
		r.Post("/send", h.Send)
	})
}

// Templates lists the canned email prompts.
func (h *ContactHandler) Templates(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.content.EmailTemplates())
}

// Status returns the visitor's banner state.
func (h *ContactHandler) Status(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, h.svc.Status(identity.VisitorIDFromContext(r.Context())))
}

// Submissions lists the visitor's recent send attempts.
func (h *ContactHandler) Submissions(w http.ResponseWriter, r *http.Request) {
	visitorID := identity.VisitorIDFromContext(r.Context())
	subs, err := h.repo.ListContactSubmissions(r.Context(), visitorID, 20)
	if err != nil {
		slog.Error("Failed to list contact submissions", "visitor_id", visitorID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to list submissions")
		return
	}
	JSON(w, http.StatusOK, subs)
}

// Generate drafts an email.
func (h *ContactHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateEmailRequest
	if !decodeJSON(w, r, defaultMaxRequestBodySize, &req) {
		return
	}

	visitorID := identity.VisitorIDFromContext(r.Context())
	generated, err := h.svc.Generate(r.Context(), visitorID, req.Trusted, req.Prompt)
	if err != nil {
		status, msg := contactErrorStatus(err)
		Error(w, status, msg)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"generatedContent": generated})
}

// Send delivers an email.
func (h *ContactHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req sendEmailRequest
	if !decodeJSON(w, r, defaultMaxRequestBodySize, &req) {
		return
	}

	visitorID := identity.VisitorIDFromContext(r.Context())
	if err := h.svc.Send(r.Context(), visitorID, req.Trusted, req.SendRequest); err != nil {
		status, msg := contactErrorStatus(err)
		Error(w, status, msg)
		return
	}
	JSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

func contactErrorStatus(err error) (int, string) {
	var failure *contact.Failure
	switch {
	case errors.Is(err, chat.ErrAutomatedAction):
		return http.StatusForbidden, chat.AutomatedActionMessage
	case errors.Is(err, contact.ErrEmptyPrompt),
		errors.Is(err, contact.ErrMissingContent),
		errors.Is(err, contact.ErrInvalidMode):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, chat.ErrBusy):
		return http.StatusConflict, err.Error()
	case errors.As(err, &failure):
		if failure.Message == chat.TimeoutMessage {
			return http.StatusGatewayTimeout, failure.Message
		}
		return http.StatusBadGateway, failure.Message
	default:
		return http.StatusInternalServerError, "contact request failed"
	}
}
