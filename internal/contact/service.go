// Package contact implements the email assistant behind the contact page:
// AI-drafted emails, delivery, and the status banner.
package contact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ashureev/portfolio/internal/chat"
	"github.com/ashureev/portfolio/internal/completion"
	"github.com/ashureev/portfolio/internal/domain"
	"github.com/ashureev/portfolio/internal/events"
)

// User-facing failure messages.
const (
	GenerateFailureMessage = "Failed to generate email"
	SendFailureMessage     = "Failed to send email"
	ManualPrompt           = "Manual Email"
)

var (
	// ErrEmptyPrompt is returned when Generate is called without a prompt.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrMissingContent is returned when a send request has nothing to send.
	ErrMissingContent = errors.New("email content is required")
	// ErrInvalidMode is returned for an unknown send mode.
	ErrInvalidMode = errors.New("invalid contact mode")
)

// Failure is an upstream failure carrying the text shown in the banner.
type Failure struct {
	Message string
	Err     error
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Message, f.Err)
	}
	return f.Message
}

func (f *Failure) Unwrap() error { return f.Err }

// UserMessage returns the banner text.
func (f *Failure) UserMessage() string { return f.Message }

// Status is the banner state.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Banner is a visitor's current contact page state.
type Banner struct {
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	Expanded   bool   `json:"expanded"`
	Generating bool   `json:"generating"`
	Sending    bool   `json:"sending"`
}

// SendRequest is one email delivery attempt.
type SendRequest struct {
	Mode        domain.ContactMode `json:"mode"`
	Content     string             `json:"content"`
	Prompt      string             `json:"prompt"`
	SenderName  string             `json:"senderName,omitempty"`
	SenderEmail string             `json:"senderEmail,omitempty"`
	Subject     string             `json:"subject"`
}

// Recorder stores send attempts.
type Recorder interface {
	RecordContactSubmission(ctx context.Context, sub *domain.ContactSubmission) error
}

// Publisher delivers UI events to a visitor.
type Publisher interface {
	Publish(topic events.Topic, visitorID string, payload any)
}

// Config configures the email assistant.
type Config struct {
	GenerateURL    string
	SendURL        string
	Timeout        time.Duration
	BannerDwell    time.Duration
	BannerCollapse time.Duration
}

type generateRequest struct {
	Prompt string `json:"prompt"`
}

type generateResponse struct {
	GeneratedContent string `json:"generatedContent"`
}

type sendBody struct {
	Content     string `json:"content"`
	Prompt      string `json:"prompt"`
	SenderName  string `json:"senderName,omitempty"`
	SenderEmail string `json:"senderEmail,omitempty"`
	Subject     string `json:"subject"`
}

// sendReply is the send service's response. A 2xx reply may still carry an
// error.
type sendReply struct {
	Error string `json:"error"`
}

// rejection is a 2xx send reply with an error field.
type rejection struct {
	message string
}

func (r *rejection) Error() string       { return "email service rejected send: " + r.message }
func (r *rejection) UserMessage() string { return r.message }

type visitorState struct {
	banner Banner
	gen    uint64
	timer  *time.Timer
}

// Service is the email assistant. Banner state is kept per visitor.
type Service struct {
	cfg      Config
	client   *http.Client
	recorder Recorder
	pub      Publisher
	logger   *slog.Logger

	mu       sync.Mutex
	visitors map[string]*visitorState
}

// NewService creates an email assistant.
func NewService(cfg Config, recorder Recorder, pub Publisher, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BannerDwell <= 0 {
		cfg.BannerDwell = 3 * time.Second
	}
	if cfg.BannerCollapse <= 0 {
		cfg.BannerCollapse = 500 * time.Millisecond
	}
	return &Service{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.Timeout},
		recorder: recorder,
		pub:      pub,
		logger:   logger,
		visitors: make(map[string]*visitorState),
	}
}

// Generate drafts an email from prompt.
func (s *Service) Generate(ctx context.Context, visitorID string, trusted bool, prompt string) (string, error) {
	var content string
	err := s.gate(visitorID).Attempt(trusted, func() error {
		var err error
		content, err = s.generate(ctx, visitorID, prompt)
		return err
	})
	return content, err
}

func (s *Service) generate(ctx context.Context, visitorID, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	if !s.acquire(visitorID, func(b *Banner) *bool { return &b.Generating }) {
		return "", chat.ErrBusy
	}
	defer s.release(visitorID, func(b *Banner) *bool { return &b.Generating })

	var resp generateResponse
	if err := completion.PostJSON(ctx, s.client, s.cfg.GenerateURL, generateRequest{Prompt: prompt}, &resp); err != nil {
		msg := GenerateFailureMessage
		if errors.Is(err, chat.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			msg = chat.TimeoutMessage
		}
		s.logger.Error("Error generating email", "visitor_id", visitorID, "error", err)
		s.setStatus(visitorID, StatusError, msg)
		return "", &Failure{Message: msg, Err: err}
	}
	return resp.GeneratedContent, nil
}

// Send delivers an email. Every attempt that reaches the upstream service is
// recorded.
func (s *Service) Send(ctx context.Context, visitorID string, trusted bool, req SendRequest) error {
	return s.gate(visitorID).Attempt(trusted, func() error {
		return s.send(ctx, visitorID, req)
	})
}

func (s *Service) send(ctx context.Context, visitorID string, req SendRequest) error {
	body := sendBody{Content: req.Content, Subject: req.Subject}
	switch req.Mode {
	case domain.ContactModeAI:
		if req.Content == "" {
			return ErrMissingContent
		}
		body.Prompt = req.Prompt
	case domain.ContactModeManual:
		if req.Content == "" && req.SenderEmail == "" {
			return ErrMissingContent
		}
		body.Prompt = ManualPrompt
		body.SenderName = req.SenderName
		body.SenderEmail = req.SenderEmail
	default:
		return ErrInvalidMode
	}

	if !s.acquire(visitorID, func(b *Banner) *bool { return &b.Sending }) {
		return chat.ErrBusy
	}
	defer s.release(visitorID, func(b *Banner) *bool { return &b.Sending })
	s.setStatus(visitorID, StatusIdle, "")

	var reply sendReply
	sendErr := completion.PostJSON(ctx, s.client, s.cfg.SendURL, body, &reply)
	if errors.Is(sendErr, io.EOF) {
		// Empty 2xx body.
		sendErr = nil
	}
	if sendErr == nil && reply.Error != "" {
		sendErr = &rejection{message: reply.Error}
	}

	sub := &domain.ContactSubmission{
		ID:          uuid.NewString(),
		VisitorID:   visitorID,
		Mode:        req.Mode,
		Subject:     body.Subject,
		SenderName:  body.SenderName,
		SenderEmail: body.SenderEmail,
		Prompt:      body.Prompt,
		Content:     body.Content,
		Status:      domain.ContactStatusSent,
		CreatedAt:   time.Now(),
	}
	if sendErr != nil {
		sub.Status = domain.ContactStatusFailed
		sub.Error = sendErr.Error()
	}
	if s.recorder != nil {
		// Recording must not depend on the caller's context surviving.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := s.recorder.RecordContactSubmission(recordCtx, sub); err != nil {
			s.logger.Warn("Failed to record contact submission", "visitor_id", visitorID, "error", err)
		}
		cancel()
	}

	if sendErr != nil {
		msg := SendFailureMessage
		var upstream interface{ UserMessage() string }
		if errors.As(sendErr, &upstream) && upstream.UserMessage() != "" {
			msg = upstream.UserMessage()
		}
		s.logger.Error("Error sending email", "visitor_id", visitorID, "error", sendErr)
		s.setStatus(visitorID, StatusError, msg)
		return &Failure{Message: msg, Err: sendErr}
	}

	s.logger.Info("Contact email sent", "visitor_id", visitorID, "mode", req.Mode, "submission_id", sub.ID)
	s.setStatus(visitorID, StatusSuccess, "")
	return nil
}

// Status returns the visitor's banner.
func (s *Service) Status(visitorID string) Banner {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.visitors[visitorID]; ok {
		return st.banner
	}
	return Banner{Status: StatusIdle}
}

// Close stops pending banner timers.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, st := range s.visitors {
		if st.timer != nil {
			st.timer.Stop()
		}
		delete(s.visitors, id)
	}
}

func (s *Service) gate(visitorID string) *chat.Gate {
	return chat.NewGate(chat.ErrorDisplayFunc(func(msg string) {
		s.setStatus(visitorID, StatusError, msg)
	}), s.logger)
}

func (s *Service) stateLocked(visitorID string) *visitorState {
	st, ok := s.visitors[visitorID]
	if !ok {
		st = &visitorState{banner: Banner{Status: StatusIdle}}
		s.visitors[visitorID] = st
	}
	return st
}

func (s *Service) acquire(visitorID string, flag func(*Banner) *bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := flag(&s.stateLocked(visitorID).banner)
	if *f {
		return false
	}
	*f = true
	return true
}

func (s *Service) release(visitorID string, flag func(*Banner) *bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.visitors[visitorID]
	if !ok {
		return
	}
	*flag(&st.banner) = false
	s.pruneLocked(visitorID, st)
}

func (s *Service) pruneLocked(visitorID string, st *visitorState) {
	b := st.banner
	if b.Status == StatusIdle && !b.Generating && !b.Sending && st.timer == nil {
		delete(s.visitors, visitorID)
	}
}

// setStatus moves the banner. Success and error hide the navbar, expand the
// banner for BannerDwell, collapse it for BannerCollapse and then return to
// idle with the navbar shown again.
func (s *Service) setStatus(visitorID string, status Status, msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.stateLocked(visitorID)
	wasIdle := st.banner.Status == StatusIdle
	st.gen++
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}

	st.banner.Status = status
	st.banner.Message = msg
	st.banner.Expanded = status != StatusIdle
	s.publishBannerLocked(visitorID, st)

	if status == StatusIdle {
		if !wasIdle {
			s.publish(events.TopicNavbar, visitorID, events.NavbarVisibility{Visible: true})
		}
		return
	}

	s.publish(events.TopicNavbar, visitorID, events.NavbarVisibility{Visible: false})
	gen := st.gen
	st.timer = time.AfterFunc(s.cfg.BannerDwell, func() { s.collapse(visitorID, gen) })
}

func (s *Service) collapse(visitorID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.visitors[visitorID]
	if !ok || st.gen != gen {
		return
	}
	st.banner.Expanded = false
	s.publishBannerLocked(visitorID, st)
	st.timer = time.AfterFunc(s.cfg.BannerCollapse, func() { s.reset(visitorID, gen) })
}

func (s *Service) reset(visitorID string, gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.visitors[visitorID]
	if !ok || st.gen != gen {
		return
	}
	st.timer = nil
	st.banner.Status = StatusIdle
	st.banner.Message = ""
	s.publishBannerLocked(visitorID, st)
	s.publish(events.TopicNavbar, visitorID, events.NavbarVisibility{Visible: true})
	s.pruneLocked(visitorID, st)
}

func (s *Service) publishBannerLocked(visitorID string, st *visitorState) {
	s.publish(events.TopicContactBanner, visitorID, events.ContactBanner{
		Status:   string(st.banner.Status),
		Message:  st.banner.Message,
		Expanded: st.banner.Expanded,
	})
}

func (s *Service) publish(topic events.Topic, visitorID string, payload any) {
	if s.pub != nil {
		s.pub.Publish(topic, visitorID, payload)
	}
}
