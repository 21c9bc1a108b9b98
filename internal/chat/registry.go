package chat

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// OpenHook is called after a visitor opens a chat session.
type OpenHook func(ctx context.Context, visitorID string)

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Greeting    func() string
	SearchDwell time.Duration
	Completer   Completer
	Observer    Observer
	OnOpen      OpenHook
	Logger      *slog.Logger
}

// Registry tracks the open chat sessions.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	cfg      RegistryConfig
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		cfg:      cfg,
	}
}

// Open constructs and opens a new session for the visitor.
func (r *Registry) Open(ctx context.Context, visitorID string) *Session {
	greeting := ""
	if r.cfg.Greeting != nil {
		greeting = r.cfg.Greeting()
	}

	s := NewSession(SessionConfig{
		VisitorID:   visitorID,
		Greeting:    greeting,
		SearchDwell: r.cfg.SearchDwell,
		Completer:   r.cfg.Completer,
		Observer:    r.cfg.Observer,
		Logger:      r.cfg.Logger,
	})
	s.Open()

	r.mu.Lock()
	r.sessions[s.ID()] = s
	r.mu.Unlock()

	r.cfg.Logger.Info("Chat session opened", "session_id", s.ID(), "visitor_id", visitorID)
	if r.cfg.OnOpen != nil {
		r.cfg.OnOpen(ctx, visitorID)
	}
	return s
}

// Get returns the session with the given id owned by visitorID.
func (r *Registry) Get(id, visitorID string) (*Session, error) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok || s.VisitorID() != visitorID {
		return nil, ErrSessionNotFound
	}
	return s, nil
}

// Close discards the session. Closing an unknown session is not an error.
func (r *Registry) Close(id, visitorID string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok && s.VisitorID() == visitorID {
		delete(r.sessions, id)
	} else {
		ok = false
	}
	r.mu.Unlock()

	if ok {
		s.Close()
		r.cfg.Logger.Info("Chat session closed", "session_id", id, "visitor_id", visitorID)
	}
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// CloseIdle closes sessions whose last activity is older than ttl and
// returns how many were closed.
func (r *Registry) CloseIdle(ttl time.Duration) int {
	cutoff := time.Now().Add(-ttl)

	r.mu.Lock()
	var expired []*Session
	for id, s := range r.sessions {
		if s.LastActive().Before(cutoff) {
			expired = append(expired, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range expired {
		s.Close()
		r.cfg.Logger.Info("Chat session expired", "session_id", s.ID(), "visitor_id", s.VisitorID())
	}
	return len(expired)
}

// CloseAll closes every session.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	sessions := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

// StartSweeper periodically closes sessions idle for longer than ttl until
// ctx is done.
func StartSweeper(ctx context.Context, r *Registry, ttl, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		r.cfg.Logger.Info("Chat session sweeper started", "interval", interval, "ttl", ttl)

		for {
			select {
			case <-ticker.C:
				if n := r.CloseIdle(ttl); n > 0 {
					r.cfg.Logger.Info("Chat session sweeper cleanup completed", "closed", n)
				}
			case <-ctx.Done():
				r.cfg.Logger.Info("Chat session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}
