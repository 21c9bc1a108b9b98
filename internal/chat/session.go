package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSearchDwell is the minimum time the searching state stays visible.
const DefaultSearchDwell = 1500 * time.Millisecond

// SessionConfig configures a Session.
type SessionConfig struct {
	VisitorID   string
	Greeting    string
	SearchDwell time.Duration
	Completer   Completer
	Observer    Observer
	Logger      *slog.Logger
}

// Session owns one open chat: its conversation, the in-flight flag and the
// current state. Submissions are single-flight.
type Session struct {
	id          string
	visitorID   string
	conv        *Conversation
	completer   Completer
	observer    Observer
	gate        *Gate
	searchDwell time.Duration
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration)

	mu         sync.Mutex
	inFlight   bool
	closed     bool
	state      State
	lastError  string
	lastActive time.Time
}

// NewSession creates a closed session. Call Open before submitting.
func NewSession(cfg SessionConfig) *Session {
	if cfg.SearchDwell < 0 {
		cfg.SearchDwell = 0
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	id := uuid.NewString()
	s := &Session{
		id:          id,
		visitorID:   cfg.VisitorID,
		conv:        NewConversation(cfg.Greeting),
		completer:   cfg.Completer,
		observer:    cfg.Observer,
		searchDwell: cfg.SearchDwell,
		logger:      cfg.Logger.With("session_id", id),
		sleep:       sleepContext,
		closed:      true,
		state:       StateIdle,
		lastActive:  time.Now(),
	}
	s.gate = NewGate(s, s.logger)
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// VisitorID returns the visitor that owns the session.
func (s *Session) VisitorID() string { return s.visitorID }

// Gate returns the input gate bound to this session's error display.
func (s *Session) Gate() *Gate { return s.gate }

// Open resets the conversation to the greeting and accepts submissions.
func (s *Session) Open() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conv.Reset()
	s.closed = false
	s.inFlight = false
	s.state = StateIdle
	s.lastError = ""
	s.lastActive = time.Now()
}

// Close discards the conversation. An in-flight completion keeps running but
// its result is dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.conv.Discard()
	s.closed = true
	s.inFlight = false
	s.state = StateIdle
}

// SetError implements ErrorDisplay.
func (s *Session) SetError(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

// Snapshot is a point-in-time view of a session.
type Snapshot struct {
	SessionID string    `json:"session_id"`
	State     State     `json:"state"`
	Loading   bool      `json:"loading"`
	Searching bool      `json:"searching"`
	Error     string    `json:"error,omitempty"`
	Closed    bool      `json:"closed"`
	Messages  []Message `json:"messages"`
}

// Snapshot returns the messages and UI flags.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{
		SessionID: s.id,
		State:     s.state,
		Loading:   s.inFlight,
		Searching: s.state == StateSearching,
		Error:     s.lastError,
		Closed:    s.closed,
	}
	s.mu.Unlock()
	snap.Messages = s.conv.Messages()
	return snap
}

// Messages returns the conversation in display order.
func (s *Session) Messages() []Message { return s.conv.Messages() }

// LastActive returns the time of the last open or submission.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Submit runs one full exchange and blocks until the placeholder is
// finalized. A completion failure is written into the conversation and also
// returned.
func (s *Session) Submit(ctx context.Context, text string) (Handle, error) {
	h, req, err := s.begin(text)
	if err != nil {
		return Handle{}, err
	}
	return h, s.complete(ctx, h, req)
}

// SubmitAsync appends the exchange and returns the placeholder handle right
// away. The completion runs in the background, detached from ctx's
// cancellation and bounded by timeout when it is positive.
func (s *Session) SubmitAsync(ctx context.Context, text string, timeout time.Duration) (Handle, error) {
	h, req, err := s.begin(text)
	if err != nil {
		return Handle{}, err
	}

	bg := context.WithoutCancel(ctx)
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		bg, cancel = context.WithTimeout(bg, timeout)
	}
	go func() {
		defer cancel()
		if err := s.complete(bg, h, req); err != nil {
			s.logger.Debug("async submission finished with error", "error", err)
		}
	}()
	return h, nil
}

func (s *Session) begin(text string) (Handle, CompletionRequest, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Handle{}, CompletionRequest{}, ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Handle{}, CompletionRequest{}, ErrSessionClosed
	}
	if s.inFlight {
		return Handle{}, CompletionRequest{}, ErrBusy
	}

	history := s.conv.History()
	h := s.conv.AppendExchange(text)
	s.inFlight = true
	s.lastError = ""
	s.lastActive = time.Now()

	return h, CompletionRequest{
		Prompt:             text,
		Messages:           history,
		StructuredResponse: true,
	}, nil
}

func (s *Session) complete(ctx context.Context, h Handle, req CompletionRequest) (err error) {
	defer s.finish(h)

	s.transition(h, StateSending, "")

	resp, err := s.completer.Complete(ctx, req)
	if err == nil && resp == nil {
		err = errors.New("empty completion response")
	}
	if err != nil {
		s.logger.Error("completion failed", "error", err)
		s.fail(h, req.Prompt, err)
		return err
	}

	if resp.IsSearchPerformed {
		s.transition(h, StateSearching, "")
		s.sleep(ctx, s.searchDwell)
	}

	s.transition(h, StateParsing, "")
	display := resp.Response
	payload := ParseStructured(display)
	if payload != nil {
		display = StripStructuredBlock(display)
	}

	if err := s.conv.Finalize(h, display, payload); err != nil {
		if errors.Is(err, ErrStaleHandle) {
			s.logger.Info("dropping completion for discarded conversation")
			return err
		}
		s.fail(h, req.Prompt, err)
		return err
	}

	s.observer.MessageFinalized(FinalizedEvent{
		SessionID: s.id,
		VisitorID: s.visitorID,
		Prompt:    req.Prompt,
		Message:   s.messageAt(h),
		Searched:  resp.IsSearchPerformed,
	})
	return nil
}

func (s *Session) fail(h Handle, prompt string, cause error) {
	msg := DisplayError(cause)
	if err := s.conv.FinalizeError(h, msg); err != nil {
		if errors.Is(err, ErrStaleHandle) {
			s.logger.Info("dropping failure for discarded conversation")
		}
		return
	}
	s.transition(h, StateError, msg)
	s.observer.MessageFinalized(FinalizedEvent{
		SessionID: s.id,
		VisitorID: s.visitorID,
		Prompt:    prompt,
		Message:   s.messageAt(h),
		Failed:    true,
	})
}

// finish always leaves the loading state.
func (s *Session) finish(h Handle) {
	s.mu.Lock()
	current := h.Generation == s.conv.Generation()
	if current {
		s.inFlight = false
	}
	s.mu.Unlock()
	if current {
		s.transition(h, StateDone, "")
	}
}

func (s *Session) transition(h Handle, state State, errMsg string) {
	s.mu.Lock()
	if h.Generation != s.conv.Generation() {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	s.observer.StateChanged(StateEvent{
		SessionID: s.id,
		VisitorID: s.visitorID,
		State:     state,
		Handle:    h,
		Error:     errMsg,
		At:        time.Now(),
	})
}

func (s *Session) messageAt(h Handle) Message {
	msgs := s.conv.Messages()
	if h.Index >= 0 && h.Index < len(msgs) {
		return msgs[h.Index]
	}
	return Message{}
}

func sleepContext(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}
