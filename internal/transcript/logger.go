// Package transcript writes chat transcripts as per-session NDJSON files.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/portfolio/internal/chat"
)

// Config controls the transcript logger.
type Config struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Event is one transcript line.
type Event struct {
	Timestamp  string         `json:"ts"`
	VisitorID  string         `json:"visitor_id"`
	SessionID  string         `json:"session_id"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw,omitempty"`
	Content    string         `json:"content,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// Logger records chat activity. It implements chat.Observer.
type Logger interface {
	chat.Observer
	Log(ev Event)
	Close() error
}

// New returns a file-backed logger, or a no-op logger when disabled.
func New(cfg Config, logger *slog.Logger) (Logger, error) {
	if !cfg.Enabled {
		return noopLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("transcript dir is required")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	l := &fileLogger{
		dir:    cfg.Dir,
		queue:  make(chan Event, cfg.QueueSize),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.run()
	return l, nil
}

type fileLogger struct {
	dir       string
	queue     chan Event
	done      chan struct{}
	logger    *slog.Logger
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// Log enqueues ev without blocking. Events are dropped when the queue is full.
func (l *fileLogger) Log(ev Event) {
	if ev.Timestamp == "" {
		ev.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if ev.Content == "" && ev.ContentRaw != "" {
		ev.Content = cleanForReadability(ev.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- ev:
	default:
		l.logger.Warn("Transcript queue full, dropping event",
			"session_id", ev.SessionID, "event_type", ev.EventType)
	}
}

// StateChanged records error transitions only; the rest are UI noise.
func (l *fileLogger) StateChanged(ev chat.StateEvent) {
	if ev.State != chat.StateError {
		return
	}
	l.Log(Event{
		Timestamp: ev.At.UTC().Format(time.RFC3339Nano),
		VisitorID: ev.VisitorID,
		SessionID: ev.SessionID,
		Direction: "internal",
		EventType: "chat_error",
		Meta:      map[string]any{"error": ev.Error, "generation": ev.Handle.Generation},
	})
}

// MessageFinalized records the prompt and the assistant reply.
func (l *fileLogger) MessageFinalized(ev chat.FinalizedEvent) {
	at := ev.Message.Timestamp.UTC().Format(time.RFC3339Nano)
	l.Log(Event{
		Timestamp:  at,
		VisitorID:  ev.VisitorID,
		SessionID:  ev.SessionID,
		Direction:  "outbound",
		EventType:  "chat_user_message",
		ContentRaw: ev.Prompt,
	})

	meta := map[string]any{
		"message_id": ev.Message.ID,
		"failed":     ev.Failed,
		"searched":   ev.Searched,
	}
	if ev.Message.Structured != nil {
		meta["structured_type"] = string(ev.Message.Structured.Kind)
	}
	l.Log(Event{
		Timestamp:  at,
		VisitorID:  ev.VisitorID,
		SessionID:  ev.SessionID,
		Direction:  "inbound",
		EventType:  "chat_assistant_message",
		ContentRaw: ev.Message.Content,
		Meta:       meta,
	})
}

// Close drains queued events and stops the writer.
func (l *fileLogger) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		close(l.queue)
		l.mu.Unlock()
		<-l.done
	})
	return nil
}

func (l *fileLogger) run() {
	defer close(l.done)
	for ev := range l.queue {
		if err := l.write(ev); err != nil {
			l.logger.Warn("Failed to write transcript event",
				"session_id", ev.SessionID, "error", err)
		}
	}
}

func (l *fileLogger) write(ev Event) error {
	visitor := sanitizeSegment(ev.VisitorID)
	session := sanitizeSegment(ev.SessionID)
	dir := filepath.Join(l.dir, visitor)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create visitor dir: %w", err)
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')

	f, err := os.OpenFile(filepath.Join(dir, session+".ndjson"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open transcript: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("append transcript: %w", err)
	}
	return f.Close()
}

var unsafeSegment = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

func sanitizeSegment(s string) string {
	s = unsafeSegment.ReplaceAllString(s, "_")
	s = strings.Trim(s, ".")
	if s == "" {
		return "unknown"
	}
	return s
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)

// cleanForReadability strips escape sequences and collapses blank runs.
func cleanForReadability(raw string) string {
	s := ansiPattern.ReplaceAllString(raw, "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if line == "" {
			if blank {
				continue
			}
			blank = true
		} else {
			blank = false
		}
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}

type noopLogger struct{}

func (noopLogger) Log(Event)                            {}
func (noopLogger) StateChanged(chat.StateEvent)         {}
func (noopLogger) MessageFinalized(chat.FinalizedEvent) {}
func (noopLogger) Close() error                         { return nil }
