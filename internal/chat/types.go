// Package chat implements the portfolio chat assistant pipeline.
package chat

import (
	"encoding/json"
	"errors"
	"time"
)

// Role identifies the author of a message.
type Role string

const (
	// RoleUser marks a message typed by the visitor.
	RoleUser Role = "user"
	// RoleAssistant marks a message produced by the assistant.
	RoleAssistant Role = "assistant"
)

// Kind categorizes a structured payload.
type Kind string

const (
	KindSkills     Kind = "skills"
	KindProjects   Kind = "projects"
	KindExperience Kind = "experience"
	KindContact    Kind = "contact"
	KindLinks      Kind = "links"
	KindGeneral    Kind = "general"
)

func (k Kind) valid() bool {
	switch k {
	case KindSkills, KindProjects, KindExperience, KindContact, KindLinks, KindGeneral:
		return true
	}
	return false
}

// StructuredPayload is card data embedded in a model reply. Record is the
// embedded JSON value as sent; Kind and Data are read from its "type" and
// "data" fields. A missing or unknown type is KindGeneral.
type StructuredPayload struct {
	Kind   Kind
	Data   json.RawMessage
	Record json.RawMessage
}

// MarshalJSON writes the embedded record unchanged.
func (p StructuredPayload) MarshalJSON() ([]byte, error) {
	if len(p.Record) > 0 {
		return p.Record, nil
	}
	return json.Marshal(struct {
		Kind Kind            `json:"type"`
		Data json.RawMessage `json:"data,omitempty"`
	}{p.Kind, p.Data})
}

// UnmarshalJSON accepts any JSON value as the record.
func (p *StructuredPayload) UnmarshalJSON(b []byte) error {
	decoded, err := decodeStructured(b)
	if err != nil {
		return err
	}
	*p = *decoded
	return nil
}

// Message is a single conversation entry.
type Message struct {
	ID         string             `json:"id"`
	Role       Role               `json:"role"`
	Content    string             `json:"content"`
	Timestamp  time.Time          `json:"timestamp"`
	Structured *StructuredPayload `json:"structuredContent,omitempty"`
	Pending    bool               `json:"pending,omitempty"`
}

// HistoryEntry is the role/content pair sent to the completion service.
type HistoryEntry struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Handle addresses a placeholder inside one generation of a conversation.
type Handle struct {
	Generation uint64 `json:"generation"`
	Index      int    `json:"index"`
}

// State is a step of the per-submission state machine.
type State string

const (
	StateIdle      State = "idle"
	StateSending   State = "sending"
	StateSearching State = "searching"
	StateParsing   State = "parsing"
	StateError     State = "error"
	StateDone      State = "done"
)

// PlaceholderContent is the sentinel content of a pending assistant message.
const PlaceholderContent = "..."

// DefaultGreeting seeds every freshly opened conversation.
const DefaultGreeting = "👋 Hey! I'm Javed. What would you like to know about my work?"

// User-facing messages.
const (
	AutomatedActionMessage = "Automated clicks are not allowed"
	TimeoutMessage         = "The request timed out. Please try again with a simpler prompt or try later."
	GenericFailureMessage  = "Failed to get response"
)

var (
	// ErrEmptyMessage is returned when the submitted text is blank.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrBusy is returned when a submission is already in flight.
	ErrBusy = errors.New("a request is already in progress")
	// ErrStaleHandle is returned when a handle belongs to a discarded conversation.
	ErrStaleHandle = errors.New("handle belongs to a discarded conversation")
	// ErrNotPending is returned when a handle does not address the pending placeholder.
	ErrNotPending = errors.New("handle does not address a pending placeholder")
	// ErrSessionClosed is returned when submitting to a closed session.
	ErrSessionClosed = errors.New("chat session is closed")
	// ErrSessionNotFound is returned by the registry for unknown ids.
	ErrSessionNotFound = errors.New("chat session not found")
	// ErrAutomatedAction is returned by the gate for untrusted actions.
	ErrAutomatedAction = errors.New("automated action rejected")
	// ErrTimeout marks an upstream gateway timeout.
	ErrTimeout = errors.New("upstream request timed out")
)
