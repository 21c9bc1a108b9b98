package chat

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conversation is an ordered, append-only message log for one open chat.
// Finalizing only rewrites the addressed placeholder; it never reorders or
// removes entries.
type Conversation struct {
	mu         sync.RWMutex
	messages   []Message
	generation uint64
	greeting   string
	now        func() time.Time
}

// NewConversation creates an empty conversation. Call Reset to seed it.
func NewConversation(greeting string) *Conversation {
	if greeting == "" {
		greeting = DefaultGreeting
	}
	return &Conversation{greeting: greeting, now: time.Now}
}

// Reset discards all messages, starts a new generation and appends the
// greeting.
func (c *Conversation) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.messages = []Message{{
		ID:        uuid.NewString(),
		Role:      RoleAssistant,
		Content:   c.greeting,
		Timestamp: c.now(),
	}}
}

// Discard invalidates every outstanding handle without reseeding.
func (c *Conversation) Discard() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.messages = nil
}

// AppendExchange appends the user's message followed by a pending
// placeholder and returns the placeholder's handle.
func (c *Conversation) AppendExchange(userText string) Handle {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.messages = append(c.messages,
		Message{
			ID:        uuid.NewString(),
			Role:      RoleUser,
			Content:   userText,
			Timestamp: now,
		},
		Message{
			ID:        uuid.NewString(),
			Role:      RoleAssistant,
			Content:   PlaceholderContent,
			Timestamp: now,
			Pending:   true,
		},
	)
	return Handle{Generation: c.generation, Index: len(c.messages) - 1}
}

// Finalize replaces the placeholder's content and payload in place.
func (c *Conversation) Finalize(h Handle, text string, payload *StructuredPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, err := c.placeholderLocked(h)
	if err != nil {
		return err
	}
	msg.Content = text
	msg.Structured = payload
	msg.Pending = false
	return nil
}

// FinalizeError replaces the placeholder's content with an error string.
func (c *Conversation) FinalizeError(h Handle, errText string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	msg, err := c.placeholderLocked(h)
	if err != nil {
		return err
	}
	msg.Content = "Error: " + errText
	msg.Structured = nil
	msg.Pending = false
	return nil
}

func (c *Conversation) placeholderLocked(h Handle) (*Message, error) {
	if h.Generation != c.generation {
		return nil, ErrStaleHandle
	}
	if h.Index < 0 || h.Index >= len(c.messages) {
		return nil, ErrNotPending
	}
	msg := &c.messages[h.Index]
	if msg.Role != RoleAssistant || !msg.Pending {
		return nil, ErrNotPending
	}
	return msg, nil
}

// Messages returns a copy of the log in display order.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// History returns the role/content pairs of every settled message.
func (c *Conversation) History() []HistoryEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]HistoryEntry, 0, len(c.messages))
	for _, m := range c.messages {
		if m.Pending {
			continue
		}
		out = append(out, HistoryEntry{Role: m.Role, Content: m.Content})
	}
	return out
}

// Len returns the number of messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Generation returns the current generation counter.
func (c *Conversation) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generation
}
