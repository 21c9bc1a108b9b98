package chat

import (
	"context"
	"errors"
)

// CompletionRequest is sent to the completion service for each submission.
type CompletionRequest struct {
	Prompt             string         `json:"prompt"`
	Messages           []HistoryEntry `json:"messages"`
	StructuredResponse bool           `json:"structuredResponse"`
}

// CompletionResponse is the completion service's reply.
type CompletionResponse struct {
	Response           string `json:"response"`
	IsSearchPerformed  bool   `json:"isSearchPerformed"`
	HasStructuredData  bool   `json:"hasStructuredData"`
	StructuredDataType string `json:"structuredDataType"`
}

// Completer produces assistant replies. Implementations report gateway
// timeouts by wrapping ErrTimeout.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// CompleterFunc adapts a function to Completer.
type CompleterFunc func(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

// Complete calls f(ctx, req).
func (f CompleterFunc) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	return f(ctx, req)
}

// UserMessager is implemented by errors that carry a message safe to show
// to the visitor.
type UserMessager interface {
	UserMessage() string
}

// DisplayError converts a pipeline failure into the text written into the
// conversation.
func DisplayError(err error) string {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return TimeoutMessage
	}
	var um UserMessager
	if errors.As(err, &um) && um.UserMessage() != "" {
		return um.UserMessage()
	}
	return GenericFailureMessage
}
