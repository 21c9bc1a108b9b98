package chat

import "log/slog"

// ErrorDisplay receives user-visible error text.
type ErrorDisplay interface {
	SetError(msg string)
}

// ErrorDisplayFunc adapts a function to ErrorDisplay.
type ErrorDisplayFunc func(msg string)

// SetError calls f(msg).
func (f ErrorDisplayFunc) SetError(msg string) { f(msg) }

// Gate only lets actions through when they come from a genuine user
// interaction. It discourages scripted submissions; it is not a security
// boundary since the trust bit is supplied by the caller.
type Gate struct {
	display ErrorDisplay
	logger  *slog.Logger
}

// NewGate creates a gate that reports rejections to display.
func NewGate(display ErrorDisplay, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{display: display, logger: logger}
}

// Attempt runs action when trusted is set and returns its error. Otherwise the
// action is skipped, the display shows AutomatedActionMessage and
// ErrAutomatedAction is returned.
func (g *Gate) Attempt(trusted bool, action func() error) error {
	if !trusted {
		if g.display != nil {
			g.display.SetError(AutomatedActionMessage)
		}
		g.logger.Warn("Detected programmatic action attempt")
		return ErrAutomatedAction
	}
	return action()
}
