package chat

import "time"

// StateEvent reports a submission's state transition.
type StateEvent struct {
	SessionID string    `json:"session_id"`
	VisitorID string    `json:"visitor_id"`
	State     State     `json:"state"`
	Handle    Handle    `json:"handle"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

// FinalizedEvent reports a placeholder that received its final content.
type FinalizedEvent struct {
	SessionID string  `json:"session_id"`
	VisitorID string  `json:"visitor_id"`
	Prompt    string  `json:"prompt"`
	Message   Message `json:"message"`
	Failed    bool    `json:"failed"`
	Searched  bool    `json:"searched"`
}

// Observer is notified of session activity. Implementations must not block.
type Observer interface {
	StateChanged(ev StateEvent)
	MessageFinalized(ev FinalizedEvent)
}

// Observers fans events out to several observers.
type Observers []Observer

// StateChanged forwards ev to every observer.
func (o Observers) StateChanged(ev StateEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.StateChanged(ev)
		}
	}
}

// MessageFinalized forwards ev to every observer.
func (o Observers) MessageFinalized(ev FinalizedEvent) {
	for _, obs := range o {
		if obs != nil {
			obs.MessageFinalized(ev)
		}
	}
}

type noopObserver struct{}

func (noopObserver) StateChanged(StateEvent)         {}
func (noopObserver) MessageFinalized(FinalizedEvent) {}
