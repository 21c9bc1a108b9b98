// Package domain contains core domain types for the portfolio backend.
package domain

import (
	"time"
)

// Visitor is an anonymous browser identified by a cookie. Only the
// "has interacted with the assistant" flag survives between chat sessions.
type Visitor struct {
	VisitorID     string    `json:"visitor_id"`
	HasInteracted bool      `json:"has_interacted"`
	FirstSeenAt   time.Time `json:"first_seen_at"`
	LastSeenAt    time.Time `json:"last_seen_at"`
	InteractedAt  time.Time `json:"interacted_at,omitempty"`
}

// ShouldShowTeaser reports whether the assistant teaser should be shown.
func (v *Visitor) ShouldShowTeaser() bool {
	return v == nil || !v.HasInteracted
}
