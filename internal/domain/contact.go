package domain

import (
	"time"
)

// ContactMode is how the email body was produced.
type ContactMode string

const (
	// ContactModeAI means the body was generated from a prompt.
	ContactModeAI ContactMode = "ai"
	// ContactModeManual means the visitor wrote the body themselves.
	ContactModeManual ContactMode = "manual"
)

// ContactStatus is the outcome of a send attempt.
type ContactStatus string

const (
	ContactStatusSent   ContactStatus = "sent"
	ContactStatusFailed ContactStatus = "failed"
)

// ContactSubmission records one attempt to send an email to the site owner.
type ContactSubmission struct {
	ID          string        `json:"id"`
	VisitorID   string        `json:"visitor_id"`
	Mode        ContactMode   `json:"mode"`
	Subject     string        `json:"subject"`
	SenderName  string        `json:"sender_name,omitempty"`
	SenderEmail string        `json:"sender_email,omitempty"`
	Prompt      string        `json:"prompt"`
	Content     string        `json:"content"`
	Status      ContactStatus `json:"status"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}
