// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/portfolio/internal/domain"
)

// Repository defines the interface for persisting visitor and contact data.
type Repository interface {
	// GetVisitor retrieves a visitor by ID. It returns nil, nil when unknown.
	GetVisitor(ctx context.Context, visitorID string) (*domain.Visitor, error)

	// UpsertVisitor creates or updates a visitor record.
	UpsertVisitor(ctx context.Context, visitor *domain.Visitor) error

	// UpdateLastSeen updates the last_seen_at timestamp for a visitor.
	UpdateLastSeen(ctx context.Context, visitorID string, lastSeen time.Time) error

	// MarkInteracted sets the visitor's "has interacted with the assistant" flag.
	MarkInteracted(ctx context.Context, visitorID string, at time.Time) error

	// RecordContactSubmission stores one email send attempt.
	RecordContactSubmission(ctx context.Context, sub *domain.ContactSubmission) error

	// ListContactSubmissions returns a visitor's most recent send attempts, newest first.
	ListContactSubmissions(ctx context.Context, visitorID string, limit int) ([]*domain.ContactSubmission, error)

	// DeleteStaleVisitors removes visitors not seen within ttl that never interacted.
	DeleteStaleVisitors(ctx context.Context, ttl time.Duration) (int64, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
