package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/portfolio/internal/domain"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // Serializes writes to prevent SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS visitors (
		visitor_id TEXT PRIMARY KEY,
		has_interacted INTEGER NOT NULL DEFAULT 0,
		interacted_at INTEGER,
		first_seen_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_visitors_last_seen ON visitors(last_seen_at) WHERE has_interacted = 0;

	CREATE TABLE IF NOT EXISTS contact_submissions (
		id TEXT PRIMARY KEY,
		visitor_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		subject TEXT NOT NULL,
		sender_name TEXT,
		sender_email TEXT,
		prompt TEXT NOT NULL,
		content TEXT NOT NULL,
		status TEXT NOT NULL,
		error TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_contact_visitor ON contact_submissions(visitor_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetVisitor retrieves a visitor by ID.
func (s *SQLiteStore) GetVisitor(ctx context.Context, visitorID string) (*domain.Visitor, error) {
	query := `
		SELECT visitor_id, has_interacted, interacted_at, first_seen_at, last_seen_at
		FROM visitors WHERE visitor_id = ?`

	row := s.db.QueryRowContext(ctx, query, visitorID)

	var v domain.Visitor
	var interactedAt sql.NullInt64
	var firstSeen, lastSeen int64

	err := row.Scan(&v.VisitorID, &v.HasInteracted, &interactedAt, &firstSeen, &lastSeen)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan visitor row: %w", err)
	}

	v.FirstSeenAt = time.Unix(firstSeen, 0)
	v.LastSeenAt = time.Unix(lastSeen, 0)
	if interactedAt.Valid {
		v.InteractedAt = time.Unix(interactedAt.Int64, 0)
	}
	return &v, nil
}

// UpsertVisitor creates or updates a visitor record. The interaction flag is
// sticky: an upsert never clears it.
func (s *SQLiteStore) UpsertVisitor(ctx context.Context, v *domain.Visitor) error {
	query := `
	INSERT INTO visitors (visitor_id, has_interacted, interacted_at, first_seen_at, last_seen_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(visitor_id) DO UPDATE SET
		has_interacted = MAX(visitors.has_interacted, excluded.has_interacted),
		interacted_at = COALESCE(visitors.interacted_at, excluded.interacted_at),
		last_seen_at = excluded.last_seen_at`

	var interactedAt interface{}
	if v.HasInteracted && !v.InteractedAt.IsZero() {
		interactedAt = v.InteractedAt.Unix()
	}

	return s.withRetry(ctx, "upsert visitor", func() error {
		_, err := s.db.ExecContext(ctx, query,
			v.VisitorID, v.HasInteracted, interactedAt,
			v.FirstSeenAt.Unix(), v.LastSeenAt.Unix(),
		)
		return err
	})
}

// UpdateLastSeen updates the last_seen_at timestamp for a visitor.
func (s *SQLiteStore) UpdateLastSeen(ctx context.Context, visitorID string, lastSeen time.Time) error {
	var rows int64
	err := s.withRetry(ctx, "update last_seen", func() error {
		result, err := s.db.ExecContext(ctx,
			`UPDATE visitors SET last_seen_at = ? WHERE visitor_id = ?`,
			lastSeen.Unix(), visitorID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		slog.Warn("UpdateLastSeen affected 0 rows", "visitor_id", visitorID)
	}
	return nil
}

// MarkInteracted sets the has_interacted flag.
func (s *SQLiteStore) MarkInteracted(ctx context.Context, visitorID string, at time.Time) error {
	var rows int64
	err := s.withRetry(ctx, "mark interacted", func() error {
		result, err := s.db.ExecContext(ctx, `
			UPDATE visitors
			SET has_interacted = 1,
			    interacted_at = COALESCE(interacted_at, ?),
			    last_seen_at = ?
			WHERE visitor_id = ?`,
			at.Unix(), at.Unix(), visitorID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("visitor %s not found", visitorID)
	}
	return nil
}

// RecordContactSubmission stores one email send attempt.
func (s *SQLiteStore) RecordContactSubmission(ctx context.Context, sub *domain.ContactSubmission) error {
	query := `
	INSERT INTO contact_submissions (
		id, visitor_id, mode, subject, sender_name, sender_email,
		prompt, content, status, error, created_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return s.withRetry(ctx, "record contact submission", func() error {
		_, err := s.db.ExecContext(ctx, query,
			sub.ID, sub.VisitorID, string(sub.Mode), sub.Subject,
			nullString(sub.SenderName), nullString(sub.SenderEmail),
			sub.Prompt, sub.Content, string(sub.Status), nullString(sub.Error),
			sub.CreatedAt.Unix(),
		)
		return err
	})
}

// ListContactSubmissions returns a visitor's most recent send attempts.
func (s *SQLiteStore) ListContactSubmissions(ctx context.Context, visitorID string, limit int) ([]*domain.ContactSubmission, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
		SELECT id, visitor_id, mode, subject, sender_name, sender_email,
		       prompt, content, status, error, created_at
		FROM contact_submissions
		WHERE visitor_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, visitorID, limit)
	if err != nil {
		return nil, fmt.Errorf("query contact submissions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close contact submission rows", "error", closeErr)
		}
	}()

	var subs []*domain.ContactSubmission
	for rows.Next() {
		var sub domain.ContactSubmission
		var mode, status string
		var senderName, senderEmail, errText sql.NullString
		var createdAt int64

		if err := rows.Scan(
			&sub.ID, &sub.VisitorID, &mode, &sub.Subject, &senderName, &senderEmail,
			&sub.Prompt, &sub.Content, &status, &errText, &createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan contact submission row: %w", err)
		}

		sub.Mode = domain.ContactMode(mode)
		sub.Status = domain.ContactStatus(status)
		sub.SenderName = senderName.String
		sub.SenderEmail = senderEmail.String
		sub.Error = errText.String
		sub.CreatedAt = time.Unix(createdAt, 0)
		subs = append(subs, &sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contact submissions: %w", err)
	}
	return subs, nil
}

// DeleteStaleVisitors removes visitors that never interacted and have not
// been seen within ttl.
func (s *SQLiteStore) DeleteStaleVisitors(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	var deleted int64
	err := s.withRetry(ctx, "delete stale visitors", func() error {
		result, err := s.db.ExecContext(ctx,
			`DELETE FROM visitors WHERE has_interacted = 0 AND last_seen_at < ?`, threshold)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// withRetry runs a write with exponential backoff on SQLITE_BUSY errors.
func (s *SQLiteStore) withRetry(ctx context.Context, op string, fn func() error) error {
	const maxRetries = 3
	baseDelay := 50 * time.Millisecond

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var err error
	for i := 0; i < maxRetries; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !isConflictError(err) || i == maxRetries-1 {
			break
		}

		delay := baseDelay * time.Duration(1<<i) // exponential backoff: 50ms, 100ms, 200ms
		slog.Debug("SQLite write busy, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", op, ctx.Err())
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
