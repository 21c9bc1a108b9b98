package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/portfolio/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "nested", "portfolio.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestVisitorLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)

	if err := repo.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}

	got, err := repo.GetVisitor(ctx, "anon_missing")
	if err != nil || got != nil {
		t.Fatalf("expected nil visitor, got %+v, %v", got, err)
	}

	now := time.Now().Truncate(time.Second)
	if err := repo.UpsertVisitor(ctx, &domain.Visitor{
		VisitorID:   "anon_1",
		FirstSeenAt: now,
		LastSeenAt:  now,
	}); err != nil {
		t.Fatalf("UpsertVisitor failed: %v", err)
	}

	got, err = repo.GetVisitor(ctx, "anon_1")
	if err != nil || got == nil {
		t.Fatalf("GetVisitor failed: %+v, %v", got, err)
	}
	if got.HasInteracted {
		t.Fatal("new visitor should not have interacted")
	}
	if !got.ShouldShowTeaser() {
		t.Fatal("new visitor should see the teaser")
	}

	if err := repo.MarkInteracted(ctx, "anon_1", now.Add(time.Minute)); err != nil {
		t.Fatalf("MarkInteracted failed: %v", err)
	}

	// A later upsert must not clear the sticky flag.
	if err := repo.UpsertVisitor(ctx, &domain.Visitor{
		VisitorID:   "anon_1",
		FirstSeenAt: now,
		LastSeenAt:  now.Add(2 * time.Minute),
	}); err != nil {
		t.Fatalf("UpsertVisitor failed: %v", err)
	}

	got, err = repo.GetVisitor(ctx, "anon_1")
	if err != nil {
		t.Fatalf("GetVisitor failed: %v", err)
	}
	if !got.HasInteracted {
		t.Fatal("expected has_interacted to stay set")
	}
	if !got.InteractedAt.Equal(now.Add(time.Minute)) {
		t.Fatalf("unexpected interacted_at: %v", got.InteractedAt)
	}
	if !got.LastSeenAt.Equal(now.Add(2 * time.Minute)) {
		t.Fatalf("unexpected last_seen_at: %v", got.LastSeenAt)
	}

	if err := repo.MarkInteracted(ctx, "anon_unknown", now); err == nil {
		t.Fatal("expected error for unknown visitor")
	}
}

func TestDeleteStaleVisitorsKeepsInteracted(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)

	old := time.Now().Add(-48 * time.Hour)
	for _, id := range []string{"anon_stale", "anon_kept"} {
		if err := repo.UpsertVisitor(ctx, &domain.Visitor{VisitorID: id, FirstSeenAt: old, LastSeenAt: old}); err != nil {
			t.Fatalf("UpsertVisitor failed: %v", err)
		}
	}
	if err := repo.MarkInteracted(ctx, "anon_kept", old); err != nil {
		t.Fatalf("MarkInteracted failed: %v", err)
	}

	deleted, err := repo.DeleteStaleVisitors(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("DeleteStaleVisitors failed: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted visitor, got %d", deleted)
	}
	if v, _ := repo.GetVisitor(ctx, "anon_kept"); v == nil {
		t.Fatal("interacted visitor was deleted")
	}
}

func TestContactSubmissions(t *testing.T) {
	ctx := context.Background()
	repo := newTestStore(t)

	base := time.Now().Truncate(time.Second)
	subs := []*domain.ContactSubmission{
		{ID: "s1", VisitorID: "anon_1", Mode: domain.ContactModeAI, Subject: "Hi", Prompt: "say hi", Content: "Hello!", Status: domain.ContactStatusSent, CreatedAt: base},
		{ID: "s2", VisitorID: "anon_1", Mode: domain.ContactModeManual, Subject: "Job", SenderName: "Ada", SenderEmail: "ada@example.com", Prompt: "Manual Email", Content: "Hire?", Status: domain.ContactStatusFailed, Error: "mailbox full", CreatedAt: base.Add(time.Second)},
		{ID: "s3", VisitorID: "anon_2", Mode: domain.ContactModeAI, Subject: "Other", Prompt: "p", Content: "c", Status: domain.ContactStatusSent, CreatedAt: base},
	}
	for _, sub := range subs {
		if err := repo.RecordContactSubmission(ctx, sub); err != nil {
			t.Fatalf("RecordContactSubmission failed: %v", err)
		}
	}

	got, err := repo.ListContactSubmissions(ctx, "anon_1", 10)
	if err != nil {
		t.Fatalf("ListContactSubmissions failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(got))
	}
	if got[0].ID != "s2" || got[0].Error != "mailbox full" || got[0].SenderEmail != "ada@example.com" {
		t.Fatalf("unexpected newest submission: %+v", got[0])
	}
	if got[1].SenderName != "" || got[1].Mode != domain.ContactModeAI {
		t.Fatalf("unexpected oldest submission: %+v", got[1])
	}
}
