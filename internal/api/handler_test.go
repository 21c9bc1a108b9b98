//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/portfolio/internal/content"
	"github.com/ashureev/portfolio/internal/domain"
	"github.com/ashureev/portfolio/internal/identity"
)

// fakeRepo is an in-memory store.Repository.
type fakeRepo struct {
	mu       sync.Mutex
	visitors map[string]*domain.Visitor
	subs     []*domain.ContactSubmission
	pingErr  error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{visitors: make(map[string]*domain.Visitor)}
}

func (f *fakeRepo) GetVisitor(_ context.Context, id string) (*domain.Visitor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.visitors[id]
	if !ok {
		return nil, nil
	}
	cp := *v
	return &cp, nil
}

func (f *fakeRepo) UpsertVisitor(_ context.Context, v *domain.Visitor) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *v
	if old, ok := f.visitors[v.VisitorID]; ok && old.HasInteracted {
		cp.HasInteracted = true
	}
	f.visitors[v.VisitorID] = &cp
	return nil
}

func (f *fakeRepo) UpdateLastSeen(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.visitors[id]; ok {
		v.LastSeenAt = at
	}
	return nil
}

func (f *fakeRepo) MarkInteracted(_ context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.visitors[id]
	if !ok {
		return errors.New("visitor not found")
	}
	v.HasInteracted = true
	v.InteractedAt = at
	return nil
}

func (f *fakeRepo) RecordContactSubmission(_ context.Context, sub *domain.ContactSubmission) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = append(f.subs, sub)
	return nil
}

func (f *fakeRepo) ListContactSubmissions(_ context.Context, id string, limit int) ([]*domain.ContactSubmission, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.ContactSubmission
	for i := len(f.subs) - 1; i >= 0 && len(out) < limit; i-- {
		if f.subs[i].VisitorID == id {
			out = append(out, f.subs[i])
		}
	}
	return out, nil
}

func (f *fakeRepo) DeleteStaleVisitors(context.Context, time.Duration) (int64, error) { return 0, nil }
func (f *fakeRepo) Ping(context.Context) error                                        { return f.pingErr }
func (f *fakeRepo) Close() error                                                      { return nil }

// withVisitor injects a fixed visitor the way identity.Middleware would.
func withVisitor(repo *fakeRepo, visitorID string) func(http.Handler) http.Handler {
	now := time.Now()
	_ = repo.UpsertVisitor(context.Background(), &domain.Visitor{VisitorID: visitorID, FirstSeenAt: now, LastSeenAt: now})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(identity.WithVisitorID(r.Context(), visitorID)))
		})
	}
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rec.Body).Decode(v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Expected JSON content type, got %q", ct)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestError(t *testing.T) {
	w := httptest.NewRecorder()
	Error(w, http.StatusTeapot, "short and stout")

	if w.Code != http.StatusTeapot {
		t.Errorf("Expected status 418, got %d", w.Code)
	}
	var got map[string]string
	decodeBody(t, w, &got)
	if got["error"] != "short and stout" {
		t.Errorf("unexpected error body: %v", got)
	}
}

func TestDecodeJSONRejectsOversizedBody(t *testing.T) {
	body := `{"text":"` + strings.Repeat("a", 200) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	w := httptest.NewRecorder()

	var v ChatRequest
	if decodeJSON(w, req, 64, &v) {
		t.Fatal("expected decode to fail")
	}
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("Expected status 413, got %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("{not json"))
	w = httptest.NewRecorder()
	if decodeJSON(w, req, 0, &v) {
		t.Fatal("expected decode to fail")
	}
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestGetMeAndTeaser(t *testing.T) {
	repo := newFakeRepo()
	site := content.NewStore(&content.Site{Greeting: "hi", Teasers: []string{"Talk to me!"}})

	r := chi.NewRouter()
	r.Use(withVisitor(repo, "anon_me"))
	NewHandler(repo, site).RegisterRoutes(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/me", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var me map[string]interface{}
	decodeBody(t, w, &me)
	if me["visitor_id"] != "anon_me" || me["has_interacted"] != false {
		t.Fatalf("unexpected /api/me body: %v", me)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat/teaser", nil))
	var teaser map[string]interface{}
	decodeBody(t, w, &teaser)
	if teaser["show"] != true || teaser["text"] != "Talk to me!" {
		t.Fatalf("unexpected teaser: %v", teaser)
	}

	if err := repo.MarkInteracted(context.Background(), "anon_me", time.Now()); err != nil {
		t.Fatalf("MarkInteracted failed: %v", err)
	}
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/chat/teaser", nil))
	teaser = nil
	decodeBody(t, w, &teaser)
	if teaser["show"] != false {
		t.Fatalf("teaser should be hidden after interaction: %v", teaser)
	}
}

func TestHealth(t *testing.T) {
	repo := newFakeRepo()
	r := chi.NewRouter()
	NewHealthHandler(repo, time.Second, func() map[string]int {
		return map[string]int{"chat_sessions": 3}
	}).RegisterHealth(r)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	repo.pingErr = errors.New("disk gone")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", w.Code)
	}
	var body map[string]interface{}
	decodeBody(t, w, &body)
	if body["status"] != "degraded" {
		t.Fatalf("unexpected health body: %v", body)
	}
}
