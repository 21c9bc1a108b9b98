package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashureev/portfolio/internal/chat"
)

func TestClientRoundTrip(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/chat/sessions", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "folio_visitor_id", Value: "anon_test", Path: "/"})
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(chat.Snapshot{
			SessionID: "s1",
			Messages:  []chat.Message{{Role: chat.RoleAssistant, Content: "hello"}},
		})
	})
	mux.HandleFunc("POST /api/chat/sessions/s1/messages", func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("folio_visitor_id")
		if err != nil || cookie.Value != "anon_test" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["text"] == "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"message is empty"}`))
			return
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(submitResponse{Snapshot: chat.Snapshot{SessionID: "s1", Loading: true}})
	})
	mux.HandleFunc("GET /api/chat/sessions/s1/messages", func(w http.ResponseWriter, r *http.Request) {
		snap := chat.Snapshot{SessionID: "s1", Loading: polls.Add(1) < 3, Messages: []chat.Message{
			{Role: chat.RoleAssistant, Content: "hello"},
			{Role: chat.RoleUser, Content: "projects?"},
			{Role: chat.RoleAssistant, Content: "Here they are", Structured: &chat.StructuredPayload{Kind: chat.KindProjects}},
		}}
		_ = json.NewEncoder(w).Encode(snap)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	c, err := newClient(srv.URL+"/", time.Second)
	require.NoError(t, err)
	c.pollInterval = 5 * time.Millisecond
	ctx := context.Background()

	snap, err := c.open(ctx)
	require.NoError(t, err)
	require.Equal(t, "s1", snap.SessionID)

	_, err = c.submit(ctx, "s1", "", true)
	require.EqualError(t, err, "message is empty")

	_, err = c.submit(ctx, "s1", "projects?", true)
	require.NoError(t, err)

	snap, err = c.wait(ctx, "s1", nil)
	require.NoError(t, err)
	require.False(t, snap.Loading)
	require.GreaterOrEqual(t, polls.Load(), int32(3))

	msg, ok := lastAssistant(snap)
	require.True(t, ok)
	require.Equal(t, chat.KindProjects, msg.Structured.Kind)
}

func TestLastAssistantEmpty(t *testing.T) {
	_, ok := lastAssistant(chat.Snapshot{Messages: []chat.Message{{Role: chat.RoleUser, Content: "hi"}}})
	require.False(t, ok)
}
