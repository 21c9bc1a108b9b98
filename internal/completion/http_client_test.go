package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ashureev/portfolio/internal/chat"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientComplete(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req chat.CompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "What are your skills?", req.Prompt)
		require.True(t, req.StructuredResponse)
		require.Len(t, req.Messages, 1)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"response":"Here:","isSearchPerformed":true,"hasStructuredData":true,"structuredDataType":"skills"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, 5*time.Second, nil)
	resp, err := c.Complete(context.Background(), chat.CompletionRequest{
		Prompt:             "What are your skills?",
		Messages:           []chat.HistoryEntry{{Role: chat.RoleAssistant, Content: "hi"}},
		StructuredResponse: true,
	})
	require.NoError(t, err)
	require.Equal(t, "Here:", resp.Response)
	require.True(t, resp.IsSearchPerformed)
	require.True(t, resp.HasStructuredData)
	require.Equal(t, "skills", resp.StructuredDataType)
}

func TestHTTPClientGatewayTimeout(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, 5*time.Second, nil).Complete(context.Background(), chat.CompletionRequest{Prompt: "x"})
	require.ErrorIs(t, err, chat.ErrTimeout)
	require.Equal(t, chat.TimeoutMessage, chat.DisplayError(err))

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusGatewayTimeout, statusErr.StatusCode)
}

func TestHTTPClientErrorEnvelope(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":"Too many requests, slow down"}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, 5*time.Second, nil).Complete(context.Background(), chat.CompletionRequest{Prompt: "x"})
	require.Error(t, err)
	require.NotErrorIs(t, err, chat.ErrTimeout)
	require.Equal(t, "Too many requests, slow down", chat.DisplayError(err))
}

func TestHTTPClientNonJSONFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, 5*time.Second, nil).Complete(context.Background(), chat.CompletionRequest{Prompt: "x"})
	require.Error(t, err)
	require.Equal(t, chat.GenericFailureMessage, chat.DisplayError(err))
}

func TestHTTPClientClientTimeout(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		select {
		case <-block:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(block)

	_, err := NewHTTPClient(srv.URL, 50*time.Millisecond, nil).Complete(context.Background(), chat.CompletionRequest{Prompt: "x"})
	require.ErrorIs(t, err, chat.ErrTimeout)
}
