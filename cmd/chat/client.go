package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/ashureev/portfolio/internal/chat"
)

// client talks to the chat API as a single visitor. The cookie jar keeps the
// visitor cookie the server issues on the first request.
type client struct {
	baseURL      string
	http         *http.Client
	pollInterval time.Duration
}

type apiError struct {
	Error string `json:"error"`
}

type submitResponse struct {
	Handle   chat.Handle   `json:"handle"`
	Snapshot chat.Snapshot `json:"snapshot"`
}

func newClient(baseURL string, timeout time.Duration) (*client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("create cookie jar: %w", err)
	}
	return &client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		http:         &http.Client{Jar: jar, Timeout: timeout},
		pollInterval: 250 * time.Millisecond,
	}, nil
}

func (c *client) open(ctx context.Context) (chat.Snapshot, error) {
	var snap chat.Snapshot
	err := c.do(ctx, http.MethodPost, "/api/chat/sessions", nil, http.StatusCreated, &snap)
	return snap, err
}

func (c *client) close(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodDelete, "/api/chat/sessions/"+sessionID, nil, http.StatusNoContent, nil)
}

func (c *client) submit(ctx context.Context, sessionID, text string, trusted bool) (submitResponse, error) {
	var resp submitResponse
	body := map[string]any{"text": text, "trusted": trusted}
	err := c.do(ctx, http.MethodPost, "/api/chat/sessions/"+sessionID+"/messages", body, http.StatusAccepted, &resp)
	return resp, err
}

func (c *client) snapshot(ctx context.Context, sessionID string) (chat.Snapshot, error) {
	var snap chat.Snapshot
	err := c.do(ctx, http.MethodGet, "/api/chat/sessions/"+sessionID+"/messages", nil, http.StatusOK, &snap)
	return snap, err
}

// wait polls the session until no reply is in flight.
func (c *client) wait(ctx context.Context, sessionID string, onSearching func()) (chat.Snapshot, error) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	announced := false
	for {
		snap, err := c.snapshot(ctx, sessionID)
		if err != nil {
			return chat.Snapshot{}, err
		}
		if !snap.Loading {
			return snap, nil
		}
		if snap.Searching && !announced && onSearching != nil {
			onSearching()
			announced = true
		}

		select {
		case <-ctx.Done():
			return chat.Snapshot{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *client) do(ctx context.Context, method, path string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		var apiErr apiError
		if json.NewDecoder(resp.Body).Decode(&apiErr) == nil && apiErr.Error != "" {
			return errors.New(apiErr.Error)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// lastAssistant returns the newest assistant message in snap.
func lastAssistant(snap chat.Snapshot) (chat.Message, bool) {
	for i := len(snap.Messages) - 1; i >= 0; i-- {
		if snap.Messages[i].Role == chat.RoleAssistant {
			return snap.Messages[i], true
		}
	}
	return chat.Message{}, false
}
