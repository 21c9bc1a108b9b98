// Package completion provides clients for the upstream completion service.
package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/portfolio/internal/chat"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 64 << 10

// StatusError is returned for non-2xx upstream responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("upstream returned status %d", e.StatusCode)
}

// UserMessage returns the upstream-provided error text, if any.
func (e *StatusError) UserMessage() string { return e.Message }

// Unwrap maps a gateway timeout to chat.ErrTimeout.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusGatewayTimeout {
		return chat.ErrTimeout
	}
	return nil
}

// HTTPClient talks to the completion service over JSON/HTTP.
type HTTPClient struct {
	url    string
	client *http.Client
	logger *slog.Logger
}

// NewHTTPClient creates a client posting to url.
func NewHTTPClient(url string, timeout time.Duration, logger *slog.Logger) *HTTPClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPClient{
		url:    url,
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Complete implements chat.Completer.
func (c *HTTPClient) Complete(ctx context.Context, req chat.CompletionRequest) (*chat.CompletionResponse, error) {
	var resp chat.CompletionResponse
	if err := PostJSON(ctx, c.client, c.url, req, &resp); err != nil {
		return nil, err
	}
	c.logger.Debug("Completion received",
		"response_length", len(resp.Response),
		"search_performed", resp.IsSearchPerformed,
		"structured_type", resp.StructuredDataType,
	)
	return &resp, nil
}

var _ chat.Completer = (*HTTPClient)(nil)

// errorBody is the optional error envelope of upstream responses.
type errorBody struct {
	Error string `json:"error"`
}

// PostJSON posts in as JSON to url and decodes the 2xx reply into out.
// Non-2xx replies become *StatusError carrying the body's "error" field.
func PostJSON(ctx context.Context, client *http.Client, url string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		var netErr interface{ Timeout() bool }
		if errors.As(err, &netErr) && netErr.Timeout() {
			return fmt.Errorf("send request: %w", errors.Join(err, chat.ErrTimeout))
		}
		return fmt.Errorf("send request: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		statusErr := &StatusError{StatusCode: resp.StatusCode}
		data, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		if readErr == nil {
			var eb errorBody
			if json.Unmarshal(data, &eb) == nil {
				statusErr.Message = eb.Error
			}
		}
		return statusErr
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
