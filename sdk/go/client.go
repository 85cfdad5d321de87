// Package contactrelay is a Go client for the contact relay HTTP API.
package contactrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Config holds the configuration for the client.
type Config struct {
	// BaseURL is the root URL of the relay, e.g. "https://contact.example.com".
	BaseURL string

	// HTTPClient is an optional custom HTTP client.
	// If nil, a default client with 60s timeout is used.
	HTTPClient *http.Client

	// Attempts caps how many times a send is tried when the network fails or
	// the server answers 5xx. Default: 3
	Attempts int

	// BaseDelay is the wait after the first failed attempt; it doubles after
	// each further failure. Default: 1 second
	BaseDelay time.Duration
}

func (c *Config) defaults() {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: 60 * time.Second}
	}
	if c.Attempts <= 0 {
		c.Attempts = 3
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = time.Second
	}
	c.BaseURL = strings.TrimSuffix(c.BaseURL, "/")
}

// Client submits contact messages to a relay.
type Client struct {
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClient creates a new client with the given configuration.
func NewClient(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		cfg:   cfg,
		sleep: sleepWithContext,
	}
}

// Send submits a message. Without attachments the body is JSON, otherwise
// multipart/form-data. Network errors and 5xx responses are retried; any
// other error status is returned as *APIError immediately.
func (c *Client) Send(ctx context.Context, sub Submission, files ...FileAttachment) (*SendResponse, error) {
	build := func() (io.Reader, string, error) {
		if len(files) == 0 {
			data, err := json.Marshal(sub)
			if err != nil {
				return nil, "", fmt.Errorf("contactrelay: failed to marshal request: %w", err)
			}
			return bytes.NewReader(data), "application/json", nil
		}
		return multipartBody(sub, files)
	}

	var lastErr error
	for attempt := 1; attempt <= c.cfg.Attempts; attempt++ {
		body, contentType, err := build()
		if err != nil {
			return nil, err
		}

		respBody, err := c.do(ctx, http.MethodPost, "/send-email", body, contentType)
		if err == nil {
			var resp SendResponse
			if err := json.Unmarshal(respBody, &resp); err != nil {
				return nil, fmt.Errorf("contactrelay: failed to parse response: %w", err)
			}
			return &resp, nil
		}

		lastErr = err
		if !retryable(err) || attempt == c.cfg.Attempts {
			break
		}
		if err := c.sleep(ctx, c.cfg.BaseDelay<<(attempt-1)); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// Health calls GET /health.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	body, err := c.do(ctx, http.MethodGet, "/health", nil, "")
	if err != nil {
		return nil, err
	}

	var resp HealthResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("contactrelay: failed to parse health response: %w", err)
	}
	return &resp, nil
}

// do sends a request to the relay API.
func (c *Client) do(ctx context.Context, method, path string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("contactrelay: failed to create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return nil, &networkError{err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &networkError{err: err}
	}

	if resp.StatusCode >= 400 {
		return nil, parseAPIError(resp.StatusCode, respBody)
	}

	return respBody, nil
}

func multipartBody(sub Submission, files []FileAttachment) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	fields := [][2]string{
		{"name", sub.Name},
		{"email", sub.Email},
		{"subject", sub.Subject},
		{"message", sub.Message},
	}
	if sub.Meta != nil {
		meta, err := json.Marshal(sub.Meta)
		if err != nil {
			return nil, "", fmt.Errorf("contactrelay: failed to marshal meta: %w", err)
		}
		fields = append(fields, [2]string{"meta", string(meta)})
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("contactrelay: failed to write field: %w", err)
		}
	}

	for i, f := range files {
		part, err := w.CreateFormFile(fmt.Sprintf("file%d", i+1), f.Filename)
		if err != nil {
			return nil, "", fmt.Errorf("contactrelay: failed to add %s: %w", f.Filename, err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return nil, "", fmt.Errorf("contactrelay: failed to add %s: %w", f.Filename, err)
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("contactrelay: failed to close multipart body: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

// networkError marks transport-level failures, which are always retried.
type networkError struct {
	err error
}

func (e *networkError) Error() string { return "contactrelay: request failed: " + e.err.Error() }
func (e *networkError) Unwrap() error { return e.err }

func retryable(err error) bool {
	var netErr *networkError
	if errors.As(err, &netErr) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	return false
}

// sleepWithContext waits for the specified duration or until the context is cancelled.
func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
