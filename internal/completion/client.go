// Package completion talks to the remote chat-completion service. Every
// failure mode (timeout, transport error, bad status, malformed payload)
// collapses into ErrUnavailable so callers only need one fallback path.
package completion

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultTimeout bounds a single completion call.
const DefaultTimeout = 5 * time.Second

// maxBody caps how much of a response is read.
const maxBody = 1 << 20

var (
	// ErrUnavailable is returned for every failed completion call.
	ErrUnavailable = errors.New("completion service unavailable")
	// ErrRateLimited is returned by Guard when a window is full.
	ErrRateLimited = errors.New("completion rate limited")
)

// Client sends one prompt and returns the reply text.
type Client interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// HTTPClient calls an OpenAI-style chat completions endpoint.
type HTTPClient struct {
	url     string
	timeout time.Duration
	http    *http.Client
}

// NewHTTPClient creates a client for url. A non-positive timeout uses
// DefaultTimeout. hc may be nil.
func NewHTTPClient(url string, timeout time.Duration, hc *http.Client) *HTTPClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return &HTTPClient{url: url, timeout: timeout, http: hc}
}

// Complete posts prompt as a single user message.
func (c *HTTPClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := requestBody(prompt)
	if err != nil {
		return "", unavailable(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", unavailable(fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return "", unavailable(fmt.Errorf("request failed: %w", err))
	}
	defer res.Body.Close()

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBody))
	if err != nil {
		return "", unavailable(fmt.Errorf("read response: %w", err))
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", unavailable(fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(truncate(string(data), 256))))
	}

	return parseReply(data)
}

func requestBody(prompt string) ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "messages.0.role", "user")
	if err != nil {
		return nil, err
	}
	return sjson.SetBytes(body, "messages.0.content", prompt)
}

// parseReply extracts choices[0].message.content.
func parseReply(data []byte) (string, error) {
	if !gjson.ValidBytes(data) {
		return "", unavailable(errors.New("malformed response"))
	}
	content := gjson.GetBytes(data, "choices.0.message.content")
	if content.Type != gjson.String {
		return "", unavailable(errors.New("response has no message content"))
	}
	return content.String(), nil
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
