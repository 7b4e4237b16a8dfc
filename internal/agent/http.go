package agent

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	// maxResponseSize is the maximum number of bytes read from an agent response (10MB)
	maxResponseSize = 10 * 1024 * 1024
)

// HTTP calls a decision agent served at a URL. Each decision is one POST of the input
// envelope; the response body is the agent's reply.
type HTTP struct {
	url    string
	client *http.Client
}

// NewHTTP creates an HTTP agent for url. A zero timeout means the call is bounded
// only by the caller's context.
func NewHTTP(url string, timeout time.Duration) (*HTTP, error) {
	if url == "" {
		return nil, fmt.Errorf("agent URL cannot be empty")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, fmt.Errorf("agent URL must be http:// or https://, got %q", url)
	}

	return &HTTP{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Decide POSTs request to the agent and returns the response body.
// A non-2xx status or an oversized body is an error.
func (a *HTTP) Decide(ctx context.Context, request []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(request))
	if err != nil {
		return nil, fmt.Errorf("failed to build agent request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read agent response: %w", err)
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("agent response exceeds %d bytes", maxResponseSize)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("agent returned status %d: %s", resp.StatusCode, snippet(body))
	}

	return body, nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
