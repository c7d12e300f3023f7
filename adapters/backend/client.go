// Package backend implements the HTTP client used to talk to engine backends.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"sync/atomic"
	"time"

	"github.com/kompox/patchbay/domain/model"
)

// DefaultMaxResponseBytes bounds the size of a decoded backend reply.
const DefaultMaxResponseBytes = 16 << 20

// Client implements model.BackendClient.
type Client struct {
	httpClient       *http.Client
	maxResponseBytes int64
	userAgent        string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithMaxResponseBytes overrides DefaultMaxResponseBytes.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) { c.maxResponseBytes = n }
}

// WithUserAgent sets the User-Agent header of every request.
func WithUserAgent(ua string) Option {
	return func(c *Client) { c.userAgent = ua }
}

// New returns a Client. Per-call deadlines come from the request context.
func New(opts ...Option) *Client {
	c := &Client{
		httpClient:       &http.Client{Transport: http.DefaultTransport},
		maxResponseBytes: DefaultMaxResponseBytes,
		userAgent:        "patchbay",
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Health probes the backend health endpoint.
func (c *Client) Health(ctx context.Context, t model.BackendTarget) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL(t.Endpoints.HealthPath), nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("health check returned %d", resp.StatusCode)
	}
	return nil
}

// Command posts a command to the backend.
func (c *Client) Command(ctx context.Context, t model.BackendTarget, in *model.BackendRequest) (*model.BackendResponse, error) {
	body, err := c.post(ctx, t.URL(t.Endpoints.CommandPath), in)
	if err != nil {
		return nil, err
	}
	var out model.BackendResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, model.WrapError(model.KindBackendError, err, "decode backend response")
	}
	out.Raw = body
	return &out, nil
}

// Undo posts a reverse call to the backend.
func (c *Client) Undo(ctx context.Context, t model.BackendTarget, in *model.UndoRequest) (*model.ReverseResult, error) {
	if t.Endpoints.UndoPath == "" {
		return nil, model.NewError(model.KindUndoUnsupported, "backend has no undo endpoint")
	}
	body, err := c.post(ctx, t.URL(t.Endpoints.UndoPath), in)
	if err != nil {
		return nil, err
	}
	var out model.ReverseResult
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, model.WrapError(model.KindBackendError, err, "decode undo response")
	}
	return &out, nil
}

// post sends a JSON body and returns the raw 2xx reply. Transport failures
// that happen before the request was fully written are marked retryable;
// anything after that may have been observed by the backend and is not.
func (c *Client) post(ctx context.Context, url string, v any) ([]byte, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var wrote atomic.Bool
	trace := &httptrace.ClientTrace{
		WroteRequest: func(info httptrace.WroteRequestInfo) {
			if info.Err == nil {
				wrote.Store(true)
			}
		},
	}
	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		e := model.WrapError(model.KindBackendError, err, "POST %s", url)
		e.Retryable = !wrote.Load() && ctx.Err() == nil
		e.WithDetail("request_sent", wrote.Load())
		if errors.Is(err, context.DeadlineExceeded) {
			e.WithDetail("timeout", true)
		}
		return nil, e
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, model.WrapError(model.KindBackendError, err, "read response from %s", url).
			WithDetail("request_sent", true)
	}
	if int64(len(body)) > c.maxResponseBytes {
		return nil, model.NewError(model.KindBackendError, "response from %s exceeds %d bytes", url, c.maxResponseBytes).
			WithDetail("request_sent", true)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, model.NewError(model.KindBackendError, "POST %s returned %d: %s", url, resp.StatusCode, snippet(body)).
			WithDetail("status_code", resp.StatusCode).
			WithDetail("request_sent", true).
			WithDetail("elapsed_ms", time.Since(start).Milliseconds())
	}
	return body, nil
}

func snippet(b []byte) string {
	const max = 200
	s := string(bytes.TrimSpace(b))
	if len(s) > max {
		s = s[:max] + "..."
	}
	return s
}

var _ model.BackendClient = (*Client)(nil)
