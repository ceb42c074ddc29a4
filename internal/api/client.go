package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/thruflo/drafter/internal/sse"
)

// Client talks to the design backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	reqTimeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRequestTimeout bounds non-streaming requests. Streaming endpoints
// are unaffected; an open stream has no overall deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.reqTimeout = d
	}
}

// NewClient creates a Client for the given base URL.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0, // Streaming responses have no overall deadline.
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Stream is an open SSE response. Recv returns content deltas in
// arrival order and io.EOF once the stream ends. Close releases the
// connection; canceling the request context does the same.
type Stream struct {
	body io.ReadCloser
	dec  *sse.Decoder
}

// Recv returns the next content delta, or io.EOF at end of stream.
func (s *Stream) Recv() (string, error) {
	return s.dec.Next()
}

// Close releases the underlying connection.
func (s *Stream) Close() error {
	return s.body.Close()
}

// ChatStream opens a designer turn. The caller owns the returned Stream
// and must Close it.
func (c *Client) ChatStream(ctx context.Context, req *ChatRequest) (*Stream, error) {
	return c.openStream(ctx, "/api/chat/stream", req)
}

// QAReviewStream opens a QA review turn.
func (c *Client) QAReviewStream(ctx context.Context, req *QARequest) (*Stream, error) {
	return c.openStream(ctx, "/api/qa-review/stream", req)
}

// openStream POSTs a JSON body and wraps the SSE response. A non-2xx
// status fails with *HTTPError before any body reading; a missing body
// fails with ErrStreamUnavailable before any delta is emitted.
func (c *Client) openStream(ctx context.Context, path string, body any) (*Stream, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		return nil, ErrStreamUnavailable
	}

	return &Stream{body: resp.Body, dec: sse.NewDecoder(resp.Body)}, nil
}

// Execute runs design code on the backend and returns the execution
// result, including rendered geometry references.
func (c *Client) Execute(ctx context.Context, code string) (*ExecutionResult, error) {
	var result ExecutionResult
	if err := c.postJSON(ctx, "/api/execute", map[string]string{"code": code}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// RunTests runs the constraint test suite against design code.
func (c *Client) RunTests(ctx context.Context, code string) (*TestSuiteResult, error) {
	var result TestSuiteResult
	if err := c.postJSON(ctx, "/api/test", map[string]string{"code": code}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Health checks backend availability and reports the configured model.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	if err := c.getJSON(ctx, "/api/health", &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// SystemPrompt fetches the backend's default system prompt.
func (c *Client) SystemPrompt(ctx context.Context) (string, error) {
	var resp struct {
		SystemPrompt string `json:"system_prompt"`
	}
	if err := c.getJSON(ctx, "/api/system-prompt", &resp); err != nil {
		return "", err
	}
	return resp.SystemPrompt, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body, out any) error {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	ctx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	return c.do(req, out)
}

// requestContext applies the configured non-streaming timeout.
func (c *Client) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.reqTimeout > 0 {
		return context.WithTimeout(ctx, c.reqTimeout)
	}
	return ctx, func() {}
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
