// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/translink/internal/router"
)

// Configuration constants.
const (
	// DefaultTimeout is the default timeout for a single HTTP attempt.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the default number of attempts for transient errors.
	DefaultMaxRetries = 3

	// DefaultRetryDelay is the base delay for exponential backoff.
	DefaultRetryDelay = 500 * time.Millisecond

	// retryMaxDelay caps the backoff delay.
	retryMaxDelay = 10 * time.Second

	// MaxResponseSize is the maximum allowed response body size.
	MaxResponseSize = 10 * 1024 * 1024 // 10MB

	userAgent = "translink/0.3.0"
)

// =============================================================================
// CLIENT
// =============================================================================

// Client is a retrying JSON-over-HTTP client. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithMaxRetries sets the number of attempts. Values below 1 mean one attempt.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		if n < 1 {
			n = 1
		}
		c.maxRetries = n
	}
}

// WithRetryDelay sets the base backoff delay.
func WithRetryDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.retryDelay = d
		}
	}
}

// WithRateLimit installs a token bucket of perSecond requests with the given
// burst. A non-positive rate disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a client for baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(strings.TrimSpace(baseURL), "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout returns the per-attempt timeout.
func (c *Client) Timeout() time.Duration {
	return c.httpClient.Timeout
}

// IsConfigured reports whether the client has a base URL.
func (c *Client) IsConfigured() bool {
	return c.baseURL != ""
}

// =============================================================================
// MANAGED ROUTING
// =============================================================================

// Call forwards a routed request to the managed backend and decodes the
// {success, data, error, usage} envelope. It implements router.BackendClient.
//
// A failure envelope is returned as a response whatever the HTTP status, so
// the backend's error text reaches the caller untouched. Usage limits,
// rejected tokens and rate limiting stay Go errors.
func (c *Client) Call(ctx context.Context, token string, req router.Request) (*router.Response, error) {
	if token == "" {
		return nil, fmt.Errorf("%w: user token", ErrMissingCredentials)
	}

	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	body, err := c.Do(ctx, method, req.Endpoint, token, req.Body)
	if err != nil {
		if resp, ok := failureEnvelope(err); ok {
			return resp, nil
		}
		return nil, err
	}

	var resp router.Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// =============================================================================
// PERSONAL MODE
// =============================================================================

// ChatMessage is a single message in a chat conversation.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewSystemMessage creates a system message.
func NewSystemMessage(content string) ChatMessage {
	return ChatMessage{Role: "system", Content: content}
}

// NewUserMessage creates a user message.
func NewUserMessage(content string) ChatMessage {
	return ChatMessage{Role: "user", Content: content}
}

// ChatRequest is an OpenAI chat completion request.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

// ChatResponse is an OpenAI chat completion response.
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Content returns the first choice's content, or "" if there is none.
func (r *ChatResponse) Content() string {
	if len(r.Choices) > 0 {
		return r.Choices[0].Message.Content
	}
	return ""
}

// Chat performs a chat completion against an OpenAI-compatible provider
// using the caller's own API key.
func (c *Client) Chat(ctx context.Context, apiKey string, req ChatRequest) (*ChatResponse, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: api key", ErrMissingCredentials)
	}

	body, err := c.Do(ctx, http.MethodPost, "/chat/completions", apiKey, req)
	if err != nil {
		return nil, err
	}

	var out ChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &out, nil
}

// =============================================================================
// TRANSPORT
// =============================================================================

// Do sends payload (JSON-encoded, nil for no body) to path with a bearer
// credential and returns the raw 2xx body. Transient failures are retried
// with exponential backoff.
func (c *Client) Do(ctx context.Context, method, path, credential string, payload any) ([]byte, error) {
	if !c.IsConfigured() {
		return nil, ErrNotConfigured
	}

	var encoded []byte
	if payload != nil {
		var err error
		encoded, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	url := c.baseURL + "/" + strings.TrimPrefix(path, "/")

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limiter: %w", err)
			}
		}

		body, err := c.doOnce(ctx, method, url, credential, encoded)
		if err == nil {
			return body, nil
		}
		if !isRetryable(err) {
			return nil, err
		}
		c.logger.Debug("retrying backend request", "attempt", attempt+1, "error", err)
		lastErr = err
	}

	c.logger.Warn("backend request failed after retries", "attempts", c.maxRetries, "error", lastErr)
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, url, credential string, encoded []byte) ([]byte, error) {
	var reader io.Reader
	if encoded != nil {
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	setHeaders(req, credential, encoded != nil)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	req.Header.Del("Authorization")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("backend response",
		"method", method,
		"path", req.URL.Path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
		"key", Fingerprint(credential))

	body, err := readResponse(resp)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, handleErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

func setHeaders(req *http.Request, credential string, hasBody bool) {
	if credential != "" {
		req.Header.Set("Authorization", "Bearer "+credential)
	}
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
}

// readResponse reads the body, refusing anything over MaxResponseSize.
func readResponse(resp *http.Response) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if int64(len(body)) > MaxResponseSize {
		return nil, fmt.Errorf("%w: limit is %d bytes", ErrResponseTooLarge, MaxResponseSize)
	}
	return body, nil
}

// isRetryable reports whether err is worth another attempt: rate limiting
// and 5xx responses are, everything else (including cancellation) is not.
func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return false
}

// calculateBackoff returns the delay before the given attempt.
func (c *Client) calculateBackoff(attempt int) time.Duration {
	delay := c.retryDelay * time.Duration(1<<uint(attempt-1))
	if delay > retryMaxDelay {
		delay = retryMaxDelay
	}
	return delay
}

// Fingerprint returns a short SHA-256 fingerprint of a credential for logs.
// The credential itself is never logged.
func Fingerprint(credential string) string {
	if credential == "" {
		return "none"
	}
	h := sha256.Sum256([]byte(credential))
	return hex.EncodeToString(h[:4])
}
