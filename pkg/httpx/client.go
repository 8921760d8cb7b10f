package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrServer       = errors.New("server error")
	ErrNetwork      = errors.New("network error")

	errRejected = errors.New("request rejected")
)

const (
	defaultTimeout     = 30 * time.Second
	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffCap  = 4 * time.Second

	maxResponseSizeBytes = 2 << 20
)

// APIError carries the HTTP status and raw body of a failed call. It always
// wraps one of the sentinel error kinds above so callers can errors.Is on
// the class while still inspecting the exact status.
type APIError struct {
	Status int
	Body   []byte
	kind   error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error status=%d: %s", e.Status, string(e.Body))
}

func (e *APIError) Unwrap() error {
	return e.kind
}

func classify(status int) error {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return ErrUnauthorized
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status >= 500:
		return ErrServer
	default:
		// Remaining 4xx have no dedicated kind; surface the status as-is.
		return errRejected
	}
}

// StatusOf extracts the HTTP status from an error chain, or 0 when the
// error did not come from an HTTP response.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Request describes one call. Idempotent marks requests that are safe to
// retry after a transient failure: reads, partial updates, and creates that
// are idempotent at the application layer. Plain creates must leave it
// false, otherwise a retry can duplicate the side effect.
type Request struct {
	Method     string
	Path       string
	Body       any
	Query      url.Values
	Idempotent bool
}

// Client is a bearer-authenticated JSON HTTP client with bounded retry on
// transient failures.
type Client struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
}

type Option func(*Client)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

func WithMaxAttempts(attempts int) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.maxAttempts = attempts
		}
	}
}

func WithBackoff(base, cap time.Duration) Option {
	return func(c *Client) {
		if base > 0 {
			c.backoffBase = base
		}
		if cap > 0 {
			c.backoffCap = cap
		}
	}
}

func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if trimmed == "" {
		return nil, errors.New("base url is required")
	}
	if _, err := url.ParseRequestURI(trimmed); err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	client := &Client{
		baseURL:     trimmed,
		token:       strings.TrimSpace(token),
		httpClient:  &http.Client{Timeout: defaultTimeout},
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	return client, nil
}

// Do executes the request and returns the raw response body on 2xx.
// NetworkError is always retried; RateLimited and ServerError are retried
// only for idempotent requests. Other 4xx surface immediately.
func (c *Client) Do(ctx context.Context, req Request) (json.RawMessage, error) {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		body, err := c.once(ctx, req, attempt)
		if err == nil {
			return body, nil
		}
		lastErr = err

		if !c.retryable(req, err) || attempt == c.maxAttempts {
			return nil, err
		}

		if err := sleep(ctx, c.backoff(attempt)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
		}
	}

	return nil, lastErr
}

func (c *Client) retryable(req Request, err error) bool {
	if errors.Is(err, ErrNetwork) {
		return req.Idempotent || req.Method == http.MethodGet
	}
	if errors.Is(err, ErrServer) || errors.Is(err, ErrRateLimited) {
		return req.Idempotent
	}
	return false
}

func (c *Client) backoff(attempt int) time.Duration {
	d := c.backoffBase << (attempt - 1)
	if d > c.backoffCap {
		return c.backoffCap
	}
	return d
}

func (c *Client) once(ctx context.Context, req Request, attempt int) (json.RawMessage, error) {
	var reader io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	path := req.Path
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	target := c.baseURL + path
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		log.Warn().
			Str("method", req.Method).
			Str("path", req.Path).
			Int("attempt", attempt).
			Dur("elapsed", time.Since(start)).
			Err(err).
			Msg("http request failed")
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSizeBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrNetwork, err)
	}

	log.Debug().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Int("attempt", attempt).
		Dur("elapsed", time.Since(start)).
		Msg("http request")

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		return raw, nil
	}

	log.Error().
		Str("method", req.Method).
		Str("path", req.Path).
		Int("status", resp.StatusCode).
		Msg("http error response")

	return nil, &APIError{
		Status: resp.StatusCode,
		Body:   raw,
		kind:   classify(resp.StatusCode),
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
