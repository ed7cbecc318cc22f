// Package http provides the authenticated HTTP transport shared by the
// catalog client and the storage backend adapters.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// RequestIDHeader carries a per-request correlation ID.
const RequestIDHeader = "X-Request-ID"

// DefaultTimeout is applied when Config.Timeout is zero.
const DefaultTimeout = 30 * time.Second

// TokenSource supplies bearer tokens. auth.Store implements it.
type TokenSource interface {
	// Token returns a valid token, refreshing it when it has expired.
	Token(ctx context.Context) (string, error)

	// Invalidate discards token if it is still the cached one.
	Invalidate(token string)
}

// Config configures a Client.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string

	// Headers are sent with every request.
	Headers map[string]string

	// Transport overrides the underlying round tripper (tests, proxies).
	Transport http.RoundTripper
}

// Client issues JSON requests against one API base URL.
type Client struct {
	rest   *resty.Client
	tokens TokenSource
	logger *slog.Logger
}

// New creates a client. tokens may be nil for unauthenticated APIs.
func New(cfg Config, tokens TokenSource) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		tokens: tokens,
		logger: slog.Default(),
	}
	c.rest = NewRestClient(cfg).
		OnAfterResponse(func(_ *resty.Client, resp *resty.Response) error {
			c.logger.Debug("api response",
				"method", resp.Request.Method,
				"url", redactQuery(resp.Request.URL),
				"status", resp.StatusCode(),
				"duration", resp.Time())
			return nil
		})
	return c
}

// NewRestClient builds the resty client used across datalib: base URL,
// timeout, user agent and a fresh X-Request-ID on every request.
func NewRestClient(cfg Config) *resty.Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	rc := resty.New().
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	if cfg.Transport != nil {
		rc.SetTransport(cfg.Transport)
	}
	if cfg.BaseURL != "" {
		rc.SetBaseURL(cfg.BaseURL)
	}
	if cfg.UserAgent != "" {
		rc.SetHeader("User-Agent", cfg.UserAgent)
	}
	rc.SetHeaders(cfg.Headers)
	rc.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if req.Header.Get(RequestIDHeader) == "" {
			req.SetHeader(RequestIDHeader, uuid.NewString())
		}
		return nil
	})
	return rc
}

// WithLogger sets the logger used for request tracing.
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	if logger != nil {
		c.logger = logger
	}
	return c
}

// Get issues a GET for path (relative to the base URL, query included) and
// decodes the JSON response into out when out is non-nil.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post issues a POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

// GetBytes issues a GET and returns the raw response body.
func (c *Client) GetBytes(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.execute(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.execute(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w", method, redactQuery(path), err)
	}
	return nil
}

// execute sends the request. A 401 answered to an authenticated request
// invalidates the token and retries exactly once with a fresh one.
func (c *Client) execute(ctx context.Context, method, path string, body any) (*resty.Response, error) {
	for attempt := 0; ; attempt++ {
		req := c.rest.R().SetContext(ctx)
		var token string
		if c.tokens != nil {
			var err error
			token, err = c.tokens.Token(ctx)
			if err != nil {
				return nil, err
			}
			req.SetAuthToken(token)
		}
		if body != nil {
			req.SetHeader("Content-Type", "application/json").SetBody(body)
		}

		resp, err := req.Execute(method, path)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", method, redactQuery(path), err)
		}

		if resp.StatusCode() == http.StatusUnauthorized && c.tokens != nil && attempt == 0 {
			c.logger.Debug("token rejected, refreshing", "method", method, "path", redactQuery(path))
			c.tokens.Invalidate(token)
			continue
		}
		if !resp.IsSuccess() {
			return nil, newHTTPError(resp)
		}
		return resp, nil
	}
}
