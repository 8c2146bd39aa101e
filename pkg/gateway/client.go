// Package gateway issues authorized HTTP calls against the document API.
//
// Client is the only place in the module that builds request headers: it
// attaches the bearer token from its TokenSource, picks the content type from
// the body, and turns every non-success response into a single *APIError.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	tracing "github.com/policyassist/policyassist/internal/observability"
	"github.com/policyassist/policyassist/pkg/observability"
	"go.uber.org/zap"
)

// DefaultBaseURL is the hosted API root.
const DefaultBaseURL = "https://d28pes0iok9s89.cloudfront.net/api/v1"

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 1 << 20

// TokenSource supplies the bearer token for outbound calls. An empty token
// means the request is sent without an Authorization header.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenFunc adapts a function to TokenSource.
type TokenFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Binary is a typed binary payload. As a request body it is sent as-is with
// ContentType (if set); as a response target it receives the raw body.
type Binary struct {
	Data        []byte
	ContentType string
}

// Client issues calls against a single API root. It is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     TokenSource
	limiter    *RateLimiter
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides DefaultBaseURL.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = strings.TrimRight(u, "/")
		}
	}
}

// WithHTTPClient sets the transport. Timeouts are the transport's concern.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTokenSource sets where bearer tokens come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithRateLimiter paces outbound calls.
func WithRateLimiter(rl *RateLimiter) Option {
	return func(c *Client) { c.limiter = rl }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Client.
func New(opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: http.DefaultClient,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root calls are issued against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Call issues method against path (relative to the base URL, including any
// query string). body may be nil, a *Multipart form, a *Binary payload, or any
// JSON-encodable value. out may be nil, a *Binary, or a JSON decode target.
// Everything except a form or binary body is sent as application/json.
//
// Non-2xx responses return *APIError; failures before a response exists
// return *TransportError.
func (c *Client) Call(ctx context.Context, method, path string, body, out any) error {
	route := observability.RouteLabel(path)
	ctx, span := tracing.StartSpan(ctx, "gateway.call", map[string]any{
		"http.method": method,
		"http.route":  route,
	})
	defer span.End()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, route); err != nil {
			span.SetError(err)
			return &TransportError{Method: method, Path: path, Err: err}
		}
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		span.SetError(err)
		return err
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		observability.RecordGatewayRequest(method, path, 0, elapsed)
		c.logger.Warn("request failed",
			zap.String("method", method),
			zap.String("route", route),
			zap.Error(err))
		span.SetError(err)
		return &TransportError{Method: method, Path: path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	observability.RecordGatewayRequest(method, path, resp.StatusCode, elapsed)
	span.SetAttribute("http.status_code", resp.StatusCode)
	c.logger.Debug("request completed",
		zap.String("method", method),
		zap.String("route", route),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", elapsed))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := decodeError(resp)
		span.SetError(apiErr)
		return apiErr
	}

	if err := decodeBody(resp, out); err != nil {
		span.SetError(err)
		return err
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var (
		reader      io.Reader
		contentType string
	)

	switch b := body.(type) {
	case nil:
		contentType = "application/json"
	case *Multipart:
		buf, ct, err := b.encode()
		if err != nil {
			return nil, fmt.Errorf("encode multipart body: %w", err)
		}
		reader, contentType = buf, ct
	case *Binary:
		reader, contentType = bytes.NewReader(b.Data), b.ContentType
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		reader, contentType = bytes.NewReader(data), "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	if c.tokens != nil {
		token, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, fmt.Errorf("read bearer token: %w", err)
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return req, nil
}

func decodeBody(resp *http.Response, out any) error {
	switch o := out.(type) {
	case nil:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	case *Binary:
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return &TransportError{Method: resp.Request.Method, Path: resp.Request.URL.Path, Err: err}
		}
		o.Data = data
		o.ContentType = resp.Header.Get("Content-Type")
		return nil
	default:
		err := json.NewDecoder(resp.Body).Decode(o)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	}
}
