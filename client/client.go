// Package client sends HTTP requests whose bodies are encoded and decoded by
// derive codecs.
//
// Request payloads are encoded with the caller's codec and rendered by the
// client's Format (JSON unless WithFormat says otherwise). Responses are read
// up to the configured size bound, parsed and decoded; a decode failure keeps
// the positional error from the codec so callers can see which field failed.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/zoobzio/derive"
	"github.com/zoobzio/derive/json"
	"golang.org/x/time/rate"
)

// Sentinel errors for errors.Is.
var (
	// ErrStatus indicates a response with a non-2xx status.
	ErrStatus = errors.New("unexpected status")

	// ErrDecode indicates a response body that did not decode.
	ErrDecode = errors.New("response decode failed")
)

// StatusError reports a response with a non-2xx status code.
type StatusError struct {
	Method string
	URI    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: HTTP %d: %s", e.Method, e.URI, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// DecodeError reports a response body that could not be parsed or decoded.
// Cause is the parse or codec error; derive.Path(Cause) locates the failure.
type DecodeError struct {
	Method string
	URI    string
	Cause  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Method, e.URI, e.Cause)
}

func (e *DecodeError) Unwrap() []error { return []error{ErrDecode, e.Cause} }

// Client performs codec-typed HTTP requests.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	headers    http.Header
	limiter    *rate.Limiter
	format     derive.Format
	logger     Logger
	maxBody    int64
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger. A nil logger disables logging.
func WithLogger(l Logger) Option {
	return func(c *Client) {
		if l == nil {
			l = NopLogger{}
		}
		c.logger = l
	}
}

// WithFormat sets the body format. The default is JSON.
func WithFormat(f derive.Format) Option {
	return func(c *Client) { c.format = f }
}

// WithTransport replaces the HTTP transport. Tests use this to route
// requests to an httptest.Server.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.httpClient.Transport = rt }
}

// New creates a Client from cfg.
func New(cfg Config, opts ...Option) (*Client, error) {
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("client config: %w", err)
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		headers:    make(http.Header, len(cfg.Headers)),
		format:     json.New(),
		logger:     NopLogger{},
		maxBody:    cfg.MaxResponseSize,
	}
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("client config: base_url: %w", err)
		}
		c.baseURL = u
	}
	for k, v := range cfg.Headers {
		c.headers.Set(k, v)
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Get requests uri and decodes the response body with codec.
func Get[T any](ctx context.Context, c *Client, uri string, codec derive.Codec[T], headers http.Header) (T, error) {
	var zero T
	body, target, err := c.do(ctx, http.MethodGet, uri, nil, headers)
	if err != nil {
		return zero, err
	}
	return decodeBody(c, http.MethodGet, target, body, codec)
}

// Post encodes payload with reqCodec, sends it to uri and decodes the
// response body with respCodec.
func Post[Req, Resp any](ctx context.Context, c *Client, uri string, reqCodec derive.Codec[Req], payload Req, respCodec derive.Codec[Resp], headers http.Header) (Resp, error) {
	var zero Resp
	data, err := derive.Marshal(c.format, reqCodec, payload)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", http.MethodPost, uri, err)
	}
	body, target, err := c.do(ctx, http.MethodPost, uri, data, headers)
	if err != nil {
		return zero, err
	}
	return decodeBody(c, http.MethodPost, target, body, respCodec)
}

func decodeBody[T any](c *Client, method, target string, body []byte, codec derive.Codec[T]) (T, error) {
	v, err := derive.Unmarshal(c.format, codec, body)
	if err != nil {
		c.logger.Error("response decode failed", Fields{
			"method": method,
			"uri":    target,
			"path":   derive.Path(err),
			"error":  err.Error(),
		})
		var zero T
		return zero, &DecodeError{Method: method, URI: target, Cause: err}
	}
	return v, nil
}

// do sends one request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, uri string, payload []byte, headers http.Header) ([]byte, string, error) {
	target, err := c.resolve(uri)
	if err != nil {
		return nil, uri, fmt.Errorf("%s %s: %w", method, uri, err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, target, fmt.Errorf("%s %s: rate limit: %w", method, target, err)
		}
	}

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, target, fmt.Errorf("%s %s: %w", method, target, err)
	}
	for k, vs := range c.headers {
		req.Header[k] = append([]string(nil), vs...)
	}
	req.Header.Set("Accept", c.format.ContentType())
	if payload != nil {
		req.Header.Set("Content-Type", c.format.ContentType())
	}
	for k, vs := range headers {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("request failed", Fields{"method": method, "uri": target, "error": err.Error()})
		return nil, target, fmt.Errorf("%s %s: %w", method, target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return nil, target, fmt.Errorf("%s %s: reading response body: %w", method, target, err)
	}
	c.logger.Debug("request complete", Fields{
		"method":   method,
		"uri":      target,
		"status":   resp.StatusCode,
		"bytes":    len(body),
		"duration": time.Since(start),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("unexpected status", Fields{"method": method, "uri": target, "status": resp.StatusCode})
		return nil, target, &StatusError{Method: method, URI: target, Code: resp.StatusCode, Body: string(body)}
	}
	return body, target, nil
}

func (c *Client) resolve(uri string) (string, error) {
	ref, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	if c.baseURL == nil {
		if !ref.IsAbs() {
			return "", fmt.Errorf("relative URI with no base_url configured")
		}
		return ref.String(), nil
	}
	return c.baseURL.ResolveReference(ref).String(), nil
}
