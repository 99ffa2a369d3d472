// Package transport sends fuzzing requests to the target service.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mark3labs/openapi-fuzz/internal/payload"
)

// maxBodyBytes caps how much of a response body is kept.
const maxBodyBytes = 10 << 20

// Credentials decorate outgoing requests, e.g. with cookies or a token.
type Credentials interface {
	Apply(h http.Header)
}

// Request is one outgoing call. A nil Body sends no body at all; a non-nil
// Body is JSON encoded. RawBody, when set, is sent verbatim instead of Body
// and needs a Content-Type header. Query values are encoded with EncodeQuery.
type Request struct {
	Method  string
	URL     string
	Body    payload.Object
	RawBody []byte
	Query   payload.Object
	Header  http.Header
}

// Response is what came back from the target, whatever the status.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool { return r != nil && r.StatusCode >= 200 && r.StatusCode < 300 }

// Settings configures the client.
type Settings struct {
	// Timeout bounds every attempt.
	Timeout time.Duration
	// MaxRetries is the number of extra attempts after a network error.
	// HTTP statuses are never retried.
	MaxRetries int
	// BackoffBase is the first delay between attempts; it doubles after
	// every retry.
	BackoffBase time.Duration
	// Insecure skips TLS certificate verification.
	Insecure bool
}

// DefaultSettings returns recommended defaults.
func DefaultSettings() Settings {
	return Settings{
		Timeout:     30 * time.Second,
		MaxRetries:  2,
		BackoffBase: 200 * time.Millisecond,
	}
}

// Option mutates Settings or the client.
type Option func(*Client)

func WithTimeout(d time.Duration) Option     { return func(c *Client) { c.settings.Timeout = d } }
func WithMaxRetries(n int) Option            { return func(c *Client) { c.settings.MaxRetries = n } }
func WithBackoffBase(d time.Duration) Option { return func(c *Client) { c.settings.BackoffBase = d } }
func WithInsecure(skip bool) Option          { return func(c *Client) { c.settings.Insecure = skip } }
func WithLogger(l *zap.Logger) Option        { return func(c *Client) { c.logger = l } }

// WithRoundTripper replaces the underlying HTTP transport.
func WithRoundTripper(rt http.RoundTripper) Option { return func(c *Client) { c.rt = rt } }

// Client issues requests with per-attempt timeouts and retries network
// failures with exponential backoff.
type Client struct {
	settings Settings
	logger   *zap.Logger
	rt       http.RoundTripper
	http     *http.Client
}

// New builds a Client.
func New(opts ...Option) *Client {
	c := &Client{settings: DefaultSettings()}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.rt == nil {
		tr := http.DefaultTransport.(*http.Transport).Clone()
		if c.settings.Insecure {
			tr.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed targets
		}
		c.rt = tr
	}
	c.http = &http.Client{Transport: c.rt, Timeout: c.settings.Timeout}
	return c
}

// Do sends req. An error is returned only when no response was received;
// responses with any status, including 4xx and 5xx, are returned as-is.
func (c *Client) Do(ctx context.Context, cred Credentials, req Request) (*Response, error) {
	target, err := BuildURL(req.URL, req.Query)
	if err != nil {
		return nil, err
	}
	body := req.RawBody
	if body == nil && req.Body != nil {
		body, err = payload.Encode(req.Body)
		if err != nil {
			return nil, fmt.Errorf("encode body: %w", err)
		}
	}

	backoff := c.settings.BackoffBase
	if backoff <= 0 {
		backoff = 200 * time.Millisecond
	}
	var lastErr error
	for attempt := 0; attempt <= c.settings.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		resp, err := c.once(ctx, cred, req, target, body)
		if err == nil {
			c.logger.Debug("request",
				zap.String("method", req.Method),
				zap.String("url", target),
				zap.Int("status", resp.StatusCode))
			return resp, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		c.logger.Debug("request failed",
			zap.String("method", req.Method),
			zap.String("url", target),
			zap.Int("attempt", attempt+1),
			zap.Error(err))
	}
	if lastErr == nil {
		lastErr = errors.New("request failed")
	}
	return nil, fmt.Errorf("%s %s: %w", req.Method, target, lastErr)
}

func (c *Client) once(ctx context.Context, cred Credentials, req Request, target string, body []byte) (*Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	hr, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, err
	}
	for k, vs := range req.Header {
		for _, v := range vs {
			hr.Header.Add(k, v)
		}
	}
	if body != nil && hr.Header.Get("Content-Type") == "" {
		hr.Header.Set("Content-Type", "application/json")
	}
	hr.Header.Set("Accept", "application/json, */*")
	if cred != nil {
		cred.Apply(hr.Header)
	}

	resp, err := c.http.Do(hr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: b}, nil
}

// BuildURL appends the encoded query to base.
func BuildURL(base string, query payload.Object) (string, error) {
	if _, err := url.Parse(base); err != nil {
		return "", fmt.Errorf("invalid url %q: %w", base, err)
	}
	q := EncodeQuery(query)
	if q == "" {
		return base, nil
	}
	if strings.Contains(base, "?") {
		return base + "&" + q, nil
	}
	return base + "?" + q, nil
}

// EncodeQuery renders a query object. Arrays become repeated keys, objects
// are JSON encoded, null is sent as "null" and Undefined values are left
// out. Keys are sorted.
func EncodeQuery(query payload.Object) string {
	if len(query) == 0 {
		return ""
	}
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	values := url.Values{}
	for _, k := range keys {
		switch v := query[k].(type) {
		case []any:
			for _, el := range v {
				if payload.IsUndefined(el) {
					continue
				}
				values.Add(k, payload.Stringify(el))
			}
		default:
			if payload.IsUndefined(v) {
				continue
			}
			values.Add(k, payload.Stringify(v))
		}
	}
	return values.Encode()
}
