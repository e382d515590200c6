// Package httputil provides the shared HTTP client used by domainsync
// provider adapters.
package httputil

import (
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Default HTTP client configuration values.
const (
	// DefaultTimeout is the client-level timeout. Callers normally impose a
	// shorter per-call deadline through the request context.
	DefaultTimeout = 30 * time.Second

	// DefaultUserAgent is used when no custom user agent is specified.
	DefaultUserAgent = "domainsync/1.0"

	// MaxErrorBody caps how much of an error response body is kept.
	MaxErrorBody = 4 << 10
)

// ClientConfig contains configuration for creating an HTTP client.
type ClientConfig struct {
	// Timeout is the HTTP client timeout. Defaults to 30 seconds.
	Timeout time.Duration

	// UserAgent is the User-Agent header. Defaults to DefaultUserAgent.
	UserAgent string

	// BearerToken, when set, is sent as "Authorization: Bearer <token>"
	// unless the request already carries an Authorization header.
	BearerToken string

	// Logger enables debug logging of requests. Nil disables it.
	Logger *slog.Logger

	// Transport overrides the base round tripper (tests, proxies).
	Transport http.RoundTripper
}

// headerTransport injects standard headers and logs requests at debug level.
type headerTransport struct {
	base      http.RoundTripper
	userAgent string
	token     string
	logger    *slog.Logger
}

// RoundTrip implements http.RoundTripper.
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// RoundTrippers must not mutate the caller's request.
	req = req.Clone(req.Context())
	if req.Header.Get("User-Agent") == "" && t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	if req.Header.Get("Authorization") == "" && t.token != "" {
		req.Header.Set("Authorization", "Bearer "+t.token)
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(req)

	if t.logger != nil {
		attrs := []any{
			slog.String("method", req.Method),
			slog.String("url", req.URL.Redacted()),
			slog.Duration("elapsed", time.Since(start)),
		}
		if resp != nil {
			attrs = append(attrs, slog.Int("status", resp.StatusCode))
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		t.logger.Debug("HTTP request", attrs...)
	}

	return resp, err
}

// NewClient creates an HTTP client with the specified configuration.
// If cfg is nil, defaults are used.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport
	}

	return &http.Client{
		Timeout: timeout,
		Transport: &headerTransport{
			base:      base,
			userAgent: userAgent,
			token:     cfg.BearerToken,
			logger:    cfg.Logger,
		},
	}
}

// DefaultClient returns a new HTTP client with default settings.
func DefaultClient() *http.Client {
	return NewClient(nil)
}

// ReadErrorBody reads at most MaxErrorBody bytes from r and returns them
// trimmed. Read failures yield an empty string.
func ReadErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, MaxErrorBody))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// IsSuccess reports whether status is 2xx.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
