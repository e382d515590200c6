// Package netlify implements the domainsync hosting provider adapter for
// Netlify sites.
package netlify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
	"gitlab.bluewillows.net/root/domainsync/pkg/httputil"
)

const (
	// DefaultAPIEndpoint is the base URL for the Netlify REST API.
	DefaultAPIEndpoint = "https://api.netlify.com/api/v1"

	providerName = "netlify"
)

// siteDTO is the subset of the Netlify site object domainsync reads.
type siteDTO struct {
	ID            string   `json:"id"`
	Name          string   `json:"name"`
	URL           string   `json:"url"`
	SSLURL        string   `json:"ssl_url"`
	State         string   `json:"state"`
	CustomDomain  string   `json:"custom_domain"`
	DomainAliases []string `json:"domain_aliases"`
}

// deployDTO is the subset of a Netlify deploy object.
type deployDTO struct {
	ID           string    `json:"id"`
	State        string    `json:"state"`
	URL          string    `json:"url"`
	SSLURL       string    `json:"ssl_url"`
	DeploySSLURL string    `json:"deploy_ssl_url"`
	CreatedAt    time.Time `json:"created_at"`
}

// sslDTO is the Netlify site certificate object.
type sslDTO struct {
	State     string     `json:"state"`
	Domains   []string   `json:"domains"`
	ExpiresAt *time.Time `json:"expires_at"`
}

// errorDTO is the Netlify error envelope.
type errorDTO struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Client is a thin Netlify API client. It never retries.
type Client struct {
	apiEndpoint string
	httpClient  *http.Client
	logger      *slog.Logger
}

// ClientOption is a functional option for configuring the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client. The client is responsible for
// authentication when set.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAPIEndpoint sets a custom API endpoint (useful for testing).
func WithAPIEndpoint(endpoint string) ClientOption {
	return func(c *Client) {
		c.apiEndpoint = strings.TrimSuffix(endpoint, "/")
	}
}

// NewClient creates a new Netlify API client authenticated with token.
func NewClient(token string, timeout time.Duration, opts ...ClientOption) *Client {
	c := &Client{
		apiEndpoint: DefaultAPIEndpoint,
		logger:      slog.Default(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		c.httpClient = httputil.NewClient(&httputil.ClientConfig{
			Timeout:     timeout,
			BearerToken: token,
			Logger:      c.logger,
		})
	}

	return c
}

// doRequest performs one API call. A non-2xx response or transport failure
// is returned as *domain.ProviderError. When out is non-nil the response
// body is decoded into it.
func (c *Client) doRequest(ctx context.Context, operation, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", operation, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.apiEndpoint+path, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debug("making API request",
		slog.String("operation", operation),
		slog.String("method", method),
		slog.String("path", path),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.ProviderError{Provider: providerName, Operation: operation, Err: err}
	}
	defer resp.Body.Close()

	if !httputil.IsSuccess(resp.StatusCode) {
		return &domain.ProviderError{
			Provider:   providerName,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Body:       errorMessage(httputil.ReadErrorBody(resp.Body)),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.ProviderError{
			Provider:  providerName,
			Operation: operation,
			Err:       fmt.Errorf("decoding response: %w", err),
		}
	}
	return nil
}

// errorMessage extracts the message from a Netlify error envelope, falling
// back to the raw body.
func errorMessage(body string) string {
	var e errorDTO
	if err := json.Unmarshal([]byte(body), &e); err == nil && e.Message != "" {
		return e.Message
	}
	return body
}

// getSite fetches the site object.
func (c *Client) getSite(ctx context.Context, siteID string) (*siteDTO, error) {
	var site siteDTO
	if err := c.doRequest(ctx, "get site", http.MethodGet, "/sites/"+url.PathEscape(siteID), nil, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

// updateSite sends a partial site update and returns the updated site.
func (c *Client) updateSite(ctx context.Context, siteID string, patch map[string]any) (*siteDTO, error) {
	var site siteDTO
	if err := c.doRequest(ctx, "update site", http.MethodPatch, "/sites/"+url.PathEscape(siteID), patch, &site); err != nil {
		return nil, err
	}
	return &site, nil
}

// deleteDomain removes a domain via the site domains endpoint.
func (c *Client) deleteDomain(ctx context.Context, siteID, d string) error {
	path := fmt.Sprintf("/sites/%s/domains/%s", url.PathEscape(siteID), url.PathEscape(d))
	return c.doRequest(ctx, "delete domain", http.MethodDelete, path, nil, nil)
}

// listDeploys returns up to perPage most recent deploys.
func (c *Client) listDeploys(ctx context.Context, siteID string, perPage int) ([]deployDTO, error) {
	path := fmt.Sprintf("/sites/%s/deploys?per_page=%d", url.PathEscape(siteID), perPage)
	var deploys []deployDTO
	if err := c.doRequest(ctx, "list deploys", http.MethodGet, path, nil, &deploys); err != nil {
		return nil, err
	}
	return deploys, nil
}

// getSSL returns the site certificate, or nil when the site has none.
func (c *Client) getSSL(ctx context.Context, siteID string) (*sslDTO, error) {
	var cert sslDTO
	err := c.doRequest(ctx, "get ssl", http.MethodGet, "/sites/"+url.PathEscape(siteID)+"/ssl", nil, &cert)
	if err != nil {
		var pe *domain.ProviderError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &cert, nil
}

// CurrentUser verifies the token by fetching the authenticated user.
func (c *Client) CurrentUser(ctx context.Context) error {
	return c.doRequest(ctx, "get user", http.MethodGet, "/user", nil, nil)
}
