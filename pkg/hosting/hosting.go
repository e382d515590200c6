// Package hosting defines the contract between domainsync and a hosting
// provider that serves tenant custom domains.
package hosting

import (
	"context"
	"time"
)

// SSLState is the certificate state for a site.
type SSLState string

const (
	SSLNone         SSLState = "none"
	SSLProvisioning SSLState = "provisioning"
	SSLLive         SSLState = "live"
)

// DomainStatus describes how a domain is attached to a site.
type DomainStatus string

const (
	DomainPrimary  DomainStatus = "primary"
	DomainAlias    DomainStatus = "alias"
	DomainNotFound DomainStatus = "not_found"
)

// View is the normalized site configuration as seen by the hosting provider.
// PrimaryDomain and AliasDomains are already normalized by the adapter.
type View struct {
	SiteID        string
	Name          string
	URL           string
	SSLURL        string
	State         string
	PrimaryDomain string
	AliasDomains  []string
	SSLState      SSLState
	SSLExpiresAt  *time.Time
}

// DomainStatus returns whether d is the primary domain, an alias, or absent.
// d must already be normalized.
func (v View) DomainStatus(d string) DomainStatus {
	if v.PrimaryDomain != "" && v.PrimaryDomain == d {
		return DomainPrimary
	}
	for _, a := range v.AliasDomains {
		if a == d {
			return DomainAlias
		}
	}
	return DomainNotFound
}

// Has reports whether d is attached to the site in any role.
func (v View) Has(d string) bool {
	return v.DomainStatus(d) != DomainNotFound
}

// Domains returns the primary domain (if any) followed by all aliases.
func (v View) Domains() []string {
	out := make([]string, 0, len(v.AliasDomains)+1)
	if v.PrimaryDomain != "" {
		out = append(out, v.PrimaryDomain)
	}
	for _, a := range v.AliasDomains {
		if a != v.PrimaryDomain {
			out = append(out, a)
		}
	}
	return out
}

// DeployInfo describes the most recent deploy of a site.
type DeployInfo struct {
	ID        string
	State     string
	URL       string
	SSLURL    string
	CreatedAt time.Time
}

// SSLInfo describes the site certificate.
type SSLInfo struct {
	State     SSLState
	Domains   []string
	ExpiresAt *time.Time
}

// Provider is a hosting provider adapter. Implementations must not retry
// internally and must return *domain.ProviderError on failure.
type Provider interface {
	// Name returns the provider name (e.g., "netlify").
	Name() string

	// SiteView fetches the current site configuration.
	SiteView(ctx context.Context, siteID string) (View, error)

	// AddAlias attaches domain to the site. Adding an existing alias is a no-op.
	AddAlias(ctx context.Context, siteID, domain string) error

	// RemoveAlias detaches domain from the site. Removing an absent alias is a no-op.
	RemoveAlias(ctx context.Context, siteID, domain string) error

	// LatestDeploy returns the most recent deploy, or nil if the site has none.
	LatestDeploy(ctx context.Context, siteID string) (*DeployInfo, error)

	// SSLInfo returns the certificate info, or nil if no certificate exists.
	SSLInfo(ctx context.Context, siteID string) (*SSLInfo, error)

	// Ping verifies connectivity and credentials.
	Ping(ctx context.Context) error
}
