// Package config loads domainsync configuration.
//
// Sources are layered, later ones winning:
//
//  1. built-in defaults
//  2. an optional YAML or TOML file (DOMAINSYNC_CONFIG)
//  3. DOMAINSYNC_* environment variables, with _FILE variants for secrets
//
// A .env file in the working directory is loaded first when present; it
// never overrides variables already set in the environment. Validation
// runs once on the merged result and reports every problem at once.
package config

import "time"

// DNS provider selections.
const (
	DNSProviderCloudflare = "cloudflare"
	DNSProviderPublic     = "public"
	DNSProviderNone       = "none"
)

// Config is the runtime configuration.
type Config struct {
	LogLevel  string // debug, info, warn, error
	LogFormat string // json, text

	HealthPort int
	APIListen  string

	// APITokenHash is a bcrypt hash of the API bearer token. Empty
	// disables API authentication.
	APITokenHash string

	DatabasePath string

	Hosting     HostingConfig
	DNS         DNSConfig
	Scheduler   SchedulerConfig
	Remediation RemediationConfig
}

// HostingConfig holds Netlify settings.
type HostingConfig struct {
	Token                string
	SiteID               string
	APIEndpoint          string
	PreferPrimaryForApex bool
}

// DNSConfig holds DNS validation settings.
type DNSConfig struct {
	// Provider is cloudflare, public or none. Empty selects cloudflare when
	// a token is set, public when only a target is set, and none otherwise.
	Provider string

	// Target is the hostname tenant CNAME records must point to.
	Target string

	// Resolver is the host:port queried by the public provider.
	Resolver string

	CloudflareToken       string
	CloudflareAPIEndpoint string
}

// SchedulerConfig holds scheduled and manual trigger settings.
type SchedulerConfig struct {
	Interval        time.Duration
	RunOnStart      bool
	Tenants         []string
	LockFile        string
	TriggerInterval time.Duration
	TriggerBurst    int
}

// RemediationConfig holds executor settings.
type RemediationConfig struct {
	Workers             int
	CallTimeout         time.Duration
	RetryMaxAttempts    int
	RetryInitialBackoff time.Duration
	RetryMaxBackoff     time.Duration
}

// Validators returns the DNS validator types to chain, in order. Cloudflare
// falls back to public resolution when the zone cannot be inspected.
func (c DNSConfig) Validators() []string {
	switch c.Provider {
	case DNSProviderCloudflare:
		return []string{DNSProviderCloudflare, DNSProviderPublic}
	case DNSProviderPublic:
		return []string{DNSProviderPublic}
	default:
		return nil
	}
}

// Settings returns the factory settings shared by all DNS validators.
func (c DNSConfig) Settings() map[string]string {
	return map[string]string{
		"target":                  c.Target,
		"resolver":                c.Resolver,
		"cloudflare_token":        c.CloudflareToken,
		"cloudflare_api_endpoint": c.CloudflareAPIEndpoint,
	}
}

// resolveProvider fills in Provider when it was not set explicitly.
func (c *DNSConfig) resolveProvider() {
	if c.Provider != "" {
		return
	}
	switch {
	case c.CloudflareToken != "":
		c.Provider = DNSProviderCloudflare
	case c.Target != "":
		c.Provider = DNSProviderPublic
	default:
		c.Provider = DNSProviderNone
	}
}
