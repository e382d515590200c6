package netlify

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
	"gitlab.bluewillows.net/root/domainsync/pkg/hosting"
)

// DefaultTimeout is the HTTP client timeout used when Config.Timeout is unset.
const DefaultTimeout = 30 * time.Second

// Config holds Netlify adapter settings.
type Config struct {
	// Token is the personal access token.
	Token string

	// APIEndpoint overrides DefaultAPIEndpoint.
	APIEndpoint string

	// Timeout is the HTTP client timeout.
	Timeout time.Duration

	// PreferPrimaryForApex sets an apex domain as the site's custom domain
	// when the site has none, instead of adding it as an alias.
	PreferPrimaryForApex bool
}

// Validate checks that required settings are present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Token) == "" {
		return &domain.ValidationError{Field: "netlify token", Message: "required but not set"}
	}
	return nil
}

// Provider implements hosting.Provider for Netlify.
//
// The alias list is replaced wholesale on update, so alias mutations are
// serialized per site.
type Provider struct {
	client     *Client
	preferApex bool
	logger     *slog.Logger
	clientOpts []ClientOption

	mu        sync.Mutex
	siteLocks map[string]*sync.Mutex
}

var _ hosting.Provider = (*Provider)(nil)

// Option configures a Provider.
type Option func(*Provider)

// WithProviderLogger sets the provider logger.
func WithProviderLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		if logger != nil {
			p.logger = logger
			p.clientOpts = append(p.clientOpts, WithLogger(logger))
		}
	}
}

// WithClientOptions passes options through to the underlying Client.
func WithClientOptions(opts ...ClientOption) Option {
	return func(p *Provider) {
		p.clientOpts = append(p.clientOpts, opts...)
	}
}

// New creates a Netlify hosting provider.
func New(cfg Config, opts ...Option) (*Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	p := &Provider{
		preferApex: cfg.PreferPrimaryForApex,
		logger:     slog.Default(),
		siteLocks:  make(map[string]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(p)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	clientOpts := p.clientOpts
	if cfg.APIEndpoint != "" {
		clientOpts = append(clientOpts, WithAPIEndpoint(cfg.APIEndpoint))
	}
	p.client = NewClient(cfg.Token, timeout, clientOpts...)

	return p, nil
}

// lockSite serializes read-modify-write updates of one site.
func (p *Provider) lockSite(siteID string) func() {
	p.mu.Lock()
	l, ok := p.siteLocks[siteID]
	if !ok {
		l = &sync.Mutex{}
		p.siteLocks[siteID] = l
	}
	p.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Name returns "netlify".
func (p *Provider) Name() string {
	return providerName
}

// SiteView fetches the site and translates it into a hosting.View.
func (p *Provider) SiteView(ctx context.Context, siteID string) (hosting.View, error) {
	site, err := p.client.getSite(ctx, siteID)
	if err != nil {
		return hosting.View{}, err
	}

	view := siteToView(site)

	cert, err := p.client.getSSL(ctx, siteID)
	if err != nil {
		p.logger.Debug("ssl lookup failed while building site view",
			slog.String("site_id", siteID),
			slog.String("error", err.Error()),
		)
	} else if cert != nil {
		view.SSLState = mapSSLState(cert.State)
		view.SSLExpiresAt = cert.ExpiresAt
	}

	return view, nil
}

// AddAlias attaches d to the site. It reads the current alias list first
// and issues no update when d is already attached.
func (p *Provider) AddAlias(ctx context.Context, siteID, d string) error {
	d = domain.Normalize(d)

	unlock := p.lockSite(siteID)
	defer unlock()

	site, err := p.client.getSite(ctx, siteID)
	if err != nil {
		return err
	}

	view := siteToView(site)
	if view.Has(d) {
		p.logger.Debug("domain already attached to site",
			slog.String("domain", d),
			slog.String("site_id", siteID),
		)
		return nil
	}

	var patch map[string]any
	if p.preferApex && domain.IsApex(d) && view.PrimaryDomain == "" {
		patch = map[string]any{"custom_domain": d}
	} else {
		aliases := append(append([]string{}, site.DomainAliases...), d)
		patch = map[string]any{"domain_aliases": aliases}
	}

	updated, err := p.client.updateSite(ctx, siteID, patch)
	if err != nil {
		return err
	}

	if !siteToView(updated).Has(d) {
		return &domain.ProviderError{
			Provider:  providerName,
			Operation: "add alias",
			Err:       errors.New("domain missing from site after update"),
		}
	}

	p.logger.Info("domain attached to site",
		slog.String("domain", d),
		slog.String("site_id", siteID),
	)
	return nil
}

// RemoveAlias detaches d from the site. The domains endpoint is tried
// first; when it is unavailable the alias list is rewritten.
func (p *Provider) RemoveAlias(ctx context.Context, siteID, d string) error {
	d = domain.Normalize(d)

	unlock := p.lockSite(siteID)
	defer unlock()

	err := p.client.deleteDomain(ctx, siteID, d)
	if err == nil {
		p.logger.Info("domain removed from site",
			slog.String("domain", d),
			slog.String("site_id", siteID),
		)
		return nil
	}
	var pe *domain.ProviderError
	if errors.As(err, &pe) && (pe.IsAuthFailure() || pe.StatusCode == 0) {
		return err
	}

	site, err := p.client.getSite(ctx, siteID)
	if err != nil {
		return err
	}

	view := siteToView(site)
	var patch map[string]any
	switch view.DomainStatus(d) {
	case hosting.DomainNotFound:
		return nil
	case hosting.DomainPrimary:
		patch = map[string]any{"custom_domain": nil}
	default:
		kept := make([]string, 0, len(site.DomainAliases))
		for _, a := range site.DomainAliases {
			if domain.Normalize(a) != d {
				kept = append(kept, a)
			}
		}
		patch = map[string]any{"domain_aliases": kept}
	}

	if _, err := p.client.updateSite(ctx, siteID, patch); err != nil {
		return err
	}

	p.logger.Info("domain removed from site",
		slog.String("domain", d),
		slog.String("site_id", siteID),
	)
	return nil
}

// LatestDeploy returns the most recent deploy or nil.
func (p *Provider) LatestDeploy(ctx context.Context, siteID string) (*hosting.DeployInfo, error) {
	deploys, err := p.client.listDeploys(ctx, siteID, 1)
	if err != nil {
		return nil, err
	}
	if len(deploys) == 0 {
		return nil, nil
	}

	d := deploys[0]
	sslURL := d.DeploySSLURL
	if sslURL == "" {
		sslURL = d.SSLURL
	}
	return &hosting.DeployInfo{
		ID:        d.ID,
		State:     d.State,
		URL:       d.URL,
		SSLURL:    sslURL,
		CreatedAt: d.CreatedAt,
	}, nil
}

// SSLInfo returns the site certificate or nil.
func (p *Provider) SSLInfo(ctx context.Context, siteID string) (*hosting.SSLInfo, error) {
	cert, err := p.client.getSSL(ctx, siteID)
	if err != nil || cert == nil {
		return nil, err
	}

	domains := make([]string, 0, len(cert.Domains))
	for _, d := range cert.Domains {
		domains = append(domains, domain.Normalize(d))
	}
	return &hosting.SSLInfo{
		State:     mapSSLState(cert.State),
		Domains:   domains,
		ExpiresAt: cert.ExpiresAt,
	}, nil
}

// Ping verifies the access token.
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.CurrentUser(ctx)
}

// siteToView normalizes provider strings into a hosting.View.
func siteToView(site *siteDTO) hosting.View {
	view := hosting.View{
		SiteID:        site.ID,
		Name:          site.Name,
		URL:           site.URL,
		SSLURL:        site.SSLURL,
		State:         site.State,
		PrimaryDomain: domain.Normalize(site.CustomDomain),
		SSLState:      hosting.SSLNone,
	}

	seen := make(map[string]struct{}, len(site.DomainAliases))
	for _, a := range site.DomainAliases {
		n := domain.Normalize(a)
		if n == "" {
			continue
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		view.AliasDomains = append(view.AliasDomains, n)
	}

	return view
}

// mapSSLState converts a Netlify certificate state into hosting.SSLState.
func mapSSLState(state string) hosting.SSLState {
	switch strings.ToLower(state) {
	case "issued", "live":
		return hosting.SSLLive
	case "pending", "provisioning", "verifying":
		return hosting.SSLProvisioning
	default:
		return hosting.SSLNone
	}
}
