// Package validation produces holistic health reports for a single tenant
// domain by combining hosting registration, routing, SSL and DNS checks.
package validation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gitlab.bluewillows.net/root/domainsync/internal/metrics"
	"gitlab.bluewillows.net/root/domainsync/pkg/dnscheck"
	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
	"gitlab.bluewillows.net/root/domainsync/pkg/hosting"
)

// DefaultCallTimeout bounds each provider call made during validation.
const DefaultCallTimeout = 15 * time.Second

// Issue and recommendation texts.
const (
	IssueNotRegistered          = "domain not registered with hosting"
	RecommendRegister           = "register as alias or primary domain"
	RecommendRetryLookup        = "retry the hosting lookup or check the provider credentials"
	IssueSSLProvisioning        = "SSL certificate is provisioning"
	IssueSSLNotIssued           = "SSL certificate is not issued"
	RecommendWaitForSSL         = "wait for certificate provisioning to complete; DNS must point at the hosting provider"
	RecommendProvisionSSL       = "provision an SSL certificate for the site once DNS resolves to the hosting provider"
	RecommendConfigurationValid = "configuration is optimal"
)

// Options selects which sub-checks run. Hosting registration always runs.
type Options struct {
	IncludeDNS     bool `json:"includeDns"`
	IncludeRouting bool `json:"includeRouting"`
	IncludeSSL     bool `json:"includeSsl"`
}

// DefaultOptions enables routing and SSL. DNS is off because it consults a
// second provider.
func DefaultOptions() Options {
	return Options{IncludeRouting: true, IncludeSSL: true}
}

// Pipeline validates domains against one hosting site.
type Pipeline struct {
	hosting     hosting.Provider
	dns         dnscheck.Validator
	siteID      string
	callTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithDNSValidator sets the DNS validator. Without one, DNS checks return
// a degraded result.
func WithDNSValidator(v dnscheck.Validator) Option {
	return func(p *Pipeline) {
		p.dns = v
	}
}

// WithCallTimeout bounds each provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.callTimeout = d
		}
	}
}

// New creates a validation pipeline for the given hosting site.
func New(provider hosting.Provider, siteID string, opts ...Option) *Pipeline {
	p := &Pipeline{
		hosting:     provider,
		siteID:      siteID,
		callTimeout: DefaultCallTimeout,
		logger:      slog.Default(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Validate runs the requested checks for rawDomain. Only malformed input
// returns an error; provider failures are recorded on the sub-reports.
func (p *Pipeline) Validate(ctx context.Context, rawDomain string, opts Options) (*Report, error) {
	d, err := domain.NormalizeAndValidate(rawDomain)
	if err != nil {
		return nil, err
	}

	start := p.now()
	report := &Report{
		ValidationID:    uuid.NewString(),
		Domain:          d,
		OverallStatus:   StatusHealthy,
		Issues:          []string{},
		Recommendations: []string{},
		ChecksRun:       []string{CheckHosting},
	}

	view, viewErr := p.checkHosting(ctx, d, report)

	var g errgroup.Group
	if opts.IncludeRouting {
		report.ChecksRun = append(report.ChecksRun, CheckRouting)
		g.Go(func() error {
			report.Routing = p.checkRouting(ctx, d, view)
			return nil
		})
	}
	if opts.IncludeSSL {
		report.ChecksRun = append(report.ChecksRun, CheckSSL)
		g.Go(func() error {
			report.SSL = p.checkSSL(ctx)
			return nil
		})
	}
	if opts.IncludeDNS {
		report.ChecksRun = append(report.ChecksRun, CheckDNS)
		g.Go(func() error {
			report.DNS = p.checkDNS(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	synthesize(report, viewErr)

	end := p.now()
	report.CompletedAt = end
	report.DurationMs = end.Sub(start).Milliseconds()
	metrics.ValidationsTotal.WithLabelValues(string(report.OverallStatus)).Inc()

	p.logger.Info("validation complete",
		slog.String("domain", d),
		slog.String("validation_id", report.ValidationID),
		slog.String("status", string(report.OverallStatus)),
		slog.Int("issues", len(report.Issues)),
		slog.Duration("duration", end.Sub(start)),
	)
	return report, nil
}

func (p *Pipeline) checkHosting(ctx context.Context, d string, report *Report) (hosting.View, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	began := time.Now()
	view, err := p.hosting.SiteView(callCtx, p.siteID)
	metrics.ObserveProviderCall(p.hosting.Name(), "site view", began, err)

	report.Hosting = &HostingReport{SiteID: p.siteID, DomainStatus: hosting.DomainNotFound}
	if err != nil {
		p.logger.Warn("hosting lookup failed",
			slog.String("domain", d),
			slog.String("error", err.Error()),
		)
		report.Hosting.Error = err.Error()
		return hosting.View{}, err
	}

	report.Hosting.SiteName = view.Name
	report.Hosting.DomainStatus = view.DomainStatus(d)
	report.Hosting.PrimaryDomain = view.PrimaryDomain
	report.Hosting.AliasCount = len(view.AliasDomains)
	return view, nil
}

func (p *Pipeline) checkRouting(ctx context.Context, d string, view hosting.View) *RoutingReport {
	rr := &RoutingReport{
		Endpoints: Endpoints{
			Production: "https://" + d,
			Fallback:   firstNonEmpty(view.SSLURL, view.URL),
			API:        "https://" + d + "/api",
			Admin:      "https://" + d + "/admin",
		},
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	began := time.Now()
	deploy, err := p.hosting.LatestDeploy(callCtx, p.siteID)
	metrics.ObserveProviderCall(p.hosting.Name(), "latest deploy", began, err)
	if err != nil {
		rr.Error = err.Error()
		return rr
	}
	if deploy != nil {
		rr.DeployID = deploy.ID
		rr.DeployState = deploy.State
		if !deploy.CreatedAt.IsZero() {
			created := deploy.CreatedAt
			rr.DeployedAt = &created
		}
		if u := firstNonEmpty(deploy.SSLURL, deploy.URL); u != "" {
			rr.Endpoints.Fallback = u
		}
	}
	return rr
}

func (p *Pipeline) checkSSL(ctx context.Context) *SSLReport {
	sr := &SSLReport{State: hosting.SSLNone}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	began := time.Now()
	info, err := p.hosting.SSLInfo(callCtx, p.siteID)
	metrics.ObserveProviderCall(p.hosting.Name(), "ssl info", began, err)
	if err != nil {
		sr.Error = err.Error()
		return sr
	}
	if info != nil {
		sr.HasCertificate = true
		sr.State = info.State
		sr.ExpiresAt = info.ExpiresAt
	}
	sr.ForceHTTPS = sr.State == hosting.SSLLive
	return sr
}

func (p *Pipeline) checkDNS(ctx context.Context, d string) *DNSReport {
	if p.dns == nil {
		return &DNSReport{Result: dnscheck.Degraded(nil)}
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	began := time.Now()
	res, err := p.dns.Validate(callCtx, d)
	metrics.ObserveProviderCall(p.dns.Name(), "dns validate", began, err)
	if err != nil {
		p.logger.Warn("dns validation unavailable",
			slog.String("domain", d),
			slog.String("error", err.Error()),
		)
		return &DNSReport{Result: dnscheck.Degraded(err), Error: err.Error()}
	}
	return &DNSReport{Result: res}
}

// synthesize derives the overall verdict from the sub-reports in a fixed
// order so issue lists are deterministic.
func synthesize(r *Report, viewErr error) {
	switch {
	case viewErr != nil:
		r.addIssue(StatusError, fmt.Sprintf("hosting lookup failed: %v", viewErr), RecommendRetryLookup)
	case r.Hosting == nil || r.Hosting.DomainStatus == hosting.DomainNotFound:
		r.addIssue(StatusError, IssueNotRegistered, RecommendRegister)
	}

	if r.DNS != nil {
		switch {
		case r.DNS.Fallback:
			r.Recommendations = append(r.Recommendations, r.DNS.Recommendations...)
		case !r.DNS.IsValid:
			issues := r.DNS.Issues
			if len(issues) == 0 {
				issues = []string{"DNS configuration is invalid"}
			}
			for i, issue := range issues {
				if i == 0 {
					r.addIssue(StatusWarning, issue, r.DNS.Recommendations...)
					continue
				}
				r.addIssue(StatusWarning, issue)
			}
		default:
			r.Recommendations = append(r.Recommendations, r.DNS.Recommendations...)
		}
	}

	if r.SSL != nil && r.SSL.HasCertificate && r.SSL.State != hosting.SSLLive {
		if r.SSL.State == hosting.SSLProvisioning {
			r.addIssue(StatusWarning, IssueSSLProvisioning, RecommendWaitForSSL)
		} else {
			r.addIssue(StatusWarning, IssueSSLNotIssued, RecommendProvisionSSL)
		}
	}

	if len(r.Issues) == 0 {
		r.Recommendations = append(r.Recommendations, RecommendConfigurationValid)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
