package cloudflare

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"gitlab.bluewillows.net/root/domainsync/pkg/dnscheck"
	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
)

// ErrZoneNotFound is returned when no zone in the account covers the domain.
var ErrZoneNotFound = errors.New("zone not found")

// Config holds Cloudflare validator settings.
type Config struct {
	// Token is an API token with Zone:Read and DNS:Read.
	Token string

	// Target is the hostname tenant CNAME records must point to.
	Target string

	// APIEndpoint overrides the SDK default (tests).
	APIEndpoint string
}

// Validator implements dnscheck.Validator using the Cloudflare API.
type Validator struct {
	api    recordLister
	target string
	logger *slog.Logger
}

var _ dnscheck.Validator = (*Validator)(nil)

// Option configures a Validator.
type Option func(*Validator)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) {
		if logger != nil {
			v.logger = logger
		}
	}
}

// withLister replaces the API client.
func withLister(l recordLister) Option {
	return func(v *Validator) {
		v.api = l
	}
}

// New creates a Cloudflare validator.
func New(cfg Config, opts ...Option) (*Validator, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, &domain.ValidationError{Field: "cloudflare token", Message: "required but not set"}
	}
	target := normalizeHost(cfg.Target)
	if target == "" {
		return nil, &domain.ValidationError{Field: "dns target", Message: "required but not set"}
	}

	v := &Validator{
		target: target,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.api == nil {
		v.api = newAPIClient(cfg.Token, cfg.APIEndpoint, v.logger)
	}
	return v, nil
}

// Factory returns a dnscheck.Factory for the "cloudflare" type.
// Recognized settings: cloudflare_token, target, cloudflare_api_endpoint.
func Factory(logger *slog.Logger) dnscheck.Factory {
	return func(settings map[string]string) (dnscheck.Validator, error) {
		return New(Config{
			Token:       settings["cloudflare_token"],
			Target:      settings["target"],
			APIEndpoint: settings["cloudflare_api_endpoint"],
		}, WithLogger(logger))
	}
}

// Name returns "cloudflare".
func (v *Validator) Name() string {
	return providerName
}

// Ping verifies the API token.
func (v *Validator) Ping(ctx context.Context) error {
	return v.api.Verify(ctx)
}

// Validate checks the zone records for d. An error means the zone could
// not be inspected; configuration problems are reported in the Result.
func (v *Validator) Validate(ctx context.Context, d string) (dnscheck.Result, error) {
	d = domain.Normalize(d)

	zoneID, zoneName, err := v.findZone(ctx, d)
	if err != nil {
		return dnscheck.Result{}, err
	}

	records, err := v.api.ListRecords(ctx, zoneID)
	if err != nil {
		return dnscheck.Result{}, err
	}

	res := v.analyze(d, records)
	v.logger.Debug("cloudflare dns validation complete",
		slog.String("domain", d),
		slog.String("zone", zoneName),
		slog.Bool("valid", res.IsValid),
		slog.Int("issues", len(res.Issues)),
	)
	return res, nil
}

// findZone walks from the full domain towards the registrable parent and
// returns the first zone that exists.
func (v *Validator) findZone(ctx context.Context, d string) (string, string, error) {
	labels := strings.Split(d, ".")
	for i := 0; i < len(labels)-1; i++ {
		candidate := strings.Join(labels[i:], ".")
		id, ok, err := v.api.ZoneID(ctx, candidate)
		if err != nil {
			return "", "", err
		}
		if ok {
			return id, candidate, nil
		}
	}
	return "", "", domain.WrapProviderError(providerName, "find zone", fmt.Errorf("%w for %s", ErrZoneNotFound, d))
}

// analyze is the pure record check.
func (v *Validator) analyze(d string, records []dnscheck.Record) dnscheck.Result {
	res := dnscheck.Result{
		Provider:        providerName,
		IsValid:         true,
		Issues:          []string{},
		Recommendations: []string{},
	}

	www := "www." + d
	var apexA, hostCNAME, wwwCNAME *dnscheck.Record
	for i := range records {
		r := &records[i]
		name := normalizeHost(r.Name)
		switch name {
		case d, www:
		default:
			continue
		}
		res.Records = append(res.Records, *r)

		switch strings.ToUpper(r.Type) {
		case "A", "AAAA":
			if name == d && apexA == nil {
				apexA = r
			}
		case "CNAME":
			if name == d {
				hostCNAME = r
			} else {
				wwwCNAME = r
			}
		}
	}

	if domain.IsApex(d) {
		v.checkApex(&res, d, apexA, hostCNAME, wwwCNAME)
	} else {
		v.checkCNAME(&res, d, hostCNAME)
	}
	return res
}

func (v *Validator) checkCNAME(res *dnscheck.Result, name string, rec *dnscheck.Record) {
	if rec == nil {
		res.IsValid = false
		res.Issues = append(res.Issues, fmt.Sprintf("no CNAME record found for %s", name))
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("create a CNAME record %s pointing to %s", name, v.target))
		return
	}
	if got := normalizeHost(rec.Content); got != v.target {
		res.IsValid = false
		res.Issues = append(res.Issues, fmt.Sprintf("CNAME for %s points to %s instead of %s", name, got, v.target))
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("update the CNAME record %s to point to %s", name, v.target))
		return
	}
	if rec.Proxied {
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("disable the Cloudflare proxy for %s so the hosting provider can issue its certificate", name))
	}
}

func (v *Validator) checkApex(res *dnscheck.Result, d string, a, apexCNAME, wwwCNAME *dnscheck.Record) {
	switch {
	case apexCNAME != nil:
		// Cloudflare flattens apex CNAMEs; treat it like a subdomain CNAME.
		v.checkCNAME(res, d, apexCNAME)
	case a == nil:
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("add an A record or flattened CNAME for %s pointing to the hosting load balancer", d))
	}

	www := "www." + d
	if wwwCNAME == nil {
		res.IsValid = false
		res.Issues = append(res.Issues, fmt.Sprintf("no CNAME record found for %s", www))
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("create a CNAME record %s pointing to %s", www, v.target))
		return
	}
	v.checkCNAME(res, www, wwwCNAME)
}

func normalizeHost(s string) string {
	return strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), ".")
}
