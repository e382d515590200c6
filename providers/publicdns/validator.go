// Package publicdns validates tenant domains by resolving them through a
// public recursive resolver. It is the fallback when no DNS provider API
// is available for the domain's zone.
package publicdns

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"

	"gitlab.bluewillows.net/root/domainsync/pkg/dnscheck"
	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
)

const (
	providerName = "public"

	// DefaultResolver is queried when Config.Resolver is empty.
	DefaultResolver = "1.1.1.1:53"

	// DefaultTimeout bounds a single DNS exchange.
	DefaultTimeout = 5 * time.Second

	// DefaultMaxHops limits how many CNAMEs are followed.
	DefaultMaxHops = 6
)

// cloudflareRanges are Cloudflare proxy ranges. A domain resolving into
// them is proxied and its CNAME target cannot be observed publicly.
var cloudflareRanges = []netip.Prefix{
	netip.MustParsePrefix("104.16.0.0/12"),
	netip.MustParsePrefix("172.64.0.0/13"),
	netip.MustParsePrefix("131.0.72.0/22"),
}

// Config holds public DNS validator settings.
type Config struct {
	Resolver string
	Target   string
	Timeout  time.Duration
	MaxHops  int
	UseTCP   bool
}

// Validator implements dnscheck.Validator over plain DNS queries.
type Validator struct {
	client   *dns.Client
	resolver string
	target   string
	maxHops  int
	logger   *slog.Logger
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

// New creates a public DNS validator.
func New(cfg Config, opts ...Option) (*Validator, error) {
	target := dns.CanonicalName(strings.TrimSpace(cfg.Target))
	if target == "." {
		return nil, &domain.ValidationError{Field: "dns target", Message: "required but not set"}
	}

	resolver := cfg.Resolver
	if resolver == "" {
		resolver = DefaultResolver
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	maxHops := cfg.MaxHops
	if maxHops <= 0 {
		maxHops = DefaultMaxHops
	}

	v := &Validator{
		client:   &dns.Client{Timeout: timeout, Net: "udp"},
		resolver: resolver,
		target:   target,
		maxHops:  maxHops,
		logger:   slog.Default(),
	}
	if cfg.UseTCP {
		v.client.Net = "tcp"
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Factory returns a dnscheck.Factory for the "public" type.
// Recognized settings: target, resolver.
func Factory(logger *slog.Logger) dnscheck.Factory {
	return func(settings map[string]string) (dnscheck.Validator, error) {
		return New(Config{
			Target:   settings["target"],
			Resolver: settings["resolver"],
		}, WithLogger(logger))
	}
}

// Name returns "public".
func (v *Validator) Name() string {
	return providerName
}

// Ping queries the resolver for the target's A record.
func (v *Validator) Ping(ctx context.Context) error {
	_, err := v.query(ctx, v.target, dns.TypeA)
	return err
}

// Validate follows the CNAME chain of d, then of www.d for apex domains,
// and finally inspects A records for Cloudflare proxying.
func (v *Validator) Validate(ctx context.Context, d string) (dnscheck.Result, error) {
	d = domain.Normalize(d)
	res := dnscheck.Result{
		Provider:        providerName,
		Issues:          []string{},
		Recommendations: []string{},
	}

	ok, chain, err := v.followChain(ctx, d)
	if err != nil {
		return dnscheck.Result{}, err
	}
	res.Records = append(res.Records, chain...)
	if ok {
		res.IsValid = true
		return res, nil
	}

	if domain.IsApex(d) {
		wwwOK, wwwChain, err := v.followChain(ctx, "www."+d)
		if err != nil {
			return dnscheck.Result{}, err
		}
		res.Records = append(res.Records, wwwChain...)
		if wwwOK {
			res.IsValid = true
			res.Recommendations = append(res.Recommendations,
				fmt.Sprintf("www.%s resolves correctly; make sure %s redirects or has an A record for the hosting load balancer", d, d))
			return res, nil
		}
	}

	rrs, err := v.query(ctx, d, dns.TypeA)
	if err != nil {
		return dnscheck.Result{}, err
	}

	var addrs []string
	proxied := false
	for _, rr := range rrs {
		a, isA := rr.(*dns.A)
		if !isA {
			continue
		}
		addrs = append(addrs, a.A.String())
		res.Records = append(res.Records, dnscheck.Record{Name: d, Type: "A", Content: a.A.String()})
		if ip, parsed := netip.AddrFromSlice(a.A.To4()); parsed && isCloudflare(ip) {
			proxied = true
		}
	}

	switch {
	case proxied:
		res.IsValid = true
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("%s is proxied through Cloudflare; the CNAME target cannot be verified from public DNS", d))
	case len(addrs) > 0:
		res.Issues = append(res.Issues,
			fmt.Sprintf("%s resolves to %s instead of %s", d, strings.Join(addrs, ", "), strings.TrimSuffix(v.target, ".")))
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("point %s to %s with a CNAME record", d, strings.TrimSuffix(v.target, ".")))
	default:
		res.Issues = append(res.Issues, fmt.Sprintf("%s does not resolve", d))
		res.Recommendations = append(res.Recommendations,
			fmt.Sprintf("create a CNAME record %s pointing to %s", d, strings.TrimSuffix(v.target, ".")))
	}

	v.logger.Debug("public dns validation complete",
		slog.String("domain", d),
		slog.Bool("valid", res.IsValid),
		slog.Bool("proxied", proxied),
	)
	return res, nil
}

// followChain follows CNAMEs starting at name for at most maxHops hops and
// reports whether the configured target was reached.
func (v *Validator) followChain(ctx context.Context, name string) (bool, []dnscheck.Record, error) {
	var chain []dnscheck.Record
	current := dns.CanonicalName(name)

	for hop := 0; hop < v.maxHops; hop++ {
		rrs, err := v.query(ctx, current, dns.TypeCNAME)
		if err != nil {
			return false, chain, err
		}

		var next string
		for _, rr := range rrs {
			if c, ok := rr.(*dns.CNAME); ok && dns.CanonicalName(c.Hdr.Name) == current {
				next = dns.CanonicalName(c.Target)
				break
			}
		}
		if next == "" {
			return false, chain, nil
		}

		chain = append(chain, dnscheck.Record{
			Name:    strings.TrimSuffix(current, "."),
			Type:    "CNAME",
			Content: strings.TrimSuffix(next, "."),
		})
		if next == v.target {
			return true, chain, nil
		}
		current = next
	}
	return false, chain, nil
}

// query performs one recursive lookup. NXDOMAIN yields no records.
func (v *Validator) query(ctx context.Context, name string, qtype uint16) ([]dns.RR, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(name), qtype)
	msg.RecursionDesired = true

	resp, _, err := v.client.ExchangeContext(ctx, msg, v.resolver)
	if err != nil {
		return nil, &domain.ProviderError{
			Provider:  providerName,
			Operation: "query " + dns.TypeToString[qtype],
			Err:       err,
		}
	}

	switch resp.Rcode {
	case dns.RcodeSuccess:
		return resp.Answer, nil
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, &domain.ProviderError{
			Provider:  providerName,
			Operation: "query " + dns.TypeToString[qtype],
			Err:       fmt.Errorf("resolver returned %s", dns.RcodeToString[resp.Rcode]),
		}
	}
}

func isCloudflare(ip netip.Addr) bool {
	for _, p := range cloudflareRanges {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
