// Package dnscheck defines DNS resolution validation for tenant domains and
// the fallback chain used when a DNS provider cannot be consulted.
package dnscheck

import (
	"context"
	"errors"
	"log/slog"
	"strings"
)

// ProviderFallback is the Result.Provider value of a degraded result.
const ProviderFallback = "fallback"

// Record is a DNS record observed while validating a domain.
type Record struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Content string `json:"content"`
	Proxied bool   `json:"proxied,omitempty"`
}

// Result is the outcome of validating one domain's DNS configuration.
type Result struct {
	Provider        string   `json:"provider"`
	IsValid         bool     `json:"isValid"`
	Fallback        bool     `json:"fallback,omitempty"`
	Issues          []string `json:"issues"`
	Recommendations []string `json:"recommendations"`
	Records         []Record `json:"records,omitempty"`
}

// Validator checks that a domain resolves to the hosting target.
// Validate returns an error only when the provider could not be consulted;
// a misconfigured domain is reported through Result.IsValid.
type Validator interface {
	Name() string
	Validate(ctx context.Context, domain string) (Result, error)
}

// Chain tries validators in order and returns the first result that was
// obtained without error. When every validator fails, or none is
// configured, it returns a degraded result that is marked valid so DNS
// trouble never blocks a verdict on its own.
type Chain struct {
	validators []Validator
	logger     *slog.Logger
}

var _ Validator = (*Chain)(nil)

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithLogger sets the chain logger.
func WithLogger(logger *slog.Logger) ChainOption {
	return func(c *Chain) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewChain builds a chain from validators. Nil entries are skipped.
func NewChain(validators []Validator, opts ...ChainOption) *Chain {
	c := &Chain{logger: slog.Default()}
	for _, v := range validators {
		if v != nil {
			c.validators = append(c.validators, v)
		}
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the names of the chained validators joined by "+".
func (c *Chain) Name() string {
	if len(c.validators) == 0 {
		return ProviderFallback
	}
	names := make([]string, 0, len(c.validators))
	for _, v := range c.validators {
		names = append(names, v.Name())
	}
	return strings.Join(names, "+")
}

// Len returns the number of configured validators.
func (c *Chain) Len() int {
	return len(c.validators)
}

// Validate never returns an error.
func (c *Chain) Validate(ctx context.Context, domain string) (Result, error) {
	var errs []error
	for _, v := range c.validators {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		res, err := v.Validate(ctx, domain)
		if err == nil {
			return res, nil
		}
		c.logger.Warn("dns validator failed, trying next",
			slog.String("validator", v.Name()),
			slog.String("domain", domain),
			slog.String("error", err.Error()),
		)
		errs = append(errs, err)
	}
	return Degraded(errors.Join(errs...)), nil
}

// Degraded returns the fallback result. cause may be nil when no DNS
// provider is configured.
func Degraded(cause error) Result {
	rec := "DNS provider not configured; verify the CNAME record manually"
	if cause != nil {
		rec = "DNS provider unavailable (" + cause.Error() + "); verify the CNAME record manually"
	}
	return Result{
		Provider:        ProviderFallback,
		IsValid:         true,
		Fallback:        true,
		Issues:          []string{},
		Recommendations: []string{rec},
	}
}
