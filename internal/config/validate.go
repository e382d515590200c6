package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration error: %s", e.Errors[0])
	}
	return fmt.Sprintf("configuration errors:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// validateConfig checks the merged configuration and returns every problem.
func validateConfig(cfg *Config) []string {
	var errs []string
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Sprintf(format, args...))
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		add("%sLOG_LEVEL: invalid value %q (must be debug, info, warn, or error)", envPrefix, cfg.LogLevel)
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		add("%sLOG_FORMAT: invalid value %q (must be json or text)", envPrefix, cfg.LogFormat)
	}

	if cfg.HealthPort < 1 || cfg.HealthPort > 65535 {
		add("%sHEALTH_PORT: must be between 1 and 65535, got %d", envPrefix, cfg.HealthPort)
	}
	if _, _, err := net.SplitHostPort(cfg.APIListen); err != nil {
		add("%sAPI_LISTEN: invalid address %q", envPrefix, cfg.APIListen)
	}
	if cfg.APITokenHash != "" {
		if _, err := bcrypt.Cost([]byte(cfg.APITokenHash)); err != nil {
			add("%sAPI_TOKEN_HASH: not a bcrypt hash", envPrefix)
		}
	}
	if cfg.DatabasePath == "" {
		add("%sDATABASE_PATH: required", envPrefix)
	}

	if cfg.Hosting.Token == "" {
		add("%sNETLIFY_TOKEN: required but not set", envPrefix)
	}
	if cfg.Hosting.SiteID == "" {
		add("%sNETLIFY_SITE_ID: required but not set", envPrefix)
	}

	switch cfg.DNS.Provider {
	case DNSProviderCloudflare:
		if cfg.DNS.CloudflareToken == "" {
			add("%sCLOUDFLARE_TOKEN: required when %sDNS_PROVIDER is cloudflare", envPrefix, envPrefix)
		}
		if cfg.DNS.Target == "" {
			add("%sDNS_TARGET: required when %sDNS_PROVIDER is cloudflare", envPrefix, envPrefix)
		}
	case DNSProviderPublic:
		if cfg.DNS.Target == "" {
			add("%sDNS_TARGET: required when %sDNS_PROVIDER is public", envPrefix, envPrefix)
		}
	case DNSProviderNone:
	default:
		add("%sDNS_PROVIDER: invalid value %q (must be cloudflare, public, or none)", envPrefix, cfg.DNS.Provider)
	}
	if cfg.DNS.Target != "" && net.ParseIP(cfg.DNS.Target) != nil {
		add("%sDNS_TARGET: must be a hostname, got IP address %q", envPrefix, cfg.DNS.Target)
	}

	s := cfg.Scheduler
	if s.Interval < time.Minute {
		add("%sRECONCILE_INTERVAL: must be at least 1m", envPrefix)
	}
	if s.TriggerInterval <= 0 {
		add("%sTRIGGER_INTERVAL: must be positive", envPrefix)
	}
	if s.TriggerBurst < 1 {
		add("%sTRIGGER_BURST: must be at least 1", envPrefix)
	}

	r := cfg.Remediation
	if r.Workers < 1 {
		add("%sWORKERS: must be at least 1", envPrefix)
	}
	if r.CallTimeout < time.Second {
		add("%sCALL_TIMEOUT: must be at least 1s", envPrefix)
	}
	if r.RetryMaxAttempts < 1 {
		add("%sRETRY_MAX_ATTEMPTS: must be at least 1", envPrefix)
	}
	if r.RetryInitialBackoff <= 0 || r.RetryMaxBackoff < r.RetryInitialBackoff {
		add("%sRETRY_*_BACKOFF: initial backoff must be positive and not exceed max backoff", envPrefix)
	}

	return errs
}
