package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Configuration defaults.
const (
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "json"
	DefaultHealthPort          = 8080
	DefaultAPIListen           = ":8081"
	DefaultDatabasePath        = "domainsync.db"
	DefaultReconcileInterval   = 15 * time.Minute
	DefaultTriggerInterval     = time.Minute
	DefaultTriggerBurst        = 1
	DefaultWorkers             = 4
	DefaultCallTimeout         = 30 * time.Second
	DefaultRetryMaxAttempts    = 3
	DefaultRetryInitialBackoff = 500 * time.Millisecond
	DefaultRetryMaxBackoff     = 10 * time.Second
)

// envPrefix is the prefix of every environment variable.
const envPrefix = "DOMAINSYNC_"

// Default returns a Config populated with defaults.
func Default() *Config {
	return &Config{
		LogLevel:     DefaultLogLevel,
		LogFormat:    DefaultLogFormat,
		HealthPort:   DefaultHealthPort,
		APIListen:    DefaultAPIListen,
		DatabasePath: DefaultDatabasePath,
		Scheduler: SchedulerConfig{
			Interval:        DefaultReconcileInterval,
			TriggerInterval: DefaultTriggerInterval,
			TriggerBurst:    DefaultTriggerBurst,
		},
		Remediation: RemediationConfig{
			Workers:             DefaultWorkers,
			CallTimeout:         DefaultCallTimeout,
			RetryMaxAttempts:    DefaultRetryMaxAttempts,
			RetryInitialBackoff: DefaultRetryInitialBackoff,
			RetryMaxBackoff:     DefaultRetryMaxBackoff,
		},
	}
}

// envParser applies DOMAINSYNC_* overrides and collects parse errors.
// Unset variables leave the destination untouched.
type envParser struct {
	errs []string
}

func (p *envParser) str(key string, dst *string) {
	if v := getEnv(envPrefix + key); v != "" {
		*dst = strings.TrimSpace(v)
	}
}

func (p *envParser) lower(key string, dst *string) {
	if v := getEnv(envPrefix + key); v != "" {
		*dst = strings.ToLower(strings.TrimSpace(v))
	}
}

// secret reads KEY_FILE before KEY.
func (p *envParser) secret(key string, dst *string) {
	v, err := getEnvWithFileFallback(envPrefix, key)
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s%s_FILE: %v", envPrefix, key, err))
		return
	}
	if v != "" {
		*dst = v
	}
}

func (p *envParser) integer(key string, dst *int) {
	v := getEnv(envPrefix + key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s%s: invalid integer %q", envPrefix, key, v))
		return
	}
	*dst = n
}

func (p *envParser) duration(key string, dst *time.Duration) {
	v := getEnv(envPrefix + key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		p.errs = append(p.errs, fmt.Sprintf("%s%s: invalid duration %q (use format like 30s, 15m)", envPrefix, key, v))
		return
	}
	*dst = d
}

func (p *envParser) boolean(key string, dst *bool) {
	if v := getEnv(envPrefix + key); v != "" {
		*dst = parseBool(v, *dst)
	}
}

func (p *envParser) list(key string, dst *[]string) {
	if v := getEnv(envPrefix + key); v != "" {
		*dst = splitList(v)
	}
}

// applyEnv overrides cfg with environment variables.
func applyEnv(cfg *Config) []string {
	p := &envParser{}

	p.lower("LOG_LEVEL", &cfg.LogLevel)
	p.lower("LOG_FORMAT", &cfg.LogFormat)
	p.integer("HEALTH_PORT", &cfg.HealthPort)
	p.str("API_LISTEN", &cfg.APIListen)
	p.secret("API_TOKEN_HASH", &cfg.APITokenHash)
	p.str("DATABASE_PATH", &cfg.DatabasePath)

	p.secret("NETLIFY_TOKEN", &cfg.Hosting.Token)
	p.str("NETLIFY_SITE_ID", &cfg.Hosting.SiteID)
	p.str("NETLIFY_API_ENDPOINT", &cfg.Hosting.APIEndpoint)
	p.boolean("NETLIFY_PREFER_PRIMARY_FOR_APEX", &cfg.Hosting.PreferPrimaryForApex)

	p.lower("DNS_PROVIDER", &cfg.DNS.Provider)
	p.str("DNS_TARGET", &cfg.DNS.Target)
	p.str("DNS_RESOLVER", &cfg.DNS.Resolver)
	p.secret("CLOUDFLARE_TOKEN", &cfg.DNS.CloudflareToken)
	p.str("CLOUDFLARE_API_ENDPOINT", &cfg.DNS.CloudflareAPIEndpoint)

	p.duration("RECONCILE_INTERVAL", &cfg.Scheduler.Interval)
	p.boolean("RECONCILE_ON_START", &cfg.Scheduler.RunOnStart)
	p.list("TENANTS", &cfg.Scheduler.Tenants)
	p.str("LOCK_FILE", &cfg.Scheduler.LockFile)
	p.duration("TRIGGER_INTERVAL", &cfg.Scheduler.TriggerInterval)
	p.integer("TRIGGER_BURST", &cfg.Scheduler.TriggerBurst)

	p.integer("WORKERS", &cfg.Remediation.Workers)
	p.duration("CALL_TIMEOUT", &cfg.Remediation.CallTimeout)
	p.integer("RETRY_MAX_ATTEMPTS", &cfg.Remediation.RetryMaxAttempts)
	p.duration("RETRY_INITIAL_BACKOFF", &cfg.Remediation.RetryInitialBackoff)
	p.duration("RETRY_MAX_BACKOFF", &cfg.Remediation.RetryMaxBackoff)

	return p.errs
}
