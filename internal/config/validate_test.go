package config

import (
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func validConfig() *Config {
	cfg := Default()
	cfg.Hosting.Token = "tok"
	cfg.Hosting.SiteID = "site-1"
	cfg.DNS.Provider = DNSProviderNone
	return cfg
}

func TestValidateConfig(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "valid with token hash", mutate: func(c *Config) { c.APITokenHash = string(hash) }},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "trace" }, wantErr: "LOG_LEVEL"},
		{name: "bad log format", mutate: func(c *Config) { c.LogFormat = "xml" }, wantErr: "LOG_FORMAT"},
		{name: "bad port", mutate: func(c *Config) { c.HealthPort = 70000 }, wantErr: "HEALTH_PORT"},
		{name: "bad listen", mutate: func(c *Config) { c.APIListen = "8081" }, wantErr: "API_LISTEN"},
		{name: "plain token hash", mutate: func(c *Config) { c.APITokenHash = "s3cret" }, wantErr: "not a bcrypt hash"},
		{name: "missing netlify token", mutate: func(c *Config) { c.Hosting.Token = "" }, wantErr: "NETLIFY_TOKEN"},
		{name: "missing site", mutate: func(c *Config) { c.Hosting.SiteID = "" }, wantErr: "NETLIFY_SITE_ID"},
		{
			name:    "cloudflare without token",
			mutate:  func(c *Config) { c.DNS.Provider = DNSProviderCloudflare; c.DNS.Target = "t.example.net" },
			wantErr: "CLOUDFLARE_TOKEN",
		},
		{name: "public without target", mutate: func(c *Config) { c.DNS.Provider = DNSProviderPublic }, wantErr: "DNS_TARGET"},
		{name: "unknown dns provider", mutate: func(c *Config) { c.DNS.Provider = "route53" }, wantErr: "DNS_PROVIDER"},
		{name: "ip target", mutate: func(c *Config) { c.DNS.Target = "192.0.2.1" }, wantErr: "must be a hostname"},
		{name: "short interval", mutate: func(c *Config) { c.Scheduler.Interval = time.Second }, wantErr: "RECONCILE_INTERVAL"},
		{name: "zero burst", mutate: func(c *Config) { c.Scheduler.TriggerBurst = 0 }, wantErr: "TRIGGER_BURST"},
		{name: "zero workers", mutate: func(c *Config) { c.Remediation.Workers = 0 }, wantErr: "WORKERS"},
		{name: "short call timeout", mutate: func(c *Config) { c.Remediation.CallTimeout = time.Millisecond }, wantErr: "CALL_TIMEOUT"},
		{name: "zero attempts", mutate: func(c *Config) { c.Remediation.RetryMaxAttempts = 0 }, wantErr: "RETRY_MAX_ATTEMPTS"},
		{
			name:    "inverted backoff",
			mutate:  func(c *Config) { c.Remediation.RetryInitialBackoff = time.Minute },
			wantErr: "BACKOFF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			errs := validateConfig(cfg)

			if tt.wantErr == "" {
				if len(errs) != 0 {
					t.Errorf("unexpected errors: %v", errs)
				}
				return
			}
			if len(errs) != 1 || !strings.Contains(errs[0], tt.wantErr) {
				t.Errorf("expected one error containing %q, got %v", tt.wantErr, errs)
			}
		})
	}
}

func TestValidationError(t *testing.T) {
	single := &ValidationError{Errors: []string{"one"}}
	if single.Error() != "configuration error: one" {
		t.Errorf("Error() = %q", single.Error())
	}

	multi := &ValidationError{Errors: []string{"one", "two"}}
	if !strings.Contains(multi.Error(), "configuration errors:") || !strings.Contains(multi.Error(), "  - two") {
		t.Errorf("Error() = %q", multi.Error())
	}
}
