package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.LogLevel != DefaultLogLevel || cfg.LogFormat != DefaultLogFormat {
		t.Errorf("logging = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.HealthPort != DefaultHealthPort || cfg.APIListen != DefaultAPIListen {
		t.Errorf("server = %d %q", cfg.HealthPort, cfg.APIListen)
	}
	if cfg.Scheduler.Interval != 15*time.Minute {
		t.Errorf("interval = %v", cfg.Scheduler.Interval)
	}
	if cfg.Remediation.Workers != DefaultWorkers || cfg.Remediation.RetryMaxAttempts != DefaultRetryMaxAttempts {
		t.Errorf("remediation = %+v", cfg.Remediation)
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("DOMAINSYNC_LOG_LEVEL", "DEBUG")
	t.Setenv("DOMAINSYNC_HEALTH_PORT", "9100")
	t.Setenv("DOMAINSYNC_NETLIFY_TOKEN", "tok")
	t.Setenv("DOMAINSYNC_NETLIFY_SITE_ID", "site-1")
	t.Setenv("DOMAINSYNC_NETLIFY_PREFER_PRIMARY_FOR_APEX", "yes")
	t.Setenv("DOMAINSYNC_DNS_PROVIDER", "Public")
	t.Setenv("DOMAINSYNC_TENANTS", "a, b")
	t.Setenv("DOMAINSYNC_RECONCILE_INTERVAL", "5m")
	t.Setenv("DOMAINSYNC_RECONCILE_ON_START", "true")
	t.Setenv("DOMAINSYNC_TRIGGER_BURST", "3")
	t.Setenv("DOMAINSYNC_RETRY_INITIAL_BACKOFF", "250ms")

	cfg := Default()
	if errs := applyEnv(cfg); len(errs) != 0 {
		t.Fatalf("applyEnv() errors = %v", errs)
	}

	if cfg.LogLevel != "debug" || cfg.HealthPort != 9100 {
		t.Errorf("got %q %d", cfg.LogLevel, cfg.HealthPort)
	}
	if cfg.Hosting.Token != "tok" || cfg.Hosting.SiteID != "site-1" || !cfg.Hosting.PreferPrimaryForApex {
		t.Errorf("hosting = %+v", cfg.Hosting)
	}
	if cfg.DNS.Provider != DNSProviderPublic {
		t.Errorf("dns provider = %q", cfg.DNS.Provider)
	}
	if strings.Join(cfg.Scheduler.Tenants, ",") != "a,b" {
		t.Errorf("tenants = %v", cfg.Scheduler.Tenants)
	}
	if cfg.Scheduler.Interval != 5*time.Minute || !cfg.Scheduler.RunOnStart || cfg.Scheduler.TriggerBurst != 3 {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	if cfg.Remediation.RetryInitialBackoff != 250*time.Millisecond {
		t.Errorf("initial backoff = %v", cfg.Remediation.RetryInitialBackoff)
	}
}

func TestApplyEnv_SecretFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cf-token")
	if err := os.WriteFile(path, []byte("  cf-secret \n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DOMAINSYNC_CLOUDFLARE_TOKEN", "ignored")
	t.Setenv("DOMAINSYNC_CLOUDFLARE_TOKEN_FILE", path)

	cfg := Default()
	if errs := applyEnv(cfg); len(errs) != 0 {
		t.Fatalf("applyEnv() errors = %v", errs)
	}
	if cfg.DNS.CloudflareToken != "cf-secret" {
		t.Errorf("token = %q", cfg.DNS.CloudflareToken)
	}
}

func TestApplyEnv_ParseErrors(t *testing.T) {
	t.Setenv("DOMAINSYNC_HEALTH_PORT", "eighty")
	t.Setenv("DOMAINSYNC_CALL_TIMEOUT", "forever")
	t.Setenv("DOMAINSYNC_NETLIFY_TOKEN_FILE", filepath.Join(t.TempDir(), "missing"))

	cfg := Default()
	errs := applyEnv(cfg)
	if len(errs) != 3 {
		t.Fatalf("expected 3 errors, got %v", errs)
	}
	if cfg.HealthPort != DefaultHealthPort || cfg.Remediation.CallTimeout != DefaultCallTimeout {
		t.Error("unparseable values must not overwrite defaults")
	}
}

func TestDNSConfig_ResolveProvider(t *testing.T) {
	tests := []struct {
		name string
		cfg  DNSConfig
		want string
		n    int
	}{
		{name: "explicit", cfg: DNSConfig{Provider: DNSProviderNone, CloudflareToken: "x"}, want: DNSProviderNone, n: 0},
		{name: "token selects cloudflare", cfg: DNSConfig{CloudflareToken: "x", Target: "t"}, want: DNSProviderCloudflare, n: 2},
		{name: "target selects public", cfg: DNSConfig{Target: "t"}, want: DNSProviderPublic, n: 1},
		{name: "nothing selects none", cfg: DNSConfig{}, want: DNSProviderNone, n: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.cfg
			c.resolveProvider()
			if c.Provider != tt.want {
				t.Errorf("Provider = %q, want %q", c.Provider, tt.want)
			}
			if got := len(c.Validators()); got != tt.n {
				t.Errorf("Validators() = %d entries, want %d", got, tt.n)
			}
		})
	}
}

func TestDNSConfig_Settings(t *testing.T) {
	s := DNSConfig{Target: "t", Resolver: "r", CloudflareToken: "c"}.Settings()
	if s["target"] != "t" || s["resolver"] != "r" || s["cloudflare_token"] != "c" {
		t.Errorf("Settings() = %v", s)
	}
}
