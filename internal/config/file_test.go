package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestInterpolateEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")
	t.Setenv("API_TOKEN", "secret123")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple variable", "${TEST_VAR}", "test-value"},
		{"variable in string", "prefix-${TEST_VAR}-suffix", "prefix-test-value-suffix"},
		{"multiple variables", "${TEST_VAR}:${API_TOKEN}", "test-value:secret123"},
		{"unset variable", "${DOMAINSYNC_TEST_NONEXISTENT}", ""},
		{"default value", "${DOMAINSYNC_TEST_NONEXISTENT:-default}", "default"},
		{"default value not used when set", "${TEST_VAR:-default}", "test-value"},
		{"no variables", "plain string", "plain string"},
		{"empty default", "${DOMAINSYNC_TEST_NONEXISTENT:-}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := InterpolateEnvVars(tt.input); got != tt.expected {
				t.Errorf("InterpolateEnvVars(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFile_YAML(t *testing.T) {
	t.Setenv("TEST_NETLIFY_TOKEN", "secret-from-env")

	path := writeFile(t, "domainsync.yaml", `
logging:
  level: DEBUG
  format: text
server:
  health_port: 9090
  api_listen: "127.0.0.1:9091"
hosting:
  netlify_token: ${TEST_NETLIFY_TOKEN}
  site_id: ${TEST_SITE_ID:-site-default}
  prefer_primary_for_apex: true
dns:
  provider: cloudflare
  target: domains.example-hosting.net
  cloudflare_token: cf-token
scheduler:
  interval: 30m
  run_on_start: true
  tenants: [tenant-a, tenant-b]
  lock_file: /tmp/domainsync.lock
remediation:
  workers: 8
  call_timeout: 45s
  retry:
    max_attempts: 5
    initial_backoff: 1s
    max_backoff: 20s
`)

	fc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if fc.Hosting.NetlifyToken != "secret-from-env" {
		t.Errorf("token not interpolated: %q", fc.Hosting.NetlifyToken)
	}
	if fc.Hosting.SiteID != "site-default" {
		t.Errorf("default not applied: %q", fc.Hosting.SiteID)
	}

	cfg := Default()
	if errs := fc.apply(cfg); len(errs) != 0 {
		t.Fatalf("apply() errors = %v", errs)
	}

	if cfg.LogLevel != "debug" || cfg.LogFormat != "text" {
		t.Errorf("logging = %q/%q", cfg.LogLevel, cfg.LogFormat)
	}
	if cfg.HealthPort != 9090 || cfg.APIListen != "127.0.0.1:9091" {
		t.Errorf("server = %d %q", cfg.HealthPort, cfg.APIListen)
	}
	if !cfg.Hosting.PreferPrimaryForApex {
		t.Error("prefer_primary_for_apex not applied")
	}
	if cfg.DNS.Provider != DNSProviderCloudflare || cfg.DNS.CloudflareToken != "cf-token" {
		t.Errorf("dns = %+v", cfg.DNS)
	}
	if cfg.Scheduler.Interval != 30*time.Minute || !cfg.Scheduler.RunOnStart || len(cfg.Scheduler.Tenants) != 2 {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
	want := RemediationConfig{
		Workers:             8,
		CallTimeout:         45 * time.Second,
		RetryMaxAttempts:    5,
		RetryInitialBackoff: time.Second,
		RetryMaxBackoff:     20 * time.Second,
	}
	if cfg.Remediation != want {
		t.Errorf("remediation = %+v, want %+v", cfg.Remediation, want)
	}
	// Unset sections keep defaults.
	if cfg.DatabasePath != DefaultDatabasePath || cfg.Scheduler.TriggerBurst != DefaultTriggerBurst {
		t.Errorf("defaults lost: %q %d", cfg.DatabasePath, cfg.Scheduler.TriggerBurst)
	}
}

func TestLoadFile_TOML(t *testing.T) {
	path := writeFile(t, "domainsync.toml", `
[logging]
level = "warn"

[hosting]
netlify_token = "tok"
site_id = "site-1"

[dns]
provider = "public"
target = "domains.example-hosting.net"
resolver = "9.9.9.9:53"

[scheduler]
interval = "1h"
tenants = ["t1"]
`)

	fc, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	cfg := Default()
	if errs := fc.apply(cfg); len(errs) != 0 {
		t.Fatalf("apply() errors = %v", errs)
	}
	if cfg.LogLevel != "warn" || cfg.Hosting.SiteID != "site-1" || cfg.DNS.Resolver != "9.9.9.9:53" {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Scheduler.Interval != time.Hour || cfg.Scheduler.Tenants[0] != "t1" {
		t.Errorf("scheduler = %+v", cfg.Scheduler)
	}
}

func TestLoadFile_Errors(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
	if _, err := LoadFile(writeFile(t, "bad.yaml", "logging: [")); err == nil {
		t.Error("expected error for invalid YAML")
	}
	if _, err := LoadFile(writeFile(t, "bad.toml", "[logging")); err == nil {
		t.Error("expected error for invalid TOML")
	}
}

func TestFileConfig_InvalidDurations(t *testing.T) {
	fc := &FileConfig{
		Scheduler:   &FileSchedulerConfig{Interval: "soon"},
		Remediation: &FileRemediationConfig{Retry: &FileRetryConfig{MaxBackoff: "later"}},
	}
	cfg := Default()
	errs := fc.apply(cfg)
	if len(errs) != 2 {
		t.Fatalf("expected 2 errors, got %v", errs)
	}
	if cfg.Scheduler.Interval != DefaultReconcileInterval {
		t.Error("invalid duration must not overwrite the default")
	}
}
