package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// FileConfig is the configuration file structure. Durations are strings in
// Go duration format; pointers distinguish unset from zero.
type FileConfig struct {
	Logging     *FileLoggingConfig     `yaml:"logging,omitempty" toml:"logging"`
	Server      *FileServerConfig      `yaml:"server,omitempty" toml:"server"`
	Database    *FileDatabaseConfig    `yaml:"database,omitempty" toml:"database"`
	Hosting     *FileHostingConfig     `yaml:"hosting,omitempty" toml:"hosting"`
	DNS         *FileDNSConfig         `yaml:"dns,omitempty" toml:"dns"`
	Scheduler   *FileSchedulerConfig   `yaml:"scheduler,omitempty" toml:"scheduler"`
	Remediation *FileRemediationConfig `yaml:"remediation,omitempty" toml:"remediation"`
}

// FileLoggingConfig holds logging settings.
type FileLoggingConfig struct {
	Level  string `yaml:"level,omitempty" toml:"level"`
	Format string `yaml:"format,omitempty" toml:"format"`
}

// FileServerConfig holds listener settings.
type FileServerConfig struct {
	HealthPort   int    `yaml:"health_port,omitempty" toml:"health_port"`
	APIListen    string `yaml:"api_listen,omitempty" toml:"api_listen"`
	APITokenHash string `yaml:"api_token_hash,omitempty" toml:"api_token_hash"`
}

// FileDatabaseConfig holds record store settings.
type FileDatabaseConfig struct {
	Path string `yaml:"path,omitempty" toml:"path"`
}

// FileHostingConfig holds Netlify settings.
type FileHostingConfig struct {
	NetlifyToken         string `yaml:"netlify_token,omitempty" toml:"netlify_token"`
	SiteID               string `yaml:"site_id,omitempty" toml:"site_id"`
	APIEndpoint          string `yaml:"api_endpoint,omitempty" toml:"api_endpoint"`
	PreferPrimaryForApex *bool  `yaml:"prefer_primary_for_apex,omitempty" toml:"prefer_primary_for_apex"`
}

// FileDNSConfig holds DNS validation settings.
type FileDNSConfig struct {
	Provider              string `yaml:"provider,omitempty" toml:"provider"`
	Target                string `yaml:"target,omitempty" toml:"target"`
	Resolver              string `yaml:"resolver,omitempty" toml:"resolver"`
	CloudflareToken       string `yaml:"cloudflare_token,omitempty" toml:"cloudflare_token"`
	CloudflareAPIEndpoint string `yaml:"cloudflare_api_endpoint,omitempty" toml:"cloudflare_api_endpoint"`
}

// FileSchedulerConfig holds scheduler settings.
type FileSchedulerConfig struct {
	Interval        string   `yaml:"interval,omitempty" toml:"interval"`
	RunOnStart      *bool    `yaml:"run_on_start,omitempty" toml:"run_on_start"`
	Tenants         []string `yaml:"tenants,omitempty" toml:"tenants"`
	LockFile        string   `yaml:"lock_file,omitempty" toml:"lock_file"`
	TriggerInterval string   `yaml:"trigger_interval,omitempty" toml:"trigger_interval"`
	TriggerBurst    int      `yaml:"trigger_burst,omitempty" toml:"trigger_burst"`
}

// FileRemediationConfig holds executor settings.
type FileRemediationConfig struct {
	Workers     int              `yaml:"workers,omitempty" toml:"workers"`
	CallTimeout string           `yaml:"call_timeout,omitempty" toml:"call_timeout"`
	Retry       *FileRetryConfig `yaml:"retry,omitempty" toml:"retry"`
}

// FileRetryConfig holds the retry policy.
type FileRetryConfig struct {
	MaxAttempts    int    `yaml:"max_attempts,omitempty" toml:"max_attempts"`
	InitialBackoff string `yaml:"initial_backoff,omitempty" toml:"initial_backoff"`
	MaxBackoff     string `yaml:"max_backoff,omitempty" toml:"max_backoff"`
}

// envVarPattern matches ${VAR} or ${VAR:-default} syntax.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

// InterpolateEnvVars replaces ${VAR} patterns with environment variable values.
// Supports ${VAR:-default} syntax for default values.
func InterpolateEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if value := os.Getenv(groups[1]); value != "" {
			return value
		}
		return groups[2]
	})
}

func (c *FileConfig) interpolateEnvVars() {
	interp := func(fields ...*string) {
		for _, f := range fields {
			*f = InterpolateEnvVars(*f)
		}
	}

	if l := c.Logging; l != nil {
		interp(&l.Level, &l.Format)
	}
	if s := c.Server; s != nil {
		interp(&s.APIListen, &s.APITokenHash)
	}
	if d := c.Database; d != nil {
		interp(&d.Path)
	}
	if h := c.Hosting; h != nil {
		interp(&h.NetlifyToken, &h.SiteID, &h.APIEndpoint)
	}
	if d := c.DNS; d != nil {
		interp(&d.Provider, &d.Target, &d.Resolver, &d.CloudflareToken, &d.CloudflareAPIEndpoint)
	}
	if s := c.Scheduler; s != nil {
		interp(&s.Interval, &s.LockFile, &s.TriggerInterval)
		for i := range s.Tenants {
			interp(&s.Tenants[i])
		}
	}
	if r := c.Remediation; r != nil {
		interp(&r.CallTimeout)
		if r.Retry != nil {
			interp(&r.Retry.InitialBackoff, &r.Retry.MaxBackoff)
		}
	}
}

// LoadFile reads a configuration file. Files ending in .toml are parsed as
// TOML, everything else as YAML. ${VAR} references are interpolated.
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg FileConfig
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing TOML config: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML config: %w", err)
		}
	}

	cfg.interpolateEnvVars()
	return &cfg, nil
}

// apply copies the values set in the file onto cfg.
func (c *FileConfig) apply(cfg *Config) []string {
	var errs []string
	duration := func(field, v string, dst *time.Duration) {
		if v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Sprintf("config file %s: invalid duration %q", field, v))
			return
		}
		*dst = d
	}
	str := func(v string, dst *string) {
		if v != "" {
			*dst = v
		}
	}
	integer := func(v int, dst *int) {
		if v != 0 {
			*dst = v
		}
	}

	if l := c.Logging; l != nil {
		str(strings.ToLower(l.Level), &cfg.LogLevel)
		str(strings.ToLower(l.Format), &cfg.LogFormat)
	}
	if s := c.Server; s != nil {
		integer(s.HealthPort, &cfg.HealthPort)
		str(s.APIListen, &cfg.APIListen)
		str(s.APITokenHash, &cfg.APITokenHash)
	}
	if d := c.Database; d != nil {
		str(d.Path, &cfg.DatabasePath)
	}
	if h := c.Hosting; h != nil {
		str(h.NetlifyToken, &cfg.Hosting.Token)
		str(h.SiteID, &cfg.Hosting.SiteID)
		str(h.APIEndpoint, &cfg.Hosting.APIEndpoint)
		if h.PreferPrimaryForApex != nil {
			cfg.Hosting.PreferPrimaryForApex = *h.PreferPrimaryForApex
		}
	}
	if d := c.DNS; d != nil {
		str(strings.ToLower(d.Provider), &cfg.DNS.Provider)
		str(d.Target, &cfg.DNS.Target)
		str(d.Resolver, &cfg.DNS.Resolver)
		str(d.CloudflareToken, &cfg.DNS.CloudflareToken)
		str(d.CloudflareAPIEndpoint, &cfg.DNS.CloudflareAPIEndpoint)
	}
	if s := c.Scheduler; s != nil {
		duration("scheduler.interval", s.Interval, &cfg.Scheduler.Interval)
		if s.RunOnStart != nil {
			cfg.Scheduler.RunOnStart = *s.RunOnStart
		}
		if len(s.Tenants) > 0 {
			cfg.Scheduler.Tenants = s.Tenants
		}
		str(s.LockFile, &cfg.Scheduler.LockFile)
		duration("scheduler.trigger_interval", s.TriggerInterval, &cfg.Scheduler.TriggerInterval)
		integer(s.TriggerBurst, &cfg.Scheduler.TriggerBurst)
	}
	if r := c.Remediation; r != nil {
		integer(r.Workers, &cfg.Remediation.Workers)
		duration("remediation.call_timeout", r.CallTimeout, &cfg.Remediation.CallTimeout)
		if rt := r.Retry; rt != nil {
			integer(rt.MaxAttempts, &cfg.Remediation.RetryMaxAttempts)
			duration("remediation.retry.initial_backoff", rt.InitialBackoff, &cfg.Remediation.RetryInitialBackoff)
			duration("remediation.retry.max_backoff", rt.MaxBackoff, &cfg.Remediation.RetryMaxBackoff)
		}
	}

	return errs
}

// GetConfigFilePath returns the config file path from DOMAINSYNC_CONFIG.
func GetConfigFilePath() string {
	return os.Getenv(envPrefix + "CONFIG")
}
