package main

import (
	"context"
	"fmt"
	"log/slog"

	"gitlab.bluewillows.net/root/domainsync/internal/api"
	"gitlab.bluewillows.net/root/domainsync/internal/config"
	"gitlab.bluewillows.net/root/domainsync/internal/health"
	"gitlab.bluewillows.net/root/domainsync/internal/reconciler"
	"gitlab.bluewillows.net/root/domainsync/internal/remediation"
	"gitlab.bluewillows.net/root/domainsync/internal/scheduler"
	"gitlab.bluewillows.net/root/domainsync/internal/store"
	"gitlab.bluewillows.net/root/domainsync/internal/validation"
	"gitlab.bluewillows.net/root/domainsync/pkg/dnscheck"
	"gitlab.bluewillows.net/root/domainsync/providers/cloudflare"
	"gitlab.bluewillows.net/root/domainsync/providers/netlify"
	"gitlab.bluewillows.net/root/domainsync/providers/publicdns"
)

// pinger is implemented by DNS validators that can report their own health.
type pinger interface {
	Ping(ctx context.Context) error
}

// app holds the wired services shared by every command.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	store      *store.Store
	hosting    *netlify.Provider
	validators []dnscheck.Validator
	pipeline   *validation.Pipeline
	executor   *remediation.Executor
	reconciler *reconciler.Reconciler
	scheduler  *scheduler.Scheduler
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	st, err := store.Open(cfg.DatabasePath, store.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	a.store = st

	host, err := netlify.New(netlify.Config{
		Token:                cfg.Hosting.Token,
		APIEndpoint:          cfg.Hosting.APIEndpoint,
		Timeout:              cfg.Remediation.CallTimeout,
		PreferPrimaryForApex: cfg.Hosting.PreferPrimaryForApex,
	}, netlify.WithProviderLogger(logger))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating hosting provider: %w", err)
	}
	a.hosting = host

	validators, err := buildValidators(cfg.DNS, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("creating dns validators: %w", err)
	}
	a.validators = validators

	pipelineOpts := []validation.Option{
		validation.WithLogger(logger),
		validation.WithCallTimeout(cfg.Remediation.CallTimeout),
	}
	if len(validators) > 0 {
		chain := dnscheck.NewChain(validators, dnscheck.WithLogger(logger))
		pipelineOpts = append(pipelineOpts, validation.WithDNSValidator(chain))
	}
	a.pipeline = validation.New(host, cfg.Hosting.SiteID, pipelineOpts...)

	a.executor = remediation.New(st, host, cfg.Hosting.SiteID,
		remediation.WithLogger(logger),
		remediation.WithRetryPolicy(remediation.RetryPolicy{
			MaxAttempts:    cfg.Remediation.RetryMaxAttempts,
			InitialBackoff: cfg.Remediation.RetryInitialBackoff,
			MaxBackoff:     cfg.Remediation.RetryMaxBackoff,
			Multiplier:     2,
		}),
		remediation.WithCallTimeout(cfg.Remediation.CallTimeout),
		remediation.WithWorkers(cfg.Remediation.Workers),
	)

	a.reconciler = reconciler.New(st, host, a.executor, cfg.Hosting.SiteID,
		reconciler.WithLogger(logger),
		reconciler.WithCallTimeout(cfg.Remediation.CallTimeout),
	)

	a.scheduler = scheduler.New(a.reconciler, st,
		scheduler.WithLogger(logger),
		scheduler.WithConfig(scheduler.Config{
			Interval:        cfg.Scheduler.Interval,
			RunOnStart:      cfg.Scheduler.RunOnStart,
			Tenants:         cfg.Scheduler.Tenants,
			LockPath:        cfg.Scheduler.LockFile,
			TriggerInterval: cfg.Scheduler.TriggerInterval,
			TriggerBurst:    cfg.Scheduler.TriggerBurst,
		}),
	)

	return a, nil
}

// buildValidators creates the configured DNS validators in chain order.
func buildValidators(cfg config.DNSConfig, logger *slog.Logger) ([]dnscheck.Validator, error) {
	registry := dnscheck.NewRegistry()
	registry.RegisterFactory(config.DNSProviderCloudflare, cloudflare.Factory(logger))
	registry.RegisterFactory(config.DNSProviderPublic, publicdns.Factory(logger))

	settings := cfg.Settings()
	var validators []dnscheck.Validator
	for _, typeName := range cfg.Validators() {
		v, err := registry.Create(typeName, settings)
		if err != nil {
			return nil, err
		}
		validators = append(validators, v)
	}
	return validators, nil
}

// healthServer registers the store and hosting provider as required
// components; DNS validators only ever report degraded.
func (a *app) healthServer(version string) *health.Server {
	srv := health.New(a.cfg.HealthPort,
		health.WithLogger(a.logger),
		health.WithVersion(version),
	)
	srv.RegisterChecker("store", a.store.Ping)
	srv.RegisterChecker("hosting:"+a.hosting.Name(),
		health.ProviderChecker(a.hosting.Name(), a.hosting.Ping))

	for _, v := range a.validators {
		p, ok := v.(pinger)
		if !ok {
			continue
		}
		srv.RegisterDegradedChecker("dns:"+v.Name(), health.AdvisoryProviderChecker(v.Name(), p.Ping))
	}
	return srv
}

func (a *app) apiServer() *api.Server {
	return api.New(api.Deps{
		Trigger:    a.scheduler,
		Reconciler: a.reconciler,
		Validator:  a.pipeline,
		Remover:    a.executor,
		Records:    a.store,
	},
		api.WithLogger(a.logger),
		api.WithTokenHash(a.cfg.APITokenHash),
	)
}

// Close releases the store.
func (a *app) Close() {
	if a.store == nil {
		return
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("closing store", slog.String("error", err.Error()))
	}
}
