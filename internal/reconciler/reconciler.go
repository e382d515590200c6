package reconciler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gitlab.bluewillows.net/root/domainsync/internal/metrics"
	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
	"gitlab.bluewillows.net/root/domainsync/pkg/hosting"
)

// RecordLister reads the desired state of a tenant.
type RecordLister interface {
	List(ctx context.Context, tenantID string) ([]domain.Record, error)
}

// Executor applies remediation plans.
type Executor interface {
	ExecuteAll(ctx context.Context, tenantID string, plan []PlanEntry) []Outcome
}

// DefaultCallTimeout bounds the site view fetch of a pass.
const DefaultCallTimeout = 30 * time.Second

// Reconciler coordinates domain synchronization between the record store
// and the hosting provider.
//
// A pass:
//  1. Loads the tenant's active records from the store
//  2. Fetches the hosting site view
//  3. Classifies every domain in the union and builds a plan
//  4. Hands the plan to the executor and collects outcomes
type Reconciler struct {
	store       RecordLister
	hosting     hosting.Provider
	executor    Executor
	siteID      string
	callTimeout time.Duration
	logger      *slog.Logger
}

// Option is a functional option for configuring the Reconciler.
type Option func(*Reconciler)

// WithLogger sets a custom logger for the reconciler.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithCallTimeout bounds the hosting site view call.
func WithCallTimeout(d time.Duration) Option {
	return func(r *Reconciler) {
		if d > 0 {
			r.callTimeout = d
		}
	}
}

// New creates a new Reconciler for one hosting site.
func New(store RecordLister, provider hosting.Provider, executor Executor, siteID string, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:       store,
		hosting:     provider,
		executor:    executor,
		siteID:      siteID,
		callTimeout: DefaultCallTimeout,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile performs a full pass for tenantID. An error is returned only
// when the desired or live state cannot be loaded; per-domain failures are
// reported in Result.Errors.
func (r *Reconciler) Reconcile(ctx context.Context, tenantID string) (*Result, error) {
	r.logger.Info("starting reconciliation", slog.String("tenant", tenantID))

	result := NewResult(tenantID)
	records, view, err := r.loadState(ctx, tenantID)
	if err != nil {
		metrics.ReconciliationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	result.Units = Classify(records, view)
	result.Plan = Plan(result.Units)

	r.logger.Debug("classified domains",
		slog.String("tenant", tenantID),
		slog.Int("records", len(records)),
		slog.Int("hosting_domains", len(view.Domains())),
		slog.Int("planned", len(result.Plan)),
	)

	r.execute(ctx, result)
	result.Complete()
	r.recordMetrics(result)

	r.logger.Info("reconciliation complete",
		slog.String("tenant", tenantID),
		slog.Int("fixed", len(result.Fixed)),
		slog.Int("still_mismatched", len(result.StillMismatched)),
		slog.Int("verified", len(result.Synced)),
		slog.Int("failed", len(result.Errors)),
		slog.Duration("duration", result.Duration()),
	)
	return result, nil
}

// ReconcileDomain performs a pass restricted to a single domain. The
// result's Plan is empty when the domain has no drift.
func (r *Reconciler) ReconcileDomain(ctx context.Context, tenantID, rawDomain string) (*Result, error) {
	d, err := domain.NormalizeAndValidate(rawDomain)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("reconciling single domain",
		slog.String("tenant", tenantID),
		slog.String("domain", d),
	)

	result := NewResult(tenantID)
	records, view, err := r.loadState(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	for _, u := range Classify(records, view) {
		if u.Domain == d {
			result.Units = append(result.Units, u)
		}
	}
	result.Plan = Plan(result.Units)

	r.execute(ctx, result)
	result.Complete()
	return result, nil
}

func (r *Reconciler) loadState(ctx context.Context, tenantID string) ([]domain.Record, hosting.View, error) {
	records, err := r.store.List(ctx, tenantID)
	if err != nil {
		return nil, hosting.View{}, fmt.Errorf("loading domain records: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()

	began := time.Now()
	view, err := r.hosting.SiteView(callCtx, r.siteID)
	metrics.ObserveProviderCall(r.hosting.Name(), "site view", began, err)
	if err != nil {
		return nil, hosting.View{}, fmt.Errorf("fetching hosting site %s: %w", r.siteID, err)
	}
	return records, view, nil
}

func (r *Reconciler) execute(ctx context.Context, result *Result) {
	if len(result.Plan) == 0 {
		return
	}
	for _, o := range r.executor.ExecuteAll(ctx, result.TenantID, result.Plan) {
		result.AddOutcome(o)
	}
}

// recordMetrics records Prometheus metrics from a reconciliation result.
func (r *Reconciler) recordMetrics(result *Result) {
	metrics.ReconciliationsTotal.WithLabelValues(result.Status()).Inc()
	metrics.ReconciliationDuration.Observe(result.Duration().Seconds())

	counts := result.CountByMismatch()
	for _, m := range []MismatchType{MismatchNone, MismatchMissingInHosting, MismatchMissingInStore, MismatchHasError, MismatchUnknown} {
		metrics.DriftUnits.WithLabelValues(string(m)).Set(float64(counts[m]))
	}
}
