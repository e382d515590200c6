// Package remediation applies reconciliation plans to the hosting provider
// and the domain record store. It is the only writer of status transitions.
package remediation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"gitlab.bluewillows.net/root/domainsync/internal/metrics"
	"gitlab.bluewillows.net/root/domainsync/internal/reconciler"
	"gitlab.bluewillows.net/root/domainsync/internal/store"
	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
	"gitlab.bluewillows.net/root/domainsync/pkg/hosting"
)

const (
	// DefaultWorkers is the worker pool size for ExecuteAll.
	DefaultWorkers = 4

	// DefaultCallTimeout bounds a single provider call.
	DefaultCallTimeout = 30 * time.Second
)

// Store is the subset of the record store the executor writes through.
type Store interface {
	Get(ctx context.Context, tenantID, d string) (domain.Record, error)
	Create(ctx context.Context, rec domain.Record) (domain.Record, error)
	SetStatus(ctx context.Context, tenantID, d string, upd store.StatusUpdate) (domain.Record, error)
}

// Executor applies plan entries with per-domain serialization, bounded
// retries and per-call timeouts.
type Executor struct {
	store       Store
	hosting     hosting.Provider
	siteID      string
	retry       RetryPolicy
	callTimeout time.Duration
	workers     int
	locks       *keyedMutex
	logger      *slog.Logger
}

var _ reconciler.Executor = (*Executor)(nil)

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRetryPolicy sets the retry policy for provider calls.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Executor) {
		e.retry = p
	}
}

// WithCallTimeout bounds each provider call.
func WithCallTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.callTimeout = d
		}
	}
}

// WithWorkers sets the ExecuteAll worker pool size.
func WithWorkers(n int) Option {
	return func(e *Executor) {
		if n > 0 {
			e.workers = n
		}
	}
}

// New creates an Executor for one hosting site.
func New(s Store, provider hosting.Provider, siteID string, opts ...Option) *Executor {
	e := &Executor{
		store:       s,
		hosting:     provider,
		siteID:      siteID,
		retry:       DefaultRetryPolicy(),
		callTimeout: DefaultCallTimeout,
		workers:     DefaultWorkers,
		locks:       newKeyedMutex(),
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ExecuteAll runs plan entries on a bounded worker pool and returns one
// outcome per entry in plan order. Once ctx is cancelled no further entry
// is started; those entries are reported as skipped.
func (e *Executor) ExecuteAll(ctx context.Context, tenantID string, plan []reconciler.PlanEntry) []reconciler.Outcome {
	outcomes := make([]reconciler.Outcome, len(plan))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, entry := range plan {
		if ctx.Err() != nil {
			outcomes[i] = skipped(entry, ctx.Err())
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				outcomes[i] = skipped(entry, err)
				return nil
			}
			outcomes[i] = e.Execute(ctx, tenantID, entry)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

// Execute applies a single plan entry. It never returns an error: failures
// are recorded on the store record and in the outcome.
func (e *Executor) Execute(ctx context.Context, tenantID string, entry reconciler.PlanEntry) reconciler.Outcome {
	unlock := e.locks.Lock(lockKey(tenantID, entry.Domain))
	defer unlock()

	out := reconciler.Outcome{Entry: entry}
	var (
		rec       *domain.Record
		converged bool
		err       error
	)
	switch entry.Action {
	case reconciler.ActionRegisterAlias:
		rec, converged, err = e.registerAlias(ctx, tenantID, entry, &out)
	case reconciler.ActionInsertRecord:
		rec, converged, err = e.insertRecord(ctx, tenantID, entry, &out)
	case reconciler.ActionRetryRegistration:
		rec, converged, err = e.registerAlias(ctx, tenantID, entry, &out)
	case reconciler.ActionVerifyRecord:
		rec, converged, err = e.verifyRecord(ctx, tenantID, entry)
	default:
		err = fmt.Errorf("unknown remediation action %q", entry.Action)
	}

	out.Record = rec
	switch {
	case err != nil:
		out.Status = reconciler.OutcomeFailed
		out.Error = err.Error()
		out.Retryable = domain.IsRetryable(err)
		if failed := e.recordFailure(context.WithoutCancel(ctx), tenantID, entry.Domain, err); failed != nil {
			out.Record = failed
		}
		e.logger.Warn("remediation failed",
			slog.String("tenant", tenantID),
			slog.String("domain", entry.Domain),
			slog.String("action", string(entry.Action)),
			slog.Int("attempts", out.Attempts),
			slog.Bool("retryable", out.Retryable),
			slog.String("error", err.Error()),
		)
	case converged:
		out.Status = reconciler.OutcomeConverged
		e.logger.Info("drift already resolved, store converged",
			slog.String("tenant", tenantID),
			slog.String("domain", entry.Domain),
			slog.String("action", string(entry.Action)),
		)
	default:
		out.Status = reconciler.OutcomeSuccess
		e.logger.Info("remediation applied",
			slog.String("tenant", tenantID),
			slog.String("domain", entry.Domain),
			slog.String("action", string(entry.Action)),
			slog.Int("attempts", out.Attempts),
		)
	}

	metrics.RemediationsTotal.WithLabelValues(string(entry.Action), string(out.Status)).Inc()
	return out
}

// registerAlias ensures the domain is attached to the site and marks the
// record dns_ready. It serves both register_alias and retry_registration.
func (e *Executor) registerAlias(ctx context.Context, tenantID string, entry reconciler.PlanEntry, out *reconciler.Outcome) (*domain.Record, bool, error) {
	sctx := context.WithoutCancel(ctx)
	current, err := e.store.Get(sctx, tenantID, entry.Domain)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, true, nil
		}
		return nil, false, err
	}
	if current.Status == domain.StatusRemoved {
		return &current, true, nil
	}

	view, err := e.siteView(ctx, string(entry.Action), out)
	if err != nil {
		return nil, false, err
	}

	converged := view.Has(entry.Domain)
	if !converged {
		err := e.call(ctx, string(entry.Action), "add alias", out, func(callCtx context.Context) error {
			return e.hosting.AddAlias(callCtx, e.siteID, entry.Domain)
		})
		if err != nil {
			return nil, false, err
		}
	}

	rec, err := e.store.SetStatus(sctx, tenantID, entry.Domain, store.StatusUpdate{
		Status:          domain.StatusDNSReady,
		HostingVerified: true,
		HostingSiteID:   e.siteID,
	})
	if err != nil {
		return nil, false, err
	}
	return &rec, converged && entry.Action == reconciler.ActionRegisterAlias, nil
}

// verifyRecord marks an active record whose domain the pass observed on the
// site as dns_ready. No provider call is made.
func (e *Executor) verifyRecord(ctx context.Context, tenantID string, entry reconciler.PlanEntry) (*domain.Record, bool, error) {
	sctx := context.WithoutCancel(ctx)
	current, err := e.store.Get(sctx, tenantID, entry.Domain)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, true, nil
		}
		return nil, false, err
	}
	if current.Status == domain.StatusRemoved ||
		(current.Status == domain.StatusDNSReady && current.HostingVerified && current.HostingSiteID == e.siteID) {
		return &current, true, nil
	}

	rec, err := e.store.SetStatus(sctx, tenantID, entry.Domain, store.StatusUpdate{
		Status:          domain.StatusDNSReady,
		HostingVerified: true,
		HostingSiteID:   e.siteID,
	})
	if err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

// insertRecord creates the store record for a domain found only in hosting.
func (e *Executor) insertRecord(ctx context.Context, tenantID string, entry reconciler.PlanEntry, out *reconciler.Outcome) (*domain.Record, bool, error) {
	sctx := context.WithoutCancel(ctx)
	current, err := e.store.Get(sctx, tenantID, entry.Domain)
	switch {
	case err == nil && current.Status != domain.StatusRemoved:
		rec, err := e.store.SetStatus(sctx, tenantID, entry.Domain, store.StatusUpdate{
			Status:          domain.StatusDNSReady,
			HostingVerified: true,
			HostingSiteID:   e.siteID,
		})
		if err != nil {
			return nil, false, err
		}
		return &rec, true, nil
	case err != nil && !domain.IsNotFound(err):
		return nil, false, err
	}

	view, err := e.siteView(ctx, string(entry.Action), out)
	if err != nil {
		return nil, false, err
	}
	if !view.Has(entry.Domain) {
		return nil, true, nil
	}

	rec, err := e.store.Create(sctx, domain.Record{
		TenantID:        tenantID,
		Domain:          entry.Domain,
		Status:          domain.StatusDNSReady,
		HostingVerified: true,
		HostingSiteID:   e.siteID,
	})
	if err != nil {
		return nil, false, err
	}
	return &rec, false, nil
}

// Remove detaches the domain from the site if attached and marks its
// record removed. confirm must be true.
func (e *Executor) Remove(ctx context.Context, tenantID, rawDomain string, confirm bool) (domain.Record, error) {
	d, err := domain.NormalizeAndValidate(rawDomain)
	if err != nil {
		return domain.Record{}, err
	}
	if !confirm {
		return domain.Record{}, &domain.ConfirmationRequiredError{Operation: "remove", Domain: d}
	}

	unlock := e.locks.Lock(lockKey(tenantID, d))
	defer unlock()

	out := &reconciler.Outcome{}

	view, err := e.siteView(ctx, "remove", out)
	if err != nil {
		return domain.Record{}, err
	}
	detached := false
	if view.Has(d) {
		err := e.call(ctx, "remove", "remove alias", out, func(callCtx context.Context) error {
			return e.hosting.RemoveAlias(callCtx, e.siteID, d)
		})
		if err != nil {
			metrics.RemediationsTotal.WithLabelValues("remove", string(reconciler.OutcomeFailed)).Inc()
			return domain.Record{}, err
		}
		detached = true
	}

	rec, err := e.store.SetStatus(context.WithoutCancel(ctx), tenantID, d, store.StatusUpdate{Status: domain.StatusRemoved})
	switch {
	case domain.IsNotFound(err) && detached:
		rec = domain.Record{TenantID: tenantID, Domain: d, Status: domain.StatusRemoved}
	case err != nil:
		return domain.Record{}, err
	}

	metrics.RemediationsTotal.WithLabelValues("remove", string(reconciler.OutcomeSuccess)).Inc()
	e.logger.Info("domain removed",
		slog.String("tenant", tenantID),
		slog.String("domain", d),
		slog.Bool("detached_from_hosting", detached),
	)
	return rec, nil
}

func (e *Executor) siteView(ctx context.Context, action string, out *reconciler.Outcome) (hosting.View, error) {
	var view hosting.View
	err := e.call(ctx, action, "site view", out, func(callCtx context.Context) error {
		v, err := e.hosting.SiteView(callCtx, e.siteID)
		if err != nil {
			return err
		}
		view = v
		return nil
	})
	return view, err
}

// call runs one provider operation under the retry policy. An attempt that
// has started is not interrupted by ctx cancellation but is bounded by the
// call timeout; cancellation only stops further attempts.
func (e *Executor) call(ctx context.Context, action, operation string, out *reconciler.Outcome, fn func(context.Context) error) error {
	detached := context.WithoutCancel(ctx)
	attempts, err := retry(ctx, e.retry, func() error {
		callCtx, cancel := context.WithTimeout(detached, e.callTimeout)
		defer cancel()

		began := time.Now()
		err := domain.WrapProviderError(e.hosting.Name(), operation, fn(callCtx))
		metrics.ObserveProviderCall(e.hosting.Name(), operation, began, err)
		return err
	}, func(attempt int, delay time.Duration, err error) {
		metrics.RemediationRetriesTotal.WithLabelValues(action).Inc()
		e.logger.Debug("retrying provider call",
			slog.String("operation", operation),
			slog.Int("attempt", attempt),
			slog.Duration("delay", delay),
			slog.String("error", err.Error()),
		)
	})
	out.Attempts += attempts
	return err
}

// recordFailure stores the failure on the record. A missing record is not
// an error: there is nothing to annotate.
func (e *Executor) recordFailure(ctx context.Context, tenantID, d string, cause error) *domain.Record {
	rec, err := e.store.SetStatus(ctx, tenantID, d, store.StatusUpdate{
		Status:       domain.StatusError,
		ErrorMessage: cause.Error(),
	})
	if err != nil {
		if !domain.IsNotFound(err) {
			e.logger.Error("failed to record remediation failure",
				slog.String("tenant", tenantID),
				slog.String("domain", d),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
	return &rec
}

func skipped(entry reconciler.PlanEntry, cause error) reconciler.Outcome {
	metrics.RemediationsTotal.WithLabelValues(string(entry.Action), string(reconciler.OutcomeSkipped)).Inc()
	return reconciler.Outcome{
		Entry:     entry,
		Status:    reconciler.OutcomeSkipped,
		Error:     "not started: " + cause.Error(),
		Retryable: true,
	}
}

func lockKey(tenantID, d string) string {
	return tenantID + "|" + d
}
