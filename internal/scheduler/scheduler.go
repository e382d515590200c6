// Package scheduler runs reconciliation passes on a fixed interval and on
// demand.
//
// Only one run executes at a time. The in-process guard rejects overlapping
// ticks and manual triggers; an optional file lock extends the guarantee to
// other processes sharing the same lock path (for example a CLI invocation
// next to the running service).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/time/rate"

	"gitlab.bluewillows.net/root/domainsync/internal/metrics"
	"gitlab.bluewillows.net/root/domainsync/internal/reconciler"
	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
)

var (
	// ErrAlreadyRunning is returned when a run starts while another is in progress.
	ErrAlreadyRunning = errors.New("reconciliation already running")

	// ErrRateLimited is returned when a manual trigger exceeds the tenant's budget.
	ErrRateLimited = errors.New("manual trigger rate limited")
)

// Trigger labels for runs.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerCron      = "cron"
)

// Reconciler runs a pass for one tenant.
type Reconciler interface {
	Reconcile(ctx context.Context, tenantID string) (*reconciler.Result, error)
}

// TenantLister discovers tenants when none are configured.
type TenantLister interface {
	Tenants(ctx context.Context) ([]string, error)
}

// Config holds scheduler configuration.
type Config struct {
	// Interval between scheduled runs. Default: 15 minutes
	Interval time.Duration

	// RunOnStart triggers a run as soon as Start is called.
	RunOnStart bool

	// Tenants to reconcile. Empty means every tenant known to the store.
	Tenants []string

	// LockPath is the cross-process lock file. Empty disables it.
	LockPath string

	// TriggerInterval is the per-tenant refill interval for manual
	// triggers. Default: 1 minute
	TriggerInterval time.Duration

	// TriggerBurst is the number of manual triggers allowed at once. Default: 1
	TriggerBurst int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:        15 * time.Minute,
		TriggerInterval: time.Minute,
		TriggerBurst:    1,
	}
}

// TenantRun is the result of one tenant within a run.
type TenantRun struct {
	TenantID string             `json:"tenantId"`
	Result   *reconciler.Result `json:"result,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// Run is the result of a run over all tenants.
type Run struct {
	Trigger   string      `json:"trigger"`
	StartTime time.Time   `json:"startTime"`
	EndTime   time.Time   `json:"endTime"`
	Tenants   []TenantRun `json:"tenants"`
}

// Failed returns the number of tenants whose pass returned an error.
func (r *Run) Failed() int {
	n := 0
	for _, t := range r.Tenants {
		if t.Error != "" {
			n++
		}
	}
	return n
}

// Scheduler triggers reconciliation passes.
type Scheduler struct {
	reconciler Reconciler
	tenants    TenantLister
	config     Config
	fileLock   *flock.Flock
	logger     *slog.Logger

	busy atomic.Bool

	limMu    sync.Mutex
	limiters map[string]*rate.Limiter

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool
}

// Option is a functional option for configuring the Scheduler.
type Option func(*Scheduler)

// WithConfig sets the scheduler configuration. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(s *Scheduler) {
		def := DefaultConfig()
		if cfg.Interval <= 0 {
			cfg.Interval = def.Interval
		}
		if cfg.TriggerInterval <= 0 {
			cfg.TriggerInterval = def.TriggerInterval
		}
		if cfg.TriggerBurst <= 0 {
			cfg.TriggerBurst = def.TriggerBurst
		}
		s.config = cfg
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Scheduler) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a scheduler. tenants may be nil when Config.Tenants is set.
func New(rec Reconciler, tenants TenantLister, opts ...Option) *Scheduler {
	s := &Scheduler{
		reconciler: rec,
		tenants:    tenants,
		config:     DefaultConfig(),
		logger:     slog.Default(),
		limiters:   make(map[string]*rate.Limiter),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.config.LockPath != "" {
		s.fileLock = flock.New(s.config.LockPath)
	}
	return s
}

// Start begins the ticker loop. It returns immediately; call Stop to halt it.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	go s.loop(ctx, s.done)

	s.logger.Info("scheduler started",
		slog.Duration("interval", s.config.Interval),
		slog.Bool("run_on_start", s.config.RunOnStart),
	)
}

// Stop halts the ticker loop and waits for an in-progress scheduled run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.cancel()
	done := s.done
	s.running = false
	s.mu.Unlock()

	<-done
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	if s.config.RunOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	run, err := s.RunAll(ctx, TriggerScheduled)
	switch {
	case errors.Is(err, ErrAlreadyRunning):
		s.logger.Info("skipping scheduled run, another run is in progress")
	case err != nil:
		s.logger.Error("scheduled run failed", slog.String("error", err.Error()))
	default:
		s.logger.Info("scheduled run complete",
			slog.Int("tenants", len(run.Tenants)),
			slog.Int("failed", run.Failed()),
			slog.Duration("duration", run.EndTime.Sub(run.StartTime)),
		)
	}
}

// RunAll reconciles every tenant. A failing tenant is recorded in the Run
// and does not stop the others. The returned error covers the run as a
// whole: ErrAlreadyRunning, a lock failure, or tenant discovery failing.
func (s *Scheduler) RunAll(ctx context.Context, trigger string) (*Run, error) {
	release, err := s.acquire()
	if err != nil {
		s.recordRun(trigger, err)
		return nil, err
	}
	defer release()

	tenants, err := s.resolveTenants(ctx)
	if err != nil {
		s.recordRun(trigger, err)
		return nil, err
	}

	run := &Run{Trigger: trigger, StartTime: time.Now(), Tenants: make([]TenantRun, 0, len(tenants))}
	for _, tenant := range tenants {
		if ctx.Err() != nil {
			run.Tenants = append(run.Tenants, TenantRun{TenantID: tenant, Error: ctx.Err().Error()})
			continue
		}
		tr := TenantRun{TenantID: tenant}
		result, err := s.reconciler.Reconcile(ctx, tenant)
		if err != nil {
			tr.Error = err.Error()
			s.logger.Warn("tenant reconciliation failed",
				slog.String("tenant", tenant),
				slog.String("error", err.Error()),
			)
		}
		tr.Result = result
		run.Tenants = append(run.Tenants, tr)
	}
	run.EndTime = time.Now()

	var runErr error
	if run.Failed() > 0 {
		runErr = fmt.Errorf("%d of %d tenants failed", run.Failed(), len(run.Tenants))
	}
	s.recordRun(trigger, runErr)
	return run, nil
}

// Trigger runs a manual pass for one tenant, subject to the tenant's rate limit.
func (s *Scheduler) Trigger(ctx context.Context, tenantID string) (*reconciler.Result, error) {
	if tenantID == "" {
		return nil, &domain.ValidationError{Field: "tenantId", Message: "required"}
	}
	if !s.limiter(tenantID).Allow() {
		s.recordRun(TriggerManual, ErrRateLimited)
		return nil, ErrRateLimited
	}

	release, err := s.acquire()
	if err != nil {
		s.recordRun(TriggerManual, err)
		return nil, err
	}
	defer release()

	result, err := s.reconciler.Reconcile(ctx, tenantID)
	s.recordRun(TriggerManual, err)
	return result, err
}

// Exclusive runs fn while holding the run lock, so an action started
// outside a pass never overlaps one, in this process or another. It
// returns ErrAlreadyRunning without calling fn when the lock is held.
func (s *Scheduler) Exclusive(ctx context.Context, fn func(context.Context) error) error {
	release, err := s.acquire()
	if err != nil {
		return err
	}
	defer release()
	return fn(ctx)
}

// acquire takes the in-process guard and then the file lock.
func (s *Scheduler) acquire() (func(), error) {
	if !s.busy.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	if s.fileLock == nil {
		return func() { s.busy.Store(false) }, nil
	}

	locked, err := s.fileLock.TryLock()
	if err != nil {
		s.busy.Store(false)
		return nil, fmt.Errorf("acquiring run lock %s: %w", s.config.LockPath, err)
	}
	if !locked {
		s.busy.Store(false)
		return nil, ErrAlreadyRunning
	}

	return func() {
		if err := s.fileLock.Unlock(); err != nil {
			s.logger.Warn("failed to release run lock",
				slog.String("path", s.config.LockPath),
				slog.String("error", err.Error()),
			)
		}
		s.busy.Store(false)
	}, nil
}

func (s *Scheduler) resolveTenants(ctx context.Context) ([]string, error) {
	if len(s.config.Tenants) > 0 {
		return s.config.Tenants, nil
	}
	if s.tenants == nil {
		return nil, nil
	}
	tenants, err := s.tenants.Tenants(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing tenants: %w", err)
	}
	return tenants, nil
}

func (s *Scheduler) limiter(tenantID string) *rate.Limiter {
	s.limMu.Lock()
	defer s.limMu.Unlock()

	l, ok := s.limiters[tenantID]
	if !ok {
		l = rate.NewLimiter(rate.Every(s.config.TriggerInterval), s.config.TriggerBurst)
		s.limiters[tenantID] = l
	}
	return l
}

func (s *Scheduler) recordRun(trigger string, err error) {
	result := "success"
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyRunning):
		result = "skipped"
	case errors.Is(err, ErrRateLimited):
		result = "rate_limited"
	default:
		result = "error"
	}
	metrics.SchedulerRunsTotal.WithLabelValues(trigger, result).Inc()
}
