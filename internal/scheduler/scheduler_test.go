package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"gitlab.bluewillows.net/root/domainsync/internal/metrics"
	"gitlab.bluewillows.net/root/domainsync/internal/reconciler"
	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
)

// mockReconciler records calls and optionally blocks until released.
type mockReconciler struct {
	mu      sync.Mutex
	calls   []string
	errs    map[string]error
	started chan string
	release chan struct{}
}

func (m *mockReconciler) Reconcile(ctx context.Context, tenantID string) (*reconciler.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, tenantID)
	m.mu.Unlock()

	if m.started != nil {
		m.started <- tenantID
	}
	if m.release != nil {
		<-m.release
	}
	if err := m.errs[tenantID]; err != nil {
		return nil, err
	}
	r := reconciler.NewResult(tenantID)
	r.Complete()
	return r, nil
}

func (m *mockReconciler) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

type staticTenants struct {
	tenants []string
	err     error
}

func (s staticTenants) Tenants(context.Context) ([]string, error) {
	return s.tenants, s.err
}

func TestRunAll_ConfiguredTenants(t *testing.T) {
	rec := &mockReconciler{}
	s := New(rec, staticTenants{tenants: []string{"ignored"}}, WithConfig(Config{Tenants: []string{"t1", "t2"}}))

	run, err := s.RunAll(context.Background(), TriggerCron)
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if run.Trigger != TriggerCron || len(run.Tenants) != 2 {
		t.Fatalf("unexpected run: %+v", run)
	}
	if got := rec.Calls(); len(got) != 2 || got[0] != "t1" || got[1] != "t2" {
		t.Errorf("unexpected calls: %v", got)
	}
}

func TestRunAll_DiscoversTenants(t *testing.T) {
	rec := &mockReconciler{}
	s := New(rec, staticTenants{tenants: []string{"a", "b", "c"}})

	run, err := s.RunAll(context.Background(), TriggerScheduled)
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if len(run.Tenants) != 3 {
		t.Errorf("expected 3 tenants, got %d", len(run.Tenants))
	}
}

func TestRunAll_TenantDiscoveryFails(t *testing.T) {
	s := New(&mockReconciler{}, staticTenants{err: errors.New("db down")})

	if _, err := s.RunAll(context.Background(), TriggerScheduled); err == nil {
		t.Fatal("expected error when tenants cannot be listed")
	}

	// The guard must be released after a failed run.
	if _, err := s.RunAll(context.Background(), TriggerScheduled); errors.Is(err, ErrAlreadyRunning) {
		t.Error("guard not released after failure")
	}
}

func TestRunAll_FailingTenantDoesNotAbortOthers(t *testing.T) {
	rec := &mockReconciler{errs: map[string]error{"t2": errors.New("hosting unavailable")}}
	s := New(rec, nil, WithConfig(Config{Tenants: []string{"t1", "t2", "t3"}}))

	before := testutil.ToFloat64(metrics.SchedulerRunsTotal.WithLabelValues(TriggerManual, "error"))

	run, err := s.RunAll(context.Background(), TriggerManual)
	if err != nil {
		t.Fatalf("RunAll() error = %v", err)
	}
	if len(rec.Calls()) != 3 {
		t.Errorf("expected all tenants to run, got %v", rec.Calls())
	}
	if run.Failed() != 1 || run.Tenants[1].Error != "hosting unavailable" || run.Tenants[1].Result != nil {
		t.Errorf("unexpected tenant results: %+v", run.Tenants)
	}
	if run.Tenants[2].Result == nil {
		t.Error("expected result for tenant after the failing one")
	}

	after := testutil.ToFloat64(metrics.SchedulerRunsTotal.WithLabelValues(TriggerManual, "error"))
	if after-before != 1 {
		t.Errorf("expected error run metric to increase by 1, got %v", after-before)
	}
}

func TestRunAll_SingleFlight(t *testing.T) {
	rec := &mockReconciler{started: make(chan string, 1), release: make(chan struct{})}
	s := New(rec, nil, WithConfig(Config{Tenants: []string{"t1"}}))

	errc := make(chan error, 1)
	go func() {
		_, err := s.RunAll(context.Background(), TriggerScheduled)
		errc <- err
	}()
	<-rec.started

	if _, err := s.RunAll(context.Background(), TriggerCron); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected ErrAlreadyRunning, got %v", err)
	}
	if _, err := s.Trigger(context.Background(), "t1"); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("expected manual trigger to be rejected, got %v", err)
	}

	close(rec.release)
	if err := <-errc; err != nil {
		t.Fatalf("first run error = %v", err)
	}
	if len(rec.Calls()) != 1 {
		t.Errorf("expected exactly one pass, got %v", rec.Calls())
	}
}

func TestRunAll_FileLockHeldElsewhere(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "domainsync.lock")

	other := flock.New(lockPath)
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("failed to take lock: %v", err)
	}

	rec := &mockReconciler{}
	s := New(rec, nil, WithConfig(Config{Tenants: []string{"t1"}, LockPath: lockPath}))

	if _, err := s.RunAll(context.Background(), TriggerCron); !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if len(rec.Calls()) != 0 {
		t.Error("reconciler must not run without the lock")
	}

	if err := other.Unlock(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.RunAll(context.Background(), TriggerCron); err != nil {
		t.Fatalf("RunAll() after unlock error = %v", err)
	}
	if len(rec.Calls()) != 1 {
		t.Errorf("expected one pass after unlock, got %v", rec.Calls())
	}
}

func TestExclusive_FileLockHeldElsewhere(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "domainsync.lock")

	other := flock.New(lockPath)
	locked, err := other.TryLock()
	if err != nil || !locked {
		t.Fatalf("failed to take lock: %v", err)
	}

	s := New(&mockReconciler{}, nil, WithConfig(Config{LockPath: lockPath}))

	called := false
	err = s.Exclusive(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	if !errors.Is(err, ErrAlreadyRunning) {
		t.Fatalf("expected ErrAlreadyRunning, got %v", err)
	}
	if called {
		t.Error("action must not run without the lock")
	}

	if err := other.Unlock(); err != nil {
		t.Fatal(err)
	}
	if err := s.Exclusive(context.Background(), func(context.Context) error {
		called = true
		return nil
	}); err != nil || !called {
		t.Fatalf("Exclusive() after unlock error = %v, called = %v", err, called)
	}
}

func TestExclusive_BlocksPassesWhileRunning(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "domainsync.lock")
	rec := &mockReconciler{}
	s := New(rec, nil, WithConfig(Config{Tenants: []string{"t1"}, LockPath: lockPath}))

	wantErr := errors.New("remove failed")
	err := s.Exclusive(context.Background(), func(ctx context.Context) error {
		if _, err := s.RunAll(ctx, TriggerCron); !errors.Is(err, ErrAlreadyRunning) {
			t.Errorf("pass during exclusive action: expected ErrAlreadyRunning, got %v", err)
		}

		other := flock.New(lockPath)
		locked, err := other.TryLock()
		if err != nil {
			t.Fatal(err)
		}
		if locked {
			_ = other.Unlock()
			t.Error("file lock must be held during the action")
		}
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Errorf("expected action error, got %v", err)
	}
	if len(rec.Calls()) != 0 {
		t.Errorf("reconciler ran during exclusive action: %v", rec.Calls())
	}

	if _, err := s.RunAll(context.Background(), TriggerCron); err != nil {
		t.Errorf("lock not released: %v", err)
	}
}

func TestTrigger_RateLimitedPerTenant(t *testing.T) {
	rec := &mockReconciler{}
	s := New(rec, nil, WithConfig(Config{TriggerInterval: time.Hour, TriggerBurst: 2}))

	for i := 0; i < 2; i++ {
		if _, err := s.Trigger(context.Background(), "t1"); err != nil {
			t.Fatalf("trigger %d error = %v", i, err)
		}
	}
	if _, err := s.Trigger(context.Background(), "t1"); !errors.Is(err, ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}

	// Other tenants have their own budget.
	if _, err := s.Trigger(context.Background(), "t2"); err != nil {
		t.Errorf("t2 trigger error = %v", err)
	}
	if got := len(rec.Calls()); got != 3 {
		t.Errorf("expected 3 passes, got %d", got)
	}
}

func TestTrigger_RequiresTenant(t *testing.T) {
	s := New(&mockReconciler{}, nil)
	if _, err := s.Trigger(context.Background(), ""); !domain.IsValidation(err) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestTrigger_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	s := New(&mockReconciler{errs: map[string]error{"t1": boom}}, nil)
	if _, err := s.Trigger(context.Background(), "t1"); !errors.Is(err, boom) {
		t.Errorf("expected reconcile error, got %v", err)
	}
}

func TestStartStop_RunOnStart(t *testing.T) {
	rec := &mockReconciler{started: make(chan string, 4)}
	s := New(rec, nil, WithConfig(Config{
		Interval:   time.Hour,
		RunOnStart: true,
		Tenants:    []string{"t1"},
	}))

	s.Start(context.Background())
	s.Start(context.Background()) // no-op while running

	select {
	case tenant := <-rec.started:
		if tenant != "t1" {
			t.Errorf("unexpected tenant %q", tenant)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("initial run did not happen")
	}

	s.Stop()
	s.Stop()

	if got := len(rec.Calls()); got != 1 {
		t.Errorf("expected one initial pass, got %d", got)
	}
}

func TestStart_Ticks(t *testing.T) {
	rec := &mockReconciler{started: make(chan string, 16)}
	s := New(rec, nil, WithConfig(Config{Interval: 10 * time.Millisecond, Tenants: []string{"t1"}}))

	s.Start(context.Background())
	defer s.Stop()

	for i := 0; i < 2; i++ {
		select {
		case <-rec.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("tick %d did not happen", i)
		}
	}
}

func TestWithConfig_Defaults(t *testing.T) {
	s := New(&mockReconciler{}, nil, WithConfig(Config{Tenants: []string{"x"}}))
	def := DefaultConfig()
	if s.config.Interval != def.Interval || s.config.TriggerInterval != def.TriggerInterval || s.config.TriggerBurst != def.TriggerBurst {
		t.Errorf("zero fields should keep defaults, got %+v", s.config)
	}
	if s.fileLock != nil {
		t.Error("no lock path should mean no file lock")
	}
}
