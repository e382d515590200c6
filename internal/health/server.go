// Package health serves liveness, readiness and Prometheus metrics.
//
// Readiness distinguishes required components (the record store and the
// hosting provider) from advisory ones (the DNS provider). A failing
// required component makes /ready return 503; a failing advisory component
// only marks the service degraded.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"gitlab.bluewillows.net/root/domainsync/internal/metrics"
)

// Readiness states.
const (
	StatusReady    = "ready"
	StatusDegraded = "degraded"
	StatusNotReady = "not_ready"
)

// Checker reports an error when a required component is unusable.
type Checker func(ctx context.Context) error

// DegradedChecker reports whether an advisory component is impaired.
type DegradedChecker func(ctx context.Context) (degraded bool, message string)

// ComponentStatus is the state of one required component.
type ComponentStatus struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// DegradedStatus is an impaired advisory component.
type DegradedStatus struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Response is the body of /health and /ready.
type Response struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Components []ComponentStatus `json:"components,omitempty"`
	Degraded   []DegradedStatus  `json:"degraded,omitempty"`
}

// Server provides /health, /ready and /metrics.
type Server struct {
	addr    string
	version string
	mux     *http.ServeMux
	server  *http.Server
	logger  *slog.Logger
	timeout time.Duration

	mu       sync.RWMutex
	checkers map[string]Checker
	degraded map[string]DegradedChecker
}

// Option is a functional option for configuring the Server.
type Option func(*Server)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTimeout bounds a whole readiness check.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		if timeout > 0 {
			s.timeout = timeout
		}
	}
}

// WithVersion adds the build version to responses.
func WithVersion(version string) Option {
	return func(s *Server) {
		s.version = version
	}
}

// New creates a health server listening on port.
func New(port int, opts ...Option) *Server {
	s := &Server{
		addr:     fmt.Sprintf(":%d", port),
		mux:      http.NewServeMux(),
		logger:   slog.Default(),
		timeout:  5 * time.Second,
		checkers: make(map[string]Checker),
		degraded: make(map[string]DegradedChecker),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.Handle("GET /metrics", promhttp.Handler())
	return s
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// RegisterChecker adds a required component to /ready.
func (s *Server) RegisterChecker(name string, checker Checker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkers[name] = checker
	s.logger.Debug("registered readiness checker", slog.String("name", name))
}

// RegisterDegradedChecker adds an advisory component to /ready.
func (s *Server) RegisterDegradedChecker(name string, checker DegradedChecker) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.degraded[name] = checker
	s.logger.Debug("registered degraded checker", slog.String("name", name))
}

// ProviderChecker wraps a provider ping and records the provider health gauge.
func ProviderChecker(provider string, ping func(context.Context) error) Checker {
	return func(ctx context.Context) error {
		err := ping(ctx)
		metrics.SetProviderHealth(provider, err == nil)
		return err
	}
}

// AdvisoryProviderChecker is ProviderChecker for components that must not
// fail readiness.
func AdvisoryProviderChecker(provider string, ping func(context.Context) error) DegradedChecker {
	check := ProviderChecker(provider, ping)
	return func(ctx context.Context) (bool, string) {
		if err := check(ctx); err != nil {
			return true, fmt.Sprintf("%s unavailable: %v", provider, err)
		}
		return false, ""
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Response{Status: "healthy", Version: s.version})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	checkers := make(map[string]Checker, len(s.checkers))
	for name, c := range s.checkers {
		checkers[name] = c
	}
	degraded := make(map[string]DegradedChecker, len(s.degraded))
	for name, c := range s.degraded {
		degraded[name] = c
	}
	s.mu.RUnlock()

	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	// Probes run concurrently so one slow provider does not eat the
	// budget of the others.
	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		components = make([]ComponentStatus, 0, len(checkers))
		impaired   []DegradedStatus
	)
	for name, check := range checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			st := ComponentStatus{Name: name, Healthy: true}
			if err := runChecker(ctx, check); err != nil {
				st.Healthy = false
				st.Error = err.Error()
				s.logger.Warn("readiness check failed",
					slog.String("component", name),
					slog.String("error", err.Error()),
				)
			}
			mu.Lock()
			components = append(components, st)
			mu.Unlock()
		}()
	}
	for name, check := range degraded {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if bad, msg := check(ctx); bad {
				s.logger.Debug("degraded component",
					slog.String("component", name),
					slog.String("message", msg),
				)
				mu.Lock()
				impaired = append(impaired, DegradedStatus{Name: name, Message: msg})
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Slice(components, func(i, j int) bool { return components[i].Name < components[j].Name })
	sort.Slice(impaired, func(i, j int) bool { return impaired[i].Name < impaired[j].Name })

	resp := Response{Status: StatusReady, Version: s.version, Components: components, Degraded: impaired}
	code := http.StatusOK
	for _, c := range components {
		if !c.Healthy {
			resp.Status = StatusNotReady
			code = http.StatusServiceUnavailable
			break
		}
	}
	if code == http.StatusOK && len(impaired) > 0 {
		resp.Status = StatusDegraded
	}
	writeJSON(w, code, resp)
}

// runChecker returns ctx.Err() when the checker outlives the readiness budget.
func runChecker(ctx context.Context, check Checker) error {
	errc := make(chan error, 1)
	go func() { errc <- check(ctx) }()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Start serves in a goroutine.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		s.logger.Info("health server starting", slog.String("addr", s.addr))
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("health server error", slog.String("error", err.Error()))
		}
	}()
	return nil
}

// Shutdown gracefully shuts down the health server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
