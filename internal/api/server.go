// Package api exposes the domain commands over HTTP.
//
// Routes live under /api/v1. When a bcrypt token hash is configured every
// route requires "Authorization: Bearer <token>".
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"

	"gitlab.bluewillows.net/root/domainsync/internal/reconciler"
	"gitlab.bluewillows.net/root/domainsync/internal/scheduler"
	"gitlab.bluewillows.net/root/domainsync/internal/validation"
	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
)

// Trigger starts reconciliation runs.
type Trigger interface {
	Trigger(ctx context.Context, tenantID string) (*reconciler.Result, error)
	RunAll(ctx context.Context, trigger string) (*scheduler.Run, error)
}

// DomainReconciler fixes a single domain.
type DomainReconciler interface {
	ReconcileDomain(ctx context.Context, tenantID, rawDomain string) (*reconciler.Result, error)
}

// Validator produces validation reports.
type Validator interface {
	Validate(ctx context.Context, rawDomain string, opts validation.Options) (*validation.Report, error)
}

// Remover detaches and removes domains.
type Remover interface {
	Remove(ctx context.Context, tenantID, rawDomain string, confirm bool) (domain.Record, error)
}

// RecordReader reads the record store.
type RecordReader interface {
	List(ctx context.Context, tenantID string) ([]domain.Record, error)
	Get(ctx context.Context, tenantID, d string) (domain.Record, error)
}

// Deps are the services behind the routes.
type Deps struct {
	Trigger    Trigger
	Reconciler DomainReconciler
	Validator  Validator
	Remover    Remover
	Records    RecordReader
}

// Server is the command HTTP server.
type Server struct {
	echo      *echo.Echo
	deps      Deps
	tokenHash []byte
	logger    *slog.Logger
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

// WithTokenHash enables bearer authentication against a bcrypt hash.
func WithTokenHash(hash string) Option {
	return func(s *Server) {
		if hash != "" {
			s.tokenHash = []byte(hash)
		}
	}
}

// New creates the server and registers its routes.
func New(deps Deps, opts ...Option) *Server {
	s := &Server{
		echo:   echo.New(),
		deps:   deps,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.Use(s.requestLogger())

	g := s.echo.Group("/api/v1")
	if s.tokenHash != nil {
		g.Use(s.bearerAuth())
	}
	s.registerRoutes(g)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr in a goroutine.
func (s *Server) Start(addr string) {
	go func() {
		s.logger.Info("api server starting", slog.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", slog.String("error", err.Error()))
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency.Round(time.Microsecond)),
			}
			level := slog.LevelDebug
			if v.Error != nil {
				attrs = append(attrs, slog.String("error", v.Error.Error()))
			}
			if v.Status >= http.StatusInternalServerError {
				level = slog.LevelWarn
			}
			s.logger.LogAttrs(context.Background(), level, "api request", attrs...)
			return nil
		},
	})
}

func (s *Server) bearerAuth() echo.MiddlewareFunc {
	return middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, _ echo.Context) (bool, error) {
			return bcrypt.CompareHashAndPassword(s.tokenHash, []byte(key)) == nil, nil
		},
		ErrorHandler: func(_ error, c echo.Context) error {
			return c.JSON(http.StatusUnauthorized, errorBody{Success: false, Error: "unauthorized"})
		},
	})
}
