package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"gitlab.bluewillows.net/root/domainsync/internal/reconciler"
	"gitlab.bluewillows.net/root/domainsync/internal/scheduler"
	"gitlab.bluewillows.net/root/domainsync/internal/validation"
	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
)

func (s *Server) registerRoutes(g *echo.Group) {
	g.POST("/reconcile", s.reconcile)
	g.POST("/validate", s.validate)
	g.POST("/fix", s.fix)
	g.POST("/remove", s.remove)
	g.GET("/cron", s.cron)
	g.POST("/cron", s.cron)
	g.GET("/domains", s.listDomains)
}

// reconcileBody is the per-tenant summary of a pass.
type reconcileBody struct {
	TenantID        string                   `json:"tenantId"`
	Fixed           []string                 `json:"fixed"`
	StillMismatched []string                 `json:"stillMismatched"`
	Synced          []string                 `json:"synced"`
	Errors          []reconciler.DomainError `json:"errors"`
	Error           string                   `json:"error,omitempty"`
}

func summarize(tenantID string, r *reconciler.Result) reconcileBody {
	body := reconcileBody{
		TenantID:        tenantID,
		Fixed:           []string{},
		StillMismatched: []string{},
		Synced:          []string{},
		Errors:          []reconciler.DomainError{},
	}
	if r != nil {
		body.Fixed = r.Fixed
		body.StillMismatched = r.StillMismatched
		body.Errors = r.Errors
		if r.Synced != nil {
			body.Synced = r.Synced
		}
	}
	return body
}

func bind(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return &domain.ValidationError{Field: "body", Message: "malformed request body"}
	}
	return nil
}

func requireTenant(tenantID string) error {
	if tenantID == "" {
		return &domain.ValidationError{Field: "tenantId", Message: "required"}
	}
	return nil
}

func (s *Server) reconcile(c echo.Context) error {
	var req struct {
		TenantID string `json:"tenantId"`
	}
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	if err := requireTenant(req.TenantID); err != nil {
		return writeError(c, err)
	}

	result, err := s.deps.Trigger.Trigger(c.Request().Context(), req.TenantID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, summarize(req.TenantID, result))
}

func (s *Server) validate(c echo.Context) error {
	var req struct {
		Domain         string `json:"domain"`
		IncludeDNS     *bool  `json:"includeDns"`
		IncludeRouting *bool  `json:"includeRouting"`
		IncludeSSL     *bool  `json:"includeSsl"`
	}
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}

	opts := validation.DefaultOptions()
	if req.IncludeDNS != nil {
		opts.IncludeDNS = *req.IncludeDNS
	}
	if req.IncludeRouting != nil {
		opts.IncludeRouting = *req.IncludeRouting
	}
	if req.IncludeSSL != nil {
		opts.IncludeSSL = *req.IncludeSSL
	}

	report, err := s.deps.Validator.Validate(c.Request().Context(), req.Domain, opts)
	if err != nil {
		return writeError(c, err)
	}
	// An error verdict is still a successful validation.
	return c.JSON(http.StatusOK, report)
}

func (s *Server) fix(c echo.Context) error {
	var req struct {
		TenantID string `json:"tenantId"`
		Domain   string `json:"domain"`
	}
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	if err := requireTenant(req.TenantID); err != nil {
		return writeError(c, err)
	}

	ctx := c.Request().Context()
	result, err := s.deps.Reconciler.ReconcileDomain(ctx, req.TenantID, req.Domain)
	if err != nil {
		return writeError(c, err)
	}

	if len(result.Outcomes) > 0 {
		out := result.Outcomes[0]
		if !out.Fixed() {
			msg := out.Error
			if msg == "" {
				msg = fmt.Sprintf("%s %s", out.Entry.Action, out.Status)
			}
			return writeUnprocessable(c, msg, out.Retryable)
		}
		if out.Record != nil {
			return c.JSON(http.StatusOK, out.Record)
		}
	}

	// No drift, or nothing left to persist: report the current record.
	rec, err := s.deps.Records.Get(ctx, req.TenantID, req.Domain)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (s *Server) remove(c echo.Context) error {
	var req struct {
		TenantID string `json:"tenantId"`
		Domain   string `json:"domain"`
		Confirm  bool   `json:"confirm"`
	}
	if err := bind(c, &req); err != nil {
		return writeError(c, err)
	}
	if err := requireTenant(req.TenantID); err != nil {
		return writeError(c, err)
	}

	rec, err := s.deps.Remover.Remove(c.Request().Context(), req.TenantID, req.Domain, req.Confirm)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, rec)
	case domain.ErrorKind(err) == domain.KindProvider:
		return writeUnprocessable(c, err.Error(), domain.IsRetryable(err))
	default:
		return writeError(c, err)
	}
}

func (s *Server) cron(c echo.Context) error {
	run, err := s.deps.Trigger.RunAll(c.Request().Context(), scheduler.TriggerCron)
	if err != nil {
		return writeError(c, err)
	}

	tenants := make([]reconcileBody, 0, len(run.Tenants))
	for _, t := range run.Tenants {
		body := summarize(t.TenantID, t.Result)
		body.Error = t.Error
		tenants = append(tenants, body)
	}

	if n := run.Failed(); n > 0 && n == len(run.Tenants) {
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   fmt.Sprintf("all %d tenants failed", n),
			"tenants": tenants,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"success": true,
		"tenants": tenants,
	})
}

func (s *Server) listDomains(c echo.Context) error {
	tenantID := c.QueryParam("tenantId")
	if err := requireTenant(tenantID); err != nil {
		return writeError(c, err)
	}

	records, err := s.deps.Records.List(c.Request().Context(), tenantID)
	if err != nil {
		return writeError(c, err)
	}
	if records == nil {
		records = []domain.Record{}
	}
	return c.JSON(http.StatusOK, records)
}
