package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"gitlab.bluewillows.net/root/domainsync/internal/scheduler"
	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Success   bool        `json:"success"`
	Kind      domain.Kind `json:"kind,omitempty"`
	Error     string      `json:"error"`
	Retryable *bool       `json:"retryable,omitempty"`
}

// statusFor maps an error to an HTTP status. Only caller mistakes become
// 4xx; provider failures keep the upstream status when it is an error
// status, anything else is a 500.
func statusFor(err error) int {
	var pe *domain.ProviderError
	switch {
	case domain.IsValidation(err), domain.IsConfirmationRequired(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, scheduler.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.As(err, &pe) && pe.StatusCode >= 400 && pe.StatusCode < 600:
		return pe.StatusCode
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c echo.Context, err error) error {
	kind := domain.ErrorKind(err)
	switch {
	case errors.Is(err, scheduler.ErrRateLimited):
		kind = "rate_limited"
	case errors.Is(err, scheduler.ErrAlreadyRunning):
		kind = "already_running"
	case domain.IsNotFound(err):
		kind = "not_found"
	}
	return c.JSON(statusFor(err), errorBody{Success: false, Kind: kind, Error: err.Error()})
}

// writeUnprocessable reports a remediation that ran and failed.
func writeUnprocessable(c echo.Context, msg string, retryable bool) error {
	return c.JSON(http.StatusUnprocessableEntity, errorBody{
		Success:   false,
		Error:     msg,
		Retryable: &retryable,
	})
}
