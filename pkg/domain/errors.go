package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors.
var (
	// ErrNotFound indicates a domain record does not exist.
	ErrNotFound = errors.New("domain not found")

	// ErrAlreadyExists indicates a record with the same tenant and domain exists.
	ErrAlreadyExists = errors.New("domain already exists")
)

// Kind is a machine-readable error category used at the command surface.
type Kind string

const (
	KindProvider             Kind = "provider_error"
	KindValidation           Kind = "validation_error"
	KindConfirmationRequired Kind = "confirmation_required"
	KindPersistence          Kind = "persistence_error"
	KindInternal             Kind = "internal_error"
)

// ProviderError is returned when a hosting or DNS provider call fails.
// StatusCode is zero for transport failures and timeouts.
type ProviderError struct {
	Provider   string
	Operation  string
	StatusCode int
	Body       string
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		if e.Body != "" {
			return fmt.Sprintf("provider %s: %s: status %d: %s", e.Provider, e.Operation, e.StatusCode, e.Body)
		}
		return fmt.Sprintf("provider %s: %s: status %d", e.Provider, e.Operation, e.StatusCode)
	}
	return fmt.Sprintf("provider %s: %s: %v", e.Provider, e.Operation, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// Retryable reports whether retrying the call may succeed. Authentication
// failures and client errors other than 408/429 are permanent.
func (e *ProviderError) Retryable() bool {
	switch {
	case e.StatusCode == 0:
		return true
	case e.StatusCode == http.StatusUnauthorized, e.StatusCode == http.StatusForbidden:
		return false
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 500:
		return true
	default:
		return false
	}
}

// IsAuthFailure reports whether the provider rejected the credentials.
func (e *ProviderError) IsAuthFailure() bool {
	return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
}

// WrapProviderError wraps err with provider context. A nil err returns nil.
func WrapProviderError(provider, operation string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return err
	}
	return &ProviderError{Provider: provider, Operation: operation, Err: err}
}

// ValidationError indicates malformed input.
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Field, e.Value, e.Message)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// ConfirmationRequiredError is returned when a destructive operation is
// attempted without explicit confirmation.
type ConfirmationRequiredError struct {
	Operation string
	Domain    string
}

func (e *ConfirmationRequiredError) Error() string {
	return fmt.Sprintf("%s %s requires explicit confirmation", e.Operation, e.Domain)
}

// PersistenceError wraps a store read or write failure.
type PersistenceError struct {
	Operation string
	Err       error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Operation, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// ErrorKind classifies err into the public error taxonomy.
func ErrorKind(err error) Kind {
	var (
		pe  *ProviderError
		ve  *ValidationError
		ce  *ConfirmationRequiredError
		per *PersistenceError
	)
	switch {
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &ce):
		return KindConfirmationRequired
	case errors.As(err, &pe):
		return KindProvider
	case errors.As(err, &per):
		return KindPersistence
	default:
		return KindInternal
	}
}

// IsRetryable reports whether an operation that failed with err may be
// retried without user intervention.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable()
	}
	var per *PersistenceError
	return errors.As(err, &per)
}

// IsValidation returns true if err is a *ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsConfirmationRequired returns true if err is a *ConfirmationRequiredError.
func IsConfirmationRequired(err error) bool {
	var ce *ConfirmationRequiredError
	return errors.As(err, &ce)
}

// IsNotFound returns true if err indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
