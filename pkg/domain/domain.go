// Package domain defines the shared domain model for domainsync: tenant
// domain records, their lifecycle status, and hostname normalization.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a DomainRecord.
type Status string

const (
	// StatusPending indicates the domain was requested but not yet confirmed
	// on the hosting provider.
	StatusPending Status = "pending"
	// StatusDNSReady indicates the domain is registered with hosting.
	StatusDNSReady Status = "dns_ready"
	// StatusError indicates the last remediation failed. ErrorMessage is set.
	StatusError Status = "error"
	// StatusRemoved indicates the domain was explicitly removed.
	StatusRemoved Status = "removed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDNSReady, StatusError, StatusRemoved:
		return true
	default:
		return false
	}
}

// ParseStatus converts a string into a Status.
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", fmt.Errorf("invalid domain status %q", s)
	}
	return st, nil
}

// CanTransition reports whether the status machine allows from -> to.
// pending -> dns_ready, error -> dns_ready, anything -> error (failure
// bookkeeping) and anything -> removed are allowed. A status may always be
// rewritten to itself.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	switch to {
	case StatusRemoved, StatusError:
		return true
	case StatusDNSReady:
		return from == StatusPending || from == StatusError
	case StatusPending:
		return from == StatusRemoved
	default:
		return false
	}
}

// Record is the desired state of one tenant custom domain.
type Record struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenantId"`
	Domain          string    `json:"domain"`
	Status          Status    `json:"status"`
	HostingVerified bool      `json:"hostingVerified"`
	ErrorMessage    *string   `json:"errorMessage"`
	HostingSiteID   string    `json:"hostingSiteId,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// HasError reports whether the record carries a non-empty error message.
func (r Record) HasError() bool {
	return r.ErrorMessage != nil && *r.ErrorMessage != ""
}

// ErrorText returns the error message or an empty string.
func (r Record) ErrorText() string {
	if r.ErrorMessage == nil {
		return ""
	}
	return *r.ErrorMessage
}

// Normalize converts a user-supplied hostname into its canonical form:
// trimmed, lowercase, without scheme, without a leading "www." and without
// trailing slashes. Normalize is idempotent.
func Normalize(raw string) string {
	s := strings.ToLower(strings.TrimSpace(raw))
	for {
		prev := s
		s = strings.TrimPrefix(s, "https://")
		s = strings.TrimPrefix(s, "http://")
		s = strings.TrimPrefix(s, "www.")
		s = strings.TrimRight(s, "/")
		s = strings.TrimSpace(s)
		if s == prev {
			return s
		}
	}
}

// NormalizeAndValidate normalizes raw and rejects malformed hostnames with a
// *ValidationError.
func NormalizeAndValidate(raw string) (string, error) {
	d := Normalize(raw)
	if d == "" {
		return "", &ValidationError{Field: "domain", Value: raw, Message: "domain is empty after normalization"}
	}
	if len(d) > 253 {
		return "", &ValidationError{Field: "domain", Value: raw, Message: "domain exceeds 253 characters"}
	}
	for _, label := range strings.Split(d, ".") {
		if msg := checkLabel(label); msg != "" {
			return "", &ValidationError{Field: "domain", Value: raw, Message: msg}
		}
	}
	return d, nil
}

func checkLabel(label string) string {
	if label == "" {
		return "domain contains an empty label"
	}
	if len(label) > 63 {
		return fmt.Sprintf("label %q exceeds 63 characters", label)
	}
	if label[0] == '-' || label[len(label)-1] == '-' {
		return fmt.Sprintf("label %q must not start or end with a hyphen", label)
	}
	for _, c := range label {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' {
			return fmt.Sprintf("label %q contains invalid character %q", label, c)
		}
	}
	return ""
}

// IsApex reports whether the domain has exactly two labels (example.com).
func IsApex(d string) bool {
	return strings.Count(d, ".") == 1
}
