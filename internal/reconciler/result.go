package reconciler

import (
	"fmt"
	"strings"
	"time"
)

// DomainError is a per-domain failure reported by a pass.
type DomainError struct {
	Domain    string `json:"domain"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Result holds the complete result of a reconciliation pass for one tenant.
type Result struct {
	TenantID  string    `json:"tenantId"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`

	// Units is the classification of every domain in the union.
	Units []Unit `json:"units"`

	// Plan is the remediation plan derived from Units.
	Plan []PlanEntry `json:"plan"`

	// Outcomes holds one entry per executed plan entry, in plan order.
	Outcomes []Outcome `json:"outcomes"`

	// Fixed lists domains whose drift was resolved by this pass.
	Fixed []string `json:"fixed"`

	// StillMismatched lists domains whose drift remains after this pass.
	StillMismatched []string `json:"stillMismatched"`

	// Synced lists in-sync domains whose record was marked verified.
	Synced []string `json:"synced"`

	Errors []DomainError `json:"errors"`
}

// NewResult creates a new Result with the start time set to now.
func NewResult(tenantID string) *Result {
	return &Result{
		TenantID:        tenantID,
		StartTime:       time.Now(),
		Units:           []Unit{},
		Plan:            []PlanEntry{},
		Outcomes:        []Outcome{},
		Fixed:           []string{},
		StillMismatched: []string{},
		Synced:          []string{},
		Errors:          []DomainError{},
	}
}

// AddOutcome records an outcome and sorts its domain into Fixed or
// StillMismatched. Store-only verification is not drift and lands in
// Synced or Errors.
func (r *Result) AddOutcome(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	if o.Entry.Action == ActionVerifyRecord {
		switch {
		case o.Fixed():
			r.Synced = append(r.Synced, o.Entry.Domain)
		case o.Error != "":
			r.Errors = append(r.Errors, DomainError{Domain: o.Entry.Domain, Message: o.Error, Retryable: o.Retryable})
		}
		return
	}
	if o.Fixed() {
		r.Fixed = append(r.Fixed, o.Entry.Domain)
		return
	}
	r.StillMismatched = append(r.StillMismatched, o.Entry.Domain)
	if o.Error != "" {
		r.Errors = append(r.Errors, DomainError{Domain: o.Entry.Domain, Message: o.Error, Retryable: o.Retryable})
	}
}

// Complete marks the result as complete with the end time set to now.
func (r *Result) Complete() {
	r.EndTime = time.Now()
}

// Duration returns the total reconciliation duration.
func (r *Result) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return time.Since(r.StartTime)
	}
	return r.EndTime.Sub(r.StartTime)
}

// HasErrors returns true if any entry failed.
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// Status returns "success", "partial" when some entries failed while
// others were fixed, or "error" when entries failed and none were fixed.
func (r *Result) Status() string {
	switch {
	case !r.HasErrors():
		return "success"
	case len(r.Fixed) > 0:
		return "partial"
	default:
		return "error"
	}
}

// CountByMismatch returns the number of units per mismatch type.
func (r *Result) CountByMismatch() map[MismatchType]int {
	counts := make(map[MismatchType]int)
	for _, u := range r.Units {
		counts[u.MismatchType]++
	}
	return counts
}

// Summary returns a human-readable summary of the pass.
func (r *Result) Summary() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Reconciliation complete for tenant %s in %s\n", r.TenantID, r.Duration().Round(time.Millisecond))
	fmt.Fprintf(&sb, "  Domains examined: %d\n", len(r.Units))
	fmt.Fprintf(&sb, "  Planned actions: %d\n", len(r.Plan))
	fmt.Fprintf(&sb, "  Fixed: %d\n", len(r.Fixed))
	fmt.Fprintf(&sb, "  Still mismatched: %d\n", len(r.StillMismatched))
	if len(r.Synced) > 0 {
		fmt.Fprintf(&sb, "  Verified: %d\n", len(r.Synced))
	}

	if r.HasErrors() {
		fmt.Fprintf(&sb, "  Failed: %d\n", len(r.Errors))
		for _, e := range r.Errors {
			fmt.Fprintf(&sb, "    - %s: %s\n", e.Domain, e.Message)
		}
	}

	return sb.String()
}
