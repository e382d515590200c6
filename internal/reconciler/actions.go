package reconciler

import "gitlab.bluewillows.net/root/domainsync/pkg/domain"

// MismatchType classifies how a domain's store and hosting presence differ.
type MismatchType string

const (
	MismatchNone             MismatchType = "none"
	MismatchMissingInHosting MismatchType = "missing_in_hosting"
	MismatchMissingInStore   MismatchType = "missing_in_store"
	MismatchHasError         MismatchType = "has_error"
	// MismatchUnknown is reserved for a unit present on neither side.
	MismatchUnknown MismatchType = "unknown"
)

// Action is a remediation step.
type Action string

const (
	// ActionRegisterAlias attaches the domain to the hosting site.
	ActionRegisterAlias Action = "register_alias"
	// ActionInsertRecord creates the missing store record.
	ActionInsertRecord Action = "insert_record"
	// ActionRetryRegistration re-attempts a registration that previously failed.
	ActionRetryRegistration Action = "retry_registration"
	// ActionVerifyRecord marks a record dns_ready once its domain is
	// observed on the site. It touches only the store.
	ActionVerifyRecord Action = "verify_record"
)

// ActionFor returns the remediation action for a mismatch type and whether
// one exists.
func ActionFor(m MismatchType) (Action, bool) {
	switch m {
	case MismatchMissingInHosting:
		return ActionRegisterAlias, true
	case MismatchMissingInStore:
		return ActionInsertRecord, true
	case MismatchHasError:
		return ActionRetryRegistration, true
	default:
		return "", false
	}
}

// Unit is the per-domain membership of one reconciliation pass. Verified
// is set when the store record is dns_ready with hosting verified.
type Unit struct {
	Domain       string       `json:"domain"`
	InStore      bool         `json:"inStore"`
	InHosting    bool         `json:"inHosting"`
	IsPrimary    bool         `json:"isPrimary"`
	IsAlias      bool         `json:"isAlias"`
	StoreError   string       `json:"storeError,omitempty"`
	Verified     bool         `json:"verified"`
	MismatchType MismatchType `json:"mismatchType"`
}

// PlanEntry is one planned remediation.
type PlanEntry struct {
	Domain       string       `json:"domain"`
	MismatchType MismatchType `json:"mismatchType"`
	Action       Action       `json:"action"`
}

// OutcomeStatus is the result of executing a plan entry.
type OutcomeStatus string

const (
	// OutcomeSuccess means the action was applied.
	OutcomeSuccess OutcomeStatus = "success"
	// OutcomeConverged means the drift had already resolved and only the
	// store was brought in line.
	OutcomeConverged OutcomeStatus = "converged"
	// OutcomeFailed means the action failed after retries.
	OutcomeFailed OutcomeStatus = "failed"
	// OutcomeSkipped means the entry was not started because the pass
	// was cancelled.
	OutcomeSkipped OutcomeStatus = "skipped"
)

// Outcome is the result of executing one plan entry.
type Outcome struct {
	Entry     PlanEntry      `json:"entry"`
	Status    OutcomeStatus  `json:"status"`
	Error     string         `json:"error,omitempty"`
	Retryable bool           `json:"retryable,omitempty"`
	Attempts  int            `json:"attempts"`
	Record    *domain.Record `json:"record,omitempty"`
}

// Fixed reports whether the drift for the entry is resolved.
func (o Outcome) Fixed() bool {
	return o.Status == OutcomeSuccess || o.Status == OutcomeConverged
}
