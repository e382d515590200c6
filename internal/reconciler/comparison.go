// Package reconciler compares the domain record store with the hosting
// provider's site configuration, classifies drift and drives remediation.
package reconciler

import (
	"sort"

	"gitlab.bluewillows.net/root/domainsync/pkg/domain"
	"gitlab.bluewillows.net/root/domainsync/pkg/hosting"
)

// Classify builds one Unit per domain in the union of active store records
// and hosting domains. Removed records are not part of the desired set.
// The result is sorted by domain.
func Classify(records []domain.Record, view hosting.View) []Unit {
	units := make(map[string]*Unit)
	get := func(d string) *Unit {
		u, ok := units[d]
		if !ok {
			u = &Unit{Domain: d}
			units[d] = u
		}
		return u
	}

	for _, r := range records {
		if r.Status == domain.StatusRemoved {
			continue
		}
		u := get(domain.Normalize(r.Domain))
		u.InStore = true
		u.Verified = r.Status == domain.StatusDNSReady && r.HostingVerified
		if r.Status == domain.StatusError || r.HasError() {
			u.StoreError = r.ErrorText()
			if u.StoreError == "" {
				u.StoreError = string(domain.StatusError)
			}
		}
	}

	for _, d := range view.Domains() {
		u := get(d)
		u.InHosting = true
		switch view.DomainStatus(d) {
		case hosting.DomainPrimary:
			u.IsPrimary = true
		case hosting.DomainAlias:
			u.IsAlias = true
		}
	}

	out := make([]Unit, 0, len(units))
	for _, u := range units {
		u.MismatchType = classifyUnit(*u)
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out
}

// classifyUnit applies the total order: missing_in_hosting,
// missing_in_store, has_error, none.
func classifyUnit(u Unit) MismatchType {
	switch {
	case u.InStore && !u.InHosting:
		return MismatchMissingInHosting
	case !u.InStore && u.InHosting:
		return MismatchMissingInStore
	case u.InStore && u.InHosting && u.StoreError != "":
		return MismatchHasError
	case u.InStore && u.InHosting:
		return MismatchNone
	default:
		return MismatchUnknown
	}
}

// Plan maps every mismatched unit to its remediation action, preserving
// the domain order of units. An in-sync unit whose record has not been
// verified yet gets a store-only verify_record entry.
func Plan(units []Unit) []PlanEntry {
	plan := make([]PlanEntry, 0, len(units))
	for _, u := range units {
		if needsVerify(u) {
			plan = append(plan, PlanEntry{Domain: u.Domain, MismatchType: u.MismatchType, Action: ActionVerifyRecord})
			continue
		}
		action, ok := ActionFor(u.MismatchType)
		if !ok {
			continue
		}
		plan = append(plan, PlanEntry{Domain: u.Domain, MismatchType: u.MismatchType, Action: action})
	}
	return plan
}

func needsVerify(u Unit) bool {
	return u.MismatchType == MismatchNone && u.InStore && u.InHosting && !u.Verified
}

// Mismatched returns the units whose mismatch type is not none.
func Mismatched(units []Unit) []Unit {
	var out []Unit
	for _, u := range units {
		if u.MismatchType != MismatchNone {
			out = append(out, u)
		}
	}
	return out
}
