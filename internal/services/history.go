// Package services provides the credit computation pipeline and the
// orchestration services built on top of it.
//
// The pipeline pieces (history resolution, period building, aggregation,
// ordering) are pure functions over their inputs: they never touch the
// system clock, never return errors for sparse data, and are safe to
// recompute freely.
package services

import "perks/internal/core"

// ResolveStatus returns the recorded status for a period, or inactive when
// the period was never recorded. Absence is defined, not exceptional.
func ResolveStatus(h core.History, periodNumber int) core.UsageStatus {
	if e, ok := h.Entry(periodNumber); ok {
		return e.Status
	}
	return core.StatusInactive
}

// ResolveValueUsed returns the recorded redeemed value for a period, or
// zero when the period was never recorded.
func ResolveValueUsed(h core.History, periodNumber int) core.Money {
	if e, ok := h.Entry(periodNumber); ok {
		return e.ValueUsed
	}
	return core.Money{}
}
