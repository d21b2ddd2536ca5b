package services

import (
	"strconv"
	"time"

	"perks/internal/core"
	"perks/internal/period"
)

// BuildPeriodInfo expands one user credit into its ordered period slots for
// the display year. The output is the single source of truth the UI renders
// period trackers from; it is rebuilt from scratch on every pass.
//
// Calendar credits produce exactly Intervals(period) slots in ascending
// period order. Anniversary credits produce exactly one slot labelled with
// the anniversary year, never classified future: the single slot stands for
// the whole tracked year to date.
func BuildPeriodInfo(uc core.UserCredit, def core.CreditDefinition, displayYear int, now time.Time) []core.PeriodInfo {
	if uc.AnniversaryBased {
		year := uc.AnniversaryYear
		if year == 0 {
			year = displayYear
		}
		return []core.PeriodInfo{{
			PeriodNumber:    1,
			Label:           strconv.Itoa(year),
			Status:          ResolveStatus(uc.History, 1),
			ValueUsed:       ResolveValueUsed(uc.History, 1),
			MaxValue:        def.Value,
			IsFuture:        false,
			AnniversaryYear: year,
		}}
	}

	scheme := period.SchemeFor(uc.AssociatedPeriod)
	out := make([]core.PeriodInfo, 0, scheme.Intervals())
	for n := 1; n <= scheme.Intervals(); n++ {
		out = append(out, core.PeriodInfo{
			PeriodNumber: n,
			Label:        scheme.Label(n, displayYear),
			Status:       ResolveStatus(uc.History, n),
			ValueUsed:    ResolveValueUsed(uc.History, n),
			MaxValue:     def.Value,
			IsFuture:     period.IsFuture(n, uc.AssociatedPeriod, displayYear, now),
		})
	}
	return out
}
