package services

import (
	"time"

	"perks/internal/catalog"
	"perks/internal/core"
	"perks/internal/period"
)

// ExpiringCredit is one credit whose current period closes soon with
// unredeemed value left on the table.
type ExpiringCredit struct {
	CardID       string
	CreditID     string
	Title        string
	PeriodNumber int
	PeriodLabel  string
	Remaining    core.Money
	ClosesAt     time.Time
}

// ScanExpiring finds calendar credits whose current period ends within the
// given window and still has redeemable value. Anniversary credits are
// skipped: their boundary is the cardholder's anniversary date, which the
// calendar cannot see.
//
// Credits missing from the catalog are skipped, matching the aggregation
// pipeline's lookup-miss policy.
func ScanExpiring(cat *catalog.Catalog, credits []core.UserCredit, year int, now time.Time, window time.Duration) []ExpiringCredit {
	if year != now.Year() {
		return nil
	}

	var out []ExpiringCredit
	for _, uc := range credits {
		if uc.AnniversaryBased {
			continue
		}
		def, ok := cat.Get(uc.CreditID)
		if !ok {
			continue
		}

		n := period.CurrentIndex(uc.AssociatedPeriod, now)
		closesAt := period.End(uc.AssociatedPeriod, n, year)
		if closesAt.Sub(now) > window {
			continue
		}

		status := ResolveStatus(uc.History, n)
		if status == core.StatusUsed || status == core.StatusDisabled {
			continue
		}
		remaining := core.Money{Cents: def.Value.Cents - ResolveValueUsed(uc.History, n).Cents}
		if remaining.Cents <= 0 {
			continue
		}

		out = append(out, ExpiringCredit{
			CardID:       uc.CardID,
			CreditID:     uc.CreditID,
			Title:        def.Title,
			PeriodNumber: n,
			PeriodLabel:  period.SchemeFor(uc.AssociatedPeriod).Label(n, year),
			Remaining:    remaining,
			ClosesAt:     closesAt,
		})
	}
	return out
}
