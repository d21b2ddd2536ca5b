package services

import (
	"time"

	"perks/internal/catalog"
	"perks/internal/core"
	"perks/internal/period"
)

// MonthlyEquivalent converts a credit's face value to a per-month rate for
// cross-credit comparison. Anniversary credits spread over twelve months
// regardless of their nominal period.
func MonthlyEquivalent(value core.Money, pt core.PeriodType, anniversary bool) core.Money {
	if anniversary {
		return value.DivideBy(12)
	}
	switch pt {
	case core.Monthly:
		return value
	case core.Quarterly:
		return value.DivideBy(3)
	case core.Semiannually:
		return value.DivideBy(6)
	case core.Annually:
		return value.DivideBy(12)
	default:
		return value
	}
}

// CreditTotals sums usage for one credit.
//
// totalPossible is Value times the number of history entries present, NOT
// Value times the full period count. Only periods someone has actually
// touched (any recorded status) count toward the possible pool; untouched
// periods contribute nothing to either side. Do not "fix" this to the full
// period count: the usage percentage is meant to measure redemption of
// activated periods only.
func CreditTotals(uc core.UserCredit, def core.CreditDefinition) (used, possible core.Money) {
	for _, e := range uc.History {
		used = used.Add(e.ValueUsed)
		possible = possible.Add(def.Value)
	}
	return used, possible
}

// BuildCreditView expands one credit into periods plus per-credit roll-ups.
func BuildCreditView(uc core.UserCredit, def core.CreditDefinition, displayYear int, now time.Time) core.CreditView {
	used, possible := CreditTotals(uc, def)
	return core.CreditView{
		CardID:        uc.CardID,
		CreditID:      uc.CreditID,
		Title:         def.Title,
		Value:         def.Value,
		Period:        uc.AssociatedPeriod,
		Anniversary:   uc.AnniversaryBased,
		Periods:       BuildPeriodInfo(uc, def, displayYear, now),
		TotalUsed:     used,
		TotalPossible: possible,
		MonthlyValue:  MonthlyEquivalent(def.Value, uc.AssociatedPeriod, uc.AnniversaryBased),
	}
}

// BuildCardSummaries groups credits by card and rolls up totals. Credits
// whose id is missing from the catalog are skipped: the catalog may be
// partially loaded and a missing definition should not sink the page.
// Cards with no surviving credits are still listed with zero totals.
// Output ordering: preferred card first, then name; credits within a card
// by period rank, then title.
func BuildCardSummaries(cat *catalog.Catalog, cards []core.Card, credits []core.UserCredit, displayYear int, now time.Time) []core.CardSummary {
	byCard := make(map[string]*core.CardSummary, len(cards))
	out := make([]core.CardSummary, 0, len(cards))
	for _, c := range cards {
		out = append(out, core.CardSummary{CardID: c.CardID, Name: c.Name, Preferred: c.Preferred})
	}
	for i := range out {
		byCard[out[i].CardID] = &out[i]
	}

	for _, uc := range credits {
		def, ok := cat.Get(uc.CreditID)
		if !ok {
			continue
		}
		card, ok := byCard[uc.CardID]
		if !ok {
			// Credit for a card we were not told about; give it a summary
			// row anyway so the data is not silently dropped.
			out = append(out, core.CardSummary{CardID: uc.CardID, Name: uc.CardID})
			for i := range out {
				byCard[out[i].CardID] = &out[i]
			}
			card = byCard[uc.CardID]
		}

		view := BuildCreditView(uc, def, displayYear, now)
		card.Credits = append(card.Credits, view)
		card.CreditCount++
		card.TotalMonthlyValue = card.TotalMonthlyValue.Add(view.MonthlyValue)
		card.TotalUsedValue = card.TotalUsedValue.Add(view.TotalUsed)
		card.TotalPossibleValue = card.TotalPossibleValue.Add(view.TotalPossible)
	}

	for i := range out {
		out[i].UsagePercent = core.PercentUsed(out[i].TotalUsedValue, out[i].TotalPossibleValue)
		SortCredits(out[i].Credits)
	}
	SortCards(out)
	return out
}

// currentPeriodOf returns the credit's slot for "now". Anniversary credits
// always live in their single slot.
func currentPeriodOf(v core.CreditView, now time.Time) core.PeriodInfo {
	if v.Anniversary || len(v.Periods) == 1 {
		return v.Periods[0]
	}
	idx := period.CurrentIndex(v.Period, now)
	if idx > len(v.Periods) {
		idx = len(v.Periods)
	}
	return v.Periods[idx-1]
}

// isClosingPeriod reports whether the credit's current slot is its last
// slot of the year, i.e. any unredeemed value is about to lapse for good
// rather than roll into another slot of the same year.
func isClosingPeriod(v core.CreditView, now time.Time) bool {
	if v.Anniversary {
		return false
	}
	return period.CurrentIndex(v.Period, now) == period.Intervals(v.Period)
}

func (sc *statusTally) add(p core.PeriodInfo) {
	switch p.Status {
	case core.StatusUsed:
		sc.c.Used++
		sc.c.UsedValue = sc.c.UsedValue.Add(p.ValueUsed)
	case core.StatusPartiallyUsed:
		sc.c.Partial++
		sc.c.UsedValue = sc.c.UsedValue.Add(p.ValueUsed)
		sc.c.UnusedValue = sc.c.UnusedValue.Add(core.Money{Cents: p.MaxValue.Cents - p.ValueUsed.Cents})
	case core.StatusDisabled:
		// Disabled periods carry no redeemable value either way.
	default: // not_used, inactive
		sc.c.Unused++
		sc.c.UnusedValue = sc.c.UnusedValue.Add(p.MaxValue)
	}
}

type statusTally struct{ c core.StatusCounts }

// BuildPortfolioStats classifies every credit by its current-period state
// into the four portfolio buckets. Bucket membership:
//
//   - AllCredits: every credit.
//   - MonthlyCredits: credits that reset every month.
//   - CurrentCredits: credits with a recorded, non-disabled entry in the
//     current period.
//   - ExpiringCredits: credits in their closing period of the year whose
//     current slot still has unredeemed value.
//
// Only meaningful when the displayed year is the current year; for other
// years the "current period" notion degrades to the clamped index.
func BuildPortfolioStats(cards []core.CardSummary, now time.Time) core.PortfolioStats {
	var all, monthly, current, expiring statusTally

	for _, card := range cards {
		for _, v := range card.Credits {
			if len(v.Periods) == 0 {
				continue
			}
			p := currentPeriodOf(v, now)

			all.add(p)
			if !v.Anniversary && v.Period == core.Monthly {
				monthly.add(p)
			}
			if p.Status != core.StatusInactive && p.Status != core.StatusDisabled {
				current.add(p)
			}
			if isClosingPeriod(v, now) && p.ValueUsed.Cents < p.MaxValue.Cents &&
				p.Status != core.StatusDisabled && p.Status != core.StatusUsed {
				expiring.add(p)
			}
		}
	}

	return core.PortfolioStats{
		MonthlyCredits:  monthly.c,
		CurrentCredits:  current.c,
		AllCredits:      all.c,
		ExpiringCredits: expiring.c,
	}
}
