package services

import (
	"testing"

	"perks/internal/catalog"
	"perks/internal/core"
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c, err := catalog.Parse([]byte(`
credits:
  - id: dining
    title: Dining Credit
    value: "10.00"
    period: monthly
  - id: travel
    title: Travel Credit
    value: "300.00"
    period: quarterly
  - id: airline
    title: Airline Fee Credit
    value: "200.00"
    period: annually
  - id: hotel
    title: Hotel Credit
    value: "300.00"
    period: annually
    anniversary: true
`))
	if err != nil {
		t.Fatalf("test catalog: %v", err)
	}
	return c
}

func TestMonthlyEquivalent(t *testing.T) {
	cases := []struct {
		name        string
		cents       int64
		pt          core.PeriodType
		anniversary bool
		want        int64
	}{
		{"monthly as-is", 1000, core.Monthly, false, 1000},
		{"quarterly 300 -> 100", 30000, core.Quarterly, false, 10000},
		{"semiannual 600 -> 100", 60000, core.Semiannually, false, 10000},
		{"annual 1200 -> 100", 120000, core.Annually, false, 10000},
		{"anniversary 1200 -> 100", 120000, core.Quarterly, true, 10000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := MonthlyEquivalent(core.Money{Cents: tc.cents}, tc.pt, tc.anniversary)
			if got.Cents != tc.want {
				t.Fatalf("got %d, want %d", got.Cents, tc.want)
			}
		})
	}
}

// totalPossible counts only periods with a recorded entry, not the full
// year's period count. A monthly credit with two entries has $20 possible,
// not $120. Changing this to Value*periodCount is a behavior change, not a
// bug fix.
func TestCreditTotalsVisitedPeriodsOnly(t *testing.T) {
	def := core.CreditDefinition{CreditID: "dining", Value: core.Money{Cents: 1000}}
	uc := core.UserCredit{
		AssociatedPeriod: core.Monthly,
		History: core.History{
			{PeriodNumber: 1, Status: core.StatusUsed, ValueUsed: core.Money{Cents: 1000}},
			{PeriodNumber: 3, Status: core.StatusPartiallyUsed, ValueUsed: core.Money{Cents: 400}},
		},
	}

	used, possible := CreditTotals(uc, def)
	if used.Cents != 1400 {
		t.Fatalf("used: got %d, want 1400", used.Cents)
	}
	if possible.Cents != 2000 {
		t.Fatalf("possible: got %d, want 2000 (two visited periods)", possible.Cents)
	}
	if core.PercentUsed(used, possible) != 70 {
		t.Fatalf("percent: got %d, want 70", core.PercentUsed(used, possible))
	}
	if used.Cents > possible.Cents {
		t.Fatalf("used must never exceed possible")
	}
}

func TestCreditTotalsEmptyHistory(t *testing.T) {
	def := core.CreditDefinition{Value: core.Money{Cents: 1000}}
	used, possible := CreditTotals(core.UserCredit{}, def)
	if used.Cents != 0 || possible.Cents != 0 {
		t.Fatalf("empty history must sum to zero, got %d/%d", used.Cents, possible.Cents)
	}
}

func TestBuildCardSummaries(t *testing.T) {
	cat := testCatalog(t)
	cards := []core.Card{
		{CardID: "banana", Name: "Banana"},
		{CardID: "apple", Name: "Apple", Preferred: true},
	}
	credits := []core.UserCredit{
		{
			CardID: "apple", CreditID: "travel", AssociatedPeriod: core.Quarterly,
			History: core.History{{PeriodNumber: 1, Status: core.StatusUsed, ValueUsed: core.Money{Cents: 30000}}},
		},
		{
			CardID: "apple", CreditID: "dining", AssociatedPeriod: core.Monthly,
			History: core.History{
				{PeriodNumber: 1, Status: core.StatusUsed, ValueUsed: core.Money{Cents: 1000}},
				{PeriodNumber: 2, Status: core.StatusNotUsed},
			},
		},
		{CardID: "banana", CreditID: "ghost-credit", AssociatedPeriod: core.Monthly}, // not in catalog
	}

	got := BuildCardSummaries(cat, cards, credits, 2026, march15)
	if len(got) != 2 {
		t.Fatalf("expected 2 cards, got %d", len(got))
	}

	// Preferred card sorts first.
	if got[0].CardID != "apple" || got[1].CardID != "banana" {
		t.Fatalf("card order wrong: %s, %s", got[0].CardID, got[1].CardID)
	}

	apple := got[0]
	if apple.CreditCount != 2 {
		t.Fatalf("apple credit count: %d", apple.CreditCount)
	}
	// dining (monthly) ranks before travel (quarterly).
	if apple.Credits[0].CreditID != "dining" || apple.Credits[1].CreditID != "travel" {
		t.Fatalf("credit order wrong: %+v", apple.Credits)
	}
	// monthly $10 + quarterly $300/3 = $110 monthly equivalent.
	if apple.TotalMonthlyValue.Cents != 11000 {
		t.Fatalf("monthly value: got %d, want 11000", apple.TotalMonthlyValue.Cents)
	}
	// used 300 + 10; possible 300 (one entry) + 20 (two entries).
	if apple.TotalUsedValue.Cents != 31000 || apple.TotalPossibleValue.Cents != 32000 {
		t.Fatalf("totals: %d/%d", apple.TotalUsedValue.Cents, apple.TotalPossibleValue.Cents)
	}
	if apple.UsagePercent != 97 {
		t.Fatalf("percent: got %d, want 97", apple.UsagePercent)
	}

	// The unknown credit was skipped; banana has no credits but stays listed.
	banana := got[1]
	if banana.CreditCount != 0 || banana.TotalPossibleValue.Cents != 0 {
		t.Fatalf("catalog miss must skip the credit: %+v", banana)
	}
	if banana.UsagePercent != 0 {
		t.Fatalf("zero possible must be 0%%, got %d", banana.UsagePercent)
	}
}

func TestBuildPortfolioStats(t *testing.T) {
	cat := testCatalog(t)
	cards := []core.Card{{CardID: "apple", Name: "Apple", Preferred: true}}
	credits := []core.UserCredit{
		{ // monthly, current period (March) partially used
			CardID: "apple", CreditID: "dining", AssociatedPeriod: core.Monthly,
			History: core.History{{PeriodNumber: 3, Status: core.StatusPartiallyUsed, ValueUsed: core.Money{Cents: 400}}},
		},
		{ // quarterly, current period (Q1) used in full
			CardID: "apple", CreditID: "travel", AssociatedPeriod: core.Quarterly,
			History: core.History{{PeriodNumber: 1, Status: core.StatusUsed, ValueUsed: core.Money{Cents: 30000}}},
		},
		{ // annual, untouched: closing period is period 1 and it's unredeemed
			CardID: "apple", CreditID: "airline", AssociatedPeriod: core.Annually,
		},
	}

	summaries := BuildCardSummaries(cat, cards, credits, 2026, march15)
	stats := BuildPortfolioStats(summaries, march15)

	if stats.AllCredits.Used != 1 || stats.AllCredits.Partial != 1 || stats.AllCredits.Unused != 1 {
		t.Fatalf("all credits tally: %+v", stats.AllCredits)
	}
	if stats.AllCredits.UsedValue.Cents != 30400 {
		t.Fatalf("used value: %d", stats.AllCredits.UsedValue.Cents)
	}

	if stats.MonthlyCredits.Partial != 1 || stats.MonthlyCredits.Used != 0 {
		t.Fatalf("monthly tally: %+v", stats.MonthlyCredits)
	}

	// dining and travel have recorded current periods; airline does not.
	if got := stats.CurrentCredits.Used + stats.CurrentCredits.Partial + stats.CurrentCredits.Unused; got != 2 {
		t.Fatalf("current credits tally: %+v", stats.CurrentCredits)
	}

	// Only the annual credit is in its closing period with value left.
	if stats.ExpiringCredits.Unused != 1 || stats.ExpiringCredits.UnusedValue.Cents != 20000 {
		t.Fatalf("expiring tally: %+v", stats.ExpiringCredits)
	}
}
