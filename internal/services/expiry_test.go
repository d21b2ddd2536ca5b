package services

import (
	"testing"
	"time"

	"perks/internal/core"
)

func TestScanExpiring(t *testing.T) {
	cat := testCatalog(t)
	// March 29: the monthly March slot closes April 1, within a 7d window.
	now := time.Date(2026, time.March, 29, 12, 0, 0, 0, time.UTC)
	window := 7 * 24 * time.Hour

	credits := []core.UserCredit{
		{CardID: "apple", CreditID: "dining", AssociatedPeriod: core.Monthly}, // untouched March
		{ // March already fully used on the other card
			CardID: "pear", CreditID: "dining", AssociatedPeriod: core.Monthly,
			History: core.History{{PeriodNumber: 3, Status: core.StatusUsed, ValueUsed: core.Money{Cents: 1000}}},
		},
		{ // quarterly Q1 also closes April 1, partially used
			CardID: "apple", CreditID: "travel", AssociatedPeriod: core.Quarterly,
			History: core.History{{PeriodNumber: 1, Status: core.StatusPartiallyUsed, ValueUsed: core.Money{Cents: 10000}}},
		},
		{CardID: "apple", CreditID: "airline", AssociatedPeriod: core.Annually},        // closes Dec 31, outside window
		{CardID: "apple", CreditID: "hotel", AnniversaryBased: true},                   // anniversary: skipped
		{CardID: "apple", CreditID: "unknown-credit", AssociatedPeriod: core.Monthly},  // catalog miss: skipped
	}

	got := ScanExpiring(cat, credits, 2026, now, window)
	if len(got) != 2 {
		t.Fatalf("expected 2 expiring credits, got %d: %+v", len(got), got)
	}

	if got[0].CreditID != "dining" || got[0].Remaining.Cents != 1000 || got[0].PeriodLabel != "MAR" {
		t.Fatalf("dining: %+v", got[0])
	}
	if got[1].CreditID != "travel" || got[1].Remaining.Cents != 20000 || got[1].PeriodLabel != "Q1" {
		t.Fatalf("travel: %+v", got[1])
	}
	wantClose := time.Date(2026, time.April, 1, 0, 0, 0, 0, time.UTC)
	if !got[0].ClosesAt.Equal(wantClose) {
		t.Fatalf("closes at: %v", got[0].ClosesAt)
	}
}

func TestScanExpiringOtherYear(t *testing.T) {
	cat := testCatalog(t)
	now := time.Date(2026, time.December, 30, 0, 0, 0, 0, time.UTC)
	credits := []core.UserCredit{{CardID: "a", CreditID: "dining", AssociatedPeriod: core.Monthly}}

	if got := ScanExpiring(cat, credits, 2025, now, 30*24*time.Hour); got != nil {
		t.Fatalf("non-current years never expire: %+v", got)
	}
}
