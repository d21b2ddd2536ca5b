package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"perks/internal/core"
)

// fakeSource is a scriptable CreditSource/CardReader for orchestrator tests.
type fakeSource struct {
	mu      sync.Mutex
	byYear  map[int]core.CalendarUserCredits
	cards   []core.Card
	delay   map[int]time.Duration
	failing bool
	fetches int
}

func (f *fakeSource) FetchCalendarCredits(ctx context.Context, year int, _ bool) (core.CalendarUserCredits, error) {
	f.mu.Lock()
	d := f.delay[year]
	failing := f.failing
	f.fetches++
	f.mu.Unlock()

	if d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return core.CalendarUserCredits{}, ctx.Err()
		}
	}
	if failing {
		return core.CalendarUserCredits{}, errors.New("upstream unavailable")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byYear[year], nil
}

func (f *fakeSource) ListCards(ctx context.Context) ([]core.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cards, nil
}

func (f *fakeSource) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		cards: []core.Card{{CardID: "apple", Name: "Apple", Preferred: true}},
		byYear: map[int]core.CalendarUserCredits{
			2026: {Credits: []core.UserCredit{{
				CardID: "apple", CreditID: "dining", AssociatedPeriod: core.Monthly,
				History: core.History{{PeriodNumber: 1, Status: core.StatusUsed, ValueUsed: core.Money{Cents: 1000}}},
			}}},
			2025: {Credits: nil},
		},
		delay: map[int]time.Duration{},
	}
}

func fixedClock() time.Time { return march15 }

func TestPortfolioLoadLifecycle(t *testing.T) {
	src := newFakeSource()
	svc := NewPortfolioService(src, src, testCatalog(t), WithClock(fixedClock))

	if got := svc.Snapshot().State; got != StateIdle {
		t.Fatalf("initial state: %s", got)
	}

	done := svc.SelectYear(context.Background(), 2026)
	<-done

	snap := svc.Snapshot()
	if snap.State != StateLoaded || snap.Year != 2026 {
		t.Fatalf("after load: %+v", snap)
	}
	if len(snap.Cards) != 1 || snap.Cards[0].CreditCount != 1 {
		t.Fatalf("cards not built: %+v", snap.Cards)
	}
	if !snap.Expanded["apple"] {
		t.Fatalf("card with credits should start expanded")
	}
}

func TestPortfolioLastRequestWins(t *testing.T) {
	src := newFakeSource()
	src.delay[2025] = 200 * time.Millisecond // slow fetch that will be superseded
	svc := NewPortfolioService(src, src, testCatalog(t), WithClock(fixedClock))

	slow := svc.SelectYear(context.Background(), 2025)
	fast := svc.SelectYear(context.Background(), 2026)
	<-fast
	<-slow

	snap := svc.Snapshot()
	if snap.Year != 2026 || snap.State != StateLoaded {
		t.Fatalf("stale fetch must not win: %+v", snap)
	}
	if len(snap.Cards) != 1 || snap.Cards[0].CreditCount != 1 {
		t.Fatalf("displayed data is not the 2026 payload: %+v", snap.Cards)
	}
}

func TestPortfolioErrorAndRetry(t *testing.T) {
	src := newFakeSource()
	src.setFailing(true)
	svc := NewPortfolioService(src, src, testCatalog(t), WithClock(fixedClock))

	<-svc.SelectYear(context.Background(), 2026)

	snap := svc.Snapshot()
	if snap.State != StateError || snap.Err == nil {
		t.Fatalf("expected error state, got %+v", snap)
	}

	src.setFailing(false)
	<-svc.Retry(context.Background())

	snap = svc.Snapshot()
	if snap.State != StateLoaded || snap.Err != nil {
		t.Fatalf("retry did not recover: %+v", snap)
	}
}

func TestPortfolioExpandedRetention(t *testing.T) {
	src := newFakeSource()
	svc := NewPortfolioService(src, src, testCatalog(t), WithClock(fixedClock))

	<-svc.SelectYear(context.Background(), 2026)
	if !svc.Snapshot().Expanded["apple"] {
		t.Fatalf("apple should be expanded after 2026 load")
	}

	// In 2025 apple is still present but has no credits: it neither
	// auto-expands nor carries over, so it collapses.
	<-svc.SelectYear(context.Background(), 2025)
	snap := svc.Snapshot()
	if snap.State != StateLoaded || snap.Year != 2025 {
		t.Fatalf("year change failed: %+v", snap)
	}

	// Simulate a card that disappears from the payload entirely.
	src.mu.Lock()
	src.cards = []core.Card{{CardID: "pear", Name: "Pear"}}
	src.byYear[2024] = core.CalendarUserCredits{Credits: []core.UserCredit{{
		CardID: "pear", CreditID: "dining", AssociatedPeriod: core.Monthly,
	}}}
	src.mu.Unlock()

	svc.ToggleCard("apple") // user opens apple right before switching
	<-svc.SelectYear(context.Background(), 2024)

	snap = svc.Snapshot()
	if !snap.Expanded["pear"] {
		t.Fatalf("new year's card with credits should be expanded")
	}
	if !snap.Expanded["apple"] {
		t.Fatalf("previously expanded card missing from new year must stay open")
	}
}

func TestPortfolioCollapseSurvivesSameYearReload(t *testing.T) {
	src := newFakeSource()
	svc := NewPortfolioService(src, src, testCatalog(t), WithClock(fixedClock))

	<-svc.SelectYear(context.Background(), 2026)
	if !svc.Snapshot().Expanded["apple"] {
		t.Fatalf("apple should be expanded after initial load")
	}

	// User collapses the card, then a write invalidates the view and the
	// same year is refetched. The collapse must stick.
	svc.ToggleCard("apple")
	<-svc.SelectYear(context.Background(), 2026)

	snap := svc.Snapshot()
	if snap.State != StateLoaded {
		t.Fatalf("reload failed: %+v", snap)
	}
	if snap.Expanded["apple"] {
		t.Fatalf("same-year reload must not re-expand a collapsed card")
	}

	// A real year change still applies the auto-expand merge.
	<-svc.SelectYear(context.Background(), 2025)
	<-svc.SelectYear(context.Background(), 2026)
	if !svc.Snapshot().Expanded["apple"] {
		t.Fatalf("year change back to 2026 should auto-expand cards with credits")
	}
}

func TestPortfolioToggleCard(t *testing.T) {
	src := newFakeSource()
	svc := NewPortfolioService(src, src, testCatalog(t), WithClock(fixedClock))

	svc.ToggleCard("x")
	if !svc.Snapshot().Expanded["x"] {
		t.Fatalf("toggle on failed")
	}
	svc.ToggleCard("x")
	if svc.Snapshot().Expanded["x"] {
		t.Fatalf("toggle off failed")
	}
}
