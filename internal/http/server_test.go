package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"perks/internal/catalog"
	"perks/internal/core"
	"perks/internal/ledger/memory"
	"perks/internal/services"
)

const testCatalogYAML = `
credits:
  - id: dining
    title: Dining Credit
    value: "10.00"
    period: monthly
  - id: travel
    title: Travel Credit
    value: "300.00"
    period: quarterly
`

func testServer(t *testing.T) (*Server, *memory.Store) {
	t.Helper()
	cat, err := catalog.Parse([]byte(testCatalogYAML))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	store := memory.New(cat, []core.Card{{CardID: "apple", Name: "Apple", Preferred: true}})
	return NewServer(":0", store, cat), store
}

func TestIndexAndHealth(t *testing.T) {
	srv, _ := testServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("index status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Card Perks") {
		t.Fatalf("index body missing heading")
	}

	for _, path := range []string{"/healthz", "/readyz"} {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		srv.Handler.ServeHTTP(rr, req)
		if rr.Code != 200 {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}
}

func TestAPIPortfolio(t *testing.T) {
	srv, store := testServer(t)

	_, err := store.RecordUsage(context.Background(), core.UsageUpdate{
		CardID: "apple", CreditID: "dining", PeriodNumber: 1,
		Status: core.StatusUsed, ValueUsed: core.Money{Cents: 1000}, Year: 2026,
	})
	if err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/portfolio?year=2026", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("api status=%d body=%s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Year  int    `json:"year"`
		State string `json:"state"`
		Cards []struct {
			CardID       string `json:"card_id"`
			UsagePercent int    `json:"usage_percent"`
			Credits      []struct {
				CreditID string `json:"credit_id"`
				Periods  []struct {
					Status string `json:"status"`
				} `json:"periods"`
			} `json:"credits"`
		} `json:"cards"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Year != 2026 || resp.State != "loaded" {
		t.Fatalf("unexpected year/state: %+v", resp)
	}
	if len(resp.Cards) != 1 || resp.Cards[0].CardID != "apple" {
		t.Fatalf("expected apple card, got %+v", resp.Cards)
	}
	if len(resp.Cards[0].Credits) != 1 || resp.Cards[0].Credits[0].CreditID != "dining" {
		t.Fatalf("expected dining credit, got %+v", resp.Cards[0].Credits)
	}
	if got := resp.Cards[0].Credits[0].Periods[0].Status; got != "used" {
		t.Fatalf("expected used period 1, got %s", got)
	}
}

func TestRecordUsageValidationAndSuccess(t *testing.T) {
	srv, _ := testServer(t)

	// Wrong method
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/usage", nil)
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405, got %d", rr.Code)
	}

	// Unknown credit
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/usage", strings.NewReader("card_id=apple&credit_id=bogus&period_number=1&year=2026"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != 422 {
		t.Fatalf("expected 422, got %d", rr.Code)
	}

	// Invalid value
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/usage", strings.NewReader("card_id=apple&credit_id=dining&period_number=1&year=2026&value_used=abc"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != 422 {
		t.Fatalf("expected 422, got %d", rr.Code)
	}

	// Invalid period number
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/usage", strings.NewReader("card_id=apple&credit_id=dining&period_number=13&year=2026"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != 422 {
		t.Fatalf("expected 422, got %d", rr.Code)
	}

	// Value above the credit's face value
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/usage", strings.NewReader("card_id=apple&credit_id=dining&period_number=1&year=2026&value_used=50.00"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != 422 {
		t.Fatalf("expected 422 for oversized value, got %d", rr.Code)
	}

	// Period beyond the credit's scheme (travel is quarterly)
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/usage", strings.NewReader("card_id=apple&credit_id=travel&period_number=7&year=2026"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != 422 {
		t.Fatalf("expected 422 for out-of-scheme period, got %d", rr.Code)
	}

	// Success via form; omitted value defaults to the face value
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/usage", strings.NewReader("card_id=apple&credit_id=dining&period_number=2&year=2026&status=used"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if !strings.Contains(rr.Body.String(), "success") {
		t.Fatalf("expected success in body: %s", rr.Body.String())
	}
	if !strings.Contains(rr.Header().Get("HX-Trigger"), "usage:recorded") {
		t.Fatalf("expected usage:recorded trigger, got %q", rr.Header().Get("HX-Trigger"))
	}

	// Success via JSON
	rr = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/usage", strings.NewReader(`{"card_id":"apple","credit_id":"travel","period_number":1,"year":2026,"status":"partially_used","value_used":"120.00"}`))
	req.Header.Set("Content-Type", "application/json")
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("expected 200 for JSON body, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestDeleteUsage(t *testing.T) {
	srv, store := testServer(t)

	if _, err := store.RecordUsage(context.Background(), core.UsageUpdate{
		CardID: "apple", CreditID: "dining", PeriodNumber: 3,
		Status: core.StatusUsed, ValueUsed: core.Money{Cents: 1000}, Year: 2026,
	}); err != nil {
		t.Fatalf("seed usage: %v", err)
	}

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/usage/delete", strings.NewReader("card_id=apple&credit_id=dining&period_number=3&year=2026"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	cc, _ := store.FetchCalendarCredits(context.Background(), 2026, false)
	if len(cc.Credits) != 0 {
		t.Fatalf("expected usage removed from store, got %+v", cc.Credits)
	}
}

// slowYearBackend delays credit fetches for one year so a competing
// request can supersede them.
type slowYearBackend struct {
	*memory.Store
	slowYear int
	delay    time.Duration
}

func (b *slowYearBackend) FetchCalendarCredits(ctx context.Context, year int, excludeHidden bool) (core.CalendarUserCredits, error) {
	if year == b.slowYear {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return core.CalendarUserCredits{}, ctx.Err()
		}
	}
	return b.Store.FetchCalendarCredits(ctx, year, excludeHidden)
}

func TestSupersededSnapshotKeepsItsYearLabel(t *testing.T) {
	cat, err := catalog.Parse([]byte(testCatalogYAML))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}
	store := memory.New(cat, []core.Card{{CardID: "apple", Name: "Apple"}})
	b := &slowYearBackend{Store: store, slowYear: 2025, delay: 200 * time.Millisecond}
	srv := NewServer(":0", b, cat)

	slowResult := make(chan services.Snapshot, 1)
	go func() { slowResult <- srv.loadSnapshot(context.Background(), 2025) }()
	time.Sleep(20 * time.Millisecond) // let the 2025 fetch start

	fast := srv.loadSnapshot(context.Background(), 2026)
	if fast.State != services.StateLoaded || fast.Year != 2026 {
		t.Fatalf("fast request should load 2026: %+v", fast)
	}

	// The superseded request must never present the winner's data under
	// its own year.
	slow := <-slowResult
	if slow.State == services.StateLoaded && slow.Year != 2025 {
		t.Fatalf("superseded 2025 request reported loaded data for %d", slow.Year)
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	srv, _ := testServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	srv.Handler.ServeHTTP(rr, req)

	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("expected nosniff header, got %q", got)
	}
	if got := rr.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("expected DENY frame options, got %q", got)
	}
}

func TestSuspiciousRequestBlocked(t *testing.T) {
	srv, _ := testServer(t)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ui/portfolio?year=2026%27%20union%20select", nil)
	req.URL.RawQuery = "year=union select"
	srv.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for suspicious query, got %d", rr.Code)
	}
}
