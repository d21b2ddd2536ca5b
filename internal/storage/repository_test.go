package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"perks/internal/core"
)

func testRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRepository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func diningDef() core.CreditDefinition {
	return core.CreditDefinition{
		CreditID:         "dining",
		Title:            "Dining Credit",
		Value:            core.Money{Cents: 1000},
		AssociatedPeriod: core.Monthly,
	}
}

func TestUpsertCardAndList(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	if err := repo.UpsertCard(ctx, core.Card{CardID: "apple", Name: "Apple Card", Preferred: true}); err != nil {
		t.Fatalf("UpsertCard: %v", err)
	}
	if err := repo.UpsertCard(ctx, core.Card{CardID: "apple", Name: "Apple Card Renamed"}); err != nil {
		t.Fatalf("UpsertCard second: %v", err)
	}

	cards, err := repo.ListCards(ctx)
	if err != nil {
		t.Fatalf("ListCards: %v", err)
	}
	if len(cards) != 1 {
		t.Fatalf("expected 1 card after upsert, got %d", len(cards))
	}
	if cards[0].Name != "Apple Card Renamed" {
		t.Errorf("expected renamed card, got %q", cards[0].Name)
	}
}

func TestUpsertUsageKeepsOneRowPerPeriod(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	update := core.UsageUpdate{
		CardID:       "apple",
		CreditID:     "dining",
		PeriodNumber: 3,
		Status:       core.StatusUsed,
		ValueUsed:    core.Money{Cents: 1000},
		Year:         2026,
	}
	firstID, err := repo.UpsertUsage(ctx, update, diningDef())
	if err != nil {
		t.Fatalf("UpsertUsage: %v", err)
	}

	update.Status = core.StatusPartiallyUsed
	update.ValueUsed = core.Money{Cents: 450}
	secondID, err := repo.UpsertUsage(ctx, update, diningDef())
	if err != nil {
		t.Fatalf("UpsertUsage second: %v", err)
	}
	if firstID != secondID {
		t.Errorf("second write should hit the same history row, got %d then %d", firstID, secondID)
	}

	payload, err := repo.FetchCalendarCredits(ctx, 2026, false)
	if err != nil {
		t.Fatalf("FetchCalendarCredits: %v", err)
	}
	if len(payload.Credits) != 1 {
		t.Fatalf("expected 1 user credit, got %d", len(payload.Credits))
	}
	uc := payload.Credits[0]
	if len(uc.History) != 1 {
		t.Fatalf("expected 1 history entry after upsert, got %d", len(uc.History))
	}
	entry := uc.History[0]
	if entry.PeriodNumber != 3 || entry.Status != core.StatusPartiallyUsed || entry.ValueUsed.Cents != 450 {
		t.Errorf("unexpected entry after upsert: %+v", entry)
	}
}

func TestFetchCalendarCreditsScopedToYear(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	u := core.UsageUpdate{
		CardID: "apple", CreditID: "dining", PeriodNumber: 1,
		Status: core.StatusUsed, ValueUsed: core.Money{Cents: 1000}, Year: 2025,
	}
	if _, err := repo.UpsertUsage(ctx, u, diningDef()); err != nil {
		t.Fatalf("UpsertUsage: %v", err)
	}

	payload, err := repo.FetchCalendarCredits(ctx, 2026, false)
	if err != nil {
		t.Fatalf("FetchCalendarCredits: %v", err)
	}
	if len(payload.Credits) != 0 {
		t.Errorf("2026 fetch should not see 2025 rows, got %d credits", len(payload.Credits))
	}
}

func TestDeleteUsage(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	u := core.UsageUpdate{
		CardID: "apple", CreditID: "dining", PeriodNumber: 2,
		Status: core.StatusUsed, ValueUsed: core.Money{Cents: 1000}, Year: 2026,
	}
	if _, err := repo.UpsertUsage(ctx, u, diningDef()); err != nil {
		t.Fatalf("UpsertUsage: %v", err)
	}

	if err := repo.DeleteUsage(ctx, "apple", "dining", 2, 2026); err != nil {
		t.Fatalf("DeleteUsage: %v", err)
	}
	// Deleting again is a no-op, not an error
	if err := repo.DeleteUsage(ctx, "apple", "dining", 2, 2026); err != nil {
		t.Fatalf("DeleteUsage repeat: %v", err)
	}

	payload, err := repo.FetchCalendarCredits(ctx, 2026, false)
	if err != nil {
		t.Fatalf("FetchCalendarCredits: %v", err)
	}
	for _, uc := range payload.Credits {
		if len(uc.History) != 0 {
			t.Errorf("expected empty history after delete, got %+v", uc.History)
		}
	}
}

func TestGetUsageRowAndSyncQueue(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	u := core.UsageUpdate{
		CardID: "apple", CreditID: "dining", PeriodNumber: 5,
		Status: core.StatusUsed, ValueUsed: core.Money{Cents: 1000}, Year: 2026,
	}
	historyID, err := repo.UpsertUsage(ctx, u, diningDef())
	if err != nil {
		t.Fatalf("UpsertUsage: %v", err)
	}

	row, err := repo.GetUsageRow(ctx, historyID)
	if err != nil {
		t.Fatalf("GetUsageRow: %v", err)
	}
	if row.CardID != "apple" || row.CreditID != "dining" || row.PeriodNumber != 5 {
		t.Errorf("unexpected usage row: %+v", row)
	}
	if row.Period != core.Monthly {
		t.Errorf("expected monthly period, got %q", row.Period)
	}

	if _, err := repo.GetUsageRow(ctx, historyID+100); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing row, got %v", err)
	}

	items, err := repo.DequeueSyncBatch(ctx, 10)
	if err != nil {
		t.Fatalf("DequeueSyncBatch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 queued sync item, got %d", len(items))
	}
	item := items[0]
	if item.HistoryID != historyID {
		t.Errorf("queue item should reference history row %d, got %d", historyID, item.HistoryID)
	}

	if err := repo.MarkSyncProcessing(ctx, item.ID); err != nil {
		t.Fatalf("MarkSyncProcessing: %v", err)
	}
	if err := repo.MarkSyncCompleted(ctx, item.ID); err != nil {
		t.Fatalf("MarkSyncCompleted: %v", err)
	}

	items, err = repo.DequeueSyncBatch(ctx, 10)
	if err != nil {
		t.Fatalf("DequeueSyncBatch after complete: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("completed items should not be dequeued again, got %d", len(items))
	}
}

func TestMarkSyncFailedRetriesThenFails(t *testing.T) {
	repo := testRepo(t)
	ctx := context.Background()

	u := core.UsageUpdate{
		CardID: "apple", CreditID: "dining", PeriodNumber: 1,
		Status: core.StatusUsed, ValueUsed: core.Money{Cents: 1000}, Year: 2026,
	}
	if _, err := repo.UpsertUsage(ctx, u, diningDef()); err != nil {
		t.Fatalf("UpsertUsage: %v", err)
	}

	items, err := repo.DequeueSyncBatch(ctx, 1)
	if err != nil || len(items) != 1 {
		t.Fatalf("DequeueSyncBatch: %v (%d items)", err, len(items))
	}
	id := items[0].ID

	exportErr := errors.New("ledger unavailable")
	// Below maxRetries the item goes back to pending
	if err := repo.MarkSyncFailed(ctx, id, exportErr, 3); err != nil {
		t.Fatalf("MarkSyncFailed: %v", err)
	}
	items, err = repo.DequeueSyncBatch(ctx, 1)
	if err != nil {
		t.Fatalf("DequeueSyncBatch after retry: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected item back in queue after first failure, got %d", len(items))
	}

	// Exhaust retries
	if err := repo.MarkSyncFailed(ctx, id, exportErr, 1); err != nil {
		t.Fatalf("MarkSyncFailed exhaust: %v", err)
	}
	items, err = repo.DequeueSyncBatch(ctx, 1)
	if err != nil {
		t.Fatalf("DequeueSyncBatch after exhaustion: %v", err)
	}
	if len(items) != 0 {
		t.Errorf("failed items should not be dequeued, got %d", len(items))
	}
}
