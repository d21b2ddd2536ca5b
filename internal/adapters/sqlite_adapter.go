package adapters

import (
	"context"

	"perks/internal/core"
	"perks/internal/services"
	"perks/internal/storage"
)

// SQLiteAdapter adapts SQLiteRepository and UsageService to the ledger ports.
// Reads go straight to storage; writes go through the service so validation
// and the AMQP sync publish happen in one place.
type SQLiteAdapter struct {
	storage *storage.SQLiteRepository
	service *services.UsageService
}

func NewSQLiteAdapter(storage *storage.SQLiteRepository, service *services.UsageService) *SQLiteAdapter {
	return &SQLiteAdapter{
		storage: storage,
		service: service,
	}
}

// FetchCalendarCredits implements ledger.CreditSource
func (a *SQLiteAdapter) FetchCalendarCredits(ctx context.Context, year int, excludeHidden bool) (core.CalendarUserCredits, error) {
	return a.storage.FetchCalendarCredits(ctx, year, excludeHidden)
}

// ListCards implements ledger.CardReader
func (a *SQLiteAdapter) ListCards(ctx context.Context) ([]core.Card, error) {
	return a.storage.ListCards(ctx)
}

// RecordUsage implements ledger.UsageRecorder
func (a *SQLiteAdapter) RecordUsage(ctx context.Context, u core.UsageUpdate) (string, error) {
	return a.service.RecordUsage(ctx, u)
}

// DeleteUsage implements ledger.UsageDeleter
func (a *SQLiteAdapter) DeleteUsage(ctx context.Context, cardID, creditID string, periodNumber, year int) error {
	return a.service.DeleteUsage(ctx, cardID, creditID, periodNumber, year)
}
