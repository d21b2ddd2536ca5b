package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"perks/internal/amqp"
	"perks/internal/catalog"
	"perks/internal/core"
	"perks/internal/period"
	"perks/internal/storage"
)

// UsageService is the write path: it persists usage updates to SQLite and
// publishes sync messages for the ledger export. The computation pipeline
// never mutates history itself; after a successful write the caller re-runs
// the pipeline against refreshed data.
type UsageService struct {
	storage    *storage.SQLiteRepository
	catalog    *catalog.Catalog
	amqpClient *amqp.Client
}

func NewUsageService(storage *storage.SQLiteRepository, cat *catalog.Catalog, amqpClient *amqp.Client) *UsageService {
	return &UsageService{
		storage:    storage,
		catalog:    cat,
		amqpClient: amqpClient,
	}
}

// RecordUsage validates and persists one usage update, then publishes an
// async sync message. A publish failure is logged but does not fail the
// request: the row is safe in SQLite and the queue processor will pick it
// up on its next poll.
func (s *UsageService) RecordUsage(ctx context.Context, u core.UsageUpdate) (string, error) {
	if err := u.Validate(); err != nil {
		return "", err
	}
	def, ok := s.catalog.Get(u.CreditID)
	if !ok {
		return "", fmt.Errorf("unknown credit id: %s", u.CreditID)
	}
	if u.ValueUsed.Cents > def.Value.Cents {
		return "", fmt.Errorf("value used %s exceeds credit value %s: %w",
			u.ValueUsed, def.Value, core.ErrInvalidValue)
	}
	if !period.ValidNumber(def.AssociatedPeriod, def.AnniversaryBased, u.PeriodNumber) {
		return "", fmt.Errorf("period %d out of range for %s credit: %w",
			u.PeriodNumber, def.AssociatedPeriod, core.ErrInvalidPeriodNumber)
	}

	historyID, err := s.storage.UpsertUsage(ctx, u, def)
	if err != nil {
		return "", fmt.Errorf("save usage: %w", err)
	}

	if err := s.publishSyncMessage(ctx, historyID); err != nil {
		slog.ErrorContext(ctx, "Failed to publish sync message",
			"history_id", historyID, "error", err)
		// Don't fail the request - usage is saved locally
	}

	return strconv.FormatInt(historyID, 10), nil
}

// DeleteUsage reverts a recorded period back to inactive.
func (s *UsageService) DeleteUsage(ctx context.Context, cardID, creditID string, periodNumber, year int) error {
	if err := s.storage.DeleteUsage(ctx, cardID, creditID, periodNumber, year); err != nil {
		return fmt.Errorf("delete usage: %w", err)
	}
	return nil
}

func (s *UsageService) publishSyncMessage(ctx context.Context, historyID int64) error {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping sync message")
		return nil
	}
	return s.amqpClient.PublishUsageSync(ctx, historyID, "sync")
}

// Close closes both storage and AMQP connections.
func (s *UsageService) Close() error {
	var errs []error

	if s.storage != nil {
		if err := s.storage.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close usage service: %v", errs)
	}
	return nil
}
