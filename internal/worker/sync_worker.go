// Package worker drives the AMQP-fed ledger export: usage rows recorded in
// SQLite are appended to the external spreadsheet ledger.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"perks/internal/amqp"
	"perks/internal/catalog"
	"perks/internal/ledger"
	"perks/internal/services"
	"perks/internal/storage"
)

// SyncWorker exports usage history rows to the ledger. Messages arrive over
// AMQP; the sync queue poll in services.SyncProcessor is the backup path for
// lost messages.
type SyncWorker struct {
	storage   *storage.SQLiteRepository
	exporter  ledger.UsageExporter
	catalog   *catalog.Catalog
	batchSize int
}

func NewSyncWorker(storage *storage.SQLiteRepository, exporter ledger.UsageExporter, cat *catalog.Catalog, batchSize int) *SyncWorker {
	if batchSize <= 0 {
		batchSize = 10
	}
	return &SyncWorker{
		storage:   storage,
		exporter:  exporter,
		catalog:   cat,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes a single usage sync message from AMQP.
// Returning an error nacks the message back onto the queue.
func (w *SyncWorker) HandleSyncMessage(ctx context.Context, msg *amqp.UsageSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"history_id", msg.HistoryID,
		"operation", msg.Operation)

	row, err := w.storage.GetUsageRow(ctx, msg.HistoryID)
	if err != nil {
		return fmt.Errorf("get usage row from storage: %w", err)
	}

	services.EnrichUsageRow(&row, w.catalog)

	ref, err := w.exporter.AppendUsage(ctx, row)
	if err != nil {
		return fmt.Errorf("export usage row: %w", err)
	}

	slog.InfoContext(ctx, "Exported usage row to ledger",
		"history_id", msg.HistoryID,
		"row_ref", ref)
	return nil
}

// StartupSyncCheck drains whatever the sync queue accumulated while the
// worker was down. Items are exported concurrently, one goroutine per item
// up to the batch size.
func (w *SyncWorker) StartupSyncCheck(ctx context.Context) error {
	items, err := w.storage.DequeueSyncBatch(ctx, int64(w.batchSize*5))
	if err != nil {
		return fmt.Errorf("get pending sync items for startup check: %w", err)
	}
	if len(items) == 0 {
		slog.InfoContext(ctx, "No pending sync items found on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending sync items on startup, processing...",
		"count", len(items))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(w.batchSize)
	for _, item := range items {
		g.Go(func() error {
			if err := w.storage.MarkSyncProcessing(ctx, item.ID); err != nil {
				return err
			}
			if err := w.exportItem(ctx, item); err != nil {
				slog.ErrorContext(ctx, "Failed to export sync item",
					"id", item.ID, "history_id", item.HistoryID, "error", err)
				return w.storage.MarkSyncFailed(ctx, item.ID, err, 3)
			}
			return w.storage.MarkSyncCompleted(ctx, item.ID)
		})
	}
	return g.Wait()
}

// ExportYearSummary rebuilds the year's card summaries from storage and
// rewrites the ledger's summary tab. Called periodically so the tab tracks
// the database without one write per usage change.
func (w *SyncWorker) ExportYearSummary(ctx context.Context, exporter ledger.SummaryExporter, year int, now time.Time) error {
	cards, err := w.storage.ListCards(ctx)
	if err != nil {
		return fmt.Errorf("list cards: %w", err)
	}
	payload, err := w.storage.FetchCalendarCredits(ctx, year, false)
	if err != nil {
		return fmt.Errorf("fetch credits for %d: %w", year, err)
	}

	summaries := services.BuildCardSummaries(w.catalog, cards, payload.Credits, year, now)
	if err := exporter.WriteYearSummary(ctx, year, summaries); err != nil {
		return fmt.Errorf("write year summary: %w", err)
	}

	slog.InfoContext(ctx, "Exported year summary to ledger",
		"year", year, "cards", len(summaries))
	return nil
}

func (w *SyncWorker) exportItem(ctx context.Context, item storage.SyncQueue) error {
	row, err := w.storage.GetUsageRow(ctx, item.HistoryID)
	if err != nil {
		return fmt.Errorf("get usage row: %w", err)
	}
	services.EnrichUsageRow(&row, w.catalog)
	if _, err := w.exporter.AppendUsage(ctx, row); err != nil {
		return fmt.Errorf("append usage: %w", err)
	}
	return nil
}
