package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"perks/internal/catalog"
	"perks/internal/ledger"
	"perks/internal/period"
	"perks/internal/storage"
)

// SyncProcessorConfig holds configuration for the queue-based exporter.
type SyncProcessorConfig struct {
	// PollInterval is how often to check for pending items.
	PollInterval time.Duration

	// BatchSize is the max number of items to process per poll cycle.
	BatchSize int

	// MaxRetries is the maximum attempts before an item is marked failed.
	MaxRetries int

	// CleanupInterval is how often completed items are purged.
	CleanupInterval time.Duration

	// CleanupAge is how old completed items must be before purging.
	CleanupAge time.Duration
}

// DefaultSyncProcessorConfig returns sensible defaults.
func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:    10 * time.Second,
		BatchSize:       10,
		MaxRetries:      3,
		CleanupInterval: 1 * time.Hour,
		CleanupAge:      24 * time.Hour,
	}
}

// SyncProcessor drains the SQLite sync queue into the external ledger. It
// is the fallback path when AMQP is down: every write enqueues a row, so
// nothing is lost even if the published message never arrives.
type SyncProcessor struct {
	storage  *storage.SQLiteRepository
	exporter ledger.UsageExporter
	catalog  *catalog.Catalog
	config   SyncProcessorConfig

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(
	storage *storage.SQLiteRepository,
	exporter ledger.UsageExporter,
	cat *catalog.Catalog,
	config SyncProcessorConfig,
) *SyncProcessor {
	return &SyncProcessor{
		storage:  storage,
		exporter: exporter,
		catalog:  cat,
		config:   config,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	// Reset items stranded in 'processing' by a previous crash
	if err := p.storage.ResetStaleProcessing(ctx); err != nil {
		slog.WarnContext(ctx, "Failed to reset stale processing items", "error", err)
	}

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"batch_size", p.config.BatchSize)
	return nil
}

// Stop gracefully stops the processor and waits for completion.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	close(p.stopCh)

	select {
	case <-p.doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

// IsRunning reports whether the processor loop is active.
func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()

	cleanupTicker := time.NewTicker(p.config.CleanupInterval)
	defer cleanupTicker.Stop()

	// Process immediately on startup
	p.processBatch(ctx)

	for {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.processBatch(ctx)
		case <-cleanupTicker.C:
			if n, err := p.storage.CleanupCompleted(ctx, p.config.CleanupAge); err != nil {
				slog.ErrorContext(ctx, "Failed to clean up completed sync items", "error", err)
			} else if n > 0 {
				slog.DebugContext(ctx, "Cleaned up completed sync items", "count", n)
			}
		}
	}
}

func (p *SyncProcessor) processBatch(ctx context.Context) {
	items, err := p.storage.DequeueSyncBatch(ctx, int64(p.config.BatchSize))
	if err != nil {
		slog.ErrorContext(ctx, "Failed to dequeue sync batch", "error", err)
		return
	}
	if len(items) == 0 {
		return
	}

	slog.DebugContext(ctx, "Processing sync batch", "count", len(items))

	for _, item := range items {
		select {
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		default:
		}

		if err := p.storage.MarkSyncProcessing(ctx, item.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark item as processing",
				"id", item.ID, "error", err)
			continue
		}

		if err := p.exportItem(ctx, item); err != nil {
			slog.WarnContext(ctx, "Sync item failed",
				"id", item.ID, "attempts", item.Attempts+1, "error", err)
			if merr := p.storage.MarkSyncFailed(ctx, item.ID, err, p.config.MaxRetries); merr != nil {
				slog.ErrorContext(ctx, "Failed to record sync failure", "id", item.ID, "error", merr)
			}
			continue
		}
		if err := p.storage.MarkSyncCompleted(ctx, item.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to mark item completed", "id", item.ID, "error", err)
		}
	}
}

// exportItem pushes one queue item's usage row to the ledger.
func (p *SyncProcessor) exportItem(ctx context.Context, item storage.SyncQueue) error {
	row, err := p.storage.GetUsageRow(ctx, item.HistoryID)
	if err != nil {
		return fmt.Errorf("get usage row %d: %w", item.HistoryID, err)
	}

	EnrichUsageRow(&row, p.catalog)

	ref, err := p.exporter.AppendUsage(ctx, row)
	if err != nil {
		return fmt.Errorf("append to ledger: %w", err)
	}

	slog.InfoContext(ctx, "Exported usage row to ledger",
		"history_id", item.HistoryID, "ledger_ref", ref)
	return nil
}

// EnrichUsageRow fills the display fields (title, period label) the
// database does not store.
func EnrichUsageRow(row *ledger.UsageRow, cat *catalog.Catalog) {
	if def, ok := cat.Get(row.CreditID); ok {
		row.Title = def.Title
	} else {
		row.Title = row.CreditID
	}
	if row.Anniversary {
		row.PeriodLabel = fmt.Sprintf("%d", row.Year)
	} else {
		row.PeriodLabel = period.SchemeFor(row.Period).Label(row.PeriodNumber, row.Year)
	}
}
