package services

import (
	"context"
	"testing"
	"time"

	"perks/internal/catalog"
	"perks/internal/ledger"
)

func TestNewSyncProcessor(t *testing.T) {
	config := DefaultSyncProcessorConfig()
	processor := NewSyncProcessor(nil, nil, nil, config)

	if processor == nil {
		t.Fatal("NewSyncProcessor should return non-nil processor")
	}
	if processor.storage != nil {
		t.Error("storage should be nil when passed nil")
	}
	if processor.exporter != nil {
		t.Error("exporter should be nil when passed nil")
	}
}

func TestDefaultSyncProcessorConfig(t *testing.T) {
	config := DefaultSyncProcessorConfig()

	if config.PollInterval != 10*time.Second {
		t.Errorf("expected PollInterval 10s, got %v", config.PollInterval)
	}
	if config.BatchSize != 10 {
		t.Errorf("expected BatchSize 10, got %d", config.BatchSize)
	}
	if config.MaxRetries != 3 {
		t.Errorf("expected MaxRetries 3, got %d", config.MaxRetries)
	}
	if config.CleanupInterval != 1*time.Hour {
		t.Errorf("expected CleanupInterval 1h, got %v", config.CleanupInterval)
	}
	if config.CleanupAge != 24*time.Hour {
		t.Errorf("expected CleanupAge 24h, got %v", config.CleanupAge)
	}
}

func TestSyncProcessor_IsRunning(t *testing.T) {
	processor := NewSyncProcessor(nil, nil, nil, DefaultSyncProcessorConfig())

	if processor.IsRunning() {
		t.Error("processor should not be running initially")
	}
}

func TestSyncProcessor_StartTwice(t *testing.T) {
	config := DefaultSyncProcessorConfig()
	config.PollInterval = 100 * time.Millisecond
	processor := NewSyncProcessor(nil, nil, nil, config)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	processor.mu.Lock()
	processor.running = true
	processor.mu.Unlock()

	err := processor.Start(ctx)
	if err == nil {
		t.Error("expected error when starting already running processor")
	}
}

func TestSyncProcessor_StopNotRunning(t *testing.T) {
	processor := NewSyncProcessor(nil, nil, nil, DefaultSyncProcessorConfig())

	if err := processor.Stop(context.Background()); err != nil {
		t.Errorf("Stop should not error when not running: %v", err)
	}
}

func TestEnrichUsageRow(t *testing.T) {
	cat, err := catalog.Parse([]byte(`
credits:
  - id: dining
    title: Dining Credit
    value: "10.00"
    period: monthly
`))
	if err != nil {
		t.Fatalf("parse catalog: %v", err)
	}

	row := ledger.UsageRow{CreditID: "dining"}
	EnrichUsageRow(&row, cat)
	if row.Title != "Dining Credit" {
		t.Errorf("expected title from catalog, got %q", row.Title)
	}

	missing := ledger.UsageRow{CreditID: "ghost"}
	EnrichUsageRow(&missing, cat)
	if missing.Title != "ghost" {
		t.Errorf("expected credit id fallback title, got %q", missing.Title)
	}
}
