package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"perks/internal/amqp"
	"perks/internal/cli"
	gsheet "perks/internal/ledger/google"
	"perks/internal/services"
	"perks/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting perks-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	// SQLite repository holds the sync queue the worker drains.
	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	cat := cli.InitCatalog(logger, cfg.CatalogPath)

	// Google Sheets client for the external ledger (optional)
	var sheetsClient *gsheet.Client
	if cfg.GoogleSpreadsheetID != "" {
		var err error
		sheetsClient, err = gsheet.NewFromEnv(context.Background())
		if err != nil {
			logger.Error("Failed to initialize Google Sheets client", "error", err)
			os.Exit(1)
		}
		logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	} else {
		logger.Info("Google Sheets disabled - no GOOGLE_SPREADSHEET_ID provided")
	}

	// AMQP client for consuming sync messages
	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var syncWorker *worker.SyncWorker
	var syncProcessor *services.SyncProcessor
	if sheetsClient != nil {
		syncWorker = worker.NewSyncWorker(sqliteRepo, sheetsClient, cat, cfg.SyncBatchSize)

		// On startup, drain any queued usage rows that might have been missed
		logger.Info("Performing startup sync check...")
		if err := syncWorker.StartupSyncCheck(ctx); err != nil {
			logger.Error("Failed startup sync check", "error", err)
			// Don't exit - continue with normal operation
		}

		// Polling fallback drains the queue even when AMQP drops messages
		processorConfig := services.DefaultSyncProcessorConfig()
		processorConfig.PollInterval = cfg.SyncInterval
		processorConfig.BatchSize = cfg.SyncBatchSize
		syncProcessor = services.NewSyncProcessor(sqliteRepo, sheetsClient, cat, processorConfig)
		if err := syncProcessor.Start(ctx); err != nil {
			logger.Error("Failed to start sync processor", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("Skipping ledger sync operations - no client available")
	}

	// Daily summary tab rewrite so the spreadsheet tracks the database
	if syncWorker != nil {
		summaryTicker := time.NewTicker(24 * time.Hour)
		defer summaryTicker.Stop()

		go func() {
			now := time.Now()
			if err := syncWorker.ExportYearSummary(ctx, sheetsClient, now.Year(), now); err != nil {
				logger.Error("Initial year summary export failed", "error", err)
			}
			for {
				select {
				case <-ctx.Done():
					return
				case now := <-summaryTicker.C:
					if err := syncWorker.ExportYearSummary(ctx, sheetsClient, now.Year(), now); err != nil {
						logger.Error("Year summary export failed", "error", err)
					}
				}
			}
		}()
	}

	if syncWorker != nil {
		go func() {
			handler := func(msg *amqp.UsageSyncMessage) error {
				return syncWorker.HandleSyncMessage(ctx, msg)
			}
			if err := amqpClient.ConsumeUsageSync(ctx, handler); err != nil {
				if err != context.Canceled {
					logger.Error("Message consumption failed", "error", err)
				}
				cancel()
			}
		}()
	} else {
		logger.Info("Skipping AMQP message consumption - no sync worker available")
	}

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	if syncProcessor != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := syncProcessor.Stop(stopCtx); err != nil {
			logger.Error("Sync processor stop error", "error", err)
		}
		stopCancel()
	}
	cancel()

	logger.Info("Worker stopped gracefully")
}
