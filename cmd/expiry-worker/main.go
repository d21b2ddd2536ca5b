package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"perks/internal/amqp"
	"perks/internal/catalog"
	"perks/internal/cli"
	"perks/internal/services"
	"perks/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting expiry-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	sqliteRepo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer sqliteRepo.Close()

	cat := cli.InitCatalog(logger, cfg.CatalogPath)

	// AMQP client for publishing expiry reminders (optional)
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, reminders will be log-only", "error", err)
			amqpClient = nil
		} else {
			defer amqpClient.Close()
			logger.Info("AMQP client initialized - reminders will be published")
		}
	} else {
		logger.Info("AMQP disabled - reminders will be log-only")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger.Info("Expiry scan configured",
		"window", cfg.ExpiryWindow,
		"interval", cfg.ExpiryInterval,
		"sqlite_db", cfg.SQLiteDBPath)

	ticker := time.NewTicker(cfg.ExpiryInterval)
	defer ticker.Stop()

	// Run initial scan on startup
	logger.Info("Running initial expiry scan...")
	if count, err := scanOnce(ctx, logger, sqliteRepo, cat, amqpClient, cfg.ExpiryWindow, time.Now()); err != nil {
		logger.Error("Initial scan failed", "error", err)
	} else {
		logger.Info("Initial scan complete", "reminders", count)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				count, err := scanOnce(ctx, logger, sqliteRepo, cat, amqpClient, cfg.ExpiryWindow, now)
				if err != nil {
					logger.Error("Periodic scan failed", "error", err)
				} else {
					logger.Info("Periodic scan complete",
						"reminders", count,
						"next_check", now.Add(cfg.ExpiryInterval).Format("15:04:05"))
				}
			}
		}
	}()

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down expiry-worker...")
	cancel()
	logger.Info("Expiry-worker shutdown complete")
}

// scanOnce finds calendar credits closing inside the window with value left
// and publishes one reminder per credit.
func scanOnce(
	ctx context.Context,
	logger *slog.Logger,
	repo *storage.SQLiteRepository,
	cat *catalog.Catalog,
	amqpClient *amqp.Client,
	window time.Duration,
	now time.Time,
) (int, error) {
	year := now.Year()
	payload, err := repo.FetchCalendarCredits(ctx, year, false)
	if err != nil {
		return 0, err
	}

	expiring := services.ScanExpiring(cat, payload.Credits, year, now, window)
	for _, ec := range expiring {
		logger.Info("Credit expiring soon",
			"card_id", ec.CardID,
			"credit_id", ec.CreditID,
			"period", ec.PeriodLabel,
			"remaining", ec.Remaining.String(),
			"closes_at", ec.ClosesAt.Format("2006-01-02"))

		if amqpClient == nil {
			continue
		}
		msg := &amqp.ExpiryReminderMessage{
			CardID:         ec.CardID,
			CreditID:       ec.CreditID,
			Title:          ec.Title,
			PeriodLabel:    ec.PeriodLabel,
			RemainingCents: ec.Remaining.Cents,
			ClosesAt:       ec.ClosesAt,
			Timestamp:      now,
		}
		if err := amqpClient.PublishExpiryReminder(ctx, msg); err != nil {
			logger.Error("Failed to publish expiry reminder",
				"error", err,
				"card_id", ec.CardID,
				"credit_id", ec.CreditID)
		}
	}
	return len(expiring), nil
}
