package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"perks/internal/adapters"
	"perks/internal/amqp"
	"perks/internal/catalog"
	"perks/internal/core"
	"perks/internal/ledger/memory"
	"perks/internal/services"
	"perks/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if !config.Type.IsValid() {
		return nil, fmt.Errorf("invalid backend type: %s", config.Type)
	}

	cat, err := catalog.Load(config.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load credit catalog: %w", err)
	}
	f.logger.Info("Loaded credit catalog", "path", config.CatalogPath, "credits", cat.Len())

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(cat, config)
	case MemoryBackend:
		return f.createMemoryBackend(cat, config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

func (f *DefaultFactory) createSQLiteBackend(cat *catalog.Catalog, config Config) (*BackendResult, error) {
	sqliteRepo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	// AMQP is optional; without it usage stays local and the sync queue
	// is drained by the poller only.
	var amqpClient *amqp.Client
	if config.AMQPURL != "" {
		amqpClient, err = amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without sync", "error", err)
		} else {
			f.logger.Info("Initialized AMQP client",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
		}
	}

	usageService := services.NewUsageService(sqliteRepo, cat, amqpClient)
	adapter := adapters.NewSQLiteAdapter(sqliteRepo, usageService)

	f.logger.Info("Initialized SQLite backend",
		"db_path", config.SQLiteDBPath,
		"amqp_enabled", amqpClient != nil)

	return &BackendResult{
		Backend: adapter,
		Catalog: cat,
		Cleanup: usageService.Close,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(cat *catalog.Catalog, config Config) (*BackendResult, error) {
	cards, err := loadSeedCards(config.SeedCardsPath)
	if err != nil {
		return nil, fmt.Errorf("load seed cards: %w", err)
	}

	store := memory.New(cat, cards)

	f.logger.Info("Initialized memory backend",
		"seed_cards_path", config.SeedCardsPath,
		"cards", len(cards))

	return &BackendResult{
		Backend: store,
		Catalog: cat,
		Cleanup: nil, // No cleanup needed for memory backend
	}, nil
}

type seedCardsFile struct {
	Cards []struct {
		ID        string `yaml:"id"`
		Name      string `yaml:"name"`
		Preferred bool   `yaml:"preferred"`
	} `yaml:"cards"`
}

func loadSeedCards(path string) ([]core.Card, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file seedCardsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cards := make([]core.Card, 0, len(file.Cards))
	for _, c := range file.Cards {
		if c.ID == "" {
			continue
		}
		name := c.Name
		if name == "" {
			name = c.ID
		}
		cards = append(cards, core.Card{CardID: c.ID, Name: name, Preferred: c.Preferred})
	}
	return cards, nil
}
