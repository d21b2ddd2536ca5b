package backend

import (
	"context"

	"perks/internal/catalog"
	"perks/internal/ledger"
)

// Backend is the unified data surface the HTTP layer depends on: read the
// year's credits and cards, record and delete usage.
type Backend interface {
	ledger.CreditSource
	ledger.CardReader
	ledger.UsageRecorder
	ledger.UsageDeleter
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance, the catalog it was built
// with, and an optional cleanup function.
type BackendResult struct {
	Backend Backend
	Catalog *catalog.Catalog
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Credit catalog, shared by all backends
	CatalogPath string

	// Memory backend specific
	SeedCardsPath string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
