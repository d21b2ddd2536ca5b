package ledger

import (
	"context"
	"time"

	"perks/internal/core"
)

// UsageRow is one exported usage record, shaped for the ledger sheet.
// Storage fills the identity and usage fields; the exporter side fills
// Title and PeriodLabel from the catalog and period scheme.
type UsageRow struct {
	Year         int
	CardID       string
	CreditID     string
	Title        string
	PeriodNumber int
	Period       core.PeriodType
	Anniversary  bool
	PeriodLabel  string
	Status       core.UsageStatus
	ValueUsed    core.Money
	RecordedAt   time.Time
}

// Ports for outbound adapters.
type (
	// CreditSource returns the user's credit bindings for one tracking year.
	CreditSource interface {
		FetchCalendarCredits(ctx context.Context, year int, excludeHidden bool) (core.CalendarUserCredits, error)
	}

	// CardReader lists the user's cards.
	CardReader interface {
		ListCards(ctx context.Context) ([]core.Card, error)
	}

	// UsageRecorder persists a usage update for one credit period.
	UsageRecorder interface {
		RecordUsage(ctx context.Context, u core.UsageUpdate) (entryRef string, err error)
	}

	// UsageDeleter removes a recorded period, reverting it to inactive.
	UsageDeleter interface {
		DeleteUsage(ctx context.Context, cardID, creditID string, periodNumber, year int) error
	}

	// UsageExporter appends usage rows to the external ledger.
	UsageExporter interface {
		AppendUsage(ctx context.Context, row UsageRow) (rowRef string, err error)
	}

	// SummaryExporter writes the yearly roll-up for every card.
	SummaryExporter interface {
		WriteYearSummary(ctx context.Context, year int, cards []core.CardSummary) error
	}
)
