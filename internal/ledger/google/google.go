// Package google exports usage records and yearly summaries to a Google
// Sheets spreadsheet using Service Account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"perks/internal/core"
	"perks/internal/ledger"
)

// Client writes to one spreadsheet. Sheet names are prefixed with the
// tracking year ("2026 Usage", "2026 Summary") so every year gets its own
// tabs and old years stay untouched.
type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	usageBase     string
	summaryBase   string
}

// Ensure interface conformance
var (
	_ ledger.UsageExporter   = (*Client)(nil)
	_ ledger.SummaryExporter = (*Client)(nil)
)

// NewFromEnv creates a Sheets client from environment variables.
// Required: GOOGLE_SPREADSHEET_ID.
// Optional: GOOGLE_USAGE_SHEET_NAME (default "Usage"),
// GOOGLE_SUMMARY_SHEET_NAME (default "Summary").
// Credentials: GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE,
// or GOOGLE_APPLICATION_CREDENTIALS.
func NewFromEnv(ctx context.Context) (*Client, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	usageBase := strings.TrimSpace(os.Getenv("GOOGLE_USAGE_SHEET_NAME"))
	if usageBase == "" {
		usageBase = "Usage"
	}
	summaryBase := strings.TrimSpace(os.Getenv("GOOGLE_SUMMARY_SHEET_NAME"))
	if summaryBase == "" {
		summaryBase = "Summary"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		usageBase:     usageBase,
		summaryBase:   summaryBase,
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account
// credentials from the environment.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error
	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

func yearSheet(base string, year int) string {
	return fmt.Sprintf("%d %s", year, base)
}

// AppendUsage implements ledger.UsageExporter. Rows land on the year's
// usage tab: Card | Credit | Title | Period | Status | Value | Recorded.
func (c *Client) AppendUsage(ctx context.Context, row ledger.UsageRow) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}

	sheet := yearSheet(c.usageBase, row.Year)

	// Find the next empty row from the key column's current height.
	rng := fmt.Sprintf("%s!A:A", sheet)
	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("get sheet dimensions for %s: %w", sheet, err)
	}
	nextRow := len(resp.Values) + 1

	recorded := row.RecordedAt
	if recorded.IsZero() {
		recorded = time.Now()
	}
	dataRange := fmt.Sprintf("%s!A%d:G%d", sheet, nextRow, nextRow)
	vr := &gsheet.ValueRange{Values: [][]any{{
		row.CardID,
		row.CreditID,
		row.Title,
		row.PeriodLabel,
		string(row.Status),
		row.ValueUsed.Dollars(),
		recorded.Format("2006-01-02"),
	}}}

	_, err = c.svc.Spreadsheets.Values.Update(c.spreadsheetID, dataRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", dataRange, err)
	}

	ref := dataRange
	slog.InfoContext(ctx, "Appended usage row to spreadsheet",
		"sheet", sheet, "row", nextRow, "credit_id", row.CreditID)
	return ref, nil
}

// WriteYearSummary implements ledger.SummaryExporter. The year's summary
// tab is rewritten wholesale: one header row, then one row per card.
func (c *Client) WriteYearSummary(ctx context.Context, year int, cards []core.CardSummary) error {
	if c.svc == nil {
		return errors.New("sheets service not initialized")
	}

	sheet := yearSheet(c.summaryBase, year)
	values := [][]any{{"Card", "Credits", "Monthly Value", "Used", "Possible", "Used %"}}
	for _, card := range cards {
		values = append(values, []any{
			card.Name,
			card.CreditCount,
			card.TotalMonthlyValue.Dollars(),
			card.TotalUsedValue.Dollars(),
			card.TotalPossibleValue.Dollars(),
			strconv.Itoa(card.UsagePercent) + "%",
		})
	}

	rng := fmt.Sprintf("%s!A1:F%d", sheet, len(values))
	vr := &gsheet.ValueRange{Values: values}
	if _, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write summary %s: %w", rng, err)
	}

	slog.InfoContext(ctx, "Wrote year summary to spreadsheet",
		"sheet", sheet, "cards", len(cards))
	return nil
}
