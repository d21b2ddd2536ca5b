package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"perks/internal/core"
	"perks/internal/ledger"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// SQLiteRepository is the local store for cards, user credits, sparse
// usage history, and the ledger sync queue.
type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys = ON`); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := runMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// UpsertCard inserts or updates one card.
func (r *SQLiteRepository) UpsertCard(ctx context.Context, c core.Card) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cards (card_id, name, preferred)
		VALUES (?, ?, ?)
		ON CONFLICT (card_id) DO UPDATE SET name = excluded.name, preferred = excluded.preferred`,
		c.CardID, c.Name, boolToInt(c.Preferred))
	if err != nil {
		return fmt.Errorf("upsert card %s: %w", c.CardID, err)
	}
	return nil
}

// ListCards implements ledger.CardReader.
func (r *SQLiteRepository) ListCards(ctx context.Context) ([]core.Card, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT card_id, name, preferred FROM cards WHERE hidden = 0 ORDER BY card_id`)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var cards []core.Card
	for rows.Next() {
		var c core.Card
		var preferred int
		if err := rows.Scan(&c.CardID, &c.Name, &preferred); err != nil {
			return nil, fmt.Errorf("scan card: %w", err)
		}
		c.Preferred = preferred != 0
		cards = append(cards, c)
	}
	return cards, rows.Err()
}

// FetchCalendarCredits implements ledger.CreditSource: all user credits
// bound for the year, with their sparse history attached. Periods with no
// row simply do not appear in the history.
func (r *SQLiteRepository) FetchCalendarCredits(ctx context.Context, year int, excludeHidden bool) (core.CalendarUserCredits, error) {
	q := `
		SELECT uc.id, uc.card_id, uc.credit_id, uc.associated_period,
		       uc.anniversary_based, COALESCE(uc.anniversary_year, 0)
		FROM user_credits uc
		WHERE uc.year = ?`
	if excludeHidden {
		q += ` AND uc.hidden = 0`
	}
	q += ` ORDER BY uc.card_id, uc.credit_id`

	rows, err := r.db.QueryContext(ctx, q, year)
	if err != nil {
		return core.CalendarUserCredits{}, fmt.Errorf("query user credits: %w", err)
	}
	defer rows.Close()

	var (
		credits []core.UserCredit
		ids     []int64
	)
	for rows.Next() {
		var (
			id          int64
			uc          core.UserCredit
			rawPeriod   string
			anniversary int
		)
		if err := rows.Scan(&id, &uc.CardID, &uc.CreditID, &rawPeriod, &anniversary, &uc.AnniversaryYear); err != nil {
			return core.CalendarUserCredits{}, fmt.Errorf("scan user credit: %w", err)
		}
		uc.AssociatedPeriod, _ = core.NormalizePeriodType(rawPeriod)
		uc.AnniversaryBased = anniversary != 0
		credits = append(credits, uc)
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return core.CalendarUserCredits{}, err
	}

	for i, id := range ids {
		history, err := r.historyFor(ctx, id)
		if err != nil {
			return core.CalendarUserCredits{}, err
		}
		credits[i].History = history
	}
	return core.CalendarUserCredits{Credits: credits}, nil
}

func (r *SQLiteRepository) historyFor(ctx context.Context, userCreditID int64) (core.History, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT period_number, status, value_used_cents
		FROM credit_history WHERE user_credit_id = ? ORDER BY period_number`,
		userCreditID)
	if err != nil {
		return nil, fmt.Errorf("query history %d: %w", userCreditID, err)
	}
	defer rows.Close()

	var h core.History
	for rows.Next() {
		var e core.HistoryEntry
		var status string
		if err := rows.Scan(&e.PeriodNumber, &status, &e.ValueUsed.Cents); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Status = core.UsageStatus(status)
		h = append(h, e)
	}
	return h, rows.Err()
}

// UpsertUsage records a usage update in one transaction: the user-credit
// binding is created on first touch, the period row is upserted (the unique
// index keeps one row per period), and a sync-queue row is enqueued for the
// ledger export. Returns the history row id.
func (r *SQLiteRepository) UpsertUsage(ctx context.Context, u core.UsageUpdate, def core.CreditDefinition) (int64, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var anniversaryYear any
	if u.AnniversaryYear != 0 {
		anniversaryYear = u.AnniversaryYear
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO user_credits (card_id, credit_id, year, associated_period, anniversary_based, anniversary_year)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (card_id, credit_id, year) DO NOTHING`,
		u.CardID, u.CreditID, u.Year, string(def.AssociatedPeriod),
		boolToInt(def.AnniversaryBased), anniversaryYear); err != nil {
		return 0, fmt.Errorf("upsert user credit: %w", err)
	}

	var userCreditID int64
	if err := tx.QueryRowContext(ctx, `
		SELECT id FROM user_credits WHERE card_id = ? AND credit_id = ? AND year = ?`,
		u.CardID, u.CreditID, u.Year).Scan(&userCreditID); err != nil {
		return 0, fmt.Errorf("find user credit: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO credit_history (user_credit_id, period_number, status, value_used_cents, updated_at)
		VALUES (?, ?, ?, ?, datetime('now'))
		ON CONFLICT (user_credit_id, period_number)
		DO UPDATE SET status = excluded.status,
		              value_used_cents = excluded.value_used_cents,
		              updated_at = datetime('now')`,
		userCreditID, u.PeriodNumber, string(u.Status), u.ValueUsed.Cents); err != nil {
		return 0, fmt.Errorf("upsert history: %w", err)
	}

	var historyID int64
	if err := tx.QueryRowContext(ctx, `
		SELECT id FROM credit_history WHERE user_credit_id = ? AND period_number = ?`,
		userCreditID, u.PeriodNumber).Scan(&historyID); err != nil {
		return 0, fmt.Errorf("find history row: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sync_queue (history_id, operation) VALUES (?, 'sync')`,
		historyID); err != nil {
		return 0, fmt.Errorf("enqueue sync: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}

	slog.InfoContext(ctx, "Usage recorded",
		"card_id", u.CardID,
		"credit_id", u.CreditID,
		"year", u.Year,
		"period", u.PeriodNumber,
		"status", u.Status,
		"value_used_cents", u.ValueUsed.Cents)

	return historyID, nil
}

// DeleteUsage removes a recorded period, reverting it to the inactive
// default. Deleting a period that was never recorded is not an error.
func (r *SQLiteRepository) DeleteUsage(ctx context.Context, cardID, creditID string, periodNumber, year int) error {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM credit_history
		WHERE period_number = ?
		  AND user_credit_id IN (
		      SELECT id FROM user_credits WHERE card_id = ? AND credit_id = ? AND year = ?)`,
		periodNumber, cardID, creditID, year)
	if err != nil {
		return fmt.Errorf("delete usage: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.InfoContext(ctx, "Usage record deleted",
			"card_id", cardID, "credit_id", creditID, "year", year, "period", periodNumber)
	}
	return nil
}

// GetUsageRow assembles the export row for one history record.
func (r *SQLiteRepository) GetUsageRow(ctx context.Context, historyID int64) (ledger.UsageRow, error) {
	var (
		row         ledger.UsageRow
		status      string
		rawPeriod   string
		anniversary int
		updatedAt   string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT uc.year, uc.card_id, uc.credit_id, uc.associated_period, uc.anniversary_based,
		       h.period_number, h.status, h.value_used_cents, h.updated_at
		FROM credit_history h
		JOIN user_credits uc ON uc.id = h.user_credit_id
		WHERE h.id = ?`, historyID).Scan(
		&row.Year, &row.CardID, &row.CreditID, &rawPeriod, &anniversary,
		&row.PeriodNumber, &status, &row.ValueUsed.Cents, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.UsageRow{}, ErrNotFound
	}
	if err != nil {
		return ledger.UsageRow{}, fmt.Errorf("get usage row %d: %w", historyID, err)
	}
	row.Period, _ = core.NormalizePeriodType(rawPeriod)
	row.Anniversary = anniversary != 0
	row.Status = core.UsageStatus(status)
	if t, err := time.Parse("2006-01-02 15:04:05", updatedAt); err == nil {
		row.RecordedAt = t
	}
	return row, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
