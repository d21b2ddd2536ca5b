package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// SyncQueue is one pending ledger-export item.
type SyncQueue struct {
	ID        int64
	HistoryID int64
	Operation string // "sync" or "delete"
	Status    string // pending | processing | completed | failed
	Attempts  int
	LastError string
}

// DequeueSyncBatch returns up to limit pending items, oldest first.
func (r *SQLiteRepository) DequeueSyncBatch(ctx context.Context, limit int64) ([]SyncQueue, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, history_id, operation, status, attempts, COALESCE(last_error, '')
		FROM sync_queue WHERE status = 'pending' ORDER BY id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("dequeue sync batch: %w", err)
	}
	defer rows.Close()

	var items []SyncQueue
	for rows.Next() {
		var it SyncQueue
		if err := rows.Scan(&it.ID, &it.HistoryID, &it.Operation, &it.Status, &it.Attempts, &it.LastError); err != nil {
			return nil, fmt.Errorf("scan sync item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// MarkSyncProcessing claims an item before it is worked on.
func (r *SQLiteRepository) MarkSyncProcessing(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = 'processing', updated_at = datetime('now') WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark processing %d: %w", id, err)
	}
	return nil
}

// MarkSyncCompleted finishes an item.
func (r *SQLiteRepository) MarkSyncCompleted(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = 'completed', updated_at = datetime('now') WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("mark completed %d: %w", id, err)
	}
	return nil
}

// MarkSyncFailed records a failed attempt. Items that exhausted maxRetries
// go to failed; otherwise they return to pending for the next poll.
func (r *SQLiteRepository) MarkSyncFailed(ctx context.Context, id int64, attemptErr error, maxRetries int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue
		SET attempts = attempts + 1,
		    last_error = ?,
		    status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE 'pending' END,
		    updated_at = datetime('now')
		WHERE id = ?`, attemptErr.Error(), maxRetries, id)
	if err != nil {
		return fmt.Errorf("mark failed %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.WarnContext(ctx, "Sync item vanished while failing it", "id", id)
	}
	return nil
}

// ResetStaleProcessing returns crashed-over 'processing' items to pending.
// Called once at processor startup.
func (r *SQLiteRepository) ResetStaleProcessing(ctx context.Context) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE sync_queue SET status = 'pending', updated_at = datetime('now')
		WHERE status = 'processing'`)
	if err != nil {
		return fmt.Errorf("reset stale processing: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.InfoContext(ctx, "Reset stale sync items", "count", n)
	}
	return nil
}

// CleanupCompleted removes completed items older than age.
func (r *SQLiteRepository) CleanupCompleted(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age).Format("2006-01-02 15:04:05")
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM sync_queue WHERE status = 'completed' AND updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup completed: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
