package amqp

import (
	"encoding/json"
	"time"
)

// UsageSyncMessage asks the worker to export one history record to the
// ledger. It carries only the row id; the worker fetches the full record
// from the database so the queue never holds stale payloads.
type UsageSyncMessage struct {
	HistoryID int64     `json:"history_id"`
	Operation string    `json:"operation"` // "sync" or "delete"
	Timestamp time.Time `json:"timestamp"`
}

// NewUsageSyncMessage creates a sync message for one history row.
func NewUsageSyncMessage(historyID int64, operation string) *UsageSyncMessage {
	return &UsageSyncMessage{
		HistoryID: historyID,
		Operation: operation,
		Timestamp: time.Now(),
	}
}

func (m *UsageSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func UsageSyncMessageFromJSON(data []byte) (*UsageSyncMessage, error) {
	var msg UsageSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// ExpiryReminderMessage notifies downstream consumers that a credit's
// current period closes soon with value still unredeemed.
type ExpiryReminderMessage struct {
	CardID         string    `json:"card_id"`
	CreditID       string    `json:"credit_id"`
	Title          string    `json:"title"`
	PeriodLabel    string    `json:"period_label"`
	RemainingCents int64     `json:"remaining_cents"`
	ClosesAt       time.Time `json:"closes_at"`
	Timestamp      time.Time `json:"timestamp"`
}

func (m *ExpiryReminderMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func ExpiryReminderMessageFromJSON(data []byte) (*ExpiryReminderMessage, error) {
	var msg ExpiryReminderMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
