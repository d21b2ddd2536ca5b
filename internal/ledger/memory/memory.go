// Package memory is an in-process backend for development and tests.
// It holds cards and usage history in maps behind one mutex and implements
// the same ports as the SQLite backend.
package memory

import (
	"context"
	"fmt"
	"sync"

	"perks/internal/catalog"
	"perks/internal/core"
	"perks/internal/ledger"
	"perks/internal/period"
)

type creditKey struct {
	cardID   string
	creditID string
	year     int
}

type Store struct {
	mu      sync.Mutex
	catalog *catalog.Catalog
	cards   []core.Card
	history map[creditKey]core.History
	// binding metadata captured on first write for a key
	anniversary map[creditKey]int // anniversary year, 0 for calendar credits
	seq         int
}

var (
	_ ledger.CreditSource  = (*Store)(nil)
	_ ledger.CardReader    = (*Store)(nil)
	_ ledger.UsageRecorder = (*Store)(nil)
	_ ledger.UsageDeleter  = (*Store)(nil)
)

// New creates an empty store. Cards can be seeded up front; usage arrives
// through RecordUsage.
func New(cat *catalog.Catalog, cards []core.Card) *Store {
	return &Store{
		catalog:     cat,
		cards:       append([]core.Card(nil), cards...),
		history:     map[creditKey]core.History{},
		anniversary: map[creditKey]int{},
	}
}

// ListCards returns the seeded cards in their original order.
func (s *Store) ListCards(_ context.Context) ([]core.Card, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]core.Card(nil), s.cards...), nil
}

// FetchCalendarCredits returns one UserCredit per (card, credit) pair that
// has any recorded history for the year. excludeHidden is accepted for port
// parity; the memory store has no hidden flag.
func (s *Store) FetchCalendarCredits(_ context.Context, year int, _ bool) (core.CalendarUserCredits, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out core.CalendarUserCredits
	for key, hist := range s.history {
		if key.year != year {
			continue
		}
		uc := core.UserCredit{
			CardID:   key.cardID,
			CreditID: key.creditID,
			History:  append(core.History(nil), hist...),
		}
		if def, ok := s.catalog.Get(key.creditID); ok {
			uc.AssociatedPeriod = def.AssociatedPeriod
			uc.AnniversaryBased = def.AnniversaryBased
		}
		if ay := s.anniversary[key]; ay != 0 {
			uc.AnniversaryBased = true
			uc.AnniversaryYear = ay
		}
		out.Credits = append(out.Credits, uc)
	}
	return out, nil
}

// RecordUsage upserts the history entry for the period and returns a
// synthetic entry reference.
func (s *Store) RecordUsage(_ context.Context, u core.UsageUpdate) (string, error) {
	if err := u.Validate(); err != nil {
		return "", err
	}
	def, ok := s.catalog.Get(u.CreditID)
	if !ok {
		return "", fmt.Errorf("unknown credit %q", u.CreditID)
	}
	if u.ValueUsed.Cents > def.Value.Cents {
		return "", fmt.Errorf("value used %s exceeds credit value %s: %w",
			u.ValueUsed, def.Value, core.ErrInvalidValue)
	}
	if !period.ValidNumber(def.AssociatedPeriod, def.AnniversaryBased, u.PeriodNumber) {
		return "", fmt.Errorf("period %d out of range for %s credit: %w",
			u.PeriodNumber, def.AssociatedPeriod, core.ErrInvalidPeriodNumber)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := creditKey{cardID: u.CardID, creditID: u.CreditID, year: u.Year}
	entry := core.HistoryEntry{
		PeriodNumber: u.PeriodNumber,
		Status:       u.Status,
		ValueUsed:    u.ValueUsed,
	}
	hist := s.history[key]
	replaced := false
	for i, e := range hist {
		if e.PeriodNumber == u.PeriodNumber {
			hist[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		hist = append(hist, entry)
	}
	s.history[key] = hist
	if u.AnniversaryYear != 0 {
		s.anniversary[key] = u.AnniversaryYear
	}
	s.ensureCard(u.CardID)

	s.seq++
	return fmt.Sprintf("mem:%d", s.seq), nil
}

// DeleteUsage removes the recorded period, reverting it to inactive.
// Deleting a period that was never recorded is a no-op.
func (s *Store) DeleteUsage(_ context.Context, cardID, creditID string, periodNumber, year int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := creditKey{cardID: cardID, creditID: creditID, year: year}
	hist := s.history[key]
	for i, e := range hist {
		if e.PeriodNumber == periodNumber {
			s.history[key] = append(hist[:i], hist[i+1:]...)
			break
		}
	}
	if len(s.history[key]) == 0 {
		delete(s.history, key)
		delete(s.anniversary, key)
	}
	return nil
}

func (s *Store) ensureCard(cardID string) {
	for _, c := range s.cards {
		if c.CardID == cardID {
			return
		}
	}
	s.cards = append(s.cards, core.Card{CardID: cardID, Name: cardID})
}
