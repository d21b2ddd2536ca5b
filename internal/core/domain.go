package core

import (
	"errors"
	"strings"
)

const (
	Monthly      PeriodType = "monthly"
	Quarterly    PeriodType = "quarterly"
	Semiannually PeriodType = "semiannually"
	Annually     PeriodType = "annually"
)

const (
	StatusUsed          UsageStatus = "used"
	StatusPartiallyUsed UsageStatus = "partially_used"
	StatusNotUsed       UsageStatus = "not_used"
	StatusDisabled      UsageStatus = "disabled"
	StatusInactive      UsageStatus = "inactive"
)

type (
	// PeriodType is the reset frequency of a credit within a calendar year.
	PeriodType string

	// UsageStatus is the recorded state of one credit period.
	UsageStatus string

	Money struct {
		Cents int64
	}

	// CreditDefinition is a static catalog entry for one benefit type.
	// The catalog owns these; the computation core only reads them.
	CreditDefinition struct {
		CreditID         string
		Title            string
		Value            Money // face value per reset period
		AssociatedPeriod PeriodType
		AnniversaryBased bool
	}

	// HistoryEntry records usage for one period of one user credit.
	// PeriodNumber is 1-based within the credit's period scheme.
	HistoryEntry struct {
		PeriodNumber int
		Status       UsageStatus
		ValueUsed    Money
	}

	// History is the sparse set of recorded periods for a user credit.
	// Periods with no recorded activity have no entry at all; absence
	// means inactive, which is distinct from an explicit not_used entry.
	History []HistoryEntry

	// UserCredit binds one catalog credit to one of the user's cards
	// for a tracking year.
	UserCredit struct {
		CardID           string
		CreditID         string
		AssociatedPeriod PeriodType
		AnniversaryBased bool
		AnniversaryYear  int // set only when AnniversaryBased
		History          History
	}

	// CalendarUserCredits is the payload a credit source returns for one
	// tracking year.
	CalendarUserCredits struct {
		Credits []UserCredit
	}

	// Card is one of the user's cards; credits hang off cards.
	Card struct {
		CardID    string
		Name      string
		Preferred bool
	}

	// UsageUpdate is the write-path request for recording usage of one
	// period. AnniversaryYear is set only for anniversary-based credits.
	UsageUpdate struct {
		CardID          string
		CreditID        string
		PeriodNumber    int
		Status          UsageStatus
		ValueUsed       Money
		Year            int
		AnniversaryYear int
	}
)

var (
	ErrInvalidPeriodNumber = errors.New("invalid period number")
	ErrInvalidStatus       = errors.New("invalid usage status")
	ErrInvalidValue        = errors.New("invalid value")
	ErrEmptyCardID         = errors.New("empty card id")
	ErrEmptyCreditID       = errors.New("empty credit id")
	ErrInvalidYear         = errors.New("invalid year")
)

// Valid reports whether s is one of the five recognized usage states.
func (s UsageStatus) Valid() bool {
	switch s {
	case StatusUsed, StatusPartiallyUsed, StatusNotUsed, StatusDisabled, StatusInactive:
		return true
	}
	return false
}

// Redeemed reports whether the status carries an authoritative ValueUsed.
func (s UsageStatus) Redeemed() bool {
	return s == StatusUsed || s == StatusPartiallyUsed
}

// Valid reports whether p is one of the four canonical calendar frequencies.
func (p PeriodType) Valid() bool {
	switch p {
	case Monthly, Quarterly, Semiannually, Annually:
		return true
	}
	return false
}

// NormalizePeriodType maps a raw frequency string onto the canonical
// PeriodType. Unrecognized values fall back to Monthly; upstream payloads
// have historically carried free-form strings here, and a bad frequency
// should degrade to the densest tracking rather than drop the credit.
// Callers that care can check the second return.
func NormalizePeriodType(raw string) (PeriodType, bool) {
	p := PeriodType(strings.ToLower(strings.TrimSpace(raw)))
	if p.Valid() {
		return p, true
	}
	return Monthly, false
}

// Entry returns the history entry for the given period number, if one was
// ever recorded. The second return distinguishes a real entry from the
// inactive default; callers must not collapse the two.
func (h History) Entry(periodNumber int) (HistoryEntry, bool) {
	for _, e := range h {
		if e.PeriodNumber == periodNumber {
			return e, true
		}
	}
	return HistoryEntry{}, false
}

func (u UsageUpdate) Validate() error {
	if strings.TrimSpace(u.CardID) == "" {
		return ErrEmptyCardID
	}
	if strings.TrimSpace(u.CreditID) == "" {
		return ErrEmptyCreditID
	}
	if u.PeriodNumber < 1 || u.PeriodNumber > 12 {
		return ErrInvalidPeriodNumber
	}
	if !u.Status.Valid() {
		return ErrInvalidStatus
	}
	if u.ValueUsed.Cents < 0 {
		return ErrInvalidValue
	}
	if u.Year < 2000 || u.Year > 2200 {
		return ErrInvalidYear
	}
	return nil
}
