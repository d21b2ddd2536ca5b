// Package period maps credit reset frequencies onto calendar period slots.
//
// Each PeriodType has its own Scheme that knows how many slots a year holds
// and how to label them. Schemes live in a registry map keyed by the
// frequency, so lookup is O(1) and new frequencies can be registered without
// touching the callers.
package period

import (
	"fmt"
	"strconv"
	"time"

	"perks/internal/core"
)

// Scheme describes one reset frequency's slot layout within a year.
type Scheme interface {
	// Intervals returns how many period slots a year holds.
	Intervals() int

	// Label returns the display label for the 1-based period number.
	// The year is only used by schemes whose label is the year itself.
	Label(periodNumber, year int) string
}

// MonthlyScheme has twelve slots labelled with month abbreviations.
type MonthlyScheme struct{}

func (MonthlyScheme) Intervals() int { return 12 }

func (MonthlyScheme) Label(periodNumber, _ int) string {
	if periodNumber < 1 || periodNumber > 12 {
		return ""
	}
	return monthLabels[periodNumber-1]
}

var monthLabels = [12]string{
	"JAN", "FEB", "MAR", "APR", "MAY", "JUN",
	"JUL", "AUG", "SEP", "OCT", "NOV", "DEC",
}

// QuarterlyScheme has four slots labelled Q1..Q4.
type QuarterlyScheme struct{}

func (QuarterlyScheme) Intervals() int { return 4 }

func (QuarterlyScheme) Label(periodNumber, _ int) string {
	if periodNumber < 1 || periodNumber > 4 {
		return ""
	}
	return "Q" + strconv.Itoa(periodNumber)
}

// SemiannualScheme has two slots labelled H1 and H2.
type SemiannualScheme struct{}

func (SemiannualScheme) Intervals() int { return 2 }

func (SemiannualScheme) Label(periodNumber, _ int) string {
	if periodNumber < 1 || periodNumber > 2 {
		return ""
	}
	return "H" + strconv.Itoa(periodNumber)
}

// AnnualScheme has a single slot labelled with the year.
type AnnualScheme struct{}

func (AnnualScheme) Intervals() int { return 1 }

func (AnnualScheme) Label(_, year int) string {
	return strconv.Itoa(year)
}

// schemes maps period types to their slot layout.
var schemes = map[core.PeriodType]Scheme{
	core.Monthly:      MonthlyScheme{},
	core.Quarterly:    QuarterlyScheme{},
	core.Semiannually: SemiannualScheme{},
	core.Annually:     AnnualScheme{},
}

// GetScheme returns the scheme for a period type. Returns an error for
// unregistered types; callers that already normalized their input never
// see it.
func GetScheme(pt core.PeriodType) (Scheme, error) {
	s, ok := schemes[pt]
	if !ok {
		return nil, fmt.Errorf("unknown period type: %s", pt)
	}
	return s, nil
}

// RegisterScheme registers a custom scheme for a new frequency.
func RegisterScheme(pt core.PeriodType, s Scheme) {
	schemes[pt] = s
}

// SchemeFor is the lenient lookup used by the view pipeline: unrecognized
// period types fall back to the monthly layout instead of failing, matching
// how upstream payloads have always been handled.
func SchemeFor(pt core.PeriodType) Scheme {
	if s, ok := schemes[pt]; ok {
		return s
	}
	return MonthlyScheme{}
}

// Intervals returns the slot count for a period type, with the same
// monthly fallback as SchemeFor.
func Intervals(pt core.PeriodType) int {
	return SchemeFor(pt).Intervals()
}

// ValidNumber reports whether periodNumber addresses a real slot for the
// credit. Anniversary credits have a single slot regardless of their
// nominal period type.
func ValidNumber(pt core.PeriodType, anniversary bool, periodNumber int) bool {
	if anniversary {
		return periodNumber == 1
	}
	return periodNumber >= 1 && periodNumber <= Intervals(pt)
}

// CurrentIndex returns the 1-based period slot the reference date falls in.
// The result is only meaningful relative to ref's own month; pass the
// current time to get "today's period". Never calls the system clock.
func CurrentIndex(pt core.PeriodType, ref time.Time) int {
	intervals := Intervals(pt)
	if intervals <= 1 {
		return 1
	}
	idx := (int(ref.Month())-1)/(12/intervals) + 1
	if idx < 1 {
		return 1
	}
	if idx > intervals {
		return intervals
	}
	return idx
}

// IsFuture reports whether the given period slot of targetYear lies after
// the slot now falls in. Every slot of a later year is future; no slot of
// an earlier year ever is, regardless of period number.
func IsFuture(periodNumber int, pt core.PeriodType, targetYear int, now time.Time) bool {
	switch {
	case targetYear > now.Year():
		return true
	case targetYear < now.Year():
		return false
	default:
		return periodNumber > CurrentIndex(pt, now)
	}
}

// End returns the instant the given period slot closes: the first moment
// of the following slot (UTC). Unredeemed value lapses at this boundary.
func End(pt core.PeriodType, periodNumber, year int) time.Time {
	intervals := Intervals(pt)
	if periodNumber < 1 {
		periodNumber = 1
	}
	if periodNumber > intervals {
		periodNumber = intervals
	}
	monthsPerSlot := 12 / intervals
	endMonth := periodNumber * monthsPerSlot // 0-based month after the slot
	return time.Date(year, time.Month(endMonth+1), 1, 0, 0, 0, 0, time.UTC)
}

// Labels returns the ordered display labels for every slot of the year.
func Labels(pt core.PeriodType, year int) []string {
	s := SchemeFor(pt)
	labels := make([]string, s.Intervals())
	for i := range labels {
		labels[i] = s.Label(i+1, year)
	}
	return labels
}
