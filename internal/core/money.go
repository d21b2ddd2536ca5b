// Package core provides the domain model for credit tracking.
//
// This file contains money parsing and arithmetic helpers. All amounts are
// kept as integer cents; floating point only appears at display boundaries.
package core

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and
// performs half-up rounding on the third decimal place. Negative values are
// rejected; zero is allowed (recording that nothing was redeemed is valid).
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,34") -> 1234, nil
//	ParseDecimalToCents("12.346") -> 1235, nil (rounds up)
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidValue
	}
	// Normalize decimal comma to dot
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidValue
	}
	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return 0, ErrInvalidValue
	}
	intPart := parts[0]
	fracPart := ""
	if len(parts) == 2 {
		fracPart = parts[1]
	}
	if intPart == "" {
		intPart = "0"
	}
	for _, r := range intPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidValue
		}
	}
	for _, r := range fracPart {
		if !unicode.IsDigit(r) {
			return 0, ErrInvalidValue
		}
	}
	iv, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return 0, ErrInvalidValue
	}
	// Prevent overflow when multiplying by 100
	const maxSafeInt64 = (1<<63 - 1) / 100
	if iv > maxSafeInt64 {
		return 0, ErrInvalidValue
	}
	// Take first two fractional digits; then half-up rounding on third
	var fracCents int64
	if len(fracPart) > 0 {
		d1 := int64(fracPart[0] - '0')
		fracCents = d1 * 10
		if len(fracPart) > 1 {
			d2 := int64(fracPart[1] - '0')
			fracCents += d2
			if len(fracPart) > 2 && fracPart[2] >= '5' {
				fracCents++
			}
		}
	}
	return iv*100 + fracCents, nil
}

// Dollars returns the dollar value as a float64 for display purposes.
// Use cents for calculations to avoid floating-point precision issues.
func (m Money) Dollars() float64 {
	return float64(m.Cents) / 100.0
}

// Add returns m + n.
func (m Money) Add(n Money) Money {
	return Money{Cents: m.Cents + n.Cents}
}

// DivideBy returns m split by divisor with half-up rounding at the cent.
// Used for monthly-equivalent conversion (quarterly/3, annual/12, ...).
func (m Money) DivideBy(divisor int64) Money {
	if divisor <= 0 {
		return Money{}
	}
	neg := m.Cents < 0
	c := m.Cents
	if neg {
		c = -c
	}
	q := (c + divisor/2) / divisor
	if neg {
		q = -q
	}
	return Money{Cents: q}
}

// String formats the amount as a dollar string (e.g. "$12.34").
func (m Money) String() string {
	neg := m.Cents < 0
	c := m.Cents
	if neg {
		c = -c
	}
	s := fmt.Sprintf("$%d.%02d", c/100, c%100)
	if neg {
		return "-" + s
	}
	return s
}

// PercentUsed returns used/possible as a whole percentage, half-up rounded.
// A zero possible value yields 0 rather than an error; an empty tracking
// year legitimately has nothing possible yet.
func PercentUsed(used, possible Money) int {
	if possible.Cents <= 0 {
		return 0
	}
	return int((used.Cents*100 + possible.Cents/2) / possible.Cents)
}
