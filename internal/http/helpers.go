package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// parseYearParam extracts the tracking year from query parameters.
// Returns the current year if not provided or invalid.
func parseYearParam(r *http.Request) int {
	year := time.Now().Year()
	if v := strings.TrimSpace(r.URL.Query().Get("year")); v != "" {
		if y, err := strconv.Atoi(v); err == nil && y >= 2000 && y <= 2200 {
			year = y
		}
	}
	return year
}

// sanitizeInput removes potentially dangerous characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	result := strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
	return result
}
