package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"perks/internal/core"
	"perks/internal/period"
	"perks/internal/services"
)

// yearOptions lists the selectable tracking years, newest first.
func yearOptions(now time.Time) []int {
	current := now.Year()
	years := make([]int, 0, 5)
	for y := current + 1; y >= current-3; y-- {
		years = append(years, y)
	}
	return years
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		NotFoundError("Page not found").Write(w)
		return
	}
	if s.templates == nil {
		slog.ErrorContext(r.Context(), "Templates not loaded", "url", r.URL.Path)
		http.Error(w, "templates not loaded", http.StatusInternalServerError)
		return
	}

	year := parseYearParam(r)
	data := struct {
		Year  int
		Years []int
	}{
		Year:  year,
		Years: yearOptions(time.Now()),
	}

	if err := s.templates.ExecuteTemplate(w, "index.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Index template execution failed", "error", err, "template", "index.html")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handlePortfolioPartial renders the portfolio partial for one year.
func (s *Server) handlePortfolioPartial(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")

	year := parseYearParam(r)
	snap := s.loadSnapshot(r.Context(), year)

	if snap.State == services.StateError {
		slog.ErrorContext(r.Context(), "Portfolio load error", "error", snap.Err, "year", year)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`<section id="portfolio" class="portfolio"><div class="placeholder">Could not load portfolio. <button hx-get="/ui/portfolio?year=` +
			strconv.Itoa(year) + `" hx-target="#portfolio" hx-swap="outerHTML">Retry</button></div></section>`))
		return
	}

	if s.templates == nil {
		_, _ = w.Write([]byte(`<section id="portfolio" class="portfolio"><div class="placeholder">` +
			strconv.Itoa(len(snap.Cards)) + ` cards</div></section>`))
		return
	}

	data := struct {
		Year     int
		Loading  bool
		Cards    []core.CardSummary
		Stats    core.PortfolioStats
		Expanded map[string]bool
	}{
		Year:     year,
		Loading:  snap.State == services.StateLoadingInitial || snap.State == services.StateLoadingYearChange,
		Cards:    snap.Cards,
		Stats:    snap.Stats,
		Expanded: snap.Expanded,
	}

	if err := s.templates.ExecuteTemplate(w, "portfolio.html", data); err != nil {
		slog.ErrorContext(r.Context(), "Template execution error", "error", err, "template", "portfolio.html", "year", year)
		_, _ = w.Write([]byte(`<section id="portfolio" class="portfolio"><div class="placeholder">Could not render portfolio</div></section>`))
	}
}

// handleToggleCard flips a card's expanded state and re-renders the partial.
func (s *Server) handleToggleCard(w http.ResponseWriter, r *http.Request) {
	if errResp := RequirePOST(r); errResp != nil {
		errResp.Write(w)
		return
	}
	if err := r.ParseForm(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}
	cardID := sanitizeInput(r.Form.Get("card_id"))
	if cardID == "" {
		UnprocessableEntityError("Missing card id").Write(w)
		return
	}
	s.portfolio.ToggleCard(cardID)
	s.invalidateViews()
	s.handlePortfolioPartial(w, r)
}

// API response shapes. Cents are authoritative; formatted strings are a
// convenience for thin clients.
type (
	apiPeriod struct {
		PeriodNumber int    `json:"period_number"`
		Label        string `json:"label"`
		Status       string `json:"status"`
		ValueUsed    int64  `json:"value_used_cents"`
		MaxValue     int64  `json:"max_value_cents"`
		IsFuture     bool   `json:"is_future"`
	}

	apiCredit struct {
		CreditID      string      `json:"credit_id"`
		Title         string      `json:"title"`
		Period        string      `json:"period"`
		Anniversary   bool        `json:"anniversary"`
		Value         int64       `json:"value_cents"`
		MonthlyValue  int64       `json:"monthly_value_cents"`
		TotalUsed     int64       `json:"total_used_cents"`
		TotalPossible int64       `json:"total_possible_cents"`
		Periods       []apiPeriod `json:"periods"`
	}

	apiCard struct {
		CardID        string      `json:"card_id"`
		Name          string      `json:"name"`
		Preferred     bool        `json:"preferred"`
		CreditCount   int         `json:"credit_count"`
		MonthlyValue  int64       `json:"monthly_value_cents"`
		UsedValue     int64       `json:"used_value_cents"`
		PossibleValue int64       `json:"possible_value_cents"`
		UsagePercent  int         `json:"usage_percent"`
		Credits       []apiCredit `json:"credits"`
	}

	apiStatusCounts struct {
		Used        int   `json:"used"`
		Partial     int   `json:"partial"`
		Unused      int   `json:"unused"`
		UsedValue   int64 `json:"used_value_cents"`
		UnusedValue int64 `json:"unused_value_cents"`
	}

	apiPortfolio struct {
		Year     int             `json:"year"`
		State    string          `json:"state"`
		Error    string          `json:"error,omitempty"`
		Cards    []apiCard       `json:"cards"`
		Monthly  apiStatusCounts `json:"monthly_credits"`
		Current  apiStatusCounts `json:"current_credits"`
		All      apiStatusCounts `json:"all_credits"`
		Expiring apiStatusCounts `json:"expiring_credits"`
	}
)

func toAPICounts(c core.StatusCounts) apiStatusCounts {
	return apiStatusCounts{
		Used:        c.Used,
		Partial:     c.Partial,
		Unused:      c.Unused,
		UsedValue:   c.UsedValue.Cents,
		UnusedValue: c.UnusedValue.Cents,
	}
}

// handleAPIPortfolio serves the portfolio snapshot as JSON.
func (s *Server) handleAPIPortfolio(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	year := parseYearParam(r)
	snap := s.loadSnapshot(r.Context(), year)

	resp := apiPortfolio{
		Year:     year,
		State:    string(snap.State),
		Monthly:  toAPICounts(snap.Stats.MonthlyCredits),
		Current:  toAPICounts(snap.Stats.CurrentCredits),
		All:      toAPICounts(snap.Stats.AllCredits),
		Expiring: toAPICounts(snap.Stats.ExpiringCredits),
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	for _, card := range snap.Cards {
		ac := apiCard{
			CardID:        card.CardID,
			Name:          card.Name,
			Preferred:     card.Preferred,
			CreditCount:   card.CreditCount,
			MonthlyValue:  card.TotalMonthlyValue.Cents,
			UsedValue:     card.TotalUsedValue.Cents,
			PossibleValue: card.TotalPossibleValue.Cents,
			UsagePercent:  card.UsagePercent,
		}
		for _, credit := range card.Credits {
			acr := apiCredit{
				CreditID:      credit.CreditID,
				Title:         credit.Title,
				Period:        string(credit.Period),
				Anniversary:   credit.Anniversary,
				Value:         credit.Value.Cents,
				MonthlyValue:  credit.MonthlyValue.Cents,
				TotalUsed:     credit.TotalUsed.Cents,
				TotalPossible: credit.TotalPossible.Cents,
			}
			for _, p := range credit.Periods {
				acr.Periods = append(acr.Periods, apiPeriod{
					PeriodNumber: p.PeriodNumber,
					Label:        p.Label,
					Status:       string(p.Status),
					ValueUsed:    p.ValueUsed.Cents,
					MaxValue:     p.MaxValue.Cents,
					IsFuture:     p.IsFuture,
				})
			}
			ac.Credits = append(ac.Credits, acr)
		}
		resp.Cards = append(resp.Cards, ac)
	}

	if snap.State == services.StateError {
		w.WriteHeader(http.StatusBadGateway)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(r.Context(), "Portfolio JSON encode error", "error", err, "year", year)
	}
}

// handleRecordUsage records usage for one credit period.
func (s *Server) handleRecordUsage(w http.ResponseWriter, r *http.Request) {
	if errResp := RequirePOST(r); errResp != nil {
		errResp.Write(w)
		return
	}

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		slog.ErrorContext(r.Context(), "Parse body error", "error", err, "method", r.Method, "url", r.URL.Path)
		BadRequestError("Invalid request format").Write(w)
		return
	}

	update := core.UsageUpdate{
		CardID:          parser.Get("card_id"),
		CreditID:        parser.Get("credit_id"),
		PeriodNumber:    parser.GetInt("period_number", 0),
		Status:          core.UsageStatus(parser.Get("status")),
		Year:            parser.GetInt("year", time.Now().Year()),
		AnniversaryYear: parser.GetInt("anniversary_year", 0),
	}
	if update.Status == "" {
		update.Status = core.StatusUsed
	}

	def, ok := s.catalog.Get(update.CreditID)
	if !ok {
		UnprocessableEntityError("Unknown credit").Write(w)
		return
	}

	if v := parser.Get("value_used"); v != "" {
		cents, err := core.ParseDecimalToCents(v)
		if err != nil {
			UnprocessableEntityError("Invalid value").Write(w)
			return
		}
		update.ValueUsed = core.Money{Cents: cents}
	} else if update.Status == core.StatusUsed {
		// A full redemption without an explicit value uses the face value.
		update.ValueUsed = def.Value
	}

	if err := update.Validate(); err != nil {
		UnprocessableEntityError("Invalid usage data: " + err.Error()).Write(w)
		return
	}
	if update.ValueUsed.Cents > def.Value.Cents {
		UnprocessableEntityError("Value exceeds the credit's face value").Write(w)
		return
	}
	if !period.ValidNumber(def.AssociatedPeriod, def.AnniversaryBased, update.PeriodNumber) {
		UnprocessableEntityError("Period out of range for this credit").Write(w)
		return
	}

	ref, err := s.backend.RecordUsage(r.Context(), update)
	if err != nil {
		slog.ErrorContext(r.Context(), "Usage record error", "error", err,
			"card_id", update.CardID, "credit_id", update.CreditID, "period", update.PeriodNumber)
		InternalServerError("Could not save usage").Write(w)
		return
	}

	s.invalidateViews()

	NewHTMXResponse().
		TriggerUsageRecorded(update.CardID, update.Year).
		TriggerPortfolioRefresh(update.Year).
		TriggerSuccessNotification("Usage recorded (#" + ref + ")").
		BodyHTML(`<div class="success">Usage recorded for ` + def.Title + `</div>`).
		Write(w)
}

// handleDeleteUsage reverts a recorded period back to inactive.
func (s *Server) handleDeleteUsage(w http.ResponseWriter, r *http.Request) {
	if errResp := RequireDeleteOrPOST(r); errResp != nil {
		errResp.Write(w)
		return
	}

	parser := NewRequestBodyParser(r)
	if err := parser.Parse(); err != nil {
		BadRequestError("Invalid request format").Write(w)
		return
	}

	cardID := parser.Get("card_id")
	creditID := parser.Get("credit_id")
	periodNumber := parser.GetInt("period_number", 0)
	year := parser.GetInt("year", time.Now().Year())

	if cardID == "" || creditID == "" || periodNumber < 1 || periodNumber > 12 {
		UnprocessableEntityError("Invalid usage data").Write(w)
		return
	}

	if err := s.backend.DeleteUsage(r.Context(), cardID, creditID, periodNumber, year); err != nil {
		slog.ErrorContext(r.Context(), "Usage delete error", "error", err,
			"card_id", cardID, "credit_id", creditID, "period", periodNumber, "year", year)
		InternalServerError("Could not delete usage").Write(w)
		return
	}

	s.invalidateViews()

	NewHTMXResponse().
		TriggerUsageDeleted(cardID, year).
		TriggerPortfolioRefresh(year).
		BodyHTML(`<div class="success">Usage removed</div>`).
		Write(w)
}
