package core

type (
	// PeriodInfo is one period slot of one credit in one display year.
	// It is a pure projection rebuilt on every recompute pass; nothing
	// persists it and nothing mutates it in place.
	PeriodInfo struct {
		PeriodNumber    int
		Label           string // "JAN".."DEC", "Q1".."Q4", "H1"/"H2", or a year
		Status          UsageStatus
		ValueUsed       Money
		MaxValue        Money // the credit's face value
		IsFuture        bool
		AnniversaryYear int // set only for anniversary-based credits
	}

	// CreditView is one credit expanded into its periods plus roll-ups,
	// ready for rendering.
	CreditView struct {
		CardID        string
		CreditID      string
		Title         string
		Value         Money
		Period        PeriodType
		Anniversary   bool
		Periods       []PeriodInfo
		TotalUsed     Money
		TotalPossible Money
		MonthlyValue  Money
	}

	// CardSummary aggregates all credits of one card.
	CardSummary struct {
		CardID             string
		Name               string
		Preferred          bool
		CreditCount        int
		TotalMonthlyValue  Money
		TotalUsedValue     Money
		TotalPossibleValue Money
		UsagePercent       int
		Credits            []CreditView
	}

	// StatusCounts tallies credits by their current-period state together
	// with the dollar value behind each bucket.
	StatusCounts struct {
		Used        int
		Partial     int
		Unused      int
		UsedValue   Money
		UnusedValue Money
	}

	// PortfolioStats is the portfolio-level roll-up for one year.
	PortfolioStats struct {
		MonthlyCredits  StatusCounts // credits that reset every month
		CurrentCredits  StatusCounts // credits whose current period is open
		AllCredits      StatusCounts
		ExpiringCredits StatusCounts // unredeemed in their closing period
	}
)
