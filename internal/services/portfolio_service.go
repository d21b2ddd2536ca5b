package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"perks/internal/catalog"
	"perks/internal/core"
	"perks/internal/ledger"
)

// State is the orchestrator's position in its load lifecycle.
type State string

const (
	StateIdle              State = "idle"
	StateLoadingInitial    State = "loading-initial"
	StateLoadingYearChange State = "loading-year-change"
	StateLoaded            State = "loaded"
	StateError             State = "error"
)

// Snapshot is an immutable view of the orchestrator's current state,
// safe to hand to rendering code.
type Snapshot struct {
	State    State
	Year     int
	Cards    []core.CardSummary
	Stats    core.PortfolioStats
	Expanded map[string]bool
	Err      error
}

// PortfolioService coordinates year selection, refetching, in-flight
// request cancellation, and retention of expanded-card UI state across
// reloads. At most one outstanding fetch is authoritative: selecting a new
// year cancels the previous fetch, and a superseded fetch's result, success
// or failure, never touches the displayed state.
type PortfolioService struct {
	source        ledger.CreditSource
	cards         ledger.CardReader
	catalog       *catalog.Catalog
	now           func() time.Time
	excludeHidden bool

	mu         sync.Mutex
	state      State
	year       int
	loadedYear int
	generation uint64
	cancel     context.CancelFunc
	loaded     bool
	cardViews  []core.CardSummary
	stats      core.PortfolioStats
	expanded   map[string]bool
	lastErr    error
}

// PortfolioOption tweaks service construction.
type PortfolioOption func(*PortfolioService)

// WithClock injects a deterministic time source; tests use this so period
// classification does not depend on the wall clock.
func WithClock(now func() time.Time) PortfolioOption {
	return func(s *PortfolioService) { s.now = now }
}

// WithExcludeHidden controls whether hidden credits are requested.
func WithExcludeHidden(exclude bool) PortfolioOption {
	return func(s *PortfolioService) { s.excludeHidden = exclude }
}

func NewPortfolioService(source ledger.CreditSource, cards ledger.CardReader, cat *catalog.Catalog, opts ...PortfolioOption) *PortfolioService {
	s := &PortfolioService{
		source:        source,
		cards:         cards,
		catalog:       cat,
		now:           time.Now,
		excludeHidden: true,
		state:         StateIdle,
		expanded:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectYear switches the displayed year and starts a fetch for it,
// cancelling any fetch already in flight. The returned channel closes when
// this particular request settles: applied, failed, or discarded as stale.
func (s *PortfolioService) SelectYear(ctx context.Context, year int) <-chan struct{} {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel() // last request wins
	}
	fetchCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.generation++
	gen := s.generation
	s.year = year
	if s.loaded {
		s.state = StateLoadingYearChange
	} else {
		s.state = StateLoadingInitial
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer cancel()
		cards, credits, err := s.fetch(fetchCtx, year)
		s.settle(gen, fetchCtx, year, cards, credits, err)
	}()
	return done
}

// Retry re-issues the fetch for the currently selected year. It is the
// user-facing recovery action after a fetch failure; nothing retries
// automatically.
func (s *PortfolioService) Retry(ctx context.Context) <-chan struct{} {
	s.mu.Lock()
	year := s.year
	s.mu.Unlock()
	return s.SelectYear(ctx, year)
}

// fetch loads cards and credits concurrently.
func (s *PortfolioService) fetch(ctx context.Context, year int) ([]core.Card, []core.UserCredit, error) {
	var (
		cards   []core.Card
		credits core.CalendarUserCredits
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		cards, err = s.cards.ListCards(gctx)
		if err != nil {
			return fmt.Errorf("list cards: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		credits, err = s.source.FetchCalendarCredits(gctx, year, s.excludeHidden)
		if err != nil {
			return fmt.Errorf("fetch credits for %d: %w", year, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return cards, credits.Credits, nil
}

// settle applies a fetch result unless a newer request superseded it.
func (s *PortfolioService) settle(gen uint64, fetchCtx context.Context, year int, cards []core.Card, credits []core.UserCredit, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.generation {
		return // a newer request owns the state now
	}
	if fetchCtx.Err() != nil {
		return // cancelled; silently discarded
	}
	if err != nil {
		s.state = StateError
		s.lastErr = err
		return
	}

	summaries := BuildCardSummaries(s.catalog, cards, credits, year, s.now())
	s.cardViews = summaries
	s.stats = BuildPortfolioStats(summaries, s.now())
	// The auto-expand merge runs only when the year actually changed: a
	// same-year refetch (after a usage write or toggle) must preserve the
	// user's open/closed choices verbatim.
	if !s.loaded || s.loadedYear != year {
		s.expanded = mergeExpanded(s.expanded, summaries)
	}
	s.loadedYear = year
	s.loaded = true
	s.state = StateLoaded
	s.lastErr = nil
}

// mergeExpanded keeps accordions open across a year switch: every card
// with credits in the new year starts expanded, and a card the user had
// open that vanished from the new year stays in the set so it does not
// visually collapse mid-transition.
func mergeExpanded(prev map[string]bool, cards []core.CardSummary) map[string]bool {
	next := make(map[string]bool, len(cards))
	present := make(map[string]bool, len(cards))
	for _, c := range cards {
		present[c.CardID] = true
		if c.CreditCount > 0 {
			next[c.CardID] = true
		}
	}
	for id, open := range prev {
		if open && !present[id] {
			next[id] = true
		}
	}
	return next
}

// ToggleCard flips one card's expanded flag.
func (s *PortfolioService) ToggleCard(cardID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expanded[cardID] = !s.expanded[cardID]
}

// Snapshot returns a copy of the current state for rendering.
func (s *PortfolioService) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	expanded := make(map[string]bool, len(s.expanded))
	for k, v := range s.expanded {
		expanded[k] = v
	}
	return Snapshot{
		State:    s.state,
		Year:     s.year,
		Cards:    s.cardViews,
		Stats:    s.stats,
		Expanded: expanded,
		Err:      s.lastErr,
	}
}
