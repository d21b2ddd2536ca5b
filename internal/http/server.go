package http

import (
	"context"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"perks/internal/backend"
	"perks/internal/cache"
	"perks/internal/catalog"
	"perks/internal/middleware/ratelimit"
	"perks/internal/middleware/security"
	"perks/internal/middleware/trace"
	"perks/internal/services"
	appweb "perks/web"
)

// Server serves the portfolio UI and API. Rendered portfolio snapshots are
// cached per year; any usage write clears the cache since one write can
// shift every roll-up.
type Server struct {
	http.Server
	templates *template.Template
	backend   backend.Backend
	catalog   *catalog.Catalog
	portfolio *services.PortfolioService

	limiter  *ratelimit.Limiter
	detector *security.Detector
	headers  *security.HeadersMiddleware
	tracer   *trace.Middleware

	snapshotCache *cache.LRUCache[services.Snapshot]
	cacheManager  *cache.Manager

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run server.
func NewServer(addr string, b backend.Backend, cat *catalog.Catalog) *Server {
	mux := http.NewServeMux()

	detector := security.NewDetector()

	s := &Server{
		backend:   b,
		catalog:   cat,
		portfolio: services.NewPortfolioService(b, b, cat),

		limiter:  ratelimit.NewLimiter(ratelimit.DefaultConfig()),
		detector: detector,
		headers:  security.NewHeadersMiddleware(security.DefaultHeadersConfig()),
		tracer:   trace.NewMiddleware(detector.ExtractClientIP),

		snapshotCache: cache.NewLRUCache[services.Snapshot](20, 5*time.Minute),
		cacheManager:  cache.NewManager(),
	}

	s.cacheManager.Register(s.snapshotCache)
	s.cacheManager.StartCleanup(10 * time.Minute)

	// Parse embedded templates at startup.
	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		slog.Warn("Failed parsing templates", "error", err)
	}
	s.templates = t

	// Static assets (served from embedded FS)
	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", security.StaticAssetMiddleware(3600)(static))
	} else {
		slog.Warn("Failed to mount embedded static FS", "error", err)
	}

	mux.HandleFunc("/", s.protect(s.handleIndex))
	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)
	mux.HandleFunc("/ui/portfolio", s.protect(s.handlePortfolioPartial))
	mux.HandleFunc("/ui/toggle-card", s.protect(s.handleToggleCard))
	mux.HandleFunc("/api/portfolio", s.protect(s.handleAPIPortfolio))
	mux.HandleFunc("/usage", s.protect(s.handleRecordUsage))
	mux.HandleFunc("/usage/delete", s.protect(s.handleDeleteUsage))

	s.Server = http.Server{
		Addr:    addr,
		Handler: s.tracer.Middleware(s.headers.Middleware(mux)),
	}

	return s
}

// protect applies suspicious-request detection and rate limiting on top of
// the outer trace and header middleware. Writes are rate limited; reads are
// only screened.
func (s *Server) protect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientIP := s.detector.ExtractClientIP(r)

		if s.detector.DetectSuspiciousRequest(r) {
			slog.WarnContext(r.Context(), "Suspicious request blocked",
				"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
			http.Error(w, "Bad request", http.StatusBadRequest)
			return
		}

		if r.Method == http.MethodPost || r.Method == http.MethodDelete {
			if !s.limiter.Allow(clientIP) {
				slog.WarnContext(r.Context(), "Rate limit exceeded",
					"client_ip", clientIP, "method", r.Method, "url", r.URL.Path)
				w.Header().Set("Retry-After", "60")
				http.Error(w, "Rate limit exceeded. Please try again later.", http.StatusTooManyRequests)
				return
			}
		}

		next(w, r)
	}
}

// loadSnapshot returns the portfolio snapshot for a year, from cache when
// fresh. On a miss it drives the portfolio service through a year selection
// and waits for it to settle.
func (s *Server) loadSnapshot(ctx context.Context, year int) services.Snapshot {
	key := strconv.Itoa(year)
	if snap, found := s.snapshotCache.Get(key); found {
		slog.DebugContext(ctx, "Portfolio cache hit", "year", year)
		return snap
	}

	cctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	done := s.portfolio.SelectYear(cctx, year)
	select {
	case <-done:
	case <-cctx.Done():
	}

	snap := s.portfolio.Snapshot()
	if snap.State == services.StateLoaded && snap.Year != year {
		// A concurrent request for another year superseded this one. Its
		// data must not render under this year's label; report this year
		// as still loading and let the client retry.
		return services.Snapshot{
			State:    services.StateLoadingYearChange,
			Year:     year,
			Expanded: snap.Expanded,
		}
	}
	if snap.State == services.StateLoaded {
		s.snapshotCache.Set(key, snap)
	}
	return snap
}

// invalidateViews drops every cached snapshot. A usage write changes card
// and portfolio roll-ups, and anniversary credits can span years.
func (s *Server) invalidateViews() {
	s.snapshotCache.Clear()
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.cacheManager.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
