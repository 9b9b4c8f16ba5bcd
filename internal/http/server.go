package http

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"fxledger/internal/cache"
	"fxledger/internal/core"
	"fxledger/internal/fx"
	"fxledger/internal/ledger"
	"fxledger/internal/log"
	"fxledger/internal/middleware/ratelimit"
	"fxledger/internal/middleware/security"
	"fxledger/internal/middleware/trace"
	"fxledger/internal/report"
)

// BookLoader reads the ledger a report is built from.
type BookLoader func(ctx context.Context) (*ledger.Book, error)

// Config holds the server settings.
type Config struct {
	Addr string
	// Currency is the report currency used when a request names none.
	Currency          core.Currency
	CacheSize         int
	CacheTTL          time.Duration
	RequestsPerMinute int
}

// Server answers rate lookups and report requests from an immutable rate
// snapshot. SetRates swaps the snapshot and drops every cached report.
type Server struct {
	http.Server
	books    BookLoader
	currency core.Currency
	today    func() core.Date
	logger   *log.Logger
	started  time.Time

	rates      atomic.Pointer[fx.Cache]
	generation atomic.Uint64

	reports *cache.LRUCache[report.Table]
	caches  *cache.Manager
	limiter *ratelimit.Limiter
	tracer  *trace.Middleware

	shutdownOnce sync.Once
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the day used for rate lookups without a date and
// for stands.
func WithClock(today func() core.Date) Option {
	return func(s *Server) { s.today = today }
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. It serves 503 on rate and report routes until SetRates is called.
func NewServer(cfg Config, books BookLoader, logger *log.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Currency == "" {
		cfg.Currency = core.BaseCurrency
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}

	s := &Server{
		books:    books,
		currency: cfg.Currency,
		today:    core.Today,
		logger:   logger.WithComponent(log.ComponentHTTP),
		started:  time.Now(),
		reports:  cache.NewLRUCache[report.Table](cfg.CacheSize, cfg.CacheTTL),
		caches:   cache.NewManager(logger),
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RequestsPerMinute}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tracer = trace.NewMiddleware(clientIP, logger)
	s.caches.Register(s.reports)
	s.caches.StartCleanup(cfg.CacheTTL)

	limited := s.limiter.Middleware(clientIP, func(w http.ResponseWriter, _ *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, retry in a minute").Write(w)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /api/rate", s.handleRate)
	mux.Handle("GET /api/reports/{name}", limited(http.HandlerFunc(s.handleReport)))

	var handler http.Handler = mux
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = log.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = log.Middleware(s.logger)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// SetRates installs a new rate snapshot. Reports built from the previous
// snapshot are dropped.
func (s *Server) SetRates(rates *fx.Cache) {
	s.rates.Store(rates)
	s.generation.Add(1)
	purged := s.caches.PurgeAll()
	s.logger.Info("Rate snapshot installed",
		log.FieldOperation, log.OpReload,
		"pairs", len(rates.Pairs()),
		"purged_reports", purged)
}

// Rates returns the current snapshot, nil before the first SetRates.
func (s *Server) Rates() *fx.Cache {
	return s.rates.Load()
}

// Shutdown gracefully shuts down the server and cleanup routines
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.caches.Stop()
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}
