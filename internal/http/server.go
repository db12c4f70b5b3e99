package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"budgetchat/internal/cache"
	"budgetchat/internal/core"
	"budgetchat/internal/extract"
	"budgetchat/internal/log"
	"budgetchat/internal/middleware/ratelimit"
	"budgetchat/internal/middleware/security"
	"budgetchat/internal/middleware/trace"
)

const (
	listCacheSize     = 32
	listCacheTTL      = 30 * time.Second
	cacheSweepEvery   = time.Minute
	readHeaderTimeout = 5 * time.Second
	// The write timeout leaves room for a slow model plus retries.
	writeTimeout    = 2 * time.Minute
	idleTimeout     = 60 * time.Second
	shutdownTimeout = 10 * time.Second
)

// ExpenseService is what the API needs from the expense layer.
type ExpenseService interface {
	CreateExpense(ctx context.Context, entry core.ExpenseEntry) (core.Expense, error)
	ListExpenses(ctx context.Context, limit int) ([]core.Expense, error)
	GetExpense(ctx context.Context, id string) (core.Expense, error)
}

// Config holds the server's tunables.
type Config struct {
	Addr               string
	MaxBodyBytes       int64
	RateLimitPerMinute int
	AllowedOrigins     []string
	TrustedProxies     []string
}

// Option customizes a Server.
type Option func(*Server)

// WithReadiness sets the check behind /readyz.
func WithReadiness(check func(context.Context) error) Option {
	return func(s *Server) { s.readiness = check }
}

// WithClock overrides the clock used for timeline labels.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// Server is the JSON API.
type Server struct {
	http.Server

	parser    extract.Parser
	expenses  ExpenseService
	readiness func(context.Context) error
	logger    *log.Logger
	now       func() time.Time
	maxBody   int64

	limiter   *ratelimit.Limiter
	tracer    *trace.Middleware
	listCache *cache.LRUCache[[]core.Expense]
	janitor   *cache.Janitor
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(cfg Config, parser extract.Parser, expenses ExpenseService, logger *log.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = log.Discard()
	}
	resolver, err := security.NewClientIPResolver(cfg.TrustedProxies...)
	if err != nil {
		return nil, fmt.Errorf("configure client ip resolver: %w", err)
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	s := &Server{
		parser:    parser,
		expenses:  expenses,
		logger:    logger.WithComponent(log.ComponentHTTP),
		now:       time.Now,
		maxBody:   cfg.MaxBodyBytes,
		limiter:   ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}),
		tracer:    trace.NewMiddleware(logger, resolver.ClientIP),
		listCache: cache.NewLRUCache[[]core.Expense](listCacheSize, listCacheTTL),
	}
	s.janitor = cache.NewJanitor(logger, s.listCache)
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /parse", s.handleParse)
	mux.HandleFunc("GET /expenses", s.handleListExpenses)
	mux.HandleFunc("POST /expenses", s.handleCreateExpense)
	mux.HandleFunc("GET /expenses/timeline", s.handleTimeline)
	mux.HandleFunc("GET /expenses/{id}", s.handleGetExpense)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	var h http.Handler = mux
	h = postOnly(s.limiter.Middleware(resolver.ClientIP, onRateLimited))(h)
	h = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(h)
	h = security.CORS(security.CORSConfig{AllowedOrigins: cfg.AllowedOrigins, MaxAge: 10 * time.Minute})(h)
	h = s.tracer.Middleware(h)

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           h,
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	return s, nil
}

// Run serves until ctx is done, then shuts down gracefully. Background
// maintenance (rate limiter cleanup, cache sweeps) runs alongside.
func (s *Server) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("HTTP server listening", "addr", s.Addr)
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.limiter.Run(gctx)
		return nil
	})
	g.Go(func() error {
		if err := s.janitor.Run(gctx, cacheSweepEvery); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info("Shutting down HTTP server")
		return s.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// Metrics returns request counters from the trace middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.Snapshot()
}

// postOnly applies mw to POST requests only. Reads are never limited.
func postOnly(mw func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		limited := mw(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost {
				limited.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func onRateLimited(w http.ResponseWriter, r *http.Request) {
	log.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
		log.FieldMethod, r.Method, log.FieldPath, r.URL.Path)
	ErrorResponse(http.StatusTooManyRequests, codeRateLimited, "rate limit exceeded, please try again later").Write(w)
}
