package http

import (
	"context"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"fxledger/internal/core"
	applog "fxledger/internal/log"
	"fxledger/internal/middleware/ratelimit"
	"fxledger/internal/middleware/security"
	"fxledger/internal/middleware/trace"
	"fxledger/internal/services"
	appweb "fxledger/web"
)

// Ledger is what the HTTP layer needs from the transaction service.
type Ledger interface {
	CreateTransaction(ctx context.Context, in services.CreateInput) (core.Transaction, error)
	DeleteTransaction(ctx context.Context, id int64) error
	List(ctx context.Context) ([]core.Transaction, error)
	Summary(ctx context.Context) (core.Summary, error)
}

// ReadinessCheck is one dependency probed by /readyz.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// Config configures the web server.
type Config struct {
	Addr               string
	RateLimitPerMinute int
	Currencies         []string
	// Proxy, when set, is mounted at /api/exchange_rates.
	Proxy  http.Handler
	Checks []ReadinessCheck
	Logger *applog.Logger
	// Now overrides the clock used for the form's default date.
	Now func() time.Time
	// WriteTimeout is raised to at least DefaultWriteTimeout. It must cover
	// the slowest rate lookup so the failure reply can still be written.
	WriteTimeout time.Duration
}

const DefaultWriteTimeout = 60 * time.Second

type appMetrics struct {
	created atomic.Int64
	deleted atomic.Int64
	failed  atomic.Int64
	uptime  time.Time
}

type Server struct {
	http.Server
	templates  *template.Template
	ledger     Ledger
	logger     *applog.Logger
	currencies []string
	checks     []ReadinessCheck
	now        func() time.Time

	securityDetector *security.Detector
	rateLimiter      *ratelimit.Limiter
	traceMiddleware  *trace.Middleware
	appMetrics       *appMetrics
}

// NewServer builds the router and parses the embedded templates.
func NewServer(cfg Config, ledger Ledger) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = applog.Default(applog.ComponentHTTP)
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	tmpl, err := template.New("").Funcs(templateFuncs()).ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	currencies := cfg.Currencies
	if len(currencies) == 0 {
		currencies = DefaultCurrencies
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	s := &Server{
		templates:        tmpl,
		ledger:           ledger,
		logger:           logger,
		currencies:       currencies,
		checks:           cfg.Checks,
		now:              now,
		securityDetector: security.NewDetector(logger),
		rateLimiter:      ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.RateLimitPerMinute}, logger),
		appMetrics:       &appMetrics{uptime: time.Now()},
	}
	s.traceMiddleware = trace.NewMiddleware(s.securityDetector.ExtractClientIP, logger.WithComponent(applog.ComponentTrace))

	s.Server = http.Server{
		Addr:              cfg.Addr,
		Handler:           s.routes(cfg.Proxy),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      max(cfg.WriteTimeout, DefaultWriteTimeout),
		IdleTimeout:       120 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(proxy http.Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(s.traceMiddleware.Middleware)
	r.Use(applog.Middleware(s.logger))
	r.Use(applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	}))
	r.Use(s.securityDetector.Middleware)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(s.rateLimiter.Middleware(s.securityDetector.ExtractClientIP, s.onRateLimited, http.MethodPost, http.MethodDelete))

	r.Get("/", s.handleIndex)
	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", s.handleMetrics)

	r.Get("/transactions", s.handleListTransactions)
	r.Post("/transactions", s.handleCreateTransaction)
	r.Delete("/transactions/{id}", s.handleDeleteTransaction)
	r.Get("/summary", s.handleSummary)

	r.Get("/ui/transactions", s.handleTransactionsPartial)
	r.Get("/ui/summary", s.handleSummaryPartial)

	static, err := fs.Sub(appweb.StaticFS, "static")
	if err == nil {
		r.With(security.StaticAssetMiddleware(3600)).
			Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(static))))
	}

	if proxy != nil {
		r.Handle("/api/exchange_rates", proxy)
	}

	return r
}

// onRateLimited answers throttled requests in the format the caller expects.
func (s *Server) onRateLimited(w http.ResponseWriter, r *http.Request) {
	const msg = "Too many requests. Please try again later."
	if wantsJSON(r) {
		writeJSONError(w, http.StatusTooManyRequests, "rate_limited", msg)
		return
	}
	NewHTMXResponse().
		Status(http.StatusTooManyRequests).
		TriggerWarningNotification(msg).
		Write(w)
}

// Shutdown stops accepting requests and releases middleware goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server", applog.FieldOperation, applog.OpShutdown)
	s.rateLimiter.Stop()
	return s.Server.Shutdown(ctx)
}
