// Package http exposes the ledger console as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"ledger/internal/core"
	"ledger/internal/ledger"
	"ledger/internal/log"
	"ledger/internal/middleware/ratelimit"
	"ledger/internal/middleware/security"
	"ledger/internal/middleware/trace"
	"ledger/internal/notify"

	"github.com/shopspring/decimal"
)

// Ledger is the console surface the API drives.
type Ledger interface {
	Selected() (core.FiscalYear, bool)
	ListYears(ctx context.Context) []core.FiscalYear
	SelectYear(ctx context.Context, year core.FiscalYear, create bool) (ledger.Snapshot, error)
	Budget(ctx context.Context, year core.FiscalYear) (core.AnnualBudget, error)
	UpdateBudget(ctx context.Context, year core.FiscalYear, amount decimal.Decimal) (core.BudgetAggregate, error)
	Months(year core.FiscalYear) ([]core.MonthRecord, error)
	Aggregate(ctx context.Context, year core.FiscalYear) (core.BudgetAggregate, error)
	AddItem(ctx context.Context, year core.FiscalYear, m core.MonthIndex, f core.ItemFields) (core.LineItem, error)
	EditItem(ctx context.Context, year core.FiscalYear, m core.MonthIndex, id string, f core.ItemFields) (core.LineItem, error)
	RemoveItem(ctx context.Context, year core.FiscalYear, m core.MonthIndex, id string) error
	SaveNewItems(ctx context.Context, year core.FiscalYear, m core.MonthIndex) (ledger.SaveResult, error)
}

// Options tune the server; the zero value is usable.
type Options struct {
	RateLimitPerMinute int
	// Recent, when set, backs GET /api/notifications.
	Recent       *notify.Recorder
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type Server struct {
	http.Server
	ledger  Ledger
	recent  *notify.Recorder
	logger  *log.Logger
	tracer  *trace.Middleware
	limiter *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, l Ledger, opts Options, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default(log.ComponentHTTP)
	}
	logger = logger.WithComponent(log.ComponentHTTP)
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 15 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 60 * time.Second
	}

	s := &Server{
		ledger: l,
		recent: opts.Recent,
		logger: logger,
		tracer: trace.NewMiddleware(extractClientIP, logger),
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleHealth)

	api := http.NewServeMux()
	api.HandleFunc("GET /api/years", s.handleListYears)
	api.HandleFunc("GET /api/session", s.handleSession)
	api.HandleFunc("POST /api/years/{year}/select", s.handleSelectYear)
	api.HandleFunc("GET /api/years/{year}/budget", s.handleGetBudget)
	api.HandleFunc("PUT /api/years/{year}/budget", s.handleUpdateBudget)
	api.HandleFunc("GET /api/years/{year}/months", s.handleListMonths)
	api.HandleFunc("GET /api/years/{year}/aggregate", s.handleAggregate)
	api.HandleFunc("POST /api/years/{year}/months/{month}/items", s.handleAddItem)
	api.HandleFunc("PATCH /api/years/{year}/months/{month}/items/{id}", s.handleEditItem)
	api.HandleFunc("DELETE /api/years/{year}/months/{month}/items/{id}", s.handleRemoveItem)
	api.HandleFunc("POST /api/years/{year}/months/{month}/save", s.handleSave)
	api.HandleFunc("GET /api/notifications", s.handleNotifications)
	api.HandleFunc("/api/", func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusNotFound, "no such endpoint")
	})

	limited := s.limiter.Middleware(extractClientIP, func(w http.ResponseWriter, r *http.Request) {
		writeProblem(w, http.StatusTooManyRequests, "rate limit exceeded, retry in a minute")
	})
	mux.Handle("/api/", limited(api))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.tracer.Middleware(headers.Middleware(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       opts.ReadTimeout,
		WriteTimeout:      opts.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Metrics returns the request counters gathered by the tracing middleware.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

// Shutdown stops the limiter and then the HTTP server; safe to call twice.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.logger.InfoContext(ctx, "HTTP server stopping", log.FieldOperation, log.OpShutdown)
		s.limiter.Stop()
		err = s.Server.Shutdown(ctx)
	})
	return err
}
