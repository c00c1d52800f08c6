// Package http serves the JSON API over the live tracker view.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dividi/internal/cache"
	"dividi/internal/core"
	"dividi/internal/log"
	"dividi/internal/services"
	"dividi/internal/tracker"
)

// Deps are the collaborators the handlers call into.
type Deps struct {
	Tracker      *tracker.Tracker
	Expenses     *services.ExpenseService
	Settlement   *services.SettlementController
	Participants core.Participants
	Formatter    *tracker.Formatter
	Report       core.ReportOptions

	// Exports may be nil, in which case every download renders.
	Exports *cache.ExportCache
	Metrics *services.Metrics
	// Gatherer backs /metrics; nil means the default registry.
	Gatherer prometheus.Gatherer
	Logger   *log.Logger

	// RateLimit caps write requests per client per minute; zero disables it.
	RateLimit int
	Now       func() time.Time
}

type Server struct {
	http.Server
	deps    Deps
	limiter *rateLimiter

	shutdownOnce sync.Once
}

// NewServer configures routes and returns a ready-to-run server.
func NewServer(addr string, deps Deps) *Server {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Logger == nil {
		deps.Logger = log.New(log.DefaultConfig())
	}
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.DefaultGatherer
	}
	if deps.Formatter == nil {
		deps.Formatter = tracker.NewFormatter("", tracker.DefaultLanguage, deps.Report.Location)
	}

	s := &Server{deps: deps}
	if deps.RateLimit > 0 {
		s.limiter = newRateLimiter(deps.RateLimit)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /api/participants", s.handleParticipants)
	mux.HandleFunc("GET /api/expenses", s.handleListExpenses)
	mux.HandleFunc("POST /api/expenses", s.limiter.limit(s.handleCreateExpense))
	mux.HandleFunc("POST /api/expenses/{id}/settle", s.limiter.limit(s.handleSettle))
	mux.HandleFunc("DELETE /api/expenses", s.limiter.limit(s.handleClearAll))
	mux.HandleFunc("GET /api/balances", s.handleBalances)
	mux.HandleFunc("GET /api/summary/monthly", s.handleMonthly)
	mux.HandleFunc("GET /api/export", s.handleExport)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           log.Middleware(deps.Logger)(securityHeaders(mux)),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Shutdown stops background routines and then the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.stop()
		}
		err = s.Server.Shutdown(ctx)
	})
	return err
}
