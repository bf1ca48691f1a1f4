package http

import (
	"context"
	"fmt"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"profittracker/internal/core"
	applog "profittracker/internal/log"
	"profittracker/internal/middleware/security"
	"profittracker/internal/middleware/trace"
)

// EntryService is what the handlers need from the entry store.
type EntryService interface {
	ListAll(ctx context.Context) []core.ProfitEntry
	Upsert(ctx context.Context, entry core.ProfitEntry) (core.ProfitEntry, bool, error)
	DeleteByID(ctx context.Context, id string) error
	Summary(ctx context.Context) core.Summary
	Series(ctx context.Context) []core.SeriesPoint
	Recent(ctx context.Context, n int) []core.ProfitEntry
	Ping(ctx context.Context) error
}

type Server struct {
	http.Server
	entries      EntryService
	logger       *applog.Logger
	tracer       *trace.Middleware
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(addr string, entries EntryService, logger *applog.Logger) *Server {
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	mux := http.NewServeMux()
	ipResolver := security.NewClientIPResolver()
	tracer := trace.NewMiddleware(logger, ipResolver.ClientIP)
	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      15 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		entries: entries,
		logger:  logger,
		tracer:  tracer,
	}

	mux.HandleFunc("GET /entries", s.handleListEntries)
	mux.HandleFunc("POST /entries", s.handleUpsertEntry)
	mux.HandleFunc("DELETE /entries/{id}", s.handleDeleteEntry)
	// Requests without an id segment still get the JSON 400.
	mux.HandleFunc("DELETE /entries/{$}", s.handleDeleteEntry)
	mux.HandleFunc("DELETE /entries", s.handleDeleteEntry)
	mux.HandleFunc("GET /entries/summary", s.handleSummary)
	mux.HandleFunc("GET /entries/series", s.handleSeries)
	mux.HandleFunc("GET /entries/recent", s.handleRecent)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	s.Handler = headers.Middleware(tracer.Middleware(s.recoverer(mux)))
	return s
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

// recoverer turns a handler panic into a JSON 500.
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				applog.FromContext(r.Context()).ErrorContext(r.Context(), "Handler panic",
					applog.FieldError, fmt.Sprint(rec),
					"stack", string(debug.Stack()))
				InternalServerError("Internal server error", "").Write(w)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	m := s.tracer.GetMetrics()
	NewJSONResponse().Data(map[string]any{
		"status":        "ok",
		"requests":      m.TotalRequests,
		"server_errors": m.ServerErrors,
	}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.entries.Ping(r.Context()); err != nil {
		s.logger.WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err.Error())
		ServiceUnavailableError("Store unavailable", err.Error()).Write(w)
		return
	}
	NewJSONResponse().Data(map[string]string{"status": "ready"}).Write(w)
}
