// Package http exposes the ledger over a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	applog "splitledger/internal/log"
	"splitledger/internal/middleware/ratelimit"
	"splitledger/internal/middleware/security"
	"splitledger/internal/middleware/trace"
	"splitledger/internal/services"
)

type Server struct {
	http.Server

	expenses    *services.ExpenseService
	settlements *services.SettlementService
	limiter     *ratelimit.Limiter
	logger      *applog.StructuredLogger

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(addr string, expenses *services.ExpenseService, settlements *services.SettlementService) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:           addr,
			Handler:        mux,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   10 * time.Second,
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 1 << 16,
		},
		expenses:    expenses,
		settlements: settlements,
		limiter:     ratelimit.NewLimiter(ratelimit.DefaultConfig()),
	}

	logger := applog.New(applog.Config{Component: applog.ComponentHTTP})
	s.logger = applog.NewStructuredLogger(logger)

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())
	tracer := trace.NewMiddleware(extractClientIP, s.logger)
	requestLog := applog.Middleware(logger)
	requestID := applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})
	chain := func(h http.HandlerFunc) http.Handler {
		return tracer.Middleware(requestLog(requestID(headers.Middleware(s.withRateLimit(h)))))
	}

	mux.Handle("POST /expenses", chain(s.handleCreateExpense))
	mux.Handle("PATCH /settlements/{settlementId}", chain(s.handleAdjustSettlement))
	mux.Handle("GET /groups/{groupId}/settlements", chain(s.handleListSettlements))
	mux.HandleFunc("GET /healthz", handleHealth)

	return s
}

// withRateLimit throttles mutating requests per client IP.
func (s *Server) withRateLimit(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && !s.limiter.Allow(extractClientIP(r)) {
			w.Header().Set("Retry-After", "60")
			writeFailure(w, http.StatusTooManyRequests, "Rate limit exceeded. Please try again later.")
			return
		}
		next(w, r)
	})
}

// Shutdown stops the rate limiter cleanup and the HTTP listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
