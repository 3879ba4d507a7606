// Package server provides HTTP server initialization and lifecycle management
// for the caresight API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/scrypster/caresight/internal/config"
	"github.com/scrypster/caresight/web/handlers"
)

const shutdownTimeout = 5 * time.Second

// NewHandler builds the full middleware-wrapped router. gatherer may be nil,
// in which case /metrics is not mounted.
func NewHandler(cfg *config.Config, deps handlers.Deps, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	api := handlers.NewAPIHandlers(deps)

	// API routes (require auth in production mode)
	apiMux := http.NewServeMux()
	apiMux.HandleFunc("POST /api/retrieve", api.Retrieve)
	apiMux.HandleFunc("POST /api/summaries/generate", api.GenerateSummary)
	apiMux.HandleFunc("GET /api/summaries", api.ListSummaries)
	apiMux.HandleFunc("GET /api/summaries/{id}", api.GetSummary)
	apiMux.HandleFunc("GET /api/correlations", api.Correlations)
	apiMux.HandleFunc("POST /api/cache/invalidate", api.InvalidateCache)
	apiMux.HandleFunc("POST /api/sync/complete", api.SyncComplete)

	mux := http.NewServeMux()

	// Health endpoint: no auth required, used by monitoring
	mux.HandleFunc("GET /api/health", api.Health)
	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	if gatherer != nil && cfg.Server.EnableMetrics {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	rateLimiter := handlers.NewRateLimiter(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst)

	// Outermost first: security headers, request ID, access log, rate limit.
	var handler http.Handler = mux
	handler = handlers.RateLimitMiddleware(handler, rateLimiter)
	handler = handlers.AccessLog(handler, logger)
	handler = handlers.RequestID(handler)
	handler = handlers.SecurityHeaders(handler)
	return handler
}

// Start listens on cfg.Server.Host:Port and serves handler until ctx is
// cancelled. It returns the actual address being listened on (useful for
// testing with port 0).
func Start(ctx context.Context, cfg *config.Config, handler http.Handler, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// Summary generation can take a while; the write timeout leaves room for
	// the LLM call timeout.
	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: cfg.LLM.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("server: listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server: serve failed", "error", err)
		}
	}()

	// Handle graceful shutdown
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server: shutdown error", "error", err)
		}
	}()

	logger.Info("server: listening", "addr", actualAddr)
	return actualAddr, nil
}
