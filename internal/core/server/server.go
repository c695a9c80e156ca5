// Package server assembles the HTTP router and runs it until the context ends.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/civic-choropleth/internal/core/health"
	"github.com/mohammed-shakir/civic-choropleth/internal/core/middleware"
)

// NewRouter returns a chi router with the standard middleware stack and the
// liveness probe. metricsHandler is mounted at /metrics when non-nil.
func NewRouter(logger *slog.Logger, metricsHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.Metrics())
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}
	return r
}

// Run serves h on addr and shuts down gracefully when ctx ends.
func Run(ctx context.Context, addr string, h http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
