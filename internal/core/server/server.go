package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sottomarino/geolens-europa/internal/core/config"
	"github.com/sottomarino/geolens-europa/internal/core/health"
	middleware "github.com/sottomarino/geolens-europa/internal/core/middleware"
	"github.com/sottomarino/geolens-europa/internal/core/router"
)

// Run sets up the chi router, mounts the hazard-tile handlers, and blocks
// until ctx is cancelled or the listener fails. readiness and adapterHealth
// may be nil, in which case the corresponding route is not registered.
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, handler *router.Handler, readiness health.ReadinessReporter, adapterHealth health.AdapterHealthReporter) error {
	r := chi.NewRouter()
	r.Use(middleware.Recover())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	r.Get("/healthz", health.Liveness())
	if readiness != nil {
		r.Get("/readyz", health.Readiness(readiness))
	}
	if adapterHealth != nil {
		r.Get("/healthz/adapters", health.AdapterHealth(adapterHealth))
	}
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	handler.Mount(r)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http listen", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		return err
	}
}
