// Package server wires the HTTP routes and runs the listener.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammed-shakir/citygml-footprints/internal/core/config"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/health"
	middleware "github.com/mohammed-shakir/citygml-footprints/internal/core/middleware"
	"github.com/mohammed-shakir/citygml-footprints/internal/core/router"
)

type Options struct {
	Metrics http.Handler // defaults to the global prometheus registry
	Checks  map[string]health.Check
}

// NewHandler builds the route table.
func NewHandler(cfg config.Config, logger *slog.Logger, svc router.Importer, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recover(logger))
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS())

	metrics := opts.Metrics
	if metrics == nil {
		metrics = promhttp.Handler()
	}

	r.Get("/healthz", health.Liveness())
	r.Get("/readyz", health.Readiness(2*time.Second, opts.Checks))
	if cfg.MetricsEnabled {
		r.Get("/metrics", metrics.ServeHTTP)
	}
	r.Post("/v1/documents", router.HandleDocument(logger, cfg, svc))
	r.Post("/v1/projects/{project}/resync", router.HandleResync(logger, svc))
	return r
}

// sets up http and starts serving
func Run(ctx context.Context, cfg config.Config, logger *slog.Logger, svc router.Importer, opts Options) error {
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           NewHandler(cfg, logger, svc, opts),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      5 * time.Minute,
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
