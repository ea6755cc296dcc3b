// Package server assembles the HTTP API and its lifecycle.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"shipment-tracking/internal/config"
	"shipment-tracking/internal/handlers"
)

// Server wraps the HTTP server with graceful shutdown.
type Server struct {
	http     *http.Server
	shutdown time.Duration
	logger   *slog.Logger
}

// New builds the server around the assembled handlers.
func New(cfg config.ServerConfig, shipments *handlers.ShipmentHandler,
	health *handlers.HealthHandler, logger *slog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:         cfg.Addr(),
			Handler:      Router(shipments, health),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		shutdown: cfg.ShutdownTimeout,
		logger:   logger,
	}
}

// Router builds the chi route tree. Exposed separately so handler tests
// can exercise real routing.
func Router(shipments *handlers.ShipmentHandler, health *handlers.HealthHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	r.Get("/api/health", health.Health)

	r.Route("/api/shipments", func(r chi.Router) {
		r.Use(handlers.RequireUser)
		r.Get("/", shipments.List)
		r.Post("/sync", shipments.Sync)
		r.Post("/import-image", shipments.ImportImage)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", shipments.Get)
			r.Patch("/", shipments.UpdateFields)
			r.Delete("/", shipments.Delete)
			r.Patch("/status", shipments.UpdateStatus)
			r.Post("/mark-delivered", shipments.MarkDelivered)
			r.Post("/archive", shipments.Archive)
			r.Post("/unarchive", shipments.Unarchive)
		})
	})
	return r
}

// Run serves until the context is cancelled, then drains connections
// within the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.http.Addr)
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdown)
	defer cancel()
	s.logger.Info("shutting down http server")
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
