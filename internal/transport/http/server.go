// Package http serves the wallet service API. All routes except health sit
// behind the authority authentication middleware.
package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Noah-Huppert/wallet-service/internal/auth"
	"github.com/Noah-Huppert/wallet-service/internal/metrics"
	"github.com/Noah-Huppert/wallet-service/internal/service"
)

// APIVersion is the semantic version of the HTTP API, reported by health and
// reflected in the path prefix.
const APIVersion = "1.0.0"

// APIPathPrefix is derived from the major component of APIVersion.
const APIPathPrefix = "/api/v1"

// Server is the public API server.
type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

// NewServer wires the router and handlers.
func NewServer(addr string, svc service.WalletService, authn *auth.Authenticator, mc *metrics.Client, apiNotOkay string, logger *slog.Logger) *Server {
	h := newHandler(svc, mc, apiNotOkay, logger)

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(instrument(mc, logger))

	r.Route(APIPathPrefix, func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(authn.Middleware)
			r.Get("/wallet", h.Wallets)
			r.Post("/entry", h.CreateEntry)
			r.Get("/entry/inventory", h.Inventory)
			r.Post("/entry/{entry_id}/inventory/use", h.ConsumeItem)
		})
	})

	return &Server{
		srv: &http.Server{
			Addr:         addr,
			Handler:      r,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
		logger: logger,
	}
}

func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("API server listening", "addr", s.srv.Addr, "path_prefix", APIPathPrefix)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
