package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/saralbooks/ledgerhooks/internal/config"
	"github.com/saralbooks/ledgerhooks/internal/metrics"
	"github.com/saralbooks/ledgerhooks/internal/storage"
	"github.com/saralbooks/ledgerhooks/internal/webhook"
)

type Server struct {
	cfg     config.ServerConfig
	store   storage.Store
	manager *webhook.Manager
	router  *chi.Mux
	log     zerolog.Logger
	http    *http.Server
}

func NewServer(cfg config.ServerConfig, store storage.Store, manager *webhook.Manager, log zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		manager: manager,
		log:     log,
	}
	s.router = s.buildRouter()
	return s
}

func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(LoggingMiddleware(s.log))

	tenantHandler := NewTenantHandler(s.store)
	epHandler := NewEndpointHandler(s.manager)
	evHandler := NewEventHandler(s.manager, s.store)
	dlvHandler := NewDeliveryHandler(s.store)
	statsHandler := NewStatsHandler(s.manager)

	// Health and metrics — no auth
	r.Get("/health", statsHandler.Health)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// Tenant management — admin routes, no bearer auth
		r.Post("/tenants", tenantHandler.Create)
		r.Get("/tenants", tenantHandler.List)
		r.Get("/tenants/{id}", tenantHandler.Get)
		r.Delete("/tenants/{id}", tenantHandler.Delete)
		r.Post("/tenants/{id}/rotate-key", tenantHandler.RotateKey)

		// Authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(s.store))

			// Endpoints
			r.Post("/endpoints", epHandler.Create)
			r.Get("/endpoints", epHandler.List)
			r.Get("/endpoints/{id}", epHandler.Get)
			r.Put("/endpoints/{id}", epHandler.Update)
			r.Delete("/endpoints/{id}", epHandler.Delete)
			r.Patch("/endpoints/{id}/toggle", epHandler.Toggle)
			r.Get("/endpoints/{id}/stats", epHandler.Stats)
			r.Get("/endpoints/{id}/deliveries", dlvHandler.ListByEndpoint)

			// Events
			r.Post("/events", evHandler.Publish)
			r.Post("/events/batch", evHandler.PublishBatch)
			r.Get("/events", evHandler.List)
			r.Get("/events/{id}", evHandler.Get)

			// Deliveries
			r.Get("/deliveries/{id}", dlvHandler.Get)

			// Stats
			r.Get("/stats", statsHandler.Stats)
		})
	})

	return r
}

func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.log.Info().Str("addr", addr).Msg("starting HTTP server")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}
