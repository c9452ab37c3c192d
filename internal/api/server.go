// Package api exposes the lead lifecycle engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/lead-engine/internal/hunt"
	"github.com/sells-group/lead-engine/internal/leads"
	"github.com/sells-group/lead-engine/internal/metrics"
)

// Hunter runs AI lead hunts. It is optional; without one the hunt route
// answers 503.
type Hunter interface {
	Hunt(ctx context.Context, req hunt.Request) (*hunt.Result, error)
}

// Server holds the handler dependencies.
type Server struct {
	svc         *leads.Service
	hunter      Hunter
	corsOrigins []string
	now         func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithHunter enables POST /lead-hunts.
func WithHunter(h Hunter) Option {
	return func(s *Server) { s.hunter = h }
}

// WithCORSOrigins sets the allowed browser origins.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.corsOrigins = origins }
}

// NewServer creates a Server.
func NewServer(svc *leads.Service, opts ...Option) *Server {
	s := &Server{svc: svc, corsOrigins: []string{"*"}, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Router builds the chi router with all routes and middleware.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/leads", func(r chi.Router) {
		r.Get("/", s.pageLeads)
		r.Post("/", s.createLead)
		r.Post("/bulk", s.bulkCreateLeads)
		r.Get("/stats", s.leadStats)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.getLead)
			r.Delete("/", s.deleteLead)
			r.Patch("/status", s.updateLeadStatus)
			r.Post("/check", s.markChecked)
			r.Put("/embedding", s.setLeadEmbedding)
		})
	})
	r.Get("/workflows/{workflowID}/leads", s.workflowLeads)
	r.Post("/lead-hunts", s.runHunt)

	r.Route("/maintenance", func(r chi.Router) {
		r.Post("/cleanup", s.cleanup)
		r.Post("/embeddings/clear", s.clearEmbeddings)
	})

	r.Route("/procurement-links", func(r chi.Router) {
		r.Post("/", s.addLink)
		r.Post("/bulk", s.importLinks)
		r.Get("/approved", s.approvedLinks)
		r.Patch("/{id}/status", s.setLinkStatus)
	})

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.svc.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
