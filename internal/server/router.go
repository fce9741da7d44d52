// Package server exposes the chat backend over HTTP.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/comigor/gustavo-go/internal/config"
)

// NewRouter wires every route and middleware.
func NewRouter(h *Handler, cfg config.Config) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(logging)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"https://*", "http://*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Requested-With", "x-user-id", "x-admin-secret"},
		ExposedHeaders: []string{correlationHeader},
		MaxAge:         300,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.With(rateLimit(cfg.RateLimit.Requests, cfg.RateLimit.Window)).Post("/chat", h.Chat)

	r.Route("/api", func(r chi.Router) {
		r.Route("/admin", func(r chi.Router) {
			r.Use(adminOnly(cfg.Admin.Secret))
			r.Get("/system-instruction", h.GetSystemInstruction)
			r.Post("/system-instruction", h.SetSystemInstruction)
		})
		r.Get("/user/preferences", h.GetPreferences)
		r.Put("/user/preferences", h.SetPreferences)
	})

	return r
}
