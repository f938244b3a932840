/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/users/*       User management
  /api/vacations/*   Request lifecycle
  /api/balances/*    Balance queries and adjustments
  /api/managers/*    Manager-employee relationships
  /api/countries/*   Holiday calendar
  /api/admin/*       Rollover and accrual triggers
  /api/audit-logs    Audit queries

SECURITY NOTE:
  Identity comes from the X-User-ID header; an authenticating proxy is
  expected in front. Nothing here verifies credentials.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// User routes
		r.Route("/users", func(r chi.Router) {
			r.Get("/", h.ListUsers)
			r.Post("/", h.CreateUser)
			r.Get("/{id}", h.GetUser)
			r.Patch("/{id}", h.UpdateUser)
			r.Get("/{id}/holidays", h.ListUserHolidays)
		})

		// Vacation request routes
		r.Route("/vacations", func(r chi.Router) {
			r.Get("/", h.ListVacations)
			r.Post("/", h.CreateVacation)
			r.Get("/{id}", h.GetVacation)
			r.Patch("/{id}", h.TransitionVacation)
		})

		// Balance routes
		r.Route("/balances", func(r chi.Router) {
			r.Post("/adjust", h.AdjustBalance)
			r.Get("/{userID}", h.GetBalance)
		})

		// Manager routes
		r.Route("/managers", func(r chi.Router) {
			r.Post("/relationships", h.CreateRelationship)
			r.Delete("/relationships", h.DeleteRelationship)
			r.Get("/{id}/team", h.ListTeam)
		})

		// Holiday calendar routes
		r.Route("/countries", func(r chi.Router) {
			r.Get("/", h.ListCountries)
			r.Post("/", h.CreateCountry)
			r.Get("/{id}/holidays", h.ListHolidays)
			r.Post("/{id}/holidays", h.CreateHoliday)
		})
		r.Delete("/holidays/{id}", h.DeleteHoliday)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/rollover", h.TriggerRollover)
			r.Post("/accrual/run", h.RunMonthlyAccrual)
		})

		r.Get("/audit-logs", h.QueryAuditLogs)
	})

	return r
}
