/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. RealIP:     Client address behind proxies
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for admin frontends

ROUTE GROUPS:
  /api/prisons/{prisonCode}/*   Recommendation, capacity, manage, config
  /api/people/{personId}/*      Current allocation lookup
  /api/events/*                 Domain-event webhooks (deallocation triggers)
  /health                       Liveness

SECURITY NOTE:
  Caller identity and policy arrive via the Username/Policy headers; this
  service expects an authenticating proxy in front of it.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Policy", "Username"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Route("/prisons/{prisonCode}", func(r chi.Router) {
			r.Get("/recommendations", h.GetRecommendations)
			r.Get("/staff", h.GetCapacitySnapshot)
			r.Put("/allocations", h.ManageAllocations)
			r.Put("/configuration", h.PutPrisonConfig)
			r.Put("/staff-config", h.PutStaffConfig)
		})

		r.Route("/people/{personId}", func(r chi.Router) {
			r.Get("/allocation", h.GetCurrentAllocation)
		})

		r.Route("/events", func(r chi.Router) {
			r.Post("/release", h.PostReleaseEvent)
			r.Post("/transfer", h.PostTransferEvent)
			r.Post("/merge", h.PostMergeEvent)
		})
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
