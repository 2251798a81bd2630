package api

import (
	"encoding/json"
	"net/http"

	"github.com/chatforge/chatforge/internal/api/handlers"
	"github.com/chatforge/chatforge/internal/api/middleware"
	"github.com/chatforge/chatforge/internal/config"
	"github.com/chatforge/chatforge/pkg/contracts"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the HTTP router with all API routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers, chain contracts.VerifierChain) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	r.Use(middleware.Logger)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Service-Token", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	r.Use(middleware.NewAuth(chain).Handler)

	// Health & info
	r.Get("/health", healthHandler)
	r.Get("/version", versionHandler(cfg))

	// API v1
	r.Route("/api/v1", func(r chi.Router) {
		// Agents
		r.Route("/agents", func(r chi.Router) {
			r.Get("/", h.ListAgents)
			r.Post("/", h.CreateAgent)
			r.Post("/validate", h.ValidateAgentConfig)
			r.Route("/{agentID}", func(r chi.Router) {
				r.Get("/", h.GetAgent)
				r.Put("/", h.UpdateAgent)
				r.Delete("/", h.DeleteAgent)
				r.Put("/status", h.UpdateAgentStatus)
				r.Put("/permissions", h.UpdateAgentPermissions)
				r.Get("/analytics", h.GetAgentAnalytics)

				// Conversation contexts scoped to one agent
				r.Route("/contexts", func(r chi.Router) {
					r.Get("/", h.ListAgentContexts)
					r.Post("/", h.CreateContext)
					r.Delete("/{contextID}", h.ClearContext)
				})
			})
		})

		// Context reads and direct message appends
		r.Route("/contexts/{contextID}", func(r chi.Router) {
			r.Get("/", h.GetContext)
			r.Post("/messages", h.AddContextMessage)
		})

		// Chat turns
		r.Post("/chat/{agentID}", h.ProcessTurn)
		r.Post("/public/chat/{agentID}", h.ProcessPublicTurn)

		// Billing
		r.Route("/billing", func(r chi.Router) {
			r.Get("/subscription", h.GetSubscription)
			r.Put("/subscription", h.UpdateTier)
			r.Get("/usage", h.GetUsageHistory)
			r.Post("/usage", h.RecordUsage)
		})
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{
		"status":  "healthy",
		"service": "chatforge-core",
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "chatforge-core",
		})
	}
}
