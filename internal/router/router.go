package router

import (
	"github.com/go-chi/chi/v5"

	"github.com/soundforge/Tempo/internal/middleware"
	"github.com/soundforge/Tempo/internal/server"
	"github.com/soundforge/Tempo/internal/webhook"
)

type Handlers struct {
	Webhook *webhook.Handler
	Health  *webhook.HealthHandler
}

func NewRouter(s *server.Server, h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	mw := middleware.NewMiddlewares(s)

	// Apply middleware in order
	r.Use(middleware.RequestID)
	r.Use(mw.Tracing.NewRelicMiddleware())
	r.Use(mw.Tracing.EnhanceTracing)
	r.Use(mw.ContextEnhancer.EnhanceContext)
	r.Use(mw.Global.RequestLogger)

	r.Route("/webhooks", func(r chi.Router) {
		r.Post("/stripe", h.Webhook.HandleStripe)
		r.Post("/paypal", h.Webhook.HandlePayPal)
	})

	r.Get("/health", h.Health.Handle)

	return r
}
