package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/maintenance-voice/internal/api/http/handlers"
	"github.com/spec-kit/maintenance-voice/internal/auth"
	"github.com/spec-kit/maintenance-voice/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Voice          *handlers.VoiceHandler
	Tickets        *handlers.TicketsHandler
	AuthMiddleware *auth.AuthMiddleware
	Metrics        *observability.Metrics
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)
	if cfg.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(cfg.Metrics.Handler()))
	}

	api := app.Group("/api/maintenance", cfg.AuthMiddleware.Handle)

	voice := api.Group("/voice")
	voice.Post("/interact", cfg.Voice.Interact)
	voice.Post("/interact-text", cfg.Voice.InteractText)
	voice.Get("/conversation/:conversationId", cfg.Voice.Conversation)

	api.Post("/", cfg.Tickets.CreateTicket)
	api.Get("/my", cfg.Tickets.ListMyTickets)
	api.Get("/:id", cfg.Tickets.GetTicket)
	api.Put("/:id", auth.RequireRole(auth.RoleTechnician, auth.RoleAdmin), cfg.Tickets.UpdateTicket)
}
