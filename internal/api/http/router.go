package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/spec-kit/handover-bot/internal/api/http/handlers"
	"github.com/spec-kit/handover-bot/internal/auth"
	"github.com/spec-kit/handover-bot/internal/observability"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Ops            *handlers.OpsHandler
	Token          *handlers.TokenHandler
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

	app.Post("/auth/token", cfg.Token.Issue)

	ops := app.Group("/ops", cfg.AuthMiddleware.Handle, auth.RequireAdmin())
	ops.Get("/queue", cfg.Ops.Queue)
	ops.Get("/admins", cfg.Ops.Admins)
	ops.Delete("/dialogs/:participant_id", cfg.Ops.EndDialog)
}
