package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/sma-discipline-api/internal/config"
	"github.com/noah-isme/sma-discipline-api/internal/handler"
	"github.com/noah-isme/sma-discipline-api/internal/middleware"
	"github.com/noah-isme/sma-discipline-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	IncidentHandler     *handler.IncidentHandler
	RuleHandler         *handler.RuleHandler
	SessionHandler      *handler.DetentionSessionHandler
	AssignmentHandler   *handler.DetentionAssignmentHandler
	QueueHandler        *handler.DetentionQueueHandler
	DashboardHandler    *handler.DashboardHandler
	NotificationHandler *handler.NotificationHandler
	LiveHandler         *handler.LiveHandler
	JWTMiddleware       fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))
	app.Get("/metrics", observability.MetricsHandler())

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	staff := middleware.RequireRole("teacher", "admin")
	admin := middleware.RequireRole("admin")

	if deps.IncidentHandler != nil {
		incidents := api.Group("/incidents", jwtMiddleware, staff, middleware.RateLimit("incidents", 60, time.Minute))
		deps.IncidentHandler.Register(incidents)
	}

	if deps.RuleHandler != nil {
		rules := api.Group("/detention-rules", jwtMiddleware, admin)
		deps.RuleHandler.Register(rules)
	}

	if deps.SessionHandler != nil {
		sessions := api.Group("/detention-sessions", jwtMiddleware, staff)
		deps.SessionHandler.Register(sessions)
	}

	if deps.AssignmentHandler != nil {
		assignments := api.Group("/detention-assignments", jwtMiddleware, staff)
		deps.AssignmentHandler.Register(assignments)
	}

	if deps.QueueHandler != nil {
		queue := api.Group("/detention-queue", jwtMiddleware, staff)
		deps.QueueHandler.Register(queue)
	}

	if deps.DashboardHandler != nil {
		dashboard := api.Group("/dashboard", jwtMiddleware, staff)
		deps.DashboardHandler.Register(dashboard)
	}

	if deps.NotificationHandler != nil {
		notifications := api.Group("/notifications", jwtMiddleware)
		deps.NotificationHandler.Register(notifications)
	}

	if deps.LiveHandler != nil {
		live := api.Group("/live", jwtMiddleware)
		deps.LiveHandler.Register(live)
	}
}
