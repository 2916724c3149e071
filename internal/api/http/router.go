package http

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ohd-platform/facility-helpdesk/internal/api/http/handlers"
	"github.com/ohd-platform/facility-helpdesk/internal/auth"
	"github.com/ohd-platform/facility-helpdesk/internal/domain"
)

// RouteConfig bundles dependencies for route registration.
type RouteConfig struct {
	Health         *handlers.HealthHandler
	Requests       *handlers.RequestsHandler
	Notifications  *handlers.NotificationsHandler
	AuthMiddleware *auth.AuthMiddleware
}

// RegisterRoutes wires HTTP routes.
func RegisterRoutes(app *fiber.App, cfg RouteConfig) {
	app.Get("/health/live", cfg.Health.Live)
	app.Get("/health/ready", cfg.Health.Ready)

	api := app.Group("/api", cfg.AuthMiddleware.Handle, auth.RequireRole())

	requests := api.Group("/requests")
	admin := requests.Group("/admin", auth.RequireRole(domain.RoleAdmin))
	admin.Get("/overview-stats", cfg.Requests.OverviewStats)
	admin.Get("/requests-over-time", cfg.Requests.RequestsOverTime)
	admin.Get("/requests-by-facility", cfg.Requests.RequestsByFacility)
	requests.Get("/", cfg.Requests.ListRequests)
	requests.Post("/", cfg.Requests.CreateRequest)
	requests.Get("/:id", cfg.Requests.GetRequest)
	requests.Put("/:id", cfg.Requests.UpdateRequest)
	requests.Delete("/:id", auth.RequireRole(domain.RoleAdmin), cfg.Requests.DeleteRequest)
	requests.Get("/:id/history", cfg.Requests.ListHistory)

	notifications := api.Group("/notifications")
	notifications.Delete("/clear/:userId", cfg.Notifications.ClearAll)
	notifications.Get("/:userId", cfg.Notifications.List)
	notifications.Get("/:userId/unread-count", cfg.Notifications.UnreadCount)
	notifications.Put("/:id/read", cfg.Notifications.MarkRead)
	notifications.Put("/:userId/read-all", cfg.Notifications.MarkAllRead)
	notifications.Delete("/:id", cfg.Notifications.Delete)
}
