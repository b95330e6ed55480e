package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/Symple44/TopSteel-sub008/internal/handlers"
)

// SetupRoutes configures all application routes with dependencies
func SetupRoutes(app *fiber.App, healthHandler *handlers.HealthHandler, webhooksHandler *handlers.WebhooksHandler, metricsHandler http.Handler) {
	// Health check endpoint
	app.Get("/health", healthHandler.HealthCheck)

	// Prometheus metrics
	app.Get("/metrics", adaptor.HTTPHandler(metricsHandler))

	// API v1 routes
	api := app.Group("/api/v1")

	webhooks := api.Group("/webhooks")
	webhooks.Post("/subscriptions", webhooksHandler.CreateSubscription)
	webhooks.Get("/subscriptions", webhooksHandler.ListSubscriptions)
	webhooks.Patch("/subscriptions/:id", webhooksHandler.UpdateSubscription)
	webhooks.Delete("/subscriptions/:id", webhooksHandler.DeleteSubscription)
	webhooks.Post("/test", webhooksHandler.TestWebhook)
	webhooks.Get("/events", webhooksHandler.GetEvents)
	webhooks.Get("/events/:id/deliveries", webhooksHandler.GetDeliveryStatus)
}
