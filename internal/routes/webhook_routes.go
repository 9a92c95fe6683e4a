package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/revaspay/mpesa-relay/internal/handlers"
	"github.com/revaspay/mpesa-relay/internal/middleware"
)

// RegisterWebhookRoutes registers the gateway callback routes. They accept any
// method so the guard, rather than the router, answers non-POST calls.
func RegisterWebhookRoutes(router *gin.Engine, mpesaHandler *handlers.MpesaHandler, guard *middleware.WebhookGuard) {
	webhookGroup := router.Group("/mpesa")
	webhookGroup.Use(guard.Middleware())
	{
		webhookGroup.Any("/validation", mpesaHandler.Validation)
		webhookGroup.Any("/confirmation", mpesaHandler.Confirmation)
	}
}
