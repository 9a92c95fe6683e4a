package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/revaspay/mpesa-relay/internal/handlers"
	"github.com/revaspay/mpesa-relay/internal/middleware"
)

// Dependencies holds what the routes need
type Dependencies struct {
	Mpesa        *handlers.MpesaHandler
	Health       *handlers.HealthHandler
	Guard        *middleware.WebhookGuard
	OperatorRate *middleware.RateLimiter
	OperatorKey  string

	// CORS applies to the health and operator routes only. Gateway callbacks are
	// server to server and answer through the webhook guard alone.
	CORS gin.HandlerFunc
}

// SetupRoutes registers every route on router
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	RegisterWebhookRoutes(router, deps.Mpesa, deps.Guard)

	public := router.Group("")
	if deps.CORS != nil {
		public.Use(deps.CORS)
	}
	public.GET("/health", deps.Health.Health)
	public.OPTIONS("/health", preflight)
	RegisterOperatorRoutes(public, deps.Mpesa, deps.OperatorRate, deps.OperatorKey)
}

// RegisterOperatorRoutes registers the routes operators call by hand
func RegisterOperatorRoutes(router *gin.RouterGroup, mpesaHandler *handlers.MpesaHandler, rateLimiter *middleware.RateLimiter, apiKey string) {
	chain := []gin.HandlerFunc{}
	if rateLimiter != nil {
		chain = append(chain, rateLimiter.Middleware())
	}
	chain = append(chain, middleware.OperatorAuthMiddleware(apiKey), mpesaHandler.RegisterURL)

	router.POST("/register-url", chain...)
	router.OPTIONS("/register-url", preflight)
}

// preflight gives the CORS middleware a matched route to answer on
func preflight(c *gin.Context) {
	c.Status(http.StatusNoContent)
}
