package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/revaspay/mpesa-relay/internal/queue"
)

// QueueStats reports the depth of the merchant forward queue
type QueueStats interface {
	Stats(ctx context.Context, jobType queue.JobType) (*queue.Stats, error)
}

// HealthHandler reports liveness
type HealthHandler struct {
	environment string
	queue       QueueStats
}

// NewHealthHandler creates a health handler. q may be nil when forwarding is
// disabled.
func NewHealthHandler(environment string, q QueueStats) *HealthHandler {
	return &HealthHandler{environment: environment, queue: q}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	response := gin.H{
		"status":      "ok",
		"environment": h.environment,
	}

	if h.queue != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if stats, err := h.queue.Stats(ctx, queue.JobTypeMerchantForward); err == nil {
			response["forward_queue"] = stats
		} else {
			response["forward_queue"] = gin.H{"error": "unavailable"}
		}
	}

	c.JSON(http.StatusOK, response)
}
