package controllers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Conversly/whatsapp-concierge/internal/loaders"
	"github.com/Conversly/whatsapp-concierge/internal/utils"
)

type HealthController struct {
	store   loaders.Pinger
	backend string
}

func NewHealthController(store loaders.Pinger, backend string) *HealthController {
	return &HealthController{store: store, backend: backend}
}

// HealthCheck reports whether the storage backend answers a ping.
// GET /health
func (h *HealthController) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if h.store != nil {
		if err := h.store.Ping(ctx); err != nil {
			utils.Zlog.Error("Storage health check failed", zap.String("backend", h.backend), zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"storage":   "down",
				"backend":   h.backend,
				"timestamp": time.Now().UTC(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"storage":   "up",
		"backend":   h.backend,
		"timestamp": time.Now().UTC(),
	})
}

// Liveness never touches dependencies.
// GET /health/live
func (h *HealthController) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now().UTC(),
	})
}
