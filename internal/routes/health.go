package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Conversly/whatsapp-concierge/internal/config"
	"github.com/Conversly/whatsapp-concierge/internal/controllers"
	"github.com/Conversly/whatsapp-concierge/internal/loaders"
)

// SetupHealthRoutes configures health check endpoints
func SetupHealthRoutes(router *gin.Engine, store loaders.Pinger, backend string) {
	healthController := controllers.NewHealthController(store, backend)

	router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})

	router.GET("/health", healthController.HealthCheck)
	router.GET("/health/live", healthController.Liveness)
}

// SetupSystemRoutes configures the status endpoint
func SetupSystemRoutes(router *gin.Engine, cfg *config.Config, replyTiers []string) {
	systemController := controllers.NewSystemController(cfg, replyTiers)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", systemController.Status)
	}
}
