package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/Conversly/whatsapp-concierge/internal/api/channels/whatsapp"
	"github.com/Conversly/whatsapp-concierge/internal/config"
	"github.com/Conversly/whatsapp-concierge/internal/loaders"
	"github.com/Conversly/whatsapp-concierge/internal/middleware"
)

// Handlers groups the controllers SetupRoutes mounts.
type Handlers struct {
	WhatsApp   *whatsapp.Controller
	Store      loaders.Pinger
	Backend    string
	ReplyTiers []string
}

// SetupRoutes configures all application routes
func SetupRoutes(router *gin.Engine, cfg *config.Config, h Handlers) {
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())

	SetupHealthRoutes(router, h.Store, h.Backend)
	SetupSystemRoutes(router, cfg, h.ReplyTiers)
	whatsapp.RegisterRoutes(router, h.WhatsApp)
	Setup404Handler(router)
}
