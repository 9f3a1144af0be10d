package controllers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Conversly/whatsapp-concierge/internal/config"
)

type SystemController struct {
	cfg        *config.Config
	replyTiers []string
}

func NewSystemController(cfg *config.Config, replyTiers []string) *SystemController {
	return &SystemController{cfg: cfg, replyTiers: replyTiers}
}

// Status godoc
// @Summary Get system status
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/status [get]
func (s *SystemController) Status(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service":          s.cfg.ServiceName,
		"version":          "1.0.0",
		"environment":      s.cfg.Environment,
		"hostname":         s.cfg.Hostname,
		"store_backend":    s.cfg.StoreBackend,
		"message_log_mode": s.cfg.MessageLogMode,
		"reply_tiers":      s.replyTiers,
		"signature_check":  s.cfg.AppSecret != "",
		"timestamp":        time.Now().UTC(),
	})
}
