package whatsapp

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Conversly/whatsapp-concierge/internal/utils"
)

// WebhookPath is where Meta delivers verification and message callbacks.
const WebhookPath = "/api/webhook/whatsapp"

// RegisterRoutes registers the WhatsApp webhook endpoints
func RegisterRoutes(router *gin.Engine, ctrl *Controller) {
	// Meta sends GET for verification, POST for messages
	router.GET(WebhookPath, ctrl.VerifyWebhook)
	router.POST(WebhookPath, ctrl.Webhook)

	for _, method := range []string{http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions, http.MethodHead} {
		router.Handle(method, WebhookPath, ctrl.MethodNotAllowed)
	}

	utils.Zlog.Info("WhatsApp routes registered",
		zap.String("verify_endpoint", WebhookPath+" [GET]"),
		zap.String("webhook_endpoint", WebhookPath+" [POST]"))
}
