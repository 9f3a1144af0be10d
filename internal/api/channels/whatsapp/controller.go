package whatsapp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Conversly/whatsapp-concierge/internal/core"
	"github.com/Conversly/whatsapp-concierge/internal/utils"
)

// Controller handles WhatsApp webhook requests
type Controller struct {
	service        *Service
	verifyToken    string
	appSecret      string
	processTimeout time.Duration
}

func NewController(service *Service, verifyToken, appSecret string) *Controller {
	return &Controller{
		service:        service,
		verifyToken:    verifyToken,
		appSecret:      appSecret,
		processTimeout: 60 * time.Second,
	}
}

// VerifyWebhook handles Meta's subscription handshake.
// GET /api/webhook/whatsapp
func (c *Controller) VerifyWebhook(ctx *gin.Context) {
	mode := ctx.Query("hub.mode")
	token := ctx.Query("hub.verify_token")
	challenge := ctx.Query("hub.challenge")

	if err := VerifyHandshake(mode, token, c.verifyToken); err != nil {
		utils.Zlog.Warn("WhatsApp webhook verification rejected",
			zap.String("mode", mode),
			zap.Error(err))
		ctx.Status(http.StatusForbidden)
		return
	}

	ctx.String(http.StatusOK, challenge)
}

// Webhook accepts a delivery. The response is always 200 so Meta never
// retries because of an internal failure.
// POST /api/webhook/whatsapp
func (c *Controller) Webhook(ctx *gin.Context) {
	ctx.Status(http.StatusOK)

	body, err := ctx.GetRawData()
	if err != nil {
		utils.Zlog.Error("Failed to read WhatsApp webhook body", zap.Error(err))
		return
	}

	if c.appSecret != "" {
		if err := VerifySignature(ctx.GetHeader(SignatureHeader), body, c.appSecret); err != nil {
			utils.Zlog.Warn("Dropping WhatsApp webhook with bad signature", zap.Error(err))
			return
		}
	}

	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		utils.Zlog.Error("Failed to parse WhatsApp webhook payload",
			zap.Error(&core.ParseError{Err: err}))
		return
	}

	in, ok := payload.FirstInbound()
	if !ok {
		utils.Zlog.Debug("No messages in webhook payload")
		return
	}

	utils.Zlog.Info("Received WhatsApp message",
		zap.String("wa_id", in.From),
		zap.String("delivery_id", in.DeliveryID),
		zap.String("message_type", in.Type))

	processCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx.Request.Context()), c.processTimeout)
	defer cancel()

	outcome := c.service.Process(processCtx, in)
	utils.Zlog.Debug("WhatsApp message outcome",
		zap.String("wa_id", in.From),
		zap.String("outcome", string(outcome)))
}

// MethodNotAllowed answers every verb other than GET and POST.
func (c *Controller) MethodNotAllowed(ctx *gin.Context) {
	ctx.Header("Allow", "GET, POST")
	ctx.String(http.StatusMethodNotAllowed, "Method Not Allowed")
}
