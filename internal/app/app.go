// Package app assembles the webhook service from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Conversly/whatsapp-concierge/internal/api/channels/whatsapp"
	"github.com/Conversly/whatsapp-concierge/internal/config"
	"github.com/Conversly/whatsapp-concierge/internal/core"
	"github.com/Conversly/whatsapp-concierge/internal/language"
	"github.com/Conversly/whatsapp-concierge/internal/llm"
	"github.com/Conversly/whatsapp-concierge/internal/loaders"
	"github.com/Conversly/whatsapp-concierge/internal/reply"
	"github.com/Conversly/whatsapp-concierge/internal/routes"
	"github.com/Conversly/whatsapp-concierge/internal/utils"
)

// App owns the router and everything that must be closed on shutdown.
type App struct {
	Router *gin.Engine
	Stores *loaders.Stores
	saver  *core.MessageSaver
}

// New connects storage, builds the reply tiers and mounts all routes.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	stores, err := loaders.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage: %w", err)
	}

	hours, err := core.NewBusinessHours(cfg.BusinessHoursStart, cfg.BusinessHoursEnd, cfg.BusinessTimezone, cfg.BusinessDays)
	if err != nil {
		stores.Close()
		return nil, fmt.Errorf("invalid business hours: %w", err)
	}

	var saver *core.MessageSaver
	if cfg.MessageLogMode == config.MessageLogModeAsync {
		saver = core.NewMessageSaver(stores.Messages, cfg.MessageSaverBatchSize)
	}

	classifier, generator := buildModels(ctx, cfg)

	svc := whatsapp.NewService(whatsapp.Deps{
		Profiles:           core.NewProfileStore(stores.Contacts, cfg.ProfileCacheTTL),
		Log:                core.NewMessageLog(stores.Messages, saver),
		Detector:           language.NewDetector(classifier),
		Generator:          generator,
		Sender:             whatsapp.NewCloudSender(cfg.WhatsAppAPIBase, cfg.PhoneNumberID, cfg.WhatsAppToken),
		Hours:              hours,
		HandoffKeywords:    cfg.HandoffKeywords,
		OutOfHoursTemplate: cfg.OutOfHoursTemplate,
		HistoryLimit:       cfg.HistoryLimit,
	})

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	routes.SetupRoutes(router, cfg, routes.Handlers{
		WhatsApp:   whatsapp.NewController(svc, cfg.VerifyToken, cfg.AppSecret),
		Store:      stores.Pinger,
		Backend:    stores.Backend,
		ReplyTiers: generator.Tiers(),
	})

	utils.Zlog.Info("Application assembled",
		zap.String("store_backend", stores.Backend),
		zap.String("message_log_mode", cfg.MessageLogMode),
		zap.Strings("reply_tiers", generator.Tiers()),
		zap.Bool("classifier", classifier != nil))

	return &App{Router: router, Stores: stores, saver: saver}, nil
}

// buildModels wires the OpenAI and Gemini clients that are configured. The
// classifier prefers OpenAI; reply tiers run agent, completion, then Gemini.
func buildModels(ctx context.Context, cfg *config.Config) (language.Classifier, *reply.Generator) {
	var classifier language.Classifier
	var tiers []reply.Tier

	if openai := llm.NewOpenAIClient(cfg.OpenAIBaseURL, cfg.OpenAIAPIKey, cfg.OpenAIModel); openai != nil {
		classifier = openai
		tiers = append(tiers, reply.NewAgentTier(openai, cfg.AgentID), reply.NewCompletionTier(openai))
	}

	temperature := float32(0.7)
	maxTokens := 1024
	gemini, err := llm.NewMultiKeyChatModel(ctx, cfg.GeminiAPIKeys, cfg.GeminiModel, &temperature, &maxTokens)
	if err != nil {
		utils.Zlog.Warn("Gemini tier disabled", zap.Error(err))
	}
	if gemini != nil {
		if classifier == nil {
			classifier = gemini
		}
		tier, err := reply.NewChatModelTier(ctx, "gemini", gemini)
		if err != nil {
			utils.Zlog.Warn("Gemini tier disabled", zap.Error(err))
		} else {
			tiers = append(tiers, tier)
		}
	}

	return classifier, reply.NewGenerator(cfg.HistoryLimit, tiers...)
}

// Close drains the async message saver and closes storage.
func (a *App) Close() error {
	if a.saver != nil {
		a.saver.Stop()
	}
	return a.Stores.Close()
}
