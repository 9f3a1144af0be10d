package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/Conversly/whatsapp-concierge/internal/utils"
)

// MultiKeyChatModel spreads Gemini calls over several API keys. Calls start
// at the next key in round-robin order and move on to the following key when
// one fails, so a single rate-limited key does not fail the request.
type MultiKeyChatModel struct {
	models   []model.BaseChatModel
	keyIndex uint64
}

// NewMultiKeyChatModel returns (nil, nil) when no keys are configured.
func NewMultiKeyChatModel(ctx context.Context, apiKeys []string, modelName string, temperature *float32, maxTokens *int) (*MultiKeyChatModel, error) {
	if len(apiKeys) == 0 {
		return nil, nil
	}

	models := make([]model.BaseChatModel, len(apiKeys))
	for i, key := range apiKeys {
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			APIKey:  key,
			Backend: genai.BackendGeminiAPI,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client for key %d: %w", i+1, err)
		}

		chatModel, err := gemini.NewChatModel(ctx, &gemini.Config{
			Client:      client,
			Model:       modelName,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create chat model for key %d: %w", i+1, err)
		}
		models[i] = chatModel
	}

	utils.Zlog.Info("Created multi-key Gemini chat model",
		zap.Int("key_count", len(apiKeys)),
		zap.String("model", modelName))

	return NewMultiKeyChatModelFrom(models...), nil
}

// NewMultiKeyChatModelFrom wraps already-built chat models.
func NewMultiKeyChatModelFrom(models ...model.BaseChatModel) *MultiKeyChatModel {
	return &MultiKeyChatModel{models: models}
}

func (m *MultiKeyChatModel) start() int {
	if len(m.models) == 1 {
		return 0
	}
	idx := atomic.AddUint64(&m.keyIndex, 1)
	return int(idx % uint64(len(m.models)))
}

// Generate implements model.BaseChatModel.
func (m *MultiKeyChatModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	if len(m.models) == 0 {
		return nil, errors.New("no chat models configured")
	}
	first := m.start()
	var errs []error
	for i := 0; i < len(m.models); i++ {
		idx := (first + i) % len(m.models)
		out, err := m.models[idx].Generate(ctx, input, opts...)
		if err == nil {
			return out, nil
		}
		utils.Zlog.Debug("Gemini key failed, trying next", zap.Int("key", idx+1), zap.Error(err))
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, errors.Join(errs...)
}

// Stream implements model.BaseChatModel. Streams are not retried on another key.
func (m *MultiKeyChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	if len(m.models) == 0 {
		return nil, errors.New("no chat models configured")
	}
	return m.models[m.start()].Stream(ctx, input, opts...)
}

// Classify asks the model for a single language code.
func (m *MultiKeyChatModel) Classify(ctx context.Context, text string) (string, error) {
	out, err := m.Generate(ctx, []*schema.Message{
		schema.SystemMessage(classifyInstructions),
		schema.UserMessage("Text: " + text),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Content), nil
}
