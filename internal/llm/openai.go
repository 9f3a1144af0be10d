package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"

	"github.com/Conversly/whatsapp-concierge/internal/core"
)

const classifyInstructions = "Return ONLY one code: en, pt, or es."

// OpenAIClient talks to the Responses API and to hosted agents that accept
// the same request shape under agents/{id}/responses.
type OpenAIClient struct {
	client openai.Client
	model  string
}

// NewOpenAIClient returns nil when apiKey is empty so callers can treat the
// tier as not configured. Retries are off: a failed call falls through to the
// next reply tier instead.
func NewOpenAIClient(baseURL, apiKey, model string, opts ...option.RequestOption) *OpenAIClient {
	if apiKey == "" {
		return nil
	}
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: 30 * time.Second}),
	}
	if baseURL != "" {
		base = append(base, option.WithBaseURL(baseURL))
	}
	return &OpenAIClient{
		client: openai.NewClient(append(base, opts...)...),
		model:  model,
	}
}

// Complete sends instructions plus the conversation to the completion endpoint.
func (c *OpenAIClient) Complete(ctx context.Context, instructions string, messages []*schema.Message) (string, error) {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(c.model),
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: toInput(messages)},
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}

	resp, err := c.client.Responses.New(ctx, params)
	return outputText("openai responses", resp, err)
}

// RunAgent invokes a hosted agent by id. The agent owns its model.
func (c *OpenAIClient) RunAgent(ctx context.Context, agentID, instructions string, messages []*schema.Message, metadata map[string]string) (string, error) {
	params := responses.ResponseNewParams{
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: toInput(messages)},
	}
	if instructions != "" {
		params.Instructions = openai.String(instructions)
	}
	if len(metadata) > 0 {
		params.Metadata = shared.Metadata(metadata)
	}

	var resp responses.Response
	err := c.client.Post(ctx, "agents/"+agentID+"/responses", params, &resp)
	return outputText("openai agent "+agentID, &resp, err)
}

// Classify asks the model for a single language code. The raw answer is
// returned; validation is the caller's job.
func (c *OpenAIClient) Classify(ctx context.Context, text string) (string, error) {
	resp, err := c.client.Responses.New(ctx, responses.ResponseNewParams{
		Model: shared.ResponsesModel(c.model),
		Input: responses.ResponseNewParamsInputUnion{OfInputItemList: responses.ResponseInputParam{
			inputMessage(responses.EasyInputMessageRoleSystem, classifyInstructions),
			inputMessage(responses.EasyInputMessageRoleUser, "Text: "+text),
		}},
	})
	return outputText("openai classify", resp, err)
}

func outputText(op string, resp *responses.Response, err error) (string, error) {
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return "", &core.TransportError{Op: op, StatusCode: apiErr.StatusCode, Err: err}
		}
		return "", &core.TransportError{Op: op, Err: err}
	}
	if resp == nil {
		return "", &core.ParseError{Err: fmt.Errorf("%s: no response", op)}
	}
	text := strings.TrimSpace(resp.OutputText())
	if text == "" {
		return "", &core.ParseError{Err: fmt.Errorf("%s: empty output", op)}
	}
	return text, nil
}

func toInput(messages []*schema.Message) responses.ResponseInputParam {
	input := make(responses.ResponseInputParam, 0, len(messages))
	for _, m := range messages {
		if m == nil || m.Content == "" {
			continue
		}
		input = append(input, inputMessage(inputRole(m.Role), m.Content))
	}
	return input
}

func inputMessage(role responses.EasyInputMessageRole, content string) responses.ResponseInputItemUnionParam {
	return responses.ResponseInputItemUnionParam{
		OfMessage: &responses.EasyInputMessageParam{
			Role:    role,
			Content: responses.EasyInputMessageContentUnionParam{OfString: openai.String(content)},
		},
	}
}

func inputRole(role schema.RoleType) responses.EasyInputMessageRole {
	switch role {
	case schema.Assistant:
		return responses.EasyInputMessageRoleAssistant
	case schema.System:
		return responses.EasyInputMessageRoleSystem
	default:
		return responses.EasyInputMessageRoleUser
	}
}
