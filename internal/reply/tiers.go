package reply

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
)

// AgentRunner calls a hosted agent.
type AgentRunner interface {
	RunAgent(ctx context.Context, agentID, instructions string, messages []*schema.Message, metadata map[string]string) (string, error)
}

// Completer calls a completion endpoint.
type Completer interface {
	Complete(ctx context.Context, instructions string, messages []*schema.Message) (string, error)
}

type agentTier struct {
	runner  AgentRunner
	agentID string
}

// NewAgentTier returns nil unless both runner and agentID are set.
func NewAgentTier(runner AgentRunner, agentID string) Tier {
	if runner == nil || agentID == "" {
		return nil
	}
	return &agentTier{runner: runner, agentID: agentID}
}

func (t *agentTier) Name() string { return "agent" }

func (t *agentTier) Respond(ctx context.Context, p *Prompt) (string, error) {
	return t.runner.RunAgent(ctx, t.agentID, p.Instructions, p.Messages, map[string]string{
		"customer_name":   p.CustomerName,
		"customer_lang":   string(p.Language),
		"history_snippet": p.HistorySnippet,
	})
}

type completionTier struct {
	completer Completer
}

// NewCompletionTier returns nil when completer is nil.
func NewCompletionTier(completer Completer) Tier {
	if completer == nil {
		return nil
	}
	return &completionTier{completer: completer}
}

func (t *completionTier) Name() string { return "completion" }

func (t *completionTier) Respond(ctx context.Context, p *Prompt) (string, error) {
	return t.completer.Complete(ctx, p.Instructions, p.Messages)
}

type graphTier struct {
	name     string
	runnable compose.Runnable[[]*schema.Message, *schema.Message]
}

// NewChatModelTier compiles a single-node graph around chatModel. The
// instructions are sent as the leading system message.
func NewChatModelTier(ctx context.Context, name string, chatModel model.BaseChatModel) (Tier, error) {
	if chatModel == nil {
		return nil, nil
	}

	graph := compose.NewGraph[[]*schema.Message, *schema.Message]()
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("failed to add chat model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "model"); err != nil {
		return nil, err
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, err
	}

	compiled, err := graph.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph compilation failed: %w", err)
	}
	return &graphTier{name: name, runnable: compiled}, nil
}

func (t *graphTier) Name() string { return t.name }

func (t *graphTier) Respond(ctx context.Context, p *Prompt) (string, error) {
	input := make([]*schema.Message, 0, len(p.Messages)+1)
	input = append(input, schema.SystemMessage(p.Instructions))
	input = append(input, p.Messages...)

	out, err := t.runnable.Invoke(ctx, input)
	if err != nil {
		return "", fmt.Errorf("graph invocation failed: %w", err)
	}
	if out == nil {
		return "", errors.New("chat model returned no message")
	}
	return out.Content, nil
}
