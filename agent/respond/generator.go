package respond

import (
	"context"
	"fmt"
	"strings"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/Scriptive-Flow-Guided-Dialogue/agent/contract"
)

// ModelGenerator adapts an eino chat model to the Generator contract. The
// model sees one short instruction per call and no conversation history.
type ModelGenerator struct {
	runner compose.Runnable[map[string]any, *schema.Message]
}

var _ contractx.Generator = (*ModelGenerator)(nil)

func NewModelGenerator(ctx context.Context, chatModel einomodel.BaseChatModel, systemPrompt string) (*ModelGenerator, error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("{input}"),
	)

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add generator prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add generator model node: %w", err)
	}
	if err := graph.AddEdge(compose.START, "prompt"); err != nil {
		return nil, fmt.Errorf("add generator edge start->prompt: %w", err)
	}
	if err := graph.AddEdge("prompt", "model"); err != nil {
		return nil, fmt.Errorf("add generator edge prompt->model: %w", err)
	}
	if err := graph.AddEdge("model", compose.END); err != nil {
		return nil, fmt.Errorf("add generator edge model->end: %w", err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("respond.generator_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile generator graph: %w", err)
	}

	return &ModelGenerator{runner: runner}, nil
}

func (g *ModelGenerator) Generate(ctx context.Context, instruction string) (string, error) {
	msg, err := g.runner.Invoke(ctx, map[string]any{
		"input": instruction,
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", contractx.ErrGeneratorInvoke, err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		return "", fmt.Errorf("%w: empty model response", contractx.ErrGeneratorInvoke)
	}
	return msg.Content, nil
}
