package llm

import (
	"context"
	"errors"
	"fmt"

	einomodel "github.com/cloudwego/eino/components/model"
	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
)

// EinoModel drives any eino tool-calling chat model, one graph run per round.
type EinoModel struct {
	chat einomodel.ToolCallingChatModel
}

var _ contractx.Model = (*EinoModel)(nil)

func NewEinoModel(chat einomodel.ToolCallingChatModel) (*EinoModel, error) {
	if chat == nil {
		return nil, errors.New("chat model is required")
	}
	return &EinoModel{chat: chat}, nil
}

func (m *EinoModel) Invoke(ctx context.Context, st contractx.PromptState) (contractx.Step, error) {
	msgs, err := RenderMessages(st)
	if err != nil {
		return contractx.Step{}, err
	}

	chat := m.chat
	if !st.Finalize && len(st.Tools) > 0 {
		chat, err = m.chat.WithTools(st.Tools)
		if err != nil {
			return contractx.Step{}, fmt.Errorf("%w: bind tools: %v", contractx.ErrModelInvoke, err)
		}
	}

	runner, err := compileRoundGraph(ctx, chat)
	if err != nil {
		return contractx.Step{}, fmt.Errorf("%w: %v", contractx.ErrModelInvoke, err)
	}

	// msgs[0] is the system message; the template renders it again.
	msg, err := runner.Invoke(ctx, map[string]any{
		"system":       msgs[0].Content,
		"conversation": msgs[1:],
	})
	if err != nil {
		return contractx.Step{}, fmt.Errorf("%w: round invoke: %w", contractx.ErrModelInvoke, err)
	}
	return StepFromMessage(msg)
}

// compileRoundGraph builds START -> prompt -> model -> END. The system text
// is a template variable so braces inside it are never interpreted.
func compileRoundGraph(
	ctx context.Context,
	chatModel einomodel.BaseChatModel,
) (compose.Runnable[map[string]any, *schema.Message], error) {
	template := einoprompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("conversation", false),
	)

	graph := compose.NewGraph[map[string]any, *schema.Message]()
	if err := graph.AddChatTemplateNode("prompt", template); err != nil {
		return nil, fmt.Errorf("add round prompt node: %w", err)
	}
	if err := graph.AddChatModelNode("model", chatModel); err != nil {
		return nil, fmt.Errorf("add round model node: %w", err)
	}

	edges := [][2]string{
		{compose.START, "prompt"},
		{"prompt", "model"},
		{"model", compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add round edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("llm.round_graph"))
	if err != nil {
		return nil, fmt.Errorf("compile round graph: %w", err)
	}
	return runner, nil
}
