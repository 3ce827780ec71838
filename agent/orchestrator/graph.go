package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/conversation"
	"github.com/tanpawarit/theo-ai/agent/credential"
	"github.com/tanpawarit/theo-ai/agent/gate"
	"github.com/tanpawarit/theo-ai/agent/reasoning"
	"github.com/tanpawarit/theo-ai/agent/reply"
)

// chatState is the working state of one chat graph run.
type chatState struct {
	Req        contractx.ChatRequest
	System     string
	Resolution credential.Resolution
	Model      contractx.Model
	Tools      contractx.Toolbox
	Prompt     conversation.Prompt
	Outcome    reasoning.Outcome
}

func (o *Orchestrator) compileChatGraph(
	ctx context.Context,
) (compose.Runnable[contractx.ChatRequest, contractx.ChatResponse], error) {
	graph := compose.NewGraph[contractx.ChatRequest, contractx.ChatResponse]()

	if err := graph.AddLambdaNode("validate_request",
		compose.InvokableLambda(func(ctx context.Context, req contractx.ChatRequest) (*chatState, error) {
			if err := gate.ValidateChat(req); err != nil {
				return nil, err
			}
			system, err := o.prompts.ResolveSystem(req.SystemPrompt)
			if err != nil {
				return nil, err
			}
			return &chatState{Req: req, System: system}, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node validate_request: %w", err)
	}

	if err := graph.AddLambdaNode("resolve_credentials",
		compose.InvokableLambda(func(ctx context.Context, in *chatState) (*chatState, error) {
			return o.resolveCredentials(ctx, in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node resolve_credentials: %w", err)
	}

	if err := graph.AddLambdaNode("normalize_context",
		compose.InvokableLambda(func(ctx context.Context, in *chatState) (*chatState, error) {
			p, err := conversation.Normalize(in.Req.Turns, in.System, conversation.Options{MaxChars: o.cfg.MaxContextChars})
			if err != nil {
				return nil, err
			}
			if p.Blank > 0 {
				log.Ctx(ctx).Debug().Int("blank_turns", p.Blank).Msg("skipped turns without text")
			}
			if p.Truncated {
				log.Ctx(ctx).Info().Int("dropped_turns", p.Dropped).Msg("chat context truncated")
			}
			in.Prompt = p
			return in, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node normalize_context: %w", err)
	}

	if err := graph.AddLambdaNode("reason",
		compose.InvokableLambda(func(ctx context.Context, in *chatState) (*chatState, error) {
			loop, err := reasoning.New(o.cfg.Reasoning, in.Model, in.Tools)
			if err != nil {
				return nil, err
			}
			out, err := loop.Run(ctx, in.Prompt)
			if err != nil {
				return nil, err
			}
			in.Outcome = out
			return in, nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node reason: %w", err)
	}

	if err := graph.AddLambdaNode("compose_reply",
		compose.InvokableLambda(func(ctx context.Context, in *chatState) (contractx.ChatResponse, error) {
			return reply.Compose(reply.Input{
				Outcome: in.Outcome,
				Prompt:  in.Prompt,
				Tools:   in.Tools,
				Model:   &contractx.ModelInfo{Provider: in.Resolution.Provider, Model: in.Resolution.Model},
			}), nil
		}),
	); err != nil {
		return nil, fmt.Errorf("add node compose_reply: %w", err)
	}

	edges := [][2]string{
		{compose.START, "validate_request"},
		{"validate_request", "resolve_credentials"},
		{"resolve_credentials", "normalize_context"},
		{"normalize_context", "reason"},
		{"reason", "compose_reply"},
		{"compose_reply", compose.END},
	}

	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.handle_chat"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}

func (o *Orchestrator) resolveCredentials(ctx context.Context, in *chatState) (*chatState, error) {
	res, err := o.resolver.ResolveModel(in.Req.Provider, in.Req.ModelID, in.Req.Credentials)
	if err != nil {
		return nil, err
	}
	log.Ctx(ctx).Debug().Stringer("credential", res).Msg("credential resolved")

	model, err := o.models.Model(ctx, res)
	if err != nil {
		return nil, err
	}
	in.Resolution = res
	in.Model = model
	in.Tools = o.tools(in.Req.Credentials)
	return in, nil
}
