package llm

import (
	"context"
	"fmt"
	"net/http"

	einomodel "github.com/cloudwego/eino/components/model"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/credential"
)

// ChatModelBuilder creates an eino chat model for an OpenAI-compatible
// resolution. Tests substitute it.
type ChatModelBuilder func(ctx context.Context, cfg Config, res credential.Resolution) (einomodel.ToolCallingChatModel, error)

// Factory turns a resolved credential into a request-scoped model. Nothing
// it builds outlives the request.
type Factory struct {
	cfg        Config
	httpClient *http.Client
	build      ChatModelBuilder
}

type FactoryOption func(*Factory)

func WithHTTPClient(c *http.Client) FactoryOption {
	return func(f *Factory) { f.httpClient = c }
}

func WithChatModelBuilder(b ChatModelBuilder) FactoryOption {
	return func(f *Factory) {
		if b != nil {
			f.build = b
		}
	}
}

func NewFactory(cfg Config, opts ...FactoryOption) *Factory {
	f := &Factory{cfg: cfg, build: openAICompatible}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Factory) Model(ctx context.Context, res credential.Resolution) (contractx.Model, error) {
	switch res.Backend {
	case credential.BackendOpenAICompatible:
		chat, err := f.build(ctx, f.cfg, res)
		if err != nil {
			return nil, fmt.Errorf("%w: provider=%s: %v", contractx.ErrModelInvoke, res.Provider, err)
		}
		return NewEinoModel(chat)
	case credential.BackendGemini:
		return NewGemini(ctx, res, f.cfg, f.httpClient)
	default:
		return nil, fmt.Errorf("%w: provider %s has no model backend", contractx.ErrValidation, res.Provider)
	}
}

func openAICompatible(ctx context.Context, cfg Config, res credential.Resolution) (einomodel.ToolCallingChatModel, error) {
	orCfg := cfg.OpenRouterFor(res)
	return orCfg.New(ctx)
}
