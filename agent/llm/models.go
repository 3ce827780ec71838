package llm

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"google.golang.org/genai"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/credential"
	openrouterx "github.com/tanpawarit/theo-ai/pkg/openrouter"
)

// ListModels asks the provider behind res which models it serves.
func (f *Factory) ListModels(ctx context.Context, res credential.Resolution) ([]string, error) {
	switch res.Backend {
	case credential.BackendOpenAICompatible:
		return openrouterx.ListModels(ctx, f.cfg.OpenRouterFor(res))
	case credential.BackendGemini:
		return listGeminiModels(ctx, res, f.httpClient)
	default:
		return nil, fmt.Errorf("%w: provider %s has no models", contractx.ErrValidation, res.Provider)
	}
}

func listGeminiModels(ctx context.Context, res credential.Resolution, httpClient *http.Client) ([]string, error) {
	m, err := NewGemini(ctx, res, Config{}, httpClient)
	if err != nil {
		return nil, err
	}

	var ids []string
	for model, err := range m.client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("gemini: list models: %w", err)
		}
		if !supportsGenerate(model) {
			continue
		}
		ids = append(ids, strings.TrimPrefix(model.Name, "models/"))
	}
	sort.Strings(ids)
	return ids, nil
}

func supportsGenerate(m *genai.Model) bool {
	if m == nil {
		return false
	}
	for _, action := range m.SupportedActions {
		if action == "generateContent" {
			return true
		}
	}
	return false
}
