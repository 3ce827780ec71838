package orchestrator

import (
	"context"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/theo-ai/agent/credential"
)

type ModelEntry struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

type ProviderEntry struct {
	ID           string       `json:"id"`
	Default      bool         `json:"default"`
	DefaultModel string       `json:"defaultModel,omitempty"`
	Configured   bool         `json:"configured"`
	Models       []ModelEntry `json:"models"`
	// LiveError is set when a live listing was requested and failed.
	LiveError string `json:"liveError,omitempty"`
}

type Catalog struct {
	Providers       []ProviderEntry `json:"providers"`
	DefaultProvider string          `json:"defaultProvider"`
	DefaultModel    string          `json:"defaultModel"`
	Presets         []string        `json:"systemPromptPresets"`
	Tools           []string        `json:"tools"`
}

// ModelLister lists the models a provider serves right now.
type ModelLister func(ctx context.Context, res credential.Resolution) ([]string, error)

var knownModels = map[string][]ModelEntry{
	credential.ProviderFormation: {
		{ID: "best-quality", Name: "Best Quality", Description: "Best model for high-quality outputs"},
		{ID: "best-reasoning", Name: "Best Reasoning", Description: "Best model for complex reasoning tasks"},
		{ID: "best-speed", Name: "Best Speed", Description: "Best model for fast responses"},
		{ID: "best-rag", Name: "Best RAG", Description: "Best model for retrieval augmented generation"},
	},
	credential.ProviderOpenAI: {
		{ID: "gpt-4o", Name: "GPT-4o"},
		{ID: "gpt-4-turbo", Name: "GPT-4 Turbo"},
	},
}

// SetModelLister enables live model listing in Catalog.
func (o *Orchestrator) SetModelLister(l ModelLister) {
	o.lister = l
}

// Catalog describes the configured providers. With live set, each provider
// that has a usable key is asked for its current model list.
func (o *Orchestrator) Catalog(ctx context.Context, live bool, perRequest map[string]string) Catalog {
	out := Catalog{
		DefaultProvider: o.resolver.DefaultProvider(),
		Presets:         o.prompts.PresetNames(),
	}

	for _, name := range o.resolver.Providers() {
		cfg, _ := o.resolver.Lookup(name)
		entry := ProviderEntry{
			ID:           name,
			Default:      name == out.DefaultProvider,
			DefaultModel: cfg.DefaultModel,
			Models:       append([]ModelEntry(nil), knownModels[name]...),
		}

		res, err := o.resolver.Resolve(name, perRequest)
		entry.Configured = err == nil
		if entry.Default {
			out.DefaultModel = res.Model
			if out.DefaultModel == "" {
				out.DefaultModel = cfg.DefaultModel
			}
		}

		if live && entry.Configured && o.lister != nil {
			ids, err := o.lister(ctx, res)
			if err != nil {
				log.Ctx(ctx).Warn().Err(err).Str("provider", name).Msg("live model listing failed")
				entry.LiveError = "model listing failed"
			} else {
				entry.Models = mergeModels(entry.Models, ids)
			}
		}
		out.Providers = append(out.Providers, entry)
	}

	for _, info := range o.tools(perRequest).Infos() {
		out.Tools = append(out.Tools, info.Name)
	}
	sort.Strings(out.Tools)
	return out
}

func mergeModels(known []ModelEntry, ids []string) []ModelEntry {
	seen := make(map[string]bool, len(known))
	for _, m := range known {
		seen[m.ID] = true
	}
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			known = append(known, ModelEntry{ID: id})
		}
	}
	return known
}
