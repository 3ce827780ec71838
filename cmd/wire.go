package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/tanpawarit/theo-ai/agent/calendar"
	"github.com/tanpawarit/theo-ai/agent/credential"
	"github.com/tanpawarit/theo-ai/agent/journal"
	"github.com/tanpawarit/theo-ai/agent/llm"
	"github.com/tanpawarit/theo-ai/agent/orchestrator"
	"github.com/tanpawarit/theo-ai/agent/prompt"
	"github.com/tanpawarit/theo-ai/agent/tool"
	configx "github.com/tanpawarit/theo-ai/pkg/config"
	"github.com/tanpawarit/theo-ai/pkg/httpx"
)

// app holds the long-lived, read-only collaborators of a running process.
type app struct {
	resolver     *credential.Resolver
	factory      *llm.Factory
	registry     *tool.Registry
	orchestrator *orchestrator.Orchestrator
}

func loadConfig[T any](prefix string) (*T, error) {
	cfg, err := configx.New[T](prefix)
	if err != nil {
		return nil, fmt.Errorf("load %T config: %w", *new(T), err)
	}
	return cfg, nil
}

func buildApp(ctx context.Context) (*app, error) {
	credCfg, err := loadConfig[credential.EnvConfig]("")
	if err != nil {
		return nil, err
	}
	llmCfg, err := loadConfig[llm.Config]("LLM")
	if err != nil {
		return nil, err
	}
	if err := llmCfg.Validate(); err != nil {
		return nil, err
	}
	toolCfg, err := loadConfig[tool.Config]("TOOL")
	if err != nil {
		return nil, err
	}
	calCfg, err := loadConfig[calendar.Config]("CALENDAR")
	if err != nil {
		return nil, err
	}
	journalCfg, err := loadConfig[journal.Config]("JOURNAL")
	if err != nil {
		return nil, err
	}
	orchCfg, err := loadConfig[orchestrator.Config]("")
	if err != nil {
		return nil, err
	}

	resolver := credential.NewResolver(credCfg.Config())

	// Per-call contexts bound every outbound request; clients carry no
	// timeout of their own.
	httpClient := httpx.NewClient(httpx.WithTimeout(0))

	effects, err := journal.New(*journalCfg, journal.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	scheduler := calendar.NewScheduler(calendar.NewConnector(*calCfg, httpClient).Connect, effects)

	deps := tool.Dependencies{
		Search:   tool.NewSearchProvider(*toolCfg, httpClient),
		Company:  tool.NewCompanyLookup(toolCfg.CompanyBaseURL, httpClient),
		Calendar: scheduler,
	}
	if toolCfg.FetchEnabled {
		deps.Fetcher = tool.NewFetcher(httpClient)
	}
	registry, err := tool.Build(resolver, *toolCfg, deps)
	if err != nil {
		return nil, err
	}

	factory := llm.NewFactory(*llmCfg, llm.WithHTTPClient(httpClient))

	orch, err := orchestrator.New(
		resolver,
		factory,
		orchestrator.RegistryScope(registry),
		scheduler,
		prompt.LoadPromptSet(),
		*orchCfg,
	)
	if err != nil {
		return nil, err
	}
	orch.SetModelLister(factory.ListModels)

	log.Ctx(ctx).Info().
		Str("default_provider", resolver.DefaultProvider()).
		Strs("tools", registry.Names()).
		Bool("journal", journalCfg.Enabled()).
		Msg("orchestrator ready")

	return &app{resolver: resolver, factory: factory, registry: registry, orchestrator: orch}, nil
}
