package credential

import (
	"fmt"
	"sort"
	"strings"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
)

// Provider and tool credential names accepted in ChatRequest.Credentials.
const (
	ProviderFormation  = "formation"
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"

	ToolCrunchbase     = "crunchbase"
	ToolGoogleCalendar = "google_calendar"
)

type Source string

const (
	SourceRequest Source = "request"
	SourceDefault Source = "default"
)

// Backend selects the client implementation used for a provider.
type Backend string

const (
	BackendOpenAICompatible Backend = "openai_compatible"
	BackendGemini           Backend = "gemini"
	BackendTool             Backend = "tool"
)

type ProviderConfig struct {
	Backend      Backend
	BaseURL      string
	APIKey       string
	DefaultModel string
	// CredentialsFile is a process-level fallback used by collaborators that
	// authenticate with a service-account file instead of a key.
	CredentialsFile string
}

// Config is the process-level credential layout. It is built once at startup
// and never consulted through the environment at request time.
type Config struct {
	DefaultProvider string
	DefaultModel    string
	Providers       map[string]ProviderConfig
}

// EnvConfig is the envconfig shape that feeds Config.
type EnvConfig struct {
	DefaultProvider string `envconfig:"DEFAULT_PROVIDER" default:"formation"`
	DefaultModel    string `envconfig:"DEFAULT_MODEL"`

	FormationAPIKey  string `envconfig:"FORMATION_API_KEY"`
	FormationBaseURL string `envconfig:"FORMATION_BASE_URL" default:"https://agents.formation.cloud/v1"`
	FormationModel   string `envconfig:"FORMATION_MODEL" default:"best-quality"`

	OpenAIAPIKey  string `envconfig:"OPENAI_API_KEY"`
	OpenAIBaseURL string `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1"`
	OpenAIModel   string `envconfig:"OPENAI_MODEL" default:"gpt-4o"`

	OpenRouterAPIKey  string `envconfig:"OPENROUTER_API_KEY"`
	OpenRouterBaseURL string `envconfig:"OPENROUTER_BASE_URL" default:"https://openrouter.ai/api/v1"`
	OpenRouterModel   string `envconfig:"OPENROUTER_MODEL" default:"openai/gpt-4o-mini"`

	GeminiAPIKey string `envconfig:"GEMINI_API_KEY"`
	GeminiModel  string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`

	CrunchbaseAPIKey string `envconfig:"CRUNCHBASE_API_KEY"`

	GoogleCalendarToken           string `envconfig:"GOOGLE_CALENDAR_TOKEN"`
	GoogleCalendarCredentialsFile string `envconfig:"GOOGLE_CALENDAR_CREDENTIALS_FILE"`
}

func (e EnvConfig) Config() Config {
	return Config{
		DefaultProvider: e.DefaultProvider,
		DefaultModel:    e.DefaultModel,
		Providers: map[string]ProviderConfig{
			ProviderFormation: {
				Backend:      BackendOpenAICompatible,
				BaseURL:      e.FormationBaseURL,
				APIKey:       e.FormationAPIKey,
				DefaultModel: e.FormationModel,
			},
			ProviderOpenAI: {
				Backend:      BackendOpenAICompatible,
				BaseURL:      e.OpenAIBaseURL,
				APIKey:       e.OpenAIAPIKey,
				DefaultModel: e.OpenAIModel,
			},
			ProviderOpenRouter: {
				Backend:      BackendOpenAICompatible,
				BaseURL:      e.OpenRouterBaseURL,
				APIKey:       e.OpenRouterAPIKey,
				DefaultModel: e.OpenRouterModel,
			},
			ProviderGemini: {
				Backend:      BackendGemini,
				APIKey:       e.GeminiAPIKey,
				DefaultModel: e.GeminiModel,
			},
			ToolCrunchbase: {
				Backend: BackendTool,
				APIKey:  e.CrunchbaseAPIKey,
			},
			ToolGoogleCalendar: {
				Backend:         BackendTool,
				APIKey:          e.GoogleCalendarToken,
				CredentialsFile: e.GoogleCalendarCredentialsFile,
			},
		},
	}
}

// Resolution is the credential chosen for one request. It must not outlive it.
type Resolution struct {
	Provider        string
	Backend         Backend
	BaseURL         string
	APIKey          string
	Model           string
	CredentialsFile string
	Source          Source
}

func (r Resolution) String() string {
	return fmt.Sprintf("provider=%s model=%s source=%s key=%s", r.Provider, r.Model, r.Source, redact(r.APIKey))
}

type Resolver struct {
	defaultProvider string
	defaultModel    string
	providers       map[string]ProviderConfig
}

func NewResolver(cfg Config) *Resolver {
	providers := make(map[string]ProviderConfig, len(cfg.Providers))
	for name, p := range cfg.Providers {
		p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
		p.APIKey = strings.TrimSpace(p.APIKey)
		p.DefaultModel = strings.TrimSpace(p.DefaultModel)
		p.CredentialsFile = strings.TrimSpace(p.CredentialsFile)
		providers[normalize(name)] = p
	}
	defaultProvider := normalize(cfg.DefaultProvider)
	if defaultProvider == "" {
		defaultProvider = ProviderFormation
	}
	return &Resolver{
		defaultProvider: defaultProvider,
		defaultModel:    strings.TrimSpace(cfg.DefaultModel),
		providers:       providers,
	}
}

// DefaultProvider is the provider used when a request names none.
func (r *Resolver) DefaultProvider() string {
	return r.defaultProvider
}

// Providers lists known model providers (tool credentials excluded), sorted.
func (r *Resolver) Providers() []string {
	out := make([]string, 0, len(r.providers))
	for name, p := range r.providers {
		if p.Backend == BackendTool {
			continue
		}
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Lookup returns the process-level settings for provider.
func (r *Resolver) Lookup(provider string) (ProviderConfig, bool) {
	p, ok := r.providers[normalize(provider)]
	return p, ok
}

// Resolve picks the secret for provider: the per-request value wins, then the
// process default for the same provider. A different provider is never used.
func (r *Resolver) Resolve(provider string, perRequest map[string]string) (Resolution, error) {
	name := normalize(provider)
	if name == "" {
		name = r.defaultProvider
	}

	p, ok := r.providers[name]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %w: unknown provider %q", contractx.ErrCredential, contractx.ErrValidation, name)
	}

	res := Resolution{
		Provider:        name,
		Backend:         p.Backend,
		BaseURL:         p.BaseURL,
		Model:           p.DefaultModel,
		CredentialsFile: p.CredentialsFile,
	}
	if res.Model == "" && p.Backend != BackendTool {
		res.Model = r.defaultModel
	}

	if key := lookupRequestKey(perRequest, name); key != "" {
		res.APIKey = key
		res.Source = SourceRequest
		return res, nil
	}
	if p.APIKey != "" || p.CredentialsFile != "" {
		res.APIKey = p.APIKey
		res.Source = SourceDefault
		return res, nil
	}

	return Resolution{}, fmt.Errorf("%w: no key for provider %q", contractx.ErrCredential, name)
}

// ResolveModel resolves provider and then applies the requested model id.
func (r *Resolver) ResolveModel(provider, modelID string, perRequest map[string]string) (Resolution, error) {
	res, err := r.Resolve(provider, perRequest)
	if err != nil {
		return Resolution{}, err
	}
	if res.Backend == BackendTool {
		return Resolution{}, fmt.Errorf("%w: %q is not a model provider", contractx.ErrValidation, res.Provider)
	}
	if m := strings.TrimSpace(modelID); m != "" {
		res.Model = m
	}
	if res.Model == "" {
		return Resolution{}, fmt.Errorf("%w: no model configured for provider %q", contractx.ErrValidation, res.Provider)
	}
	return res, nil
}

func lookupRequestKey(perRequest map[string]string, name string) string {
	if v := strings.TrimSpace(perRequest[name]); v != "" {
		return v
	}
	for k, v := range perRequest {
		if normalize(k) == name {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func redact(secret string) string {
	if secret == "" {
		return "<none>"
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:3] + "****" + secret[len(secret)-2:]
}
