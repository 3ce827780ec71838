package tool

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/credential"
)

const (
	ToolWebSearch      = "web_search"
	ToolWebFetch       = "web_fetch"
	ToolCompanyLookup  = "company_lookup"
	ToolCalendarCreate = "calendar_create_event"
)

var known = map[string]bool{
	ToolWebSearch:      true,
	ToolWebFetch:       true,
	ToolCompanyLookup:  true,
	ToolCalendarCreate: true,
}

// IsKnown reports whether name is one of the closed set of tool variants.
func IsKnown(name string) bool {
	return known[name]
}

// Config is the process-level tool layout.
type Config struct {
	SearchProvider   string        `envconfig:"SEARCH_PROVIDER" default:"duckduckgo"`
	SearchBaseURL    string        `envconfig:"SEARCH_BASE_URL"`
	BraveAPIKey      string        `envconfig:"BRAVE_API_KEY"`
	SearchResults    int           `envconfig:"SEARCH_RESULTS" default:"5"`
	SearchTimeout    time.Duration `envconfig:"SEARCH_TIMEOUT" default:"15s"`
	FetchEnabled     bool          `envconfig:"FETCH_ENABLED" default:"true"`
	FetchMaxChars    int           `envconfig:"FETCH_MAX_CHARS" default:"12000"`
	FetchTimeout     time.Duration `envconfig:"FETCH_TIMEOUT" default:"20s"`
	CompanyBaseURL   string        `envconfig:"COMPANY_BASE_URL" default:"https://api.crunchbase.com/api/v4"`
	CompanyTimeout   time.Duration `envconfig:"COMPANY_TIMEOUT" default:"15s"`
	CalendarTimeout  time.Duration `envconfig:"CALENDAR_TIMEOUT" default:"20s"`
	CalendarDisabled bool          `envconfig:"CALENDAR_DISABLED" default:"false"`
}

// Dependencies are the collaborators tools are built on.
type Dependencies struct {
	Search   SearchProvider
	Fetcher  *Fetcher
	Company  *CompanyLookup
	Calendar Scheduler
}

// Build registers every configured tool. A nil dependency leaves its tool out.
func Build(resolver *credential.Resolver, cfg Config, deps Dependencies, opts ...RegistryOption) (*Registry, error) {
	r := NewRegistry(resolver, opts...)

	var specs []Spec
	if deps.Search != nil {
		specs = append(specs, searchSpec(deps.Search, cfg))
	}
	if deps.Fetcher != nil {
		specs = append(specs, fetchSpec(deps.Fetcher, cfg))
	}
	if deps.Company != nil {
		specs = append(specs, companySpec(deps.Company, cfg))
	}
	if deps.Calendar != nil && !cfg.CalendarDisabled {
		specs = append(specs, calendarSpec(deps.Calendar, cfg))
	}

	for _, spec := range specs {
		if err := r.Register(spec); err != nil {
			return nil, fmt.Errorf("register %s: %w", spec.Name, err)
		}
	}
	return r, nil
}

func searchSpec(provider SearchProvider, cfg Config) Spec {
	return Spec{
		Name: ToolWebSearch,
		Desc: "Search the web and return the top results with title, url and snippet.",
		Params: map[string]*schema.ParameterInfo{
			"query": {Type: schema.String, Desc: "Search query", Required: true},
			"count": {Type: schema.Integer, Desc: "Maximum number of results (1-10)"},
		},
		Timeout: cfg.SearchTimeout,
		Class:   contractx.SafeToRetry,
		Handler: func(ctx context.Context, inv Invocation) (any, error) {
			count := argInt(inv.Args, "count", cfg.SearchResults)
			if count <= 0 || count > 10 {
				count = cfg.SearchResults
			}
			results, err := provider.Search(ctx, argString(inv.Args, "query"), count)
			if err != nil {
				return nil, err
			}
			return SearchOutput{Provider: provider.Name(), Query: argString(inv.Args, "query"), Results: results}, nil
		},
	}
}

func fetchSpec(f *Fetcher, cfg Config) Spec {
	return Spec{
		Name: ToolWebFetch,
		Desc: "Fetch a web page and return its readable text content.",
		Params: map[string]*schema.ParameterInfo{
			"url":       {Type: schema.String, Desc: "Absolute http(s) URL", Required: true},
			"max_chars": {Type: schema.Integer, Desc: "Maximum characters of text to return"},
		},
		Timeout: cfg.FetchTimeout,
		Class:   contractx.SafeToRetry,
		Handler: func(ctx context.Context, inv Invocation) (any, error) {
			maxChars := argInt(inv.Args, "max_chars", cfg.FetchMaxChars)
			if maxChars <= 0 || maxChars > cfg.FetchMaxChars {
				maxChars = cfg.FetchMaxChars
			}
			return f.Fetch(ctx, argString(inv.Args, "url"), maxChars)
		},
	}
}

func companySpec(c *CompanyLookup, cfg Config) Spec {
	return Spec{
		Name: ToolCompanyLookup,
		Desc: "Look up structured company data (description, funding, founders, headcount, location) by company name.",
		Params: map[string]*schema.ParameterInfo{
			"name": {Type: schema.String, Desc: "Company name, e.g. Acme Corp", Required: true},
		},
		Timeout:    cfg.CompanyTimeout,
		Class:      contractx.SafeToRetry,
		Credential: credential.ToolCrunchbase,
		Handler: func(ctx context.Context, inv Invocation) (any, error) {
			return c.Lookup(ctx, inv.Credential.APIKey, argString(inv.Args, "name"))
		},
	}
}

func calendarSpec(s Scheduler, cfg Config) Spec {
	return Spec{
		Name: ToolCalendarCreate,
		Desc: "Create a calendar event and invite attendees. Call at most once per meeting.",
		Params: map[string]*schema.ParameterInfo{
			"summary":     {Type: schema.String, Desc: "Event title", Required: true},
			"description": {Type: schema.String, Desc: "Event description"},
			"attendees": {
				Type:     schema.Array,
				Desc:     "Attendee email addresses",
				Required: true,
				ElemInfo: &schema.ParameterInfo{Type: schema.String},
			},
			"start_time": {Type: schema.String, Desc: "ISO-8601 start time", Required: true},
			"end_time":   {Type: schema.String, Desc: "ISO-8601 end time", Required: true},
			"time_zone":  {Type: schema.String, Desc: "IANA time zone, default UTC"},
		},
		Timeout:    cfg.CalendarTimeout,
		Class:      contractx.SideEffecting,
		Credential: credential.ToolGoogleCalendar,
		Handler: func(ctx context.Context, inv Invocation) (any, error) {
			req := contractx.ScheduleRequest{
				Summary:     argString(inv.Args, "summary"),
				Description: argString(inv.Args, "description"),
				Attendees:   argStrings(inv.Args, "attendees"),
				StartTime:   argString(inv.Args, "start_time"),
				EndTime:     argString(inv.Args, "end_time"),
				TimeZone:    strings.TrimSpace(argString(inv.Args, "time_zone")),
			}
			return s.Schedule(ctx, inv.Credential, req, inv.IdempotencyKey, inv.CallID)
		},
	}
}

// Scheduler creates calendar events. The event id makes a repeated
// request for the same call land on the same event.
type Scheduler interface {
	Schedule(ctx context.Context, cred credential.Resolution, req contractx.ScheduleRequest, eventID, callID string) (contractx.ScheduleResponse, error)
}
