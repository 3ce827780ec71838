package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/credential"
	"github.com/tanpawarit/theo-ai/agent/prompt"
)

type fakeModel struct {
	mu     sync.Mutex
	states []contractx.PromptState
	next   func(st contractx.PromptState) (contractx.Step, error)
}

func (m *fakeModel) Invoke(ctx context.Context, st contractx.PromptState) (contractx.Step, error) {
	m.mu.Lock()
	m.states = append(m.states, st)
	m.mu.Unlock()
	return m.next(st)
}

type fakeFactory struct {
	model *fakeModel
	err   error
	calls int
	got   []credential.Resolution
}

func (f *fakeFactory) Model(ctx context.Context, res credential.Resolution) (contractx.Model, error) {
	f.calls++
	f.got = append(f.got, res)
	if f.err != nil {
		return nil, f.err
	}
	return f.model, nil
}

type fakeTools struct {
	mu    sync.Mutex
	calls int
	run   func(call contractx.ToolCall) contractx.ToolResult
}

func (f *fakeTools) Infos() []*schema.ToolInfo {
	return []*schema.ToolInfo{{Name: "web_search"}, {Name: "calendar_create_event"}}
}

func (f *fakeTools) Class(name string) (contractx.Idempotency, bool) {
	switch name {
	case "web_search":
		return contractx.SafeToRetry, true
	case "calendar_create_event":
		return contractx.SideEffecting, true
	}
	return "", false
}

func (f *fakeTools) Validate(call contractx.ToolCall) error { return nil }

func (f *fakeTools) Execute(ctx context.Context, call contractx.ToolCall) contractx.ToolResult {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	return f.run(call)
}

type fakeScheduler struct {
	calls   int
	cred    credential.Resolution
	eventID string
	callID  string
}

func (f *fakeScheduler) Schedule(ctx context.Context, cred credential.Resolution, req contractx.ScheduleRequest, eventID, callID string) (contractx.ScheduleResponse, error) {
	f.calls++
	f.cred, f.eventID, f.callID = cred, eventID, callID
	return contractx.ScheduleResponse{EventID: eventID, EventLink: "https://cal/" + eventID, Message: "Calendar event created successfully"}, nil
}

func testResolver() *credential.Resolver {
	return credential.NewResolver(credential.Config{
		DefaultProvider: credential.ProviderOpenAI,
		Providers: map[string]credential.ProviderConfig{
			credential.ProviderOpenAI: {
				Backend:      credential.BackendOpenAICompatible,
				BaseURL:      "https://api.openai.com/v1",
				APIKey:       "sk-default",
				DefaultModel: "gpt-4o",
			},
			credential.ProviderGemini: {
				Backend:      credential.BackendGemini,
				DefaultModel: "gemini-2.5-flash",
			},
			credential.ToolGoogleCalendar: {Backend: credential.BackendTool},
		},
	})
}

type harness struct {
	orch      *Orchestrator
	factory   *fakeFactory
	tools     *fakeTools
	scheduler *fakeScheduler
}

func newHarness(t *testing.T, next func(st contractx.PromptState) (contractx.Step, error)) *harness {
	t.Helper()

	h := &harness{
		factory: &fakeFactory{model: &fakeModel{next: next}},
		tools: &fakeTools{run: func(call contractx.ToolCall) contractx.ToolResult {
			return contractx.ToolResult{Tool: call.Name, CallID: call.ID, Succeeded: true, Payload: map[string]any{"funding": "$5M Series A"}}
		}},
		scheduler: &fakeScheduler{},
	}
	orch, err := New(
		testResolver(),
		h.factory,
		func(map[string]string) contractx.Toolbox { return h.tools },
		h.scheduler,
		prompt.LoadPromptSet(),
		Config{},
	)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	h.orch = orch
	return h
}

func acmeRequest() contractx.ChatRequest {
	return contractx.ChatRequest{
		Turns:        []contractx.Turn{{Speaker: "Alice", Text: "Can we talk to Acme Corp?"}},
		SystemPrompt: "You are Theo...",
	}
}

func TestHandleChatAcmeResearch(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(st contractx.PromptState) (contractx.Step, error) {
		if len(st.Transcript) == 0 {
			return contractx.Step{ToolCalls: []contractx.ToolCall{{Name: "web_search", Arguments: map[string]any{"query": "Acme Corp funding"}}}}, nil
		}
		funding := st.Transcript[0].Results[0].Payload.(map[string]any)["funding"]
		return contractx.Step{Text: fmt.Sprintf("Acme Corp recently raised %v, so it is worth a call.", funding)}, nil
	})

	resp, err := h.orch.HandleChat(context.Background(), acmeRequest())
	if err != nil {
		t.Fatalf("HandleChat() error = %v", err)
	}
	if !strings.Contains(resp.Reply, "$5M Series A") {
		t.Fatalf("reply does not reference research: %q", resp.Reply)
	}
	research, ok := resp.ResearchData["web_search"].([]any)
	if !ok || len(research) != 1 || research[0].(map[string]any)["funding"] != "$5M Series A" {
		t.Fatalf("researchData = %#v", resp.ResearchData)
	}
	if resp.ModelInfo == nil || resp.ModelInfo.Provider != "openai" || resp.ModelInfo.Model != "gpt-4o" {
		t.Fatalf("ModelInfo = %+v", resp.ModelInfo)
	}

	st := h.factory.model.states[0]
	if st.SystemPrompt != "You are Theo..." || st.Turns[0].Speaker != "Alice" || st.Instructions == "" {
		t.Fatalf("unexpected first prompt state: %+v", st)
	}
}

func TestHandleChatPerRequestKeyWins(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(contractx.PromptState) (contractx.Step, error) {
		return contractx.Step{Text: "hi"}, nil
	})
	req := acmeRequest()
	req.Credentials = map[string]string{"OpenAI": "sk-request"}
	req.ModelID = "gpt-4-turbo"

	if _, err := h.orch.HandleChat(context.Background(), req); err != nil {
		t.Fatalf("HandleChat() error = %v", err)
	}
	got := h.factory.got[0]
	if got.APIKey != "sk-request" || got.Source != credential.SourceRequest || got.Model != "gpt-4-turbo" {
		t.Fatalf("unexpected resolution: %s", got)
	}
}

func TestHandleChatRejectsBeforeAnyModelCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*contractx.ChatRequest)
		want   []error
	}{
		{
			name:   "empty turns",
			mutate: func(r *contractx.ChatRequest) { r.Turns = nil },
			want:   []error{contractx.ErrValidation},
		},
		{
			name:   "unknown provider",
			mutate: func(r *contractx.ChatRequest) { r.Provider = "acme-llm" },
			want:   []error{contractx.ErrCredential, contractx.ErrValidation},
		},
		{
			name:   "provider without key",
			mutate: func(r *contractx.ChatRequest) { r.Provider = "gemini" },
			want:   []error{contractx.ErrCredential},
		},
		{
			name:   "unknown preset",
			mutate: func(r *contractx.ChatRequest) { r.SystemPrompt = "@nope" },
			want:   []error{contractx.ErrValidation},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			h := newHarness(t, func(contractx.PromptState) (contractx.Step, error) {
				return contractx.Step{Text: "unreachable"}, nil
			})
			req := acmeRequest()
			tt.mutate(&req)

			_, err := h.orch.HandleChat(context.Background(), req)
			for _, want := range tt.want {
				if !errors.Is(err, want) {
					t.Fatalf("expected %v in %v", want, err)
				}
			}
			if h.factory.calls != 0 || h.tools.calls != 0 {
				t.Fatalf("model factory calls = %d, tool calls = %d; want 0", h.factory.calls, h.tools.calls)
			}
		})
	}
}

func TestHandleChatUsesPreset(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(contractx.PromptState) (contractx.Step, error) {
		return contractx.Step{Text: "ok"}, nil
	})
	req := acmeRequest()
	req.SystemPrompt = "@research"

	if _, err := h.orch.HandleChat(context.Background(), req); err != nil {
		t.Fatalf("HandleChat() error = %v", err)
	}
	want := prompt.LoadPromptSet().Presets["research"]
	if got := h.factory.model.states[0].SystemPrompt; got != want {
		t.Fatalf("SystemPrompt = %q, want research preset", got)
	}
}

func TestHandleChatFirstModelFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t, func(contractx.PromptState) (contractx.Step, error) {
		return contractx.Step{}, errors.New("upstream unavailable")
	})
	_, err := h.orch.HandleChat(context.Background(), acmeRequest())
	if !errors.Is(err, contractx.ErrModelInvoke) {
		t.Fatalf("expected ErrModelInvoke, got %v", err)
	}
}

func TestHandleScheduleRejectsEndBeforeStart(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	_, err := h.orch.HandleSchedule(context.Background(), contractx.ScheduleRequest{
		Summary:   "Call w/ Acme",
		Attendees: []string{"a@x.com"},
		StartTime: "2025-01-01T10:00:00Z",
		EndTime:   "2025-01-01T09:00:00Z",
	}, map[string]string{"google_calendar": "ya29.token"})
	if !errors.Is(err, contractx.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if h.scheduler.calls != 0 {
		t.Fatal("calendar must not be called for an invalid request")
	}
}

func TestHandleSchedule(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	req := contractx.ScheduleRequest{
		Summary:   "Call w/ Acme",
		Attendees: []string{"a@x.com"},
		StartTime: "2025-01-01T10:00:00Z",
		EndTime:   "2025-01-01T11:00:00Z",
	}

	_, err := h.orch.HandleSchedule(context.Background(), req, nil)
	if !errors.Is(err, contractx.ErrCalendarUnavailable) {
		t.Fatalf("expected ErrCalendarUnavailable without a calendar credential, got %v", err)
	}

	resp, err := h.orch.HandleSchedule(context.Background(), req, map[string]string{"google_calendar": "ya29.token"})
	if err != nil {
		t.Fatalf("HandleSchedule() error = %v", err)
	}
	if h.scheduler.cred.APIKey != "ya29.token" || h.scheduler.callID != scheduleCallID {
		t.Fatalf("unexpected scheduler input: %+v", h.scheduler)
	}
	if !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(h.scheduler.eventID) || resp.EventID != h.scheduler.eventID {
		t.Fatalf("unexpected event id %q", h.scheduler.eventID)
	}
}

func TestCatalog(t *testing.T) {
	t.Parallel()

	h := newHarness(t, nil)
	var listed []string
	h.orch.SetModelLister(func(ctx context.Context, res credential.Resolution) ([]string, error) {
		listed = append(listed, res.Provider)
		return []string{"gpt-4o", "gpt-4o-mini"}, nil
	})

	cat := h.orch.Catalog(context.Background(), true, nil)
	if cat.DefaultProvider != "openai" || cat.DefaultModel != "gpt-4o" {
		t.Fatalf("unexpected defaults: %+v", cat)
	}
	if len(cat.Providers) != 2 {
		t.Fatalf("expected model providers only, got %+v", cat.Providers)
	}
	gemini, openai := cat.Providers[0], cat.Providers[1]
	if gemini.ID != "gemini" || gemini.Configured || gemini.Default {
		t.Fatalf("unexpected gemini entry: %+v", gemini)
	}
	if !openai.Default || !openai.Configured || len(openai.Models) != 3 {
		t.Fatalf("unexpected openai entry: %+v", openai)
	}
	if len(listed) != 1 || listed[0] != "openai" {
		t.Fatalf("live listing asked %v", listed)
	}
	if strings.Join(cat.Tools, ",") != "calendar_create_event,web_search" {
		t.Fatalf("Tools = %v", cat.Tools)
	}
}
