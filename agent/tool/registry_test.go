package tool

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/credential"
	"github.com/tanpawarit/theo-ai/pkg/httpx"
)

func testResolver() *credential.Resolver {
	return credential.NewResolver(credential.Config{
		Providers: map[string]credential.ProviderConfig{
			credential.ToolCrunchbase:     {Backend: credential.BackendTool},
			credential.ToolGoogleCalendar: {Backend: credential.BackendTool, APIKey: "default-token"},
		},
	})
}

func querySpec(name string, handler Handler) Spec {
	return Spec{
		Name: name,
		Desc: "test tool",
		Params: map[string]*schema.ParameterInfo{
			"query": {Type: schema.String, Required: true},
			"count": {Type: schema.Integer},
		},
		Timeout: time.Second,
		Class:   contractx.SafeToRetry,
		Handler: handler,
	}
}

func TestRegisterRejectsUnknownVariant(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testResolver())
	err := r.Register(querySpec("math.evaluate", func(context.Context, Invocation) (any, error) { return nil, nil }))
	if err == nil {
		t.Fatal("expected error for a tool outside the closed set")
	}
}

func TestExecuteRejectsSchemaViolations(t *testing.T) {
	t.Parallel()

	var calls int32
	r := NewRegistry(testResolver())
	if err := r.Register(querySpec(ToolWebSearch, func(context.Context, Invocation) (any, error) {
		atomic.AddInt32(&calls, 1)
		return "ok", nil
	})); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	box := r.Scope(nil)

	cases := []contractx.ToolCall{
		{ID: "1", Name: ToolWebSearch, Arguments: map[string]any{}},
		{ID: "2", Name: ToolWebSearch, Arguments: map[string]any{"query": 42.0}},
		{ID: "3", Name: ToolWebSearch, Arguments: map[string]any{"query": "acme", "count": 2.5}},
		{ID: "4", Name: "shell_exec", Arguments: map[string]any{"query": "rm"}},
	}
	for _, call := range cases {
		if err := box.Validate(call); !errors.Is(err, contractx.ErrSchemaViolation) {
			t.Fatalf("call %s: expected ErrSchemaViolation, got %v", call.ID, err)
		}
		res := box.Execute(context.Background(), call)
		if res.Succeeded || res.ErrorKind != contractx.ErrorKindInvalidArguments {
			t.Fatalf("call %s: unexpected result %+v", call.ID, res)
		}
	}
	if got := atomic.LoadInt32(&calls); got != 0 {
		t.Fatalf("handler must not run for invalid calls, ran %d times", got)
	}
}

func TestExecuteRetriesReadOnlyOnce(t *testing.T) {
	t.Parallel()

	var calls int32
	r := NewRegistry(testResolver(), WithBackoff(0))
	if err := r.Register(querySpec(ToolWebSearch, func(context.Context, Invocation) (any, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, &httpx.StatusError{Service: "search", Code: http.StatusServiceUnavailable}
		}
		return "second time lucky", nil
	})); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	res := r.Scope(nil).Execute(context.Background(), contractx.ToolCall{
		ID: "c1", Name: ToolWebSearch, Arguments: map[string]any{"query": "acme"},
	})
	if !res.Succeeded || res.Attempts != 2 || res.Payload != "second time lucky" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestExecuteDoesNotRetryPermanentFailure(t *testing.T) {
	t.Parallel()

	var calls int32
	r := NewRegistry(testResolver(), WithBackoff(0))
	if err := r.Register(querySpec(ToolWebSearch, func(context.Context, Invocation) (any, error) {
		atomic.AddInt32(&calls, 1)
		return nil, &httpx.StatusError{Service: "search", Code: http.StatusNotFound}
	})); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	res := r.Scope(nil).Execute(context.Background(), contractx.ToolCall{
		ID: "c1", Name: ToolWebSearch, Arguments: map[string]any{"query": "acme"},
	})
	if res.Succeeded || res.ErrorKind != contractx.ErrorKindFailed || atomic.LoadInt32(&calls) != 1 {
		t.Fatalf("unexpected result %+v after %d calls", res, calls)
	}
}

func TestExecuteSideEffectTimeoutIsAmbiguous(t *testing.T) {
	t.Parallel()

	var calls int32
	var keys []string
	r := NewRegistry(testResolver(), WithBackoff(0))
	if err := r.Register(Spec{
		Name:       ToolCalendarCreate,
		Params:     map[string]*schema.ParameterInfo{"summary": {Type: schema.String, Required: true}},
		Timeout:    20 * time.Millisecond,
		Class:      contractx.SideEffecting,
		Credential: credential.ToolGoogleCalendar,
		Handler: func(ctx context.Context, inv Invocation) (any, error) {
			atomic.AddInt32(&calls, 1)
			keys = append(keys, inv.IdempotencyKey)
			<-ctx.Done()
			return nil, fmt.Errorf("calendar insert: %w", ctx.Err())
		},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	ctx := contractx.WithRequestID(context.Background(), "req-1")
	res := r.Scope(nil).Execute(ctx, contractx.ToolCall{
		ID: "c1", Name: ToolCalendarCreate, Arguments: map[string]any{"summary": "Intro"},
	})
	if res.Succeeded || res.ErrorKind != contractx.ErrorKindAmbiguous {
		t.Fatalf("unexpected result %+v", res)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("side-effecting tool ran %d times, want 1", got)
	}
	pending, ok := res.Payload.(PendingEffect)
	if !ok || pending.IdempotencyKey == "" || pending.IdempotencyKey != keys[0] {
		t.Fatalf("ambiguous result must carry the idempotency key, got %#v", res.Payload)
	}
	again := idempotencyKey("req-1", contractx.ToolCall{ID: "c1", Name: ToolCalendarCreate, Arguments: map[string]any{"summary": "Intro"}})
	if again != keys[0] {
		t.Fatalf("idempotency key is not stable: %s vs %s", again, keys[0])
	}
}

func TestIdempotencyKeyDependsOnCallContent(t *testing.T) {
	t.Parallel()

	intro := contractx.ToolCall{ID: "call_1_1", Name: ToolCalendarCreate, Arguments: map[string]any{"summary": "Intro", "start": "2026-01-05T10:00:00Z"}}
	retro := contractx.ToolCall{ID: "call_1_1", Name: ToolCalendarCreate, Arguments: map[string]any{"summary": "Retro", "start": "2026-01-05T10:00:00Z"}}

	if a, b := idempotencyKey("req-1", intro), idempotencyKey("req-1", retro); a == b {
		t.Fatalf("different events share key %s", a)
	}
	if a, b := idempotencyKey("req-1", intro), idempotencyKey("req-2", intro); a == b {
		t.Fatalf("different requests share key %s", a)
	}
	if a, b := idempotencyKey("", intro), idempotencyKey("", intro); a == b {
		t.Fatalf("calls without a request id share key %s", a)
	}
}

func TestExecuteSideEffectKeysDifferAcrossRequests(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var keys []string
	r := NewRegistry(testResolver(), WithBackoff(0))
	if err := r.Register(Spec{
		Name:       ToolCalendarCreate,
		Params:     map[string]*schema.ParameterInfo{"summary": {Type: schema.String, Required: true}},
		Class:      contractx.SideEffecting,
		Credential: credential.ToolGoogleCalendar,
		Handler: func(_ context.Context, inv Invocation) (any, error) {
			mu.Lock()
			keys = append(keys, inv.IdempotencyKey)
			mu.Unlock()
			return map[string]any{"ok": true}, nil
		},
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	box := r.Scope(nil)
	for _, summary := range []string{"Intro", "Retro"} {
		res := box.Execute(context.Background(), contractx.ToolCall{
			ID: "call_1_1", Name: ToolCalendarCreate, Arguments: map[string]any{"summary": summary},
		})
		if !res.Succeeded {
			t.Fatalf("Execute(%s) = %+v", summary, res)
		}
	}
	if len(keys) != 2 || keys[0] == keys[1] {
		t.Fatalf("keys = %v, want two distinct keys", keys)
	}
}

func TestScopeHidesToolsWithoutCredential(t *testing.T) {
	t.Parallel()

	r := NewRegistry(testResolver())
	noop := func(context.Context, Invocation) (any, error) { return nil, nil }
	if err := r.Register(Spec{
		Name:       ToolCompanyLookup,
		Params:     map[string]*schema.ParameterInfo{"name": {Type: schema.String, Required: true}},
		Credential: credential.ToolCrunchbase,
		Handler:    noop,
	}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := r.Register(querySpec(ToolWebSearch, noop)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	without := r.Scope(nil)
	if len(without.Infos()) != 1 || without.Infos()[0].Name != ToolWebSearch {
		t.Fatalf("company_lookup must be hidden without a key: %v", without.Infos())
	}

	with := r.Scope(map[string]string{credential.ToolCrunchbase: "cb-key"})
	if len(with.Infos()) != 2 {
		t.Fatalf("expected both tools with a per-request key, got %d", len(with.Infos()))
	}
	if class, ok := with.Class(ToolCompanyLookup); !ok || class != contractx.SafeToRetry {
		t.Fatalf("Class() = %s, %v", class, ok)
	}
}
