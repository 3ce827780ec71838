package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/credential"
	"github.com/tanpawarit/theo-ai/pkg/httpx"
)

const (
	DefaultMaxAttempts = 2
	DefaultBackoff     = 250 * time.Millisecond
	DefaultTimeout     = 15 * time.Second
)

// effectNamespace derives stable idempotency keys for side-effecting calls.
var effectNamespace = uuid.MustParse("6f1c0d0e-3b1a-4d55-9a51-5b6f7d9e2c11")

// Invocation is what a handler receives for one call.
type Invocation struct {
	CallID string
	Args   map[string]any
	// Credential is set when the Spec names one.
	Credential credential.Resolution
	// IdempotencyKey is stable for a given request, tool and arguments.
	IdempotencyKey string
}

type Handler func(ctx context.Context, inv Invocation) (any, error)

// Spec declares one tool variant.
type Spec struct {
	Name       string
	Desc       string
	Params     map[string]*schema.ParameterInfo
	Timeout    time.Duration
	Class      contractx.Idempotency
	Credential string
	Handler    Handler

	args *openapi3.Schema
}

func (s Spec) Info() *schema.ToolInfo {
	return &schema.ToolInfo{
		Name:        s.Name,
		Desc:        s.Desc,
		ParamsOneOf: schema.NewParamsOneOfByParams(s.Params),
	}
}

type RegistryOption func(*Registry)

func WithMaxAttempts(n int) RegistryOption {
	return func(r *Registry) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func WithBackoff(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d >= 0 {
			r.backoff = d
		}
	}
}

// Registry is the closed set of tools available to the reasoning loop.
// It is read-only once serving starts.
type Registry struct {
	specs       map[string]Spec
	resolver    *credential.Resolver
	maxAttempts int
	backoff     time.Duration
}

func NewRegistry(resolver *credential.Resolver, opts ...RegistryOption) *Registry {
	r := &Registry{
		specs:       make(map[string]Spec),
		resolver:    resolver,
		maxAttempts: DefaultMaxAttempts,
		backoff:     DefaultBackoff,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Registry) Register(spec Spec) error {
	if !IsKnown(spec.Name) {
		return fmt.Errorf("tool %q is not a known variant", spec.Name)
	}
	if spec.Handler == nil {
		return fmt.Errorf("tool %s has no handler", spec.Name)
	}
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("tool %s already registered", spec.Name)
	}
	if spec.Class == "" {
		spec.Class = contractx.SafeToRetry
	}
	if spec.Timeout <= 0 {
		spec.Timeout = DefaultTimeout
	}
	if strings.TrimSpace(spec.Credential) != "" && r.resolver == nil {
		return fmt.Errorf("tool %s needs credential %q but no resolver is set", spec.Name, spec.Credential)
	}
	args, err := argsSchema(spec.Params)
	if err != nil {
		return fmt.Errorf("tool %s parameters: %w", spec.Name, err)
	}
	spec.args = args
	r.specs[spec.Name] = spec
	return nil
}

// Names lists registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scope returns the toolbox for one request. Tools whose credential cannot be
// resolved from perRequest or the process defaults are left out.
func (r *Registry) Scope(perRequest map[string]string) *Toolbox {
	box := &Toolbox{
		registry: r,
		specs:    make(map[string]Spec, len(r.specs)),
		creds:    make(map[string]credential.Resolution, len(r.specs)),
	}
	for _, name := range r.Names() {
		spec := r.specs[name]
		if spec.Credential != "" {
			res, err := r.resolver.Resolve(spec.Credential, perRequest)
			if err != nil {
				continue
			}
			box.creds[name] = res
		}
		box.specs[name] = spec
		box.order = append(box.order, name)
	}
	return box
}

// Toolbox is a request-scoped view of the registry.
type Toolbox struct {
	registry *Registry
	specs    map[string]Spec
	creds    map[string]credential.Resolution
	order    []string
}

var _ contractx.Toolbox = (*Toolbox)(nil)

func (b *Toolbox) Infos() []*schema.ToolInfo {
	infos := make([]*schema.ToolInfo, 0, len(b.order))
	for _, name := range b.order {
		infos = append(infos, b.specs[name].Info())
	}
	return infos
}

func (b *Toolbox) Class(name string) (contractx.Idempotency, bool) {
	spec, ok := b.specs[name]
	if !ok {
		return "", false
	}
	return spec.Class, true
}

func (b *Toolbox) Validate(call contractx.ToolCall) error {
	spec, ok := b.specs[call.Name]
	if !ok {
		return fmt.Errorf("%w: unknown tool %q", contractx.ErrSchemaViolation, call.Name)
	}
	if err := validateArgs(spec.args, call.Arguments); err != nil {
		return fmt.Errorf("%w: %s: %w", contractx.ErrSchemaViolation, call.Name, err)
	}
	return nil
}

// Execute validates and runs call. It never returns an error: every failure is
// folded into the ToolResult.
func (b *Toolbox) Execute(ctx context.Context, call contractx.ToolCall) contractx.ToolResult {
	result := contractx.ToolResult{Tool: call.Name, CallID: call.ID}

	if err := b.Validate(call); err != nil {
		result.ErrorKind = contractx.ErrorKindInvalidArguments
		result.Error = err.Error()
		return result
	}

	spec := b.specs[call.Name]
	inv := Invocation{
		CallID:     call.ID,
		Args:       call.Arguments,
		Credential: b.creds[call.Name],
	}
	if spec.Class == contractx.SideEffecting {
		inv.IdempotencyKey = idempotencyKey(contractx.RequestID(ctx), call)
	}

	attempts := 1
	if spec.Class == contractx.SafeToRetry {
		attempts = b.registry.maxAttempts
	}

	logger := log.Ctx(ctx).With().Str("tool", call.Name).Str("call_id", call.ID).Logger()

	var (
		payload any
		err     error
	)
	for attempt := 1; attempt <= attempts; attempt++ {
		result.Attempts = attempt
		payload, err = runOnce(ctx, spec, inv)
		if err == nil {
			break
		}
		if attempt == attempts || !httpx.IsTemporary(err) || ctx.Err() != nil {
			break
		}
		logger.Debug().Err(err).Int("attempt", attempt).Msg("retrying read-only tool")
		if !sleep(ctx, b.registry.backoff*time.Duration(attempt)) {
			break
		}
	}

	if err == nil {
		result.Succeeded = true
		result.Payload = payload
		return result
	}

	result.ErrorKind = classify(spec.Class, err)
	result.Error = err.Error()
	if result.ErrorKind == contractx.ErrorKindAmbiguous && inv.IdempotencyKey != "" {
		result.Payload = PendingEffect{IdempotencyKey: inv.IdempotencyKey}
	}
	logger.Warn().Err(err).Str("error_kind", string(result.ErrorKind)).Int("attempts", result.Attempts).Msg("tool call failed")
	return result
}

// PendingEffect is the payload of a side effect whose outcome is unknown.
type PendingEffect struct {
	IdempotencyKey string `json:"idempotencyKey"`
}

func runOnce(ctx context.Context, spec Spec, inv Invocation) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, spec.Timeout)
	defer cancel()
	return spec.Handler(callCtx, inv)
}

func classify(class contractx.Idempotency, err error) contractx.ErrorKind {
	switch {
	case errors.Is(err, contractx.ErrValidation), errors.Is(err, contractx.ErrSchemaViolation):
		return contractx.ErrorKindInvalidArguments
	case errors.Is(err, contractx.ErrAmbiguousSideEffect):
		return contractx.ErrorKindAmbiguous
	case errors.Is(err, contractx.ErrCalendarUnavailable), errors.Is(err, contractx.ErrCredential):
		return contractx.ErrorKindUnavailable
	case httpx.IsTimeout(err):
		if class == contractx.SideEffecting {
			return contractx.ErrorKindAmbiguous
		}
		return contractx.ErrorKindTimeout
	default:
		return contractx.ErrorKindFailed
	}
}

// idempotencyKey binds a side effect to the request and to what the call
// actually does. Without a request id every call gets a fresh key so that
// unrelated requests never share an event id.
func idempotencyKey(requestID string, call contractx.ToolCall) string {
	if strings.TrimSpace(requestID) == "" {
		requestID = uuid.NewString()
	}
	args, err := json.Marshal(call.Arguments)
	if err != nil {
		args = []byte(fmt.Sprint(call.Arguments))
	}
	seed := requestID + "/" + call.ID + "/" + call.Name + "\x00" + string(args)
	id := uuid.NewSHA1(effectNamespace, []byte(seed))
	return strings.ReplaceAll(id.String(), "-", "")
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
