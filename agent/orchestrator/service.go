package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/credential"
	"github.com/tanpawarit/theo-ai/agent/gate"
	"github.com/tanpawarit/theo-ai/agent/prompt"
	"github.com/tanpawarit/theo-ai/agent/reasoning"
	"github.com/tanpawarit/theo-ai/agent/tool"
)

const scheduleCallID = "schedule"

type Config struct {
	MaxContextChars int              `envconfig:"MAX_CONTEXT_CHARS" default:"24000"`
	ScheduleTimeout time.Duration    `envconfig:"SCHEDULE_TIMEOUT" default:"30s"`
	Reasoning       reasoning.Config `envconfig:"REASONING"`
}

// ModelFactory builds the model for one request from its resolved credential.
type ModelFactory interface {
	Model(ctx context.Context, res credential.Resolution) (contractx.Model, error)
}

// ToolScope returns the tools visible to one request.
type ToolScope func(perRequest map[string]string) contractx.Toolbox

// RegistryScope exposes a tool registry as a ToolScope.
func RegistryScope(r *tool.Registry) ToolScope {
	return func(perRequest map[string]string) contractx.Toolbox {
		return r.Scope(perRequest)
	}
}

// Orchestrator serves chat and scheduling requests. It holds no per-request
// state; everything a request needs is built inside its graph run.
type Orchestrator struct {
	resolver  *credential.Resolver
	models    ModelFactory
	tools     ToolScope
	scheduler tool.Scheduler
	prompts   prompt.PromptSet
	cfg       Config

	chatRunner compose.Runnable[contractx.ChatRequest, contractx.ChatResponse]

	lister     ModelLister
	newEventID func() string
}

func New(
	resolver *credential.Resolver,
	models ModelFactory,
	tools ToolScope,
	scheduler tool.Scheduler,
	prompts prompt.PromptSet,
	cfg Config,
) (*Orchestrator, error) {
	if resolver == nil {
		return nil, errors.New("credential resolver is required")
	}
	if models == nil {
		return nil, errors.New("model factory is required")
	}
	if tools == nil {
		return nil, errors.New("tool scope is required")
	}
	if err := prompts.Validate(); err != nil {
		return nil, err
	}

	if cfg.Reasoning.Instructions == "" {
		cfg.Reasoning.Instructions = prompts.ToolPolicy
	}
	if cfg.Reasoning.FinalizePrompt == "" {
		cfg.Reasoning.FinalizePrompt = prompts.Finalize
	}

	o := &Orchestrator{
		resolver:   resolver,
		models:     models,
		tools:      tools,
		scheduler:  scheduler,
		prompts:    prompts,
		cfg:        cfg,
		newEventID: newEventID,
	}

	chatRunner, err := o.compileChatGraph(context.Background())
	if err != nil {
		return nil, err
	}
	o.chatRunner = chatRunner

	return o, nil
}

func (o *Orchestrator) HandleChat(ctx context.Context, req contractx.ChatRequest) (contractx.ChatResponse, error) {
	if contractx.RequestID(ctx) == "" {
		id := req.RequestID
		if id == "" {
			id = uuid.NewString()
		}
		ctx = contractx.WithRequestID(ctx, id)
	}
	return o.chatRunner.Invoke(ctx, req)
}

// HandleSchedule creates one calendar event outside any reasoning loop.
func (o *Orchestrator) HandleSchedule(ctx context.Context, req contractx.ScheduleRequest, perRequest map[string]string) (contractx.ScheduleResponse, error) {
	if _, err := gate.ValidateSchedule(req); err != nil {
		return contractx.ScheduleResponse{}, err
	}
	if o.scheduler == nil {
		return contractx.ScheduleResponse{}, fmt.Errorf("%w: scheduling is disabled", contractx.ErrCalendarUnavailable)
	}

	cred, err := o.resolver.Resolve(credential.ToolGoogleCalendar, perRequest)
	if err != nil {
		return contractx.ScheduleResponse{}, fmt.Errorf("%w: %w", contractx.ErrCalendarUnavailable, err)
	}

	// The event is created even if the caller disconnects mid-request.
	ctx = context.WithoutCancel(ctx)
	if o.cfg.ScheduleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.ScheduleTimeout)
		defer cancel()
	}

	eventID := o.newEventID()
	log.Ctx(ctx).Info().Str("event_id", eventID).Int("attendees", len(req.Attendees)).Msg("scheduling event")
	return o.scheduler.Schedule(ctx, cred, req, eventID, scheduleCallID)
}

// newEventID returns a Calendar-compatible event id: lowercase hex.
func newEventID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
