package contract

import (
	"context"
	"time"

	"github.com/cloudwego/eino/schema"
)

// PromptState is everything a model sees in one round.
type PromptState struct {
	SystemPrompt string
	Turns        []Turn
	Instructions string
	Transcript   []Exchange
	Tools        []*schema.ToolInfo
	// Finalize withholds tools and asks for a final answer.
	Finalize bool
}

// Step is what a model produced for one round: tool calls or a final answer.
// Text may accompany tool calls as interim reasoning.
type Step struct {
	ToolCalls []ToolCall
	Text      string
}

// Final reports whether the step ends the loop.
func (s Step) Final() bool {
	return len(s.ToolCalls) == 0
}

type Model interface {
	Invoke(ctx context.Context, state PromptState) (Step, error)
}

type Idempotency string

const (
	SafeToRetry   Idempotency = "safe-to-retry"
	SideEffecting Idempotency = "side-effecting"
)

// Toolbox is a request-scoped view of the tool registry.
type Toolbox interface {
	Infos() []*schema.ToolInfo
	Class(name string) (Idempotency, bool)
	Validate(call ToolCall) error
	Execute(ctx context.Context, call ToolCall) ToolResult
}

type EventRef struct {
	ID   string `json:"eventId"`
	Link string `json:"eventLink"`
}

type CalendarClient interface {
	CreateEvent(ctx context.Context, window ScheduleWindow, eventID string) (EventRef, error)
}

type Outcome string

const (
	OutcomeDispatched Outcome = "dispatched"
	OutcomeSucceeded  Outcome = "succeeded"
	OutcomeFailed     Outcome = "failed"
	OutcomeAmbiguous  Outcome = "ambiguous"
)

// JournalEntry records what was observed for one side-effecting call.
type JournalEntry struct {
	RequestID string    `json:"request_id"`
	CallID    string    `json:"call_id"`
	Tool      string    `json:"tool"`
	EventID   string    `json:"event_id,omitempty"`
	Outcome   Outcome   `json:"outcome"`
	Error     string    `json:"error,omitempty"`
	At        time.Time `json:"at"`
}

type Journal interface {
	Record(ctx context.Context, entry JournalEntry) error
}
