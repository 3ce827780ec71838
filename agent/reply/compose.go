package reply

import (
	"encoding/json"
	"strings"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/conversation"
	"github.com/tanpawarit/theo-ai/agent/reasoning"
	"github.com/tanpawarit/theo-ai/agent/tool"
)

const emptyReply = "I don't have an answer for that yet."

type EventStatus string

const (
	EventCreated     EventStatus = "created"
	EventUnconfirmed EventStatus = "unconfirmed"
	EventFailed      EventStatus = "failed"
)

// ScheduledEvent is one calendar attempt as reported under schedulingInfo.
type ScheduledEvent struct {
	Status         EventStatus `json:"status"`
	Summary        string      `json:"summary,omitempty"`
	EventID        string      `json:"eventId,omitempty"`
	EventLink      string      `json:"eventLink,omitempty"`
	Message        string      `json:"message,omitempty"`
	IdempotencyKey string      `json:"idempotencyKey,omitempty"`

	// ErrorKind classifies a failed or unconfirmed attempt. Upstream error
	// text stays in the logs.
	ErrorKind contractx.ErrorKind `json:"errorKind,omitempty"`
}

var eventMessages = map[contractx.ErrorKind]string{
	contractx.ErrorKindAmbiguous:   "The calendar did not confirm whether the event was created.",
	contractx.ErrorKindUnavailable: "The calendar is not available for this request.",
	contractx.ErrorKindTimeout:     "The calendar did not answer in time.",
	contractx.ErrorKindFailed:      "The calendar rejected the event.",
}

type Classifier interface {
	Class(name string) (contractx.Idempotency, bool)
}

type Input struct {
	Outcome reasoning.Outcome
	Prompt  conversation.Prompt
	Tools   Classifier
	Model   *contractx.ModelInfo
}

// Compose builds the response from a finished loop. Research payloads are
// grouped by tool name; every non-duplicate calendar attempt is listed
// under schedulingInfo.events, whatever its outcome.
func Compose(in Input) contractx.ChatResponse {
	resp := contractx.ChatResponse{
		Reply:     strings.TrimSpace(in.Outcome.Text),
		ModelInfo: in.Model,
	}
	if resp.Reply == "" {
		resp.Reply = emptyReply
	}

	research := map[string][]any{}
	seen := map[string]bool{}
	var events []ScheduledEvent

	for _, ex := range in.Outcome.Transcript {
		for i, r := range ex.Results {
			if r.DuplicateOf != "" {
				continue
			}
			if sideEffecting(in.Tools, r.Tool) {
				var call contractx.ToolCall
				if i < len(ex.Calls) {
					call = ex.Calls[i]
				}
				if ev, ok := scheduledEvent(call, r); ok {
					events = append(events, ev)
				}
				continue
			}
			if !r.Succeeded || r.Payload == nil {
				continue
			}
			key := r.Tool + "\x00" + encode(r.Payload)
			if seen[key] {
				continue
			}
			seen[key] = true
			research[r.Tool] = append(research[r.Tool], r.Payload)
		}
	}

	if len(research) > 0 {
		resp.ResearchData = make(map[string]any, len(research))
		for name, payloads := range research {
			resp.ResearchData[name] = payloads
		}
	}
	if len(events) > 0 {
		resp.SchedulingInfo = map[string]any{"events": events}
	}

	if in.Prompt.Truncated {
		resp.Flags = append(resp.Flags, contractx.FlagTruncatedContext)
	}
	resp.Flags = append(resp.Flags, in.Outcome.Flags...)
	return resp
}

func sideEffecting(tools Classifier, name string) bool {
	if tools != nil {
		if class, ok := tools.Class(name); ok {
			return class == contractx.SideEffecting
		}
	}
	return name == tool.ToolCalendarCreate
}

func scheduledEvent(call contractx.ToolCall, r contractx.ToolResult) (ScheduledEvent, bool) {
	if r.ErrorKind == contractx.ErrorKindInvalidArguments {
		return ScheduledEvent{}, false
	}
	summary, _ := call.Arguments["summary"].(string)
	ev := ScheduledEvent{Summary: strings.TrimSpace(summary)}

	switch {
	case r.Succeeded:
		ev.Status = EventCreated
		switch p := r.Payload.(type) {
		case contractx.ScheduleResponse:
			ev.EventID, ev.EventLink, ev.Message = p.EventID, p.EventLink, p.Message
		case *contractx.ScheduleResponse:
			if p != nil {
				ev.EventID, ev.EventLink, ev.Message = p.EventID, p.EventLink, p.Message
			}
		}
	case r.ErrorKind == contractx.ErrorKindAmbiguous:
		ev.Status = EventUnconfirmed
		ev.ErrorKind, ev.Message = r.ErrorKind, eventMessages[r.ErrorKind]
		switch p := r.Payload.(type) {
		case tool.PendingEffect:
			ev.IdempotencyKey = p.IdempotencyKey
		case *tool.PendingEffect:
			if p != nil {
				ev.IdempotencyKey = p.IdempotencyKey
			}
		}
	default:
		ev.Status = EventFailed
		ev.ErrorKind = r.ErrorKind
		if ev.ErrorKind == contractx.ErrorKindNone {
			ev.ErrorKind = contractx.ErrorKindFailed
		}
		ev.Message = eventMessages[ev.ErrorKind]
	}
	return ev, true
}

func encode(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
