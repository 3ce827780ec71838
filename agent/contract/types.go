package contract

import "time"

// Turn is one attributed message of an externally maintained conversation.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

type ChatRequest struct {
	Turns        []Turn            `json:"turns"`
	SystemPrompt string            `json:"system_prompt"`
	Credentials  map[string]string `json:"-"`
	Provider     string            `json:"provider,omitempty"`
	ModelID      string            `json:"model_id,omitempty"`
	RequestID    string            `json:"request_id,omitempty"`
}

type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

type ErrorKind string

const (
	ErrorKindNone             ErrorKind = ""
	ErrorKindInvalidArguments ErrorKind = "invalid_arguments"
	ErrorKindUnavailable      ErrorKind = "unavailable"
	ErrorKindTimeout          ErrorKind = "timeout"
	ErrorKindFailed           ErrorKind = "failed"
	ErrorKindAmbiguous        ErrorKind = "ambiguous"
)

type ToolResult struct {
	Tool      string    `json:"tool"`
	CallID    string    `json:"call_id"`
	Succeeded bool      `json:"succeeded"`
	Payload   any       `json:"payload,omitempty"`
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	Error     string    `json:"error,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
	// DuplicateOf names the earlier call whose side effect this call repeated;
	// such a call is not executed.
	DuplicateOf string `json:"duplicate_of,omitempty"`
}

// Exchange is one Invoking round: the calls the model asked for and what came back.
type Exchange struct {
	Round   int          `json:"round"`
	Note    string       `json:"note,omitempty"`
	Calls   []ToolCall   `json:"calls"`
	Results []ToolResult `json:"results"`
}

type Flag string

const (
	FlagTruncatedContext     Flag = "truncated_context"
	FlagRoundBudgetExhausted Flag = "round_budget_exhausted"
	FlagDeadlineExceeded     Flag = "deadline_exceeded"
	FlagAmbiguousSideEffect  Flag = "ambiguous_side_effect"
	FlagToolFailures         Flag = "tool_failures"
	FlagModelFallback        Flag = "model_fallback"
)

type ModelInfo struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type ChatResponse struct {
	Reply          string         `json:"response"`
	ResearchData   map[string]any `json:"researchData,omitempty"`
	SchedulingInfo map[string]any `json:"schedulingInfo,omitempty"`
	ModelInfo      *ModelInfo     `json:"modelInfo,omitempty"`
	Flags          []Flag         `json:"flags,omitempty"`
}

// HasFlag reports whether f was raised while producing the response.
func (r ChatResponse) HasFlag(f Flag) bool {
	for _, got := range r.Flags {
		if got == f {
			return true
		}
	}
	return false
}

type ScheduleRequest struct {
	Summary     string   `json:"summary"`
	Description string   `json:"description,omitempty"`
	Attendees   []string `json:"attendees"`
	StartTime   string   `json:"startTime"`
	EndTime     string   `json:"endTime"`
	TimeZone    string   `json:"timeZone,omitempty"`
}

// ScheduleWindow is a ScheduleRequest after validation.
type ScheduleWindow struct {
	Summary     string
	Description string
	Attendees   []string
	Start       time.Time
	End         time.Time
	TimeZone    string
}

type ScheduleResponse struct {
	EventID   string `json:"eventId"`
	EventLink string `json:"eventLink"`
	Message   string `json:"message"`
}
