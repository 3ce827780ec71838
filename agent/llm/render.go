package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/conversation"
)

// systemText joins the caller's system prompt with the loop instructions.
func systemText(st contractx.PromptState) string {
	parts := []string{strings.TrimSpace(st.SystemPrompt)}
	if in := strings.TrimSpace(st.Instructions); in != "" {
		parts = append(parts, in)
	}
	return strings.Join(parts, "\n\n")
}

// RenderMessages turns a prompt state into chat messages: the system message,
// one user message per turn, then each round as an assistant tool-call
// message followed by one tool message per result. While finalizing the
// rounds are rendered as plain text, since no tools are bound.
func RenderMessages(st contractx.PromptState) ([]*schema.Message, error) {
	p := conversation.Prompt{SystemPrompt: systemText(st), Turns: st.Turns}
	msgs := p.Messages()

	if st.Finalize {
		if len(st.Transcript) > 0 {
			digest, err := transcriptDigest(st.Transcript)
			if err != nil {
				return nil, err
			}
			msgs = append(msgs, schema.UserMessage(digest))
		}
		return msgs, nil
	}

	for _, ex := range st.Transcript {
		calls := make([]schema.ToolCall, len(ex.Calls))
		for i, c := range ex.Calls {
			args, err := json.Marshal(argsOrEmpty(c.Arguments))
			if err != nil {
				return nil, fmt.Errorf("%w: encode arguments of %s: %v", contractx.ErrValidation, c.Name, err)
			}
			calls[i] = schema.ToolCall{
				ID:   c.ID,
				Type: "function",
				Function: schema.FunctionCall{
					Name:      c.Name,
					Arguments: string(args),
				},
			}
		}
		msgs = append(msgs, schema.AssistantMessage(ex.Note, calls))

		for _, r := range ex.Results {
			content, err := json.Marshal(r)
			if err != nil {
				return nil, fmt.Errorf("%w: encode result of %s: %v", contractx.ErrValidation, r.Tool, err)
			}
			msgs = append(msgs, schema.ToolMessage(string(content), r.CallID))
		}
	}
	return msgs, nil
}

func transcriptDigest(transcript []contractx.Exchange) (string, error) {
	var b strings.Builder
	b.WriteString("Tool results gathered so far (tools are no longer available):\n")
	for _, ex := range transcript {
		for i, r := range ex.Results {
			var args map[string]any
			if i < len(ex.Calls) {
				args = ex.Calls[i].Arguments
			}
			entry, err := json.Marshal(struct {
				Arguments map[string]any `json:"arguments,omitempty"`
				contractx.ToolResult
			}{Arguments: args, ToolResult: r})
			if err != nil {
				return "", fmt.Errorf("%w: encode result of %s: %v", contractx.ErrValidation, r.Tool, err)
			}
			fmt.Fprintf(&b, "- round %d: %s\n", ex.Round, entry)
		}
	}
	return b.String(), nil
}

// StepFromMessage reads a model reply: tool calls with JSON arguments, or text.
func StepFromMessage(msg *schema.Message) (contractx.Step, error) {
	if msg == nil {
		return contractx.Step{}, fmt.Errorf("%w: empty model response", contractx.ErrSchemaViolation)
	}

	step := contractx.Step{Text: strings.TrimSpace(msg.Content)}
	for _, call := range msg.ToolCalls {
		name := strings.TrimSpace(call.Function.Name)
		if name == "" {
			return contractx.Step{}, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
		}

		args := map[string]any{}
		if raw := strings.TrimSpace(call.Function.Arguments); raw != "" {
			if err := json.Unmarshal([]byte(raw), &args); err != nil {
				return contractx.Step{}, fmt.Errorf("%w: invalid tool args for tool=%s: %v", contractx.ErrSchemaViolation, name, err)
			}
		}
		step.ToolCalls = append(step.ToolCalls, contractx.ToolCall{
			ID:        strings.TrimSpace(call.ID),
			Name:      name,
			Arguments: args,
		})
	}
	return step, nil
}

func argsOrEmpty(args map[string]any) map[string]any {
	if args == nil {
		return map[string]any{}
	}
	return args
}
