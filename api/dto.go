package api

import (
	contractx "github.com/tanpawarit/theo-ai/agent/contract"
)

type chatMessage struct {
	Party   string `json:"party"`
	Message string `json:"message"`
}

// chatBody is the POST /chat wire shape.
type chatBody struct {
	ChatContext   []chatMessage     `json:"chatContext"`
	SystemPrompt  string            `json:"systemPrompt"`
	APIKeys       map[string]string `json:"apiKeys,omitempty"`
	ModelProvider string            `json:"modelProvider,omitempty"`
	ModelID       string            `json:"modelId,omitempty"`
}

func (b chatBody) request(requestID string) contractx.ChatRequest {
	turns := make([]contractx.Turn, 0, len(b.ChatContext))
	for _, m := range b.ChatContext {
		turns = append(turns, contractx.Turn{Speaker: m.Party, Text: m.Message})
	}
	return contractx.ChatRequest{
		Turns:        turns,
		SystemPrompt: b.SystemPrompt,
		Credentials:  b.APIKeys,
		Provider:     b.ModelProvider,
		ModelID:      b.ModelID,
		RequestID:    requestID,
	}
}

// scheduleBody is the POST /schedule wire shape. APIKeys may carry a
// per-request google_calendar token.
type scheduleBody struct {
	contractx.ScheduleRequest
	APIKeys map[string]string `json:"apiKeys,omitempty"`
}

type errorBody struct {
	Error   string         `json:"error"`
	Details map[string]any `json:"details,omitempty"`
}

type healthBody struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
