package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"
	"google.golang.org/genai"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/credential"
)

// GeminiModel talks to the Gemini API through the Gen AI SDK.
type GeminiModel struct {
	client *genai.Client
	model  string
	cfg    Config
}

var _ contractx.Model = (*GeminiModel)(nil)

func NewGemini(ctx context.Context, res credential.Resolution, cfg Config, httpClient *http.Client) (*GeminiModel, error) {
	if strings.TrimSpace(res.APIKey) == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", contractx.ErrCredential)
	}
	cc := &genai.ClientConfig{
		APIKey:     strings.TrimSpace(res.APIKey),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if base := strings.TrimSpace(res.BaseURL); base != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("%w: create genai client: %v", contractx.ErrModelInvoke, err)
	}
	return &GeminiModel{client: client, model: strings.TrimSpace(res.Model), cfg: cfg}, nil
}

func (m *GeminiModel) Invoke(ctx context.Context, st contractx.PromptState) (contractx.Step, error) {
	contents, err := geminiContents(st)
	if err != nil {
		return contractx.Step{}, err
	}

	temperature := m.cfg.Temperature
	config := &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemText(st)}}},
		Temperature:       &temperature,
		MaxOutputTokens:   int32(m.cfg.MaxCompletionToken),
	}
	if !st.Finalize && len(st.Tools) > 0 {
		decls, err := functionDeclarations(st.Tools)
		if err != nil {
			return contractx.Step{}, err
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	}

	if m.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.Timeout)
		defer cancel()
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.model, contents, config)
	if err != nil {
		return contractx.Step{}, fmt.Errorf("%w: gemini generate: %w", contractx.ErrModelInvoke, err)
	}
	return stepFromGemini(resp)
}

func geminiContents(st contractx.PromptState) ([]*genai.Content, error) {
	contents := make([]*genai.Content, 0, len(st.Turns)+2*len(st.Transcript)+1)
	for _, t := range st.Turns {
		contents = append(contents, genai.NewContentFromText(t.Speaker+": "+t.Text, genai.RoleUser))
	}

	if st.Finalize {
		if len(st.Transcript) > 0 {
			digest, err := transcriptDigest(st.Transcript)
			if err != nil {
				return nil, err
			}
			contents = append(contents, genai.NewContentFromText(digest, genai.RoleUser))
		}
		return contents, nil
	}

	for _, ex := range st.Transcript {
		var calls []*genai.Part
		if note := strings.TrimSpace(ex.Note); note != "" {
			calls = append(calls, &genai.Part{Text: note})
		}
		for _, c := range ex.Calls {
			calls = append(calls, &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   c.ID,
				Name: c.Name,
				Args: argsOrEmpty(c.Arguments),
			}})
		}
		contents = append(contents, &genai.Content{Role: string(genai.RoleModel), Parts: calls})

		responses := make([]*genai.Part, 0, len(ex.Results))
		for _, r := range ex.Results {
			result, err := asMap(r)
			if err != nil {
				return nil, fmt.Errorf("%w: encode result of %s: %v", contractx.ErrValidation, r.Tool, err)
			}
			responses = append(responses, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       r.CallID,
				Name:     r.Tool,
				Response: map[string]any{"result": result},
			}})
		}
		contents = append(contents, &genai.Content{Role: string(genai.RoleUser), Parts: responses})
	}
	return contents, nil
}

func stepFromGemini(resp *genai.GenerateContentResponse) (contractx.Step, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return contractx.Step{}, fmt.Errorf("%w: empty gemini response", contractx.ErrSchemaViolation)
	}

	var (
		step contractx.Step
		text strings.Builder
	)
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		if part.Text != "" {
			text.WriteString(part.Text)
		}
		if fc := part.FunctionCall; fc != nil {
			name := strings.TrimSpace(fc.Name)
			if name == "" {
				return contractx.Step{}, fmt.Errorf("%w: tool call name is empty", contractx.ErrSchemaViolation)
			}
			id := strings.TrimSpace(fc.ID)
			if id == "" {
				id = "call-" + uuid.New().String()
			}
			step.ToolCalls = append(step.ToolCalls, contractx.ToolCall{ID: id, Name: name, Arguments: argsOrEmpty(fc.Args)})
		}
	}
	step.Text = strings.TrimSpace(text.String())
	return step, nil
}

// functionDeclarations converts eino tool infos through their OpenAPI form.
func functionDeclarations(tools []*schema.ToolInfo) ([]*genai.FunctionDeclaration, error) {
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, info := range tools {
		if info == nil {
			continue
		}
		decl := &genai.FunctionDeclaration{Name: info.Name, Description: info.Desc}
		if info.ParamsOneOf != nil {
			openapi, err := info.ParamsOneOf.ToOpenAPIV3()
			if err != nil {
				return nil, fmt.Errorf("%w: schema of %s: %v", contractx.ErrValidation, info.Name, err)
			}
			raw, err := asMap(openapi)
			if err != nil {
				return nil, fmt.Errorf("%w: schema of %s: %v", contractx.ErrValidation, info.Name, err)
			}
			decl.Parameters = geminiSchema(raw)
		}
		decls = append(decls, decl)
	}
	return decls, nil
}

func geminiSchema(raw map[string]any) *genai.Schema {
	s := &genai.Schema{}
	if t, ok := raw["type"].(string); ok {
		s.Type = genai.Type(strings.ToUpper(t))
	}
	if d, ok := raw["description"].(string); ok {
		s.Description = d
	}
	if enum, ok := raw["enum"].([]any); ok {
		for _, v := range enum {
			if str, ok := v.(string); ok {
				s.Enum = append(s.Enum, str)
			}
		}
	}
	if req, ok := raw["required"].([]any); ok {
		for _, v := range req {
			if str, ok := v.(string); ok {
				s.Required = append(s.Required, str)
			}
		}
	}
	if items, ok := raw["items"].(map[string]any); ok {
		s.Items = geminiSchema(items)
	}
	if props, ok := raw["properties"].(map[string]any); ok {
		s.Properties = make(map[string]*genai.Schema, len(props))
		for name, prop := range props {
			if p, ok := prop.(map[string]any); ok {
				s.Properties[name] = geminiSchema(p)
			}
		}
	}
	return s
}

func asMap(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
