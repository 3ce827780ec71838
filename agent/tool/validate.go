package tool

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"
	"github.com/getkin/kin-openapi/openapi3"
)

// argsSchema builds the object schema a tool's arguments are checked against.
// Required strings and arrays must also be non-empty.
func argsSchema(params map[string]*schema.ParameterInfo) (*openapi3.Schema, error) {
	s, err := schema.NewParamsOneOfByParams(params).ToOpenAPIV3()
	if err != nil {
		return nil, err
	}
	if s == nil {
		s = &openapi3.Schema{Type: openapi3.TypeObject}
	}
	requireNonEmpty(s)
	return s, nil
}

func requireNonEmpty(s *openapi3.Schema) {
	for _, name := range s.Required {
		ref := s.Properties[name]
		if ref == nil || ref.Value == nil {
			continue
		}
		switch ref.Value.Type {
		case openapi3.TypeString:
			if ref.Value.MinLength == 0 {
				ref.Value.MinLength = 1
			}
		case openapi3.TypeArray:
			if ref.Value.MinItems == 0 {
				ref.Value.MinItems = 1
			}
		}
	}
	for _, ref := range s.Properties {
		if ref != nil && ref.Value != nil {
			requireNonEmpty(ref.Value)
		}
	}
	if s.Items != nil && s.Items.Value != nil {
		requireNonEmpty(s.Items.Value)
	}
}

// validateArgs checks args against s: required fields, types and enums.
// Undeclared arguments are allowed. Args are round-tripped through JSON so
// that Go-typed values validate the same way decoded model output does.
func validateArgs(s *openapi3.Schema, args map[string]any) error {
	raw, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("arguments are not JSON: %w", err)
	}
	doc := map[string]any{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("arguments are not a JSON object: %w", err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	// A null argument counts as absent.
	for k, v := range doc {
		if v == nil {
			delete(doc, k)
		}
	}
	return s.VisitJSON(doc)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// argString returns a trimmed string argument or "".
func argString(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return strings.TrimSpace(s)
}

// argInt returns an integer argument or def.
func argInt(args map[string]any, name string, def int) int {
	f, ok := toFloat(args[name])
	if !ok {
		return def
	}
	return int(f)
}

// argStrings returns a string array argument.
func argStrings(args map[string]any, name string) []string {
	switch v := args[name].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
