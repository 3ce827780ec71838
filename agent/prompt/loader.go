package prompt

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
)

var (
	//go:embed template/tool_policy.txt
	toolPolicyRaw string

	//go:embed template/finalize.txt
	finalizeRaw string

	//go:embed template/default.txt
	defaultRaw string

	//go:embed template/research.txt
	researchRaw string

	//go:embed template/scheduling.txt
	schedulingRaw string
)

// PresetPrefix marks a system prompt that names a built-in preset, e.g. "@research".
const PresetPrefix = "@"

// PromptSet holds loaded prompt content.
type PromptSet struct {
	ToolPolicy string
	Finalize   string
	Presets    map[string]string
}

// LoadPromptSet returns a PromptSet with trimmed prompt strings.
func LoadPromptSet() PromptSet {
	return PromptSet{
		ToolPolicy: strings.TrimSpace(toolPolicyRaw),
		Finalize:   strings.TrimSpace(finalizeRaw),
		Presets: map[string]string{
			"default":    strings.TrimSpace(defaultRaw),
			"research":   strings.TrimSpace(researchRaw),
			"scheduling": strings.TrimSpace(schedulingRaw),
		},
	}
}

// Validate reports a missing loop prompt.
func (s PromptSet) Validate() error {
	if s.ToolPolicy == "" {
		return fmt.Errorf("%w: tool policy", contractx.ErrPromptMissing)
	}
	if s.Finalize == "" {
		return fmt.Errorf("%w: finalize", contractx.ErrPromptMissing)
	}
	return nil
}

// PresetNames lists the preset names, sorted.
func (s PromptSet) PresetNames() []string {
	names := make([]string, 0, len(s.Presets))
	for name := range s.Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveSystem returns the caller's system prompt verbatim unless it names a
// preset. An unknown preset is a validation error.
func (s PromptSet) ResolveSystem(systemPrompt string) (string, error) {
	trimmed := strings.TrimSpace(systemPrompt)
	if !strings.HasPrefix(trimmed, PresetPrefix) || strings.ContainsAny(trimmed, " \n\t") {
		return systemPrompt, nil
	}
	name := strings.ToLower(strings.TrimPrefix(trimmed, PresetPrefix))
	preset, ok := s.Presets[name]
	if !ok || preset == "" {
		return "", fmt.Errorf("%w: unknown system prompt preset %q", contractx.ErrValidation, name)
	}
	return preset, nil
}
