package conversation

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino/schema"
	contractx "github.com/tanpawarit/theo-ai/agent/contract"
)

const (
	UnknownSpeaker  = "unknown"
	DefaultMaxChars = 24000

	speakerExtraKey = "speaker"
	speakerSep      = ": "
)

type Options struct {
	// MaxChars bounds the rendered size of all turns in characters (runes).
	// Zero means DefaultMaxChars, a negative value disables the budget.
	MaxChars int
}

// Prompt is the model-ready context for one request.
type Prompt struct {
	SystemPrompt string
	Turns        []contractx.Turn
	Truncated    bool
	Dropped      int
	// Blank counts turns skipped because they carried no text.
	Blank        int
}

// Normalize orders the conversation behind the system prompt and applies the
// character budget by dropping the oldest turns. Turns without text are
// skipped. The newest turn always survives; if it alone is over budget the
// start of its text is cut and its last characters are kept.
func Normalize(turns []contractx.Turn, systemPrompt string, opts Options) (Prompt, error) {
	system := strings.TrimSpace(systemPrompt)
	if system == "" {
		return Prompt{}, fmt.Errorf("%w: system prompt is required", contractx.ErrValidation)
	}
	if len(turns) == 0 {
		return Prompt{}, fmt.Errorf("%w: chat context is empty", contractx.ErrValidation)
	}

	normalized := make([]contractx.Turn, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Text) == "" {
			continue
		}
		speaker := strings.TrimSpace(t.Speaker)
		if speaker == "" {
			speaker = UnknownSpeaker
		}
		normalized = append(normalized, contractx.Turn{Speaker: speaker, Text: t.Text})
	}
	if len(normalized) == 0 {
		return Prompt{}, fmt.Errorf("%w: chat context has no message text", contractx.ErrValidation)
	}

	limit := opts.MaxChars
	if limit == 0 {
		limit = DefaultMaxChars
	}

	p := Prompt{SystemPrompt: system, Turns: normalized, Blank: len(turns) - len(normalized)}
	if limit < 0 {
		return p, nil
	}

	total := 0
	start := len(normalized)
	for start > 0 {
		size := turnSize(normalized[start-1])
		if total+size > limit && start < len(normalized) {
			break
		}
		total += size
		start--
	}

	if start > 0 {
		p.Turns = normalized[start:]
		p.Dropped = start
		p.Truncated = true
	}

	if len(p.Turns) == 1 && total > limit {
		last := p.Turns[0]
		room := limit - utf8.RuneCountInString(last.Speaker) - utf8.RuneCountInString(speakerSep)
		if room < 0 {
			room = 0
		}
		last.Text = trimTail(last.Text, room)
		p.Turns = []contractx.Turn{last}
		p.Truncated = true
	}

	return p, nil
}

// Messages renders the prompt as eino messages: system first, then one user
// message per turn attributed to its speaker.
func (p Prompt) Messages() []*schema.Message {
	out := make([]*schema.Message, 0, len(p.Turns)+1)
	out = append(out, schema.SystemMessage(p.SystemPrompt))
	for _, t := range p.Turns {
		msg := schema.UserMessage(t.Speaker + speakerSep + t.Text)
		msg.Extra = map[string]any{speakerExtraKey: t.Speaker}
		out = append(out, msg)
	}
	return out
}

// Transcript renders the turns as "speaker: text" lines.
func (p Prompt) Transcript() string {
	var b strings.Builder
	for i, t := range p.Turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(t.Speaker)
		b.WriteString(speakerSep)
		b.WriteString(t.Text)
	}
	return b.String()
}

// TurnsFromMessages recovers the turns rendered by Messages, skipping the
// system message and anything that is not a user message.
func TurnsFromMessages(msgs []*schema.Message) []contractx.Turn {
	var out []contractx.Turn
	for _, m := range msgs {
		if m == nil || m.Role != schema.User {
			continue
		}
		speaker, _ := m.Extra[speakerExtraKey].(string)
		text := m.Content
		if speaker != "" {
			text = strings.TrimPrefix(text, speaker+speakerSep)
		} else if i := strings.Index(text, speakerSep); i >= 0 {
			speaker, text = text[:i], text[i+len(speakerSep):]
		} else {
			speaker = UnknownSpeaker
		}
		out = append(out, contractx.Turn{Speaker: speaker, Text: text})
	}
	return out
}

func turnSize(t contractx.Turn) int {
	return utf8.RuneCountInString(t.Speaker) + utf8.RuneCountInString(speakerSep) + utf8.RuneCountInString(t.Text)
}

// trimTail keeps the last n runes of s.
func trimTail(s string, n int) string {
	count := utf8.RuneCountInString(s)
	if count <= n {
		return s
	}
	cut := 0
	for skip := count - n; skip > 0; skip-- {
		_, size := utf8.DecodeRuneInString(s[cut:])
		cut += size
	}
	return s[cut:]
}
