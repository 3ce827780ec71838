package reasoning

import (
	"fmt"
	"sort"
	"strings"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
)

const incompleteNotice = "I could not finish working on this request, so this answer may be incomplete."

// fallbackText is the best partial answer when the model cannot give a final
// one: its last interim note, or a summary of which tools answered.
func fallbackText(note string, transcript []contractx.Exchange) string {
	if note = strings.TrimSpace(note); note != "" {
		return incompleteNotice + "\n\n" + note
	}

	var ok, failed []string
	seen := map[string]bool{}
	for _, ex := range transcript {
		for _, r := range ex.Results {
			if r.DuplicateOf != "" {
				continue
			}
			key := fmt.Sprintf("%t/%s", r.Succeeded, r.Tool)
			if seen[key] {
				continue
			}
			seen[key] = true
			if r.Succeeded {
				ok = append(ok, r.Tool)
			} else {
				failed = append(failed, r.Tool)
			}
		}
	}
	sort.Strings(ok)
	sort.Strings(failed)

	var b strings.Builder
	b.WriteString(incompleteNotice)
	if len(ok) > 0 {
		fmt.Fprintf(&b, " Results were gathered from: %s.", strings.Join(ok, ", "))
	}
	if len(failed) > 0 {
		fmt.Fprintf(&b, " These tools did not return a usable result: %s.", strings.Join(failed, ", "))
	}
	return b.String()
}

// guardClaims appends a statement for every side effect that failed or whose
// outcome is unknown, so the reply can never imply it happened. A rejected
// call that a later call of the same tool made good is not reported.
func guardClaims(text string, transcript []contractx.Exchange, classOf func(string) (contractx.Idempotency, bool)) string {
	type notice struct {
		tool     string
		text     string
		rejected bool
	}
	var notices []notice
	for _, ex := range transcript {
		for i, r := range ex.Results {
			if i >= len(ex.Calls) || r.DuplicateOf != "" {
				continue
			}
			if class, ok := classOf(r.Tool); !ok || class != contractx.SideEffecting {
				continue
			}
			if r.Succeeded {
				kept := notices[:0]
				for _, n := range notices {
					if !(n.rejected && n.tool == r.Tool) {
						kept = append(kept, n)
					}
				}
				notices = kept
				continue
			}
			notices = append(notices, notice{
				tool:     r.Tool,
				text:     effectNotice(ex.Calls[i], r),
				rejected: r.ErrorKind == contractx.ErrorKindInvalidArguments,
			})
		}
	}
	if len(notices) == 0 {
		return text
	}
	lines := make([]string, len(notices))
	for i, n := range notices {
		lines[i] = n.text
	}
	return strings.TrimSpace(text + "\n\n" + strings.Join(lines, "\n"))
}

const calendarTool = "calendar_create_event"

func effectNotice(call contractx.ToolCall, r contractx.ToolResult) string {
	what := fmt.Sprintf("the %s action", call.Name)
	if call.Name == calendarTool {
		what = "the calendar event"
		if summary, _ := call.Arguments["summary"].(string); strings.TrimSpace(summary) != "" {
			what = fmt.Sprintf("the calendar event %q", strings.TrimSpace(summary))
		}
	}
	if r.ErrorKind == contractx.ErrorKindAmbiguous {
		return fmt.Sprintf("Note: I could not confirm whether %s was completed. Please check before trying again.", what)
	}
	return fmt.Sprintf("Note: %s was not completed (%s).", what, r.ErrorKind)
}
