package reasoning

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
)

// dispatcher runs the calls of one round. It remembers read-only results for
// reuse and every side effect it has dispatched, for the lifetime of a loop.
type dispatcher struct {
	tools contractx.Toolbox

	cache   map[string]contractx.ToolResult
	effects map[string]string // fingerprint or call id -> first call id
}

func newDispatcher(tools contractx.Toolbox) *dispatcher {
	return &dispatcher{
		tools:   tools,
		cache:   map[string]contractx.ToolResult{},
		effects: map[string]string{},
	}
}

// dispatch returns one result per call, in call order. Read-only calls run
// concurrently; side-effecting calls then run one at a time.
func (d *dispatcher) dispatch(ctx context.Context, calls []contractx.ToolCall) []contractx.ToolResult {
	results := make([]contractx.ToolResult, len(calls))

	var (
		readOnly []int
		effects  []int
		// first index per fingerprint within this round
		firstOf = map[string]int{}
		copies  = map[int]int{}
	)
	for i, call := range calls {
		class, ok := d.tools.Class(call.Name)
		if ok && class == contractx.SideEffecting {
			effects = append(effects, i)
			continue
		}
		fp := fingerprint(call)
		if cached, hit := d.cache[fp]; hit {
			results[i] = reuse(cached, call)
			continue
		}
		if first, seen := firstOf[fp]; seen {
			copies[i] = first
			continue
		}
		firstOf[fp] = i
		readOnly = append(readOnly, i)
	}

	var wg sync.WaitGroup
	for _, i := range readOnly {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = d.tools.Execute(ctx, calls[i])
		}(i)
	}
	wg.Wait()

	for _, i := range readOnly {
		if results[i].Succeeded {
			d.cache[fingerprint(calls[i])] = results[i]
		}
	}
	for i, first := range copies {
		results[i] = reuse(results[first], calls[i])
	}

	for _, i := range effects {
		results[i] = d.runEffect(ctx, calls[i])
	}
	return results
}

func (d *dispatcher) runEffect(ctx context.Context, call contractx.ToolCall) contractx.ToolResult {
	fp := fingerprint(call)
	for _, key := range []string{"id:" + call.ID, fp} {
		if prior, seen := d.effects[key]; seen {
			return contractx.ToolResult{
				Tool:        call.Name,
				CallID:      call.ID,
				ErrorKind:   contractx.ErrorKindFailed,
				Error:       fmt.Sprintf("not executed: repeats the side effect of call %s", prior),
				DuplicateOf: prior,
			}
		}
	}

	// Invalid calls never reach the collaborator, so they may be corrected and retried.
	if err := d.tools.Validate(call); err == nil {
		d.effects["id:"+call.ID] = call.ID
		d.effects[fp] = call.ID
	}
	return d.tools.Execute(ctx, call)
}

func reuse(r contractx.ToolResult, call contractx.ToolCall) contractx.ToolResult {
	r.CallID = call.ID
	r.Attempts = 0
	return r
}

// fingerprint identifies a call by name and arguments. encoding/json sorts
// map keys, so equal argument maps encode identically.
func fingerprint(call contractx.ToolCall) string {
	args, err := json.Marshal(call.Arguments)
	if err != nil {
		return call.Name + "\x00" + fmt.Sprint(call.Arguments)
	}
	return call.Name + "\x00" + string(args)
}
