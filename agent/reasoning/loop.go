package reasoning

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	contractx "github.com/tanpawarit/theo-ai/agent/contract"
	"github.com/tanpawarit/theo-ai/agent/conversation"
)

const DefaultMaxRounds = 5

type Config struct {
	MaxRounds      int           `envconfig:"MAX_ROUNDS" default:"5"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"90s"`

	// Instructions is appended to the system prompt every round.
	Instructions string `ignored:"true"`
	// FinalizePrompt is appended when the round budget forces an answer.
	FinalizePrompt string `ignored:"true"`
}

// Outcome is what a finished loop hands to the response composer.
type Outcome struct {
	Text       string
	Transcript []contractx.Exchange
	// Rounds counts Invoking rounds, never more than MaxRounds.
	Rounds     int
	ModelCalls int
	Flags      []contractx.Flag
}

func (o *Outcome) flag(f contractx.Flag) {
	for _, got := range o.Flags {
		if got == f {
			return
		}
	}
	o.Flags = append(o.Flags, f)
}

type stage int

const (
	stageComposing stage = iota
	stageInvoking
	stageFinal
)

func (s stage) String() string {
	switch s {
	case stageComposing:
		return "composing"
	case stageInvoking:
		return "invoking"
	default:
		return "final"
	}
}

// Loop alternates model rounds and tool rounds until the model answers, the
// round budget runs out or the request deadline passes. A Loop serves one
// request; Run must not be called twice.
type Loop struct {
	cfg   Config
	model contractx.Model
	tools contractx.Toolbox

	dispatcher *dispatcher
	now        func() time.Time
}

func New(cfg Config, model contractx.Model, tools contractx.Toolbox) (*Loop, error) {
	if model == nil {
		return nil, errors.New("model is required")
	}
	if tools == nil {
		return nil, errors.New("toolbox is required")
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultMaxRounds
	}
	return &Loop{
		cfg:        cfg,
		model:      model,
		tools:      tools,
		dispatcher: newDispatcher(tools),
		now:        time.Now,
	}, nil
}

func (l *Loop) Run(ctx context.Context, prompt conversation.Prompt) (Outcome, error) {
	if l.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.RequestTimeout)
		defer cancel()
	}

	logger := log.Ctx(ctx)
	started := l.now()

	var (
		out     Outcome
		pending contractx.Step
		note    string
		current = stageComposing

		// exhausted withholds tools and asks for an answer.
		exhausted bool
	)

	for current != stageFinal {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				out.flag(contractx.FlagDeadlineExceeded)
			}
			logger.Warn().Err(err).Str("stage", current.String()).Int("rounds", out.Rounds).Msg("reasoning stopped between rounds")
			out.Text = fallbackText(note, out.Transcript)
			break
		}

		switch current {
		case stageComposing:
			step, err := l.model.Invoke(ctx, l.state(prompt, out.Transcript, exhausted))
			out.ModelCalls++
			if err != nil {
				expired := errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
				if len(out.Transcript) == 0 && !expired {
					return Outcome{}, fmt.Errorf("%w: %w", contractx.ErrModelInvoke, err)
				}
				logger.Warn().Err(err).Int("round", out.Rounds).Msg("model failed mid-loop, answering from what is known")
				out.flag(contractx.FlagModelFallback)
				if expired {
					out.flag(contractx.FlagDeadlineExceeded)
				}
				out.Text = fallbackText(note, out.Transcript)
				current = stageFinal
				continue
			}
			text := strings.TrimSpace(step.Text)
			if step.Final() || exhausted {
				// Tool calls are ignored once the budget is spent.
				if step.Final() && text != "" {
					out.Text = text
				} else {
					out.Text = fallbackText(note, out.Transcript)
				}
				current = stageFinal
				continue
			}
			if text != "" {
				note = text
			}
			pending = step
			current = stageInvoking

		case stageInvoking:
			out.Rounds++
			calls := assignIDs(out.Rounds, pending.ToolCalls)
			// Dispatched tools finish even if the caller goes away.
			results := l.dispatcher.dispatch(context.WithoutCancel(ctx), calls)
			out.Transcript = append(out.Transcript, contractx.Exchange{
				Round:   out.Rounds,
				Note:    strings.TrimSpace(pending.Text),
				Calls:   calls,
				Results: results,
			})
			logger.Debug().Int("round", out.Rounds).Int("calls", len(calls)).Msg("tool round finished")
			pending = contractx.Step{}
			if out.Rounds >= l.cfg.MaxRounds {
				exhausted = true
				out.flag(contractx.FlagRoundBudgetExhausted)
			}
			current = stageComposing
		}
	}

	if out.Text == "" {
		out.Text = fallbackText(note, out.Transcript)
	}
	out.Text = guardClaims(out.Text, out.Transcript, l.tools.Class)
	raiseToolFlags(&out)

	logger.Info().
		Int("rounds", out.Rounds).
		Int("model_calls", out.ModelCalls).
		Dur("elapsed", l.now().Sub(started)).
		Interface("flags", out.Flags).
		Msg("reasoning finished")
	return out, nil
}

func (l *Loop) state(prompt conversation.Prompt, transcript []contractx.Exchange, finalize bool) contractx.PromptState {
	st := contractx.PromptState{
		SystemPrompt: prompt.SystemPrompt,
		Turns:        prompt.Turns,
		Instructions: l.cfg.Instructions,
		Transcript:   transcript,
		Finalize:     finalize,
	}
	if finalize {
		st.Instructions = joinNonEmpty("\n\n", l.cfg.Instructions, l.cfg.FinalizePrompt)
		return st
	}
	st.Tools = l.tools.Infos()
	return st
}

func assignIDs(round int, calls []contractx.ToolCall) []contractx.ToolCall {
	out := make([]contractx.ToolCall, len(calls))
	for i, c := range calls {
		c.Name = strings.TrimSpace(c.Name)
		if strings.TrimSpace(c.ID) == "" {
			c.ID = fmt.Sprintf("call_%d_%d", round, i+1)
		}
		out[i] = c
	}
	return out
}

func raiseToolFlags(out *Outcome) {
	for _, ex := range out.Transcript {
		for _, r := range ex.Results {
			switch {
			case r.DuplicateOf != "", r.Succeeded:
			case r.ErrorKind == contractx.ErrorKindAmbiguous:
				out.flag(contractx.FlagAmbiguousSideEffect)
				out.flag(contractx.FlagToolFailures)
			default:
				out.flag(contractx.FlagToolFailures)
			}
		}
	}
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}
