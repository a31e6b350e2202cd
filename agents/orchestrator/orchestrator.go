/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/repopilot/agents/agenttrace"
	"chainguard.dev/repopilot/agents/backend"
	"chainguard.dev/repopilot/agents/dispatch"
	"chainguard.dev/repopilot/agents/executor/retry"
	"chainguard.dev/repopilot/agents/intent"
	"chainguard.dev/repopilot/agents/metrics"
	"chainguard.dev/repopilot/agents/toolcall"
	"chainguard.dev/repopilot/agents/toolcall/params"
	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultMaxRounds bounds the tool round trips of one turn.
	DefaultMaxRounds = 10

	// FailureMessage is shown to the user when a turn is aborted.
	FailureMessage = "Sorry, I could not generate a response. Please try again."

	// IncompleteMessage is the answer when the model produced no text.
	IncompleteMessage = "I was not able to finish an answer within the allowed number of steps. Try narrowing the question or asking me to continue."

	dispatchConcurrency = 4
)

// ErrGeneration wraps a model call that failed after retries.
var ErrGeneration = errors.New("could not generate a response")

// Tools resolves tool calls for one turn. *dispatch.Dispatcher implements it.
type Tools interface {
	Definitions() []toolcall.Definition
	Dispatch(ctx context.Context, call toolcall.Call, trace *agenttrace.Trace) toolcall.Result
}

var _ Tools = (*dispatch.Dispatcher)(nil)

// Input is everything one turn needs. History is read, never modified.
type Input struct {
	Intent      *intent.Intent
	Utterance   string
	Attachments []backend.Attachment
	History     []backend.Turn
	// Style holds the factor settings, rendered into the system prompt.
	Style map[string]any
	// Grounding asks for web search. Repository tools take precedence.
	Grounding bool
	// Repository is the connected owner/repo, if any.
	Repository string
	// Tools is nil when no repository is connected.
	Tools Tools
}

// Output is the answer to one turn.
type Output struct {
	Text      string
	Citations []backend.Citation
	Rounds    int
	// Converged is false when the round cap ended the turn.
	Converged bool
}

// Orchestrator runs the tool-calling loop.
type Orchestrator struct {
	model     backend.Model
	retry     retry.RetryConfig
	maxRounds int
	metrics   *metrics.GenAI
	now       func() time.Time
	observe   func(State)
}

// New returns an Orchestrator for model.
func New(model backend.Model, opts ...Option) (*Orchestrator, error) {
	o := &Orchestrator{
		model:     model,
		retry:     retry.DefaultRetryConfig(),
		maxRounds: DefaultMaxRounds,
		metrics:   metrics.NewGenAI("chainguard.dev/repopilot/agents/orchestrator"),
		now:       time.Now,
		observe:   func(State) {},
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, err
		}
	}
	return o, nil
}

// Model is the backend this orchestrator calls.
func (o *Orchestrator) Model() backend.Model {
	return o.model
}

func (o *Orchestrator) mode(in Input) ToolMode {
	switch {
	case in.Tools != nil && in.Repository != "":
		return ModeRepository
	case in.Grounding && o.model.SupportsGrounding():
		return ModeGrounding
	default:
		return ModeNone
	}
}

// Run drives one turn to completion. It returns an error wrapping
// ErrGeneration only when a model call fails after retries; reaching the
// round cap still yields an answer.
func (o *Orchestrator) Run(ctx context.Context, in Input) (out *Output, err error) {
	o.observe(StateComposing)
	mode := o.mode(in)
	log := clog.FromContext(ctx).With("model", o.model.Name()).With("mode", string(mode))
	if in.Grounding && mode == ModeNone {
		log.Warn("Model does not support grounding, answering without web search")
	}

	system, err := promptContext{
		Now:        o.now().Format("Monday, January 2, 2006 15:04 MST"),
		Repository: in.Repository,
		WebSearch:  mode == ModeGrounding,
		Intent:     in.Intent,
		style:      in.Style,
		mode:       mode,
	}.build()
	if err != nil {
		return nil, fmt.Errorf("building system prompt: %w", err)
	}

	trace := agenttrace.StartTrace(ctx, in.Utterance)
	defer func() {
		if out != nil {
			trace.Complete(out.Text, nil)
		} else {
			trace.Complete("", err)
		}
	}()
	ctx = trace.Context()

	// The transcript belongs to this turn alone.
	transcript := backend.HistoryMessages(in.History)
	transcript = append(transcript, backend.Message{
		Role:        backend.RoleUser,
		Text:        in.Utterance,
		Attachments: in.Attachments,
	})
	req := &backend.Request{System: system, Grounding: mode == ModeGrounding}
	if mode == ModeRepository {
		req.Tools = in.Tools.Definitions()
	}

	out = &Output{}
	var usage backend.Usage
	for round := 0; ; round++ {
		o.observe(StateAwaitingModel)
		req.Messages = transcript
		resp, err := o.generate(ctx, req)
		if err != nil {
			log.With("error", err.Error()).With("round", round).Error("Model call failed, aborting turn")
			o.observe(StateDone)
			return nil, fmt.Errorf("%w: %w", ErrGeneration, err)
		}
		usage.InputTokens += resp.Usage.InputTokens
		usage.OutputTokens += resp.Usage.OutputTokens
		out.Citations = backend.AppendCitations(out.Citations, resp.Citations...)
		if text := strings.TrimSpace(resp.Text); text != "" {
			out.Text = text
		}

		if len(resp.ToolCalls) == 0 {
			out.Converged = true
			break
		}
		if round >= o.maxRounds {
			log.With("rounds", round).Warn("Round cap reached with tool calls outstanding")
			break
		}

		o.observe(StateToolsRequested)
		trace.NextRound()
		out.Rounds++
		o.observe(StateDispatching)
		results := o.dispatch(ctx, in.Tools, resp.ToolCalls, trace)
		transcript = append(transcript, resp.Message, backend.Message{Role: backend.RoleUser, ToolResults: results})
	}

	trace.RecordTokenUsage(o.model.Name(), usage.InputTokens, usage.OutputTokens)
	if out.Text == "" {
		out.Text = IncompleteMessage
	}
	log.With("rounds", out.Rounds).With("converged", out.Converged).Info("Turn complete")
	o.observe(StateDone)
	return out, nil
}

func (o *Orchestrator) generate(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	resp, err := retry.RetryWithBackoff(ctx, o.retry, "generate", backend.IsRateLimited, func() (*backend.Response, error) {
		resp, err := o.model.Generate(ctx, req)
		o.metrics.RecordModelCall(ctx, o.model.Name(), err)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	o.metrics.RecordTokens(ctx, o.model.Name(), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	return resp, nil
}

// dispatch resolves every call of one response concurrently. Results are
// returned in call order and each carries its call's ID.
func (o *Orchestrator) dispatch(ctx context.Context, tools Tools, calls []toolcall.Call, trace *agenttrace.Trace) []toolcall.Result {
	results := make([]toolcall.Result, len(calls))
	var g errgroup.Group
	g.SetLimit(dispatchConcurrency)
	for i, call := range calls {
		g.Go(func() error {
			var res toolcall.Result
			if tools == nil {
				err := fmt.Errorf("unknown function %q", call.Name)
				trace.BadToolCall(call.ID, call.Name, call.Args, err)
				res = toolcall.Result{Name: call.Name, Payload: params.Error("unknown function: %s", call.Name)}
			} else {
				res = tools.Dispatch(ctx, call, trace)
			}
			res.ID = call.ID
			o.metrics.RecordToolCall(ctx, o.model.Name(), call.Name, dispatch.Succeeded(res.Payload))
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}
