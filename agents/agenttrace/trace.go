/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentationName = "chainguard.dev/repopilot/agents/agenttrace"

func tracer() oteltrace.Tracer {
	return otel.Tracer(instrumentationName, oteltrace.WithInstrumentationVersion("1.0.0"))
}

// ToolCall is one tool invocation within a trace.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Params    map[string]any `json:"params"`
	Result    any            `json:"result"`
	Error     error          `json:"error,omitempty"`
	StartTime time.Time      `json:"start_time"`
	EndTime   time.Time      `json:"end_time"`

	mu    sync.Mutex
	trace *Trace
	span  oteltrace.Span
}

// Trace is one orchestrator turn, from composed prompt to answer.
type Trace struct {
	ID        string      `json:"id"`
	Prompt    string      `json:"prompt"`
	Session   Session     `json:"session"`
	ToolCalls []*ToolCall `json:"tool_calls"`
	Rounds    int         `json:"rounds"`
	Result    string      `json:"result"`
	Error     error       `json:"error,omitempty"`
	StartTime time.Time   `json:"start_time"`
	EndTime   time.Time   `json:"end_time"`

	mu     sync.Mutex
	tracer Tracer
	ctx    context.Context
	span   oteltrace.Span
}

func newTrace(ctx context.Context, t Tracer, prompt string) *Trace {
	session := GetSession(ctx)

	opts := []oteltrace.SpanStartOption{
		oteltrace.WithAttributes(attribute.Int("turn", session.Turn)),
	}
	if session.ID != "" {
		opts = append(opts, oteltrace.WithAttributes(attribute.String("session_id", session.ID)))
	}
	if session.Repository != "" {
		opts = append(opts, oteltrace.WithAttributes(attribute.String("repository", session.Repository)))
	}
	ctx, span := tracer().Start(ctx, "agent.turn", opts...)

	return &Trace{
		ID:        uuid.NewString(),
		Prompt:    prompt,
		Session:   session,
		ToolCalls: []*ToolCall{},
		StartTime: time.Now(),
		tracer:    t,
		ctx:       ctx,
		span:      span,
	}
}

// Context returns the context carrying the trace's span.
func (t *Trace) Context() context.Context {
	return t.ctx
}

// StartToolCall opens a tool call record. It is added to the trace when completed.
func (t *Trace) StartToolCall(id, name string, params map[string]any) *ToolCall {
	_, span := tracer().Start(t.ctx, "agent.tool_call", oteltrace.WithAttributes(
		attribute.String("tool.name", name),
		attribute.String("tool.id", id),
	))
	return &ToolCall{
		ID:        id,
		Name:      name,
		Params:    params,
		StartTime: time.Now(),
		trace:     t,
		span:      span,
	}
}

// BadToolCall records a call that could not be dispatched.
func (t *Trace) BadToolCall(id, name string, params map[string]any, err error) {
	tc := t.StartToolCall(id, name, params)
	tc.Complete(nil, err)
}

// NextRound counts one model round trip that requested tools.
func (t *Trace) NextRound() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Rounds++
}

// RecordTokenUsage attaches token usage to the turn span.
func (t *Trace) RecordTokenUsage(model string, inputTokens, outputTokens int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.span.SetAttributes(
		attribute.String("model", model),
		attribute.Int64("tokens.input", inputTokens),
		attribute.Int64("tokens.output", outputTokens),
	)
}

// Complete finishes the tool call and appends it to its trace.
func (tc *ToolCall) Complete(result any, err error) {
	tc.mu.Lock()
	tc.Result = result
	tc.Error = err
	tc.EndTime = time.Now()
	tc.mu.Unlock()

	endSpan(tc.span, err)

	tc.trace.mu.Lock()
	defer tc.trace.mu.Unlock()
	tc.trace.ToolCalls = append(tc.trace.ToolCalls, tc)
}

// Duration is how long the call took, or has taken so far.
func (tc *ToolCall) Duration() time.Duration {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return elapsed(tc.StartTime, tc.EndTime)
}

// Complete finishes the trace and hands it to the tracer.
func (t *Trace) Complete(result string, err error) {
	t.mu.Lock()
	t.Result = result
	t.Error = err
	t.EndTime = time.Now()
	t.span.SetAttributes(attribute.Int("rounds", t.Rounds))
	t.mu.Unlock()

	endSpan(t.span, err)
	t.tracer.RecordTrace(t)
}

// Duration is how long the turn took, or has taken so far.
func (t *Trace) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	return elapsed(t.StartTime, t.EndTime)
}

// ToolNames lists the completed tool calls in completion order.
func (t *Trace) ToolNames() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	names := make([]string, 0, len(t.ToolCalls))
	for _, tc := range t.ToolCalls {
		names = append(names, tc.Name)
	}
	return names
}

func (t *Trace) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Turn %s ===\n", t.ID)
	fmt.Fprintf(&sb, "Prompt: %q\n", truncate(t.Prompt, 200))
	fmt.Fprintf(&sb, "Duration: %v\n", elapsed(t.StartTime, t.EndTime))
	fmt.Fprintf(&sb, "Rounds: %d\n", t.Rounds)

	if len(t.ToolCalls) == 0 {
		sb.WriteString("\nNo tool calls\n")
	} else {
		fmt.Fprintf(&sb, "\nTool Calls (%d):\n", len(t.ToolCalls))
		for i, tc := range t.ToolCalls {
			fmt.Fprintf(&sb, "  [%d] %s (ID: %s) %v\n", i+1, tc.Name, tc.ID, elapsed(tc.StartTime, tc.EndTime))
			for _, k := range slices.Sorted(maps.Keys(tc.Params)) {
				fmt.Fprintf(&sb, "      %s: %s\n", k, truncate(fmt.Sprint(tc.Params[k]), 80))
			}
			if tc.Error != nil {
				fmt.Fprintf(&sb, "      Error: %v\n", tc.Error)
			}
		}
	}

	sb.WriteString("\nCompletion:\n")
	if t.Error != nil {
		fmt.Fprintf(&sb, "  Error: %v\n", t.Error)
	} else {
		fmt.Fprintf(&sb, "  Result: %s\n", truncate(t.Result, 500))
	}
	return sb.String()
}

func endSpan(span oteltrace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

func elapsed(start, end time.Time) time.Duration {
	if end.IsZero() {
		return time.Since(start)
	}
	return end.Sub(start)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
