/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package backendtest provides a scripted backend.Model for tests.
package backendtest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"chainguard.dev/repopilot/agents/backend"
	"chainguard.dev/repopilot/agents/toolcall"
)

// ErrScriptExhausted is returned once every scripted step has been used
// and no fallback is set.
var ErrScriptExhausted = errors.New("backendtest: script exhausted")

// Step produces the reply to one request.
type Step func(req *backend.Request) (*backend.Response, error)

// Model replays Steps in order, one per Generate call.
type Model struct {
	name      string
	grounding bool
	schema    bool

	mu       sync.Mutex
	steps    []Step
	fallback Step
	requests []backend.Request
}

var _ backend.Model = (*Model)(nil)

// New returns a model named name that answers with steps in order.
func New(name string, steps ...Step) *Model {
	return &Model{name: name, steps: steps, schema: true}
}

// WithGrounding sets what SupportsGrounding reports.
func (m *Model) WithGrounding(supported bool) *Model {
	m.grounding = supported
	return m
}

// WithResponseSchema sets what SupportsResponseSchema reports.
func (m *Model) WithResponseSchema(supported bool) *Model {
	m.schema = supported
	return m
}

// Always answers with step once the script runs out.
func (m *Model) Always(step Step) *Model {
	m.fallback = step
	return m
}

func (m *Model) Name() string                 { return m.name }
func (m *Model) SupportsGrounding() bool      { return m.grounding }
func (m *Model) SupportsResponseSchema() bool { return m.schema }

// Generate records a copy of req and runs the next step.
func (m *Model) Generate(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	snapshot := *req
	snapshot.Messages = slices.Clone(req.Messages)
	m.requests = append(m.requests, snapshot)
	var step Step
	switch {
	case len(m.steps) > 0:
		step, m.steps = m.steps[0], m.steps[1:]
	case m.fallback != nil:
		step = m.fallback
	}
	m.mu.Unlock()

	if step == nil {
		return nil, ErrScriptExhausted
	}
	return step(&snapshot)
}

// Requests returns copies of every request received so far.
func (m *Model) Requests() []backend.Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.requests)
}

// Calls is the number of Generate calls so far.
func (m *Model) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func response(text string, calls []toolcall.Call) *backend.Response {
	return &backend.Response{
		Text:      text,
		ToolCalls: calls,
		Usage:     backend.Usage{InputTokens: 10, OutputTokens: 5},
		Message:   backend.Message{Role: backend.RoleModel, Text: text, ToolCalls: calls},
	}
}

// Reply answers with text and no tool calls.
func Reply(text string) Step {
	return func(*backend.Request) (*backend.Response, error) {
		return response(text, nil), nil
	}
}

// ReplyWithCitations answers with text and grounding citations.
func ReplyWithCitations(text string, citations ...backend.Citation) Step {
	return func(*backend.Request) (*backend.Response, error) {
		r := response(text, nil)
		r.Citations = citations
		return r, nil
	}
}

// CallTools requests the given tool calls.
func CallTools(calls ...toolcall.Call) Step {
	return func(*backend.Request) (*backend.Response, error) {
		return response("", calls), nil
	}
}

// CallToolsWithText requests tool calls and also emits text.
func CallToolsWithText(text string, calls ...toolcall.Call) Step {
	return func(*backend.Request) (*backend.Response, error) {
		return response(text, calls), nil
	}
}

// Fail returns err.
func Fail(err error) Step {
	return func(*backend.Request) (*backend.Response, error) {
		return nil, err
	}
}

// RateLimited returns a *backend.RateLimitError.
func RateLimited() Step {
	return Fail(&backend.RateLimitError{Provider: "backendtest", Err: fmt.Errorf("429 too many requests")})
}
