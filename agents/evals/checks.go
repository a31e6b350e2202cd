/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"fmt"
	"maps"
	"slices"

	"chainguard.dev/repopilot/agents/agenttrace"
	"chainguard.dev/repopilot/agents/dispatch"
)

// ExactToolCalls checks that the turn made exactly n tool calls.
func ExactToolCalls(n int) Check {
	return func(o Observer, trace *agenttrace.Trace) {
		if got := len(trace.ToolCalls); got != n {
			o.Fail(fmt.Sprintf("tool call count: got = %d, wanted = %d", got, n))
		}
	}
}

// MaximumNToolCalls checks that the turn made at most n tool calls.
func MaximumNToolCalls(n int) Check {
	return func(o Observer, trace *agenttrace.Trace) {
		if got := len(trace.ToolCalls); got > n {
			o.Fail(fmt.Sprintf("tool call count: got = %d, wanted <= %d", got, n))
		}
	}
}

// NoToolCalls checks that the turn was answered directly.
func NoToolCalls() Check {
	return ExactToolCalls(0)
}

// MaxRounds checks that the turn used at most n tool round trips.
func MaxRounds(n int) Check {
	return func(o Observer, trace *agenttrace.Trace) {
		if trace.Rounds > n {
			o.Fail(fmt.Sprintf("rounds: got = %d, wanted <= %d", trace.Rounds, n))
		}
	}
}

// OnlyToolCalls checks that every call used one of names.
func OnlyToolCalls(names ...string) Check {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	return func(o Observer, trace *agenttrace.Trace) {
		for _, tc := range trace.ToolCalls {
			if !allowed[tc.Name] {
				o.Fail(fmt.Sprintf("unexpected tool call %q, only allowed: %v", tc.Name, names))
				return
			}
		}
	}
}

// RequiredToolCalls checks that each of names was called at least once.
func RequiredToolCalls(names ...string) Check {
	return func(o Observer, trace *agenttrace.Trace) {
		missing := make(map[string]bool, len(names))
		for _, n := range names {
			missing[n] = true
		}
		for _, tc := range trace.ToolCalls {
			delete(missing, tc.Name)
		}
		if len(missing) > 0 {
			o.Fail(fmt.Sprintf("missing required tool calls: %v", slices.Sorted(maps.Keys(missing))))
		}
	}
}

// NoErrors checks that neither the turn nor any tool call failed.
func NoErrors() Check {
	return func(o Observer, trace *agenttrace.Trace) {
		if trace.Error != nil {
			o.Fail(fmt.Sprintf("trace error: got = %v, wanted = nil", trace.Error))
			return
		}
		for _, tc := range trace.ToolCalls {
			if tc.Error != nil {
				o.Fail(fmt.Sprintf("tool call %s error: got = %v, wanted = nil", tc.Name, tc.Error))
				return
			}
		}
	}
}

// ToolCallNamed runs validate on every call to name and fails if there
// is none.
func ToolCallNamed(name string, validate func(*agenttrace.ToolCall) error) Check {
	return func(o Observer, trace *agenttrace.Trace) {
		found := false
		for _, tc := range trace.ToolCalls {
			if tc.Name != name {
				continue
			}
			found = true
			if err := validate(tc); err != nil {
				o.Fail(fmt.Sprintf("tool call %s validation failed: %v", name, err))
				return
			}
		}
		if !found {
			o.Fail(fmt.Sprintf("tool call named %q: got = not found, wanted = found", name))
		}
	}
}

// WritesAwaitApproval checks that every accepted write was queued rather
// than applied. Writes that failed validation are ignored.
func WritesAwaitApproval() Check {
	return func(o Observer, trace *agenttrace.Trace) {
		for _, tc := range trace.ToolCalls {
			tool, ok := dispatch.Parse(tc.Name)
			if !ok || !tool.Write() || tc.Error != nil {
				continue
			}
			payload, _ := tc.Result.(map[string]any)
			if payload["status"] != "pending_approval" {
				o.Fail(fmt.Sprintf("write %s (%s) was not queued for approval: %v", tc.Name, tc.ID, payload))
				continue
			}
			if id, _ := payload["action_id"].(string); id == "" {
				o.Fail(fmt.Sprintf("write %s (%s) has no action id", tc.Name, tc.ID))
			}
		}
	}
}
