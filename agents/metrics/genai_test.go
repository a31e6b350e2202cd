/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"
	"errors"
	"testing"

	"chainguard.dev/repopilot/agents/agenttrace"
	"go.opentelemetry.io/otel/attribute"
)

func TestGenAIRecordsWithEnricher(t *testing.T) {
	m := NewGenAI("chainguard.dev/repopilot/test")

	var calls int
	m.SetAttributeEnricher(func(ctx context.Context, base []attribute.KeyValue) []attribute.KeyValue {
		calls++
		return SessionEnricher(ctx, base)
	})

	ctx := agenttrace.WithSession(context.Background(), agenttrace.Session{Repository: "o/r", Turn: 1})
	m.RecordTokens(ctx, "gemini-2.5-flash", 10, 20)
	m.RecordModelCall(ctx, "gemini-2.5-flash", nil)
	m.RecordModelCall(ctx, "gemini-2.5-flash", errors.New("boom"))
	m.RecordToolCall(ctx, "gemini-2.5-flash", "read_file", true)

	if calls != 4 {
		t.Errorf("enricher calls: got = %d, wanted 4", calls)
	}
}

func TestGenAINilEnricher(t *testing.T) {
	m := NewGenAI("chainguard.dev/repopilot/test")
	m.SetAttributeEnricher(nil)
	m.RecordToolCall(context.Background(), "claude-sonnet-4", "get_readme", false)
}
