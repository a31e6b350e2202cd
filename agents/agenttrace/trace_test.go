/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/attribute"
)

type collector struct {
	mu     sync.Mutex
	traces []*Trace
}

func (c *collector) RecordTrace(trace *Trace) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.traces = append(c.traces, trace)
}

func TestTraceLifecycle(t *testing.T) {
	t.Parallel()
	c := &collector{}
	ctx := WithTracer(context.Background(), c)
	ctx = WithSession(ctx, Session{ID: "s1", Repository: "octocat/hello", Turn: 2})

	tr := StartTrace(ctx, "what does this repo do?")
	tr.NextRound()
	tr.StartToolCall("c1", "get_readme", nil).Complete("# hello", nil)
	tr.BadToolCall("c2", "bogus", map[string]any{"x": 1}, errors.New("unknown function"))
	tr.Complete("It says hello.", nil)

	if len(c.traces) != 1 {
		t.Fatalf("recorded traces: got = %d, wanted 1", len(c.traces))
	}
	got := c.traces[0]
	if diff := cmp.Diff([]string{"get_readme", "bogus"}, got.ToolNames()); diff != "" {
		t.Errorf("ToolNames() mismatch (-want +got):\n%s", diff)
	}
	if got.Session.Repository != "octocat/hello" || got.Session.Turn != 2 {
		t.Errorf("session: got = %+v", got.Session)
	}
	if got.Rounds != 1 {
		t.Errorf("rounds: got = %d, wanted 1", got.Rounds)
	}
	if got.ToolCalls[1].Error == nil {
		t.Error("bad tool call error not recorded")
	}
	s := got.String()
	for _, want := range []string{"get_readme", "unknown function", "It says hello."} {
		if !strings.Contains(s, want) {
			t.Errorf("String() missing %q:\n%s", want, s)
		}
	}
}

func TestConcurrentToolCalls(t *testing.T) {
	t.Parallel()
	c := &collector{}
	tr := StartTrace(WithTracer(context.Background(), c), "p")

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.StartToolCall(string(rune('a'+i)), "read_file", nil).Complete("ok", nil)
		}()
	}
	wg.Wait()
	tr.Complete("", nil)

	if n := len(c.traces[0].ToolCalls); n != 20 {
		t.Errorf("tool calls: got = %d, wanted 20", n)
	}
}

func TestByCodeRunsEveryCallback(t *testing.T) {
	t.Parallel()
	var mu sync.Mutex
	seen := 0
	cb := func(*Trace) {
		mu.Lock()
		defer mu.Unlock()
		seen++
	}
	tr := StartTrace(WithTracer(context.Background(), ByCode(cb, nil, cb)), "p")
	tr.Complete("done", nil)
	if seen != 2 {
		t.Errorf("callbacks run: got = %d, wanted 2", seen)
	}
}

func TestDefaultTracer(t *testing.T) {
	t.Parallel()
	if TracerFromContext(context.Background()) == nil {
		t.Fatal("TracerFromContext() = nil")
	}
	// Completing without an installed tracer must not panic.
	StartTrace(context.Background(), "p").Complete("", errors.New("boom"))
}

func TestSessionEnrichAttributes(t *testing.T) {
	t.Parallel()
	base := []attribute.KeyValue{attribute.String("model", "gemini-2.5-flash")}

	got := Session{ID: "ignored", Repository: "o/r", Turn: 4}.EnrichAttributes(base)
	want := []attribute.KeyValue{
		attribute.String("model", "gemini-2.5-flash"),
		attribute.String("repository", "o/r"),
		attribute.Int("turn", 4),
	}
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b attribute.KeyValue) bool {
		return a.Key == b.Key && a.Value.Emit() == b.Value.Emit()
	})); diff != "" {
		t.Errorf("EnrichAttributes() mismatch (-want +got):\n%s", diff)
	}
	if len(base) != 1 {
		t.Error("EnrichAttributes mutated its input")
	}
}
