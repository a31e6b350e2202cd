/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// Tracer receives completed traces.
type Tracer interface {
	RecordTrace(trace *Trace)
}

// TraceCallback is invoked with each completed trace.
type TraceCallback func(*Trace)

type byCode struct {
	callbacks []TraceCallback
}

// ByCode returns a Tracer that runs every callback, in parallel, for each
// completed trace.
func ByCode(callbacks ...TraceCallback) Tracer {
	return &byCode{callbacks: callbacks}
}

func (t *byCode) RecordTrace(trace *Trace) {
	var g errgroup.Group
	for _, cb := range t.callbacks {
		if cb == nil {
			continue
		}
		g.Go(func() error {
			cb(trace)
			return nil
		})
	}
	_ = g.Wait()
}

// logging is the fallback tracer when none is installed in the context.
func logging(ctx context.Context) Tracer {
	logger := clog.FromContext(ctx)
	return ByCode(func(trace *Trace) {
		logger.With(
			"trace_id", trace.ID,
			"duration_ms", trace.Duration().Milliseconds(),
			"tool_calls", len(trace.ToolCalls),
		).Debug("Turn trace completed", "trace", trace.String())
	})
}

type tracerKey struct{}

// WithTracer installs tracer in the context.
func WithTracer(ctx context.Context, tracer Tracer) context.Context {
	return context.WithValue(ctx, tracerKey{}, tracer)
}

// TracerFromContext returns the installed tracer or one that logs through clog.
func TracerFromContext(ctx context.Context) Tracer {
	if t, ok := ctx.Value(tracerKey{}).(Tracer); ok {
		return t
	}
	return logging(ctx)
}

// StartTrace begins a trace recorded by the context's tracer.
func StartTrace(ctx context.Context, prompt string) *Trace {
	return newTrace(ctx, TracerFromContext(ctx), prompt)
}
