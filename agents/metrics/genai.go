/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics exports OpenTelemetry counters for model usage.
package metrics

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// GenAI counts tokens, model calls and tool calls. Counters that fail to
// register fall back to no-ops.
type GenAI struct {
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	modelCalls       metric.Int64Counter
	toolCalls        metric.Int64Counter
	enricher         AttributeEnricher
}

func counter(meter metric.Meter, meterName, name, desc, unit string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
	if err != nil {
		slog.Warn("Failed to create counter, metric disabled", "error", err, "meter", meterName, "counter", name)
		return noop.Int64Counter{}
	}
	return c
}

// NewGenAI registers the counters on the global meter provider. The model
// name is a dimension, so one meter serves every backend.
func NewGenAI(meterName string) *GenAI {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))
	return &GenAI{
		promptTokens:     counter(meter, meterName, "genai.token.prompt", "The number of prompt tokens used", "{tokens}"),
		completionTokens: counter(meter, meterName, "genai.token.completion", "The number of completion tokens used", "{tokens}"),
		modelCalls:       counter(meter, meterName, "genai.model.calls", "The number of model requests, by outcome", "{calls}"),
		toolCalls:        counter(meter, meterName, "genai.tool.calls", "The number of tool calls dispatched", "{calls}"),
		enricher:         SessionEnricher,
	}
}

// SetAttributeEnricher replaces the default session enricher.
func (m *GenAI) SetAttributeEnricher(enricher AttributeEnricher) {
	m.enricher = enricher
}

func (m *GenAI) attrs(ctx context.Context, base []attribute.KeyValue) metric.MeasurementOption {
	if m.enricher != nil {
		base = m.enricher(ctx, base)
	}
	return metric.WithAttributes(base...)
}

// RecordTokens records prompt and completion token usage for model.
func (m *GenAI) RecordTokens(ctx context.Context, model string, promptTokens, completionTokens int64) {
	opt := m.attrs(ctx, []attribute.KeyValue{attribute.String("model", model)})
	m.promptTokens.Add(ctx, promptTokens, opt)
	m.completionTokens.Add(ctx, completionTokens, opt)
}

// RecordModelCall records one model request and whether it failed.
func (m *GenAI) RecordModelCall(ctx context.Context, model string, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.modelCalls.Add(ctx, 1, m.attrs(ctx, []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("outcome", outcome),
	}))
}

// RecordToolCall records one tool dispatch.
func (m *GenAI) RecordToolCall(ctx context.Context, model, toolName string, success bool) {
	m.toolCalls.Add(ctx, 1, m.attrs(ctx, []attribute.KeyValue{
		attribute.String("model", model),
		attribute.String("tool", toolName),
		attribute.Bool("success", success),
	}))
}
