/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// Session identifies the conversation a trace belongs to.
type Session struct {
	ID         string `json:"id,omitempty"`
	Repository string `json:"repository,omitempty"` // owner/repo, empty when no repository is connected
	Turn       int    `json:"turn,omitempty"`
}

// EnrichAttributes appends the bounded session attributes to baseAttrs.
// The session id is left out because every session would create a new
// time series.
func (s Session) EnrichAttributes(baseAttrs []attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, len(baseAttrs), len(baseAttrs)+2)
	copy(attrs, baseAttrs)
	if s.Repository != "" {
		attrs = append(attrs, attribute.String("repository", s.Repository))
	}
	return append(attrs, attribute.Int("turn", s.Turn))
}

type sessionKey struct{}

// WithSession adds session metadata to the context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// GetSession returns the session stored in ctx, or the zero Session.
func GetSession(ctx context.Context) Session {
	if s, ok := ctx.Value(sessionKey{}).(Session); ok {
		return s
	}
	return Session{}
}
