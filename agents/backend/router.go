/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrUnsupportedModel is returned for model names no provider claims.
var ErrUnsupportedModel = errors.New("unsupported model")

// Constructor builds a Model for a model name.
type Constructor func(ctx context.Context, model string) (Model, error)

type provider struct {
	prefixes []string
	build    Constructor
}

// Router picks a provider by model name prefix and caches the models it builds.
type Router struct {
	providers []provider

	mu     sync.Mutex
	models map[string]Model
}

// NewRouter returns an empty router.
func NewRouter() *Router {
	return &Router{models: make(map[string]Model)}
}

// Register routes model names starting with any of prefixes to build.
// Prefixes are matched case-insensitively in registration order.
func (r *Router) Register(build Constructor, prefixes ...string) *Router {
	lower := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		lower = append(lower, strings.ToLower(p))
	}
	r.providers = append(r.providers, provider{prefixes: lower, build: build})
	return r
}

// Model returns the model for name, building it on first use.
func (r *Router) Model(ctx context.Context, name string) (Model, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.models[name]; ok {
		return m, nil
	}

	lower := strings.ToLower(name)
	for _, p := range r.providers {
		for _, prefix := range p.prefixes {
			if !strings.HasPrefix(lower, prefix) {
				continue
			}
			m, err := p.build(ctx, name)
			if err != nil {
				return nil, fmt.Errorf("creating model %s: %w", name, err)
			}
			r.models[name] = m
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, name)
}
