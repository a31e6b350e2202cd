/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package testevals reports evals check failures as test failures.
package testevals

import (
	"sync/atomic"
	"testing"

	"chainguard.dev/repopilot/agents/evals"
)

type observer struct {
	tb     testing.TB
	prefix string
	count  atomic.Int64
}

// New returns an Observer that fails tb.
func New(tb testing.TB) evals.Observer {
	return &observer{tb: tb}
}

// NewPrefix is New with every message prefixed, typically by the check name.
func NewPrefix(tb testing.TB, prefix string) evals.Observer {
	return &observer{tb: tb, prefix: prefix}
}

// Factory adapts NewPrefix for evals.BuildTracer.
func Factory(tb testing.TB) func(string) evals.Observer {
	return func(name string) evals.Observer { return NewPrefix(tb, name) }
}

func (o *observer) Fail(msg string) {
	if o.prefix != "" {
		o.tb.Errorf("%s: %s", o.prefix, msg)
		return
	}
	o.tb.Error(msg)
}

func (o *observer) Log(msg string) {
	if o.prefix != "" {
		o.tb.Logf("%s: %s", o.prefix, msg)
		return
	}
	o.tb.Log(msg)
}

func (o *observer) Increment()   { o.count.Add(1) }
func (o *observer) Total() int64 { return o.count.Load() }
