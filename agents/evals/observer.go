/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package evals

import (
	"maps"
	"slices"
	"sync"
	"sync/atomic"

	"chainguard.dev/repopilot/agents/agenttrace"
)

// Observer receives the outcome of checks.
type Observer interface {
	// Fail records a failed check. It may be called more than once per trace.
	Fail(string)
	// Log records a note that is not a failure.
	Log(string)
	// Increment is called once per checked trace.
	Increment()
	// Total is the number of checked traces.
	Total() int64
}

// Check inspects a completed trace.
type Check func(Observer, *agenttrace.Trace)

// Inject binds a check to an observer.
func Inject(obs Observer, check Check) agenttrace.TraceCallback {
	return func(trace *agenttrace.Trace) {
		obs.Increment()
		check(obs, trace)
	}
}

// BuildTracer runs every check in checks, each with its own observer
// created by factory from the check's name.
func BuildTracer[O Observer](factory func(name string) O, checks map[string]Check) agenttrace.Tracer {
	names := slices.Sorted(maps.Keys(checks))
	callbacks := make([]agenttrace.TraceCallback, 0, len(names))
	for _, name := range names {
		callbacks = append(callbacks, Inject(factory(name), checks[name]))
	}
	return agenttrace.ByCode(callbacks...)
}

// Collector is an Observer that keeps failure messages.
type Collector struct {
	mu       sync.Mutex
	failures []string
	logs     []string
	count    atomic.Int64
}

var _ Observer = (*Collector)(nil)

func (c *Collector) Fail(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failures = append(c.failures, msg)
}

func (c *Collector) Log(msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logs = append(c.logs, msg)
}

func (c *Collector) Increment()   { c.count.Add(1) }
func (c *Collector) Total() int64 { return c.count.Load() }

// Failures returns a copy of the failure messages.
func (c *Collector) Failures() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.failures)
}

// Logs returns a copy of the logged notes.
func (c *Collector) Logs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.logs)
}
