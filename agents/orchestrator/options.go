/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"fmt"
	"time"

	"chainguard.dev/repopilot/agents/executor/retry"
	"chainguard.dev/repopilot/agents/metrics"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithRetryConfig sets the policy for rate-limited model calls.
func WithRetryConfig(cfg retry.RetryConfig) Option {
	return func(o *Orchestrator) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		o.retry = cfg
		return nil
	}
}

// WithMaxRounds caps the tool round trips of a turn.
func WithMaxRounds(n int) Option {
	return func(o *Orchestrator) error {
		if n < 1 {
			return fmt.Errorf("max rounds must be at least 1, got %d", n)
		}
		o.maxRounds = n
		return nil
	}
}

// WithMetrics records model and tool usage on m.
func WithMetrics(m *metrics.GenAI) Option {
	return func(o *Orchestrator) error {
		o.metrics = m
		return nil
	}
}

// WithClock sets the time source used for the prompt's current time.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) error {
		o.now = now
		return nil
	}
}

// WithStateObserver calls fn on every state transition.
func WithStateObserver(fn func(State)) Option {
	return func(o *Orchestrator) error {
		o.observe = fn
		return nil
	}
}
