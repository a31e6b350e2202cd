/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package evals checks completed orchestrator turns.

A Check inspects one agenttrace.Trace and reports problems to an Observer.
Checks are installed as trace callbacks, so the same checks run against
scripted turns in tests and against live turns in the CLI:

	tracer := evals.BuildTracer(
		evals.NewMetricsObserver,
		map[string]evals.Check{
			"no-errors":      evals.NoErrors(),
			"writes-pending": evals.WritesAwaitApproval(),
		},
	)
	ctx = agenttrace.WithTracer(ctx, tracer)

Observers decide what a failure means. testevals fails the test,
MetricsObserver counts it in Prometheus and Collector keeps the messages.
*/
package evals
