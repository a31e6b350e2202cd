/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

/*
Package agenttrace records what happened during one conversational turn.

A Trace covers a single orchestrator turn from the composed prompt to the
final answer, and holds one ToolCall record per tool the model invoked.
Each trace and tool call is mirrored as an OpenTelemetry span.

	ctx = agenttrace.WithSession(ctx, agenttrace.Session{
		ID:         "s-1",
		Repository: "octocat/hello-world",
		Turn:       3,
	})
	ctx = agenttrace.WithTracer(ctx, agenttrace.ByCode(func(tr *agenttrace.Trace) {
		log.Printf("turn %s used %d tools", tr.ID, len(tr.ToolCalls))
	}))

	tr := agenttrace.StartTrace(ctx, "summarize the README")
	tc := tr.StartToolCall("call-1", "get_readme", nil)
	tc.Complete("# hello", nil)
	tr.Complete("The project says hello.", nil)
*/
package agenttrace
