/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package orchestrator runs one conversational turn: it composes the
// request, calls the model, resolves any tool calls the model makes, and
// repeats until the model answers without tools or the round cap is hit.
//
// A turn moves through the states
//
//	Composing -> AwaitingModel -> (ToolsRequested -> Dispatching -> AwaitingModel)* -> Done
//
// Tool calls within one response are dispatched concurrently and all of
// their results are appended before the next model call. Model calls are
// retried on rate limits only; any other failure aborts the turn and its
// transcript is discarded.
package orchestrator
