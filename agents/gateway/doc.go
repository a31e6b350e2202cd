/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gateway interposes human approval between a model's request to
// change a repository and the change itself.
//
// Propose validates the parameters of a write and records a pending Action.
// Nothing touches the repository until Approve is called for that action,
// at which point the matching Executor routine runs. The lifecycle is:
//
//	pending ──Approve──▶ approved ──▶ executed
//	   │                     │
//	   │                     └──────▶ execution_failed ──RetryExecution──▶ approved
//	   └──Reject──▶ rejected
//
// Every status change is a compare-and-set in the Store, so an action is
// approved at most once. Executions that write to the same repository
// branch are serialized. Subscribers registered with Subscribe receive an
// Event for every transition.
package gateway
