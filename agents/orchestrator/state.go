/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

// State is a phase of one turn.
type State int

const (
	StateComposing State = iota
	StateAwaitingModel
	StateToolsRequested
	StateDispatching
	StateDone
)

func (s State) String() string {
	switch s {
	case StateComposing:
		return "Composing"
	case StateAwaitingModel:
		return "AwaitingModel"
	case StateToolsRequested:
		return "ToolsRequested"
	case StateDispatching:
		return "Dispatching"
	case StateDone:
		return "Done"
	}
	return "Unknown"
}
