/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"encoding/xml"

	"chainguard.dev/repopilot/agents/intent"
	"chainguard.dev/repopilot/agents/promptbuilder"
)

// ToolMode is which kind of tools a turn offers. The modes are exclusive.
type ToolMode string

const (
	ModeNone       ToolMode = "none"
	ModeRepository ToolMode = "repository"
	ModeGrounding  ToolMode = "grounding"
)

var systemPrompt = promptbuilder.MustNewPrompt(`You are a coding assistant working with a developer.

{{context}}

Follow these style preferences:
{{style}}

{{policy}}`)

const (
	repositoryPolicy = `A GitHub repository is connected. Use the repository tools to read its files, branches, and history before answering questions about it. Do not guess at file contents.
The create_branch, commit_changes, and create_pull_request tools only propose a change. Each proposal waits for the user's approval. When a tool reports pending_approval, tell the user what was proposed and that it needs their approval. Never claim that a change has been applied.
Never target the main, master, or HEAD branches with a write. Work on a feature branch and propose a pull request instead.
If a tool reports an error, explain it or try a different approach.`

	groundingPolicy = `Web search is enabled. Use it for recent or factual information, and rely on the sources it returns.`

	plainPolicy = `Answer from your own knowledge. Say so when you are unsure.`
)

// promptContext is the per-turn situation rendered into the system prompt.
type promptContext struct {
	XMLName    xml.Name       `xml:"context"`
	Now        string         `xml:"current_time"`
	Repository string         `xml:"repository,omitempty"`
	WebSearch  bool           `xml:"web_search"`
	Intent     *intent.Intent `xml:"intent,omitempty"`

	style map[string]any
	mode  ToolMode
}

var _ promptbuilder.Bindable = promptContext{}

// Bind fills the system prompt.
func (c promptContext) Bind(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
	p, err := p.BindXML("context", c)
	if err != nil {
		return nil, err
	}
	style := c.style
	if len(style) == 0 {
		style = map[string]any{"tone": "neutral"}
	}
	if p, err = p.BindYAML("style", style); err != nil {
		return nil, err
	}
	switch c.mode {
	case ModeRepository:
		return p.BindStringLiteral("policy", repositoryPolicy)
	case ModeGrounding:
		return p.BindStringLiteral("policy", groundingPolicy)
	default:
		return p.BindStringLiteral("policy", plainPolicy)
	}
}

func (c promptContext) build() (string, error) {
	p, err := c.Bind(systemPrompt)
	if err != nil {
		return "", err
	}
	return p.Build()
}
