/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package backend defines the provider-independent boundary to language
// model services. Adapters in subpackages implement Model for Gemini,
// Claude and OpenAI models.
package backend

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"chainguard.dev/repopilot/agents/toolcall"
	"github.com/invopop/jsonschema"
)

// Role is the author of a transcript message.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Attachment is a file the user supplied with a turn.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// IsText reports whether the attachment can be inlined into a prompt as text.
func (a Attachment) IsText() bool {
	mt := strings.ToLower(a.MIMEType)
	switch {
	case strings.HasPrefix(mt, "text/"),
		mt == "application/json",
		mt == "application/xml",
		mt == "application/yaml",
		mt == "application/x-yaml":
		return utf8.Valid(a.Data)
	case mt == "" || mt == "application/octet-stream":
		return utf8.Valid(a.Data) && !strings.ContainsRune(string(a.Data), 0)
	}
	return false
}

// Inline renders the attachment for backends that only accept text: the
// content in a fenced block for text, or a one-line summary otherwise.
func (a Attachment) Inline() string {
	if a.IsText() {
		return fmt.Sprintf("Attachment %q:\n```\n%s\n```", a.Name, a.Data)
	}
	return fmt.Sprintf("Attachment %q (%s, %d bytes) cannot be shown inline.", a.Name, a.MIMEType, len(a.Data))
}

// Message is one entry of a conversation transcript. A model message may
// request tools, and the user message that follows answers every request.
type Message struct {
	Role        Role
	Text        string
	Attachments []Attachment
	ToolCalls   []toolcall.Call
	ToolResults []toolcall.Result

	// Native is the adapter's own representation of a message it produced,
	// replayed verbatim when the same adapter sees it again.
	Native any
}

// Citation is a web source used for a grounded answer.
type Citation struct {
	Title string `json:"title,omitempty"`
	URI   string `json:"uri"`
}

// Usage counts the tokens of one request.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Request is one stateless model call.
type Request struct {
	System   string
	Messages []Message
	Tools    []toolcall.Definition

	// Grounding enables live web search. It is ignored when Tools is set.
	Grounding bool

	// ResponseSchema constrains the reply to a JSON document.
	ResponseSchema *jsonschema.Schema
}

// Response is the model's reply to a Request.
type Response struct {
	Text      string
	ToolCalls []toolcall.Call
	Citations []Citation
	Usage     Usage

	// Message is the reply as a transcript entry.
	Message Message
}

// Model is a language model that can be called statelessly.
type Model interface {
	// Name is the model identifier, e.g. "gemini-2.5-flash".
	Name() string
	// SupportsGrounding reports whether Request.Grounding has any effect.
	SupportsGrounding() bool
	// SupportsResponseSchema reports whether Request.ResponseSchema is enforced natively.
	SupportsResponseSchema() bool
	// Generate sends req. Rate limiting is reported as a *RateLimitError.
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// AppendCitations merges citations into dst, dropping URIs already present.
func AppendCitations(dst []Citation, citations ...Citation) []Citation {
	seen := make(map[string]struct{}, len(dst))
	for _, c := range dst {
		seen[c.URI] = struct{}{}
	}
	for _, c := range citations {
		if c.URI == "" {
			continue
		}
		if _, ok := seen[c.URI]; ok {
			continue
		}
		seen[c.URI] = struct{}{}
		dst = append(dst, c)
	}
	return dst
}
