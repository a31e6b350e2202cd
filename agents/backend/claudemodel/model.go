/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package claudemodel implements backend.Model for Anthropic Claude models,
// either through the Anthropic API or Claude on Vertex AI.
package claudemodel

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chainguard.dev/repopilot/agents/backend"
	"chainguard.dev/repopilot/agents/schema"
	"chainguard.dev/repopilot/agents/toolcall"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/vertex"
	"github.com/chainguard-dev/clog"
)

// Model is a Claude model.
type Model struct {
	client      anthropic.Client
	name        string
	maxTokens   int64
	temperature float64
}

var _ backend.Model = (*Model)(nil)

// Option configures a Model.
type Option func(*Model) error

// WithMaxTokens bounds the length of a reply.
func WithMaxTokens(tokens int64) Option {
	return func(m *Model) error {
		if tokens <= 0 {
			return fmt.Errorf("max tokens must be positive, got %d", tokens)
		}
		m.maxTokens = tokens
		return nil
	}
}

// WithTemperature sets the sampling temperature. Claude accepts 0.0 to 1.0.
func WithTemperature(temperature float64) Option {
	return func(m *Model) error {
		if temperature < 0.0 || temperature > 1.0 {
			return fmt.Errorf("temperature must be between 0.0 and 1.0, got %f", temperature)
		}
		m.temperature = temperature
		return nil
	}
}

// New returns a Model calling name through client.
func New(client anthropic.Client, name string, opts ...Option) (*Model, error) {
	if !strings.HasPrefix(strings.ToLower(name), "claude-") {
		return nil, fmt.Errorf("model %q does not appear to be a Claude model (expected claude-* format)", name)
	}
	m := &Model{
		client:      client,
		name:        name,
		maxTokens:   8192,
		temperature: 0.1,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// NewAPIKey authenticates against the Anthropic API.
func NewAPIKey(apiKey, name string, opts ...Option) (*Model, error) {
	// Retries are owned by the caller's retry controller.
	return New(anthropic.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0)), name, opts...)
}

// NewVertex uses Claude on Vertex AI with Google application default credentials.
func NewVertex(ctx context.Context, projectID, region, name string, opts ...Option) (*Model, error) {
	return New(anthropic.NewClient(vertex.WithGoogleAuth(ctx, region, projectID), option.WithMaxRetries(0)), name, opts...)
}

func (m *Model) Name() string                 { return m.name }
func (m *Model) SupportsGrounding() bool      { return false }
func (m *Model) SupportsResponseSchema() bool { return false }

// Generate implements backend.Model. Response schemas are not enforced by
// the API and are appended to the system prompt instead.
func (m *Model) Generate(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(m.name),
		MaxTokens:   m.maxTokens,
		Temperature: anthropic.Float(m.temperature),
	}

	system := req.System
	if req.ResponseSchema != nil {
		instr, err := schema.Instruction(req.ResponseSchema)
		if err != nil {
			return nil, err
		}
		system = strings.TrimSpace(system + "\n\n" + instr)
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	for _, def := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        def.Name,
				Description: anthropic.String(def.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: def.Properties(),
					Required:   def.Required(),
				},
			},
		})
	}

	msgs, err := toMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	params.Messages = msgs

	message, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}

	out := &backend.Response{
		Usage: backend.Usage{
			InputTokens:  message.Usage.InputTokens,
			OutputTokens: message.Usage.OutputTokens,
		},
	}
	var text strings.Builder
	for _, block := range message.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					return nil, fmt.Errorf("decoding input of tool %s: %w", block.Name, err)
				}
			}
			out.ToolCalls = append(out.ToolCalls, toolcall.Call{ID: block.ID, Name: block.Name, Args: args})
		}
	}
	out.Text = text.String()
	out.Message = backend.Message{
		Role:      backend.RoleModel,
		Text:      out.Text,
		ToolCalls: out.ToolCalls,
		Native:    message.ToParam(),
	}

	clog.FromContext(ctx).With("model", m.name).
		With("stop_reason", string(message.StopReason)).
		With("tool_calls", len(out.ToolCalls)).
		Debug("Claude response received")
	return out, nil
}

func toMessages(msgs []backend.Message) ([]anthropic.MessageParam, error) {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, msg := range msgs {
		if native, ok := msg.Native.(anthropic.MessageParam); ok {
			out = append(out, native)
			continue
		}

		var blocks []anthropic.ContentBlockParamUnion
		// Tool results must lead the user message that answers a tool_use turn.
		for _, res := range msg.ToolResults {
			payload, err := json.Marshal(res.Payload)
			if err != nil {
				return nil, fmt.Errorf("marshal result of %s: %w", res.Name, err)
			}
			blocks = append(blocks, anthropic.NewToolResultBlock(res.ID, string(payload), false))
		}
		if msg.Text != "" {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Text))
		}
		for _, a := range msg.Attachments {
			if strings.HasPrefix(a.MIMEType, "image/") {
				blocks = append(blocks, anthropic.NewImageBlockBase64(a.MIMEType, base64.StdEncoding.EncodeToString(a.Data)))
				continue
			}
			blocks = append(blocks, anthropic.NewTextBlock(a.Inline()))
		}
		for _, call := range msg.ToolCalls {
			blocks = append(blocks, anthropic.NewToolUseBlock(call.ID, call.Args, call.Name))
		}
		if len(blocks) == 0 {
			continue
		}

		role := anthropic.MessageParamRoleUser
		if msg.Role == backend.RoleModel {
			role = anthropic.MessageParamRoleAssistant
		}
		out = append(out, anthropic.MessageParam{Role: role, Content: blocks})
	}
	return out, nil
}

// classify marks 429 and 529 (overloaded) responses as rate limits.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusTooManyRequests, 529:
			return &backend.RateLimitError{Provider: "anthropic", Err: err}
		}
	}
	return err
}
