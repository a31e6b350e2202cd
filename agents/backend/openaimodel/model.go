/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package openaimodel implements backend.Model for OpenAI chat completion
// models.
package openaimodel

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
	"github.com/chainguard-dev/clog"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"
)

// Model is an OpenAI chat model.
type Model struct {
	client    openai.Client
	name      string
	maxTokens int64
}

var _ backend.Model = (*Model)(nil)

// New returns a Model calling name through client.
func New(client openai.Client, name string) (*Model, error) {
	if !IsModel(name) {
		return nil, fmt.Errorf("model %q does not appear to be an OpenAI model (expected gpt-* or o* format)", name)
	}
	return &Model{client: client, name: name, maxTokens: 8192}, nil
}

// NewAPIKey authenticates with apiKey.
func NewAPIKey(apiKey, name string) (*Model, error) {
	return New(openai.NewClient(option.WithAPIKey(apiKey), option.WithMaxRetries(0)), name)
}

// IsModel reports whether name looks like an OpenAI model id.
func IsModel(name string) bool {
	name = strings.ToLower(name)
	if strings.HasPrefix(name, "gpt-") {
		return true
	}
	return len(name) > 1 && name[0] == 'o' && name[1] >= '1' && name[1] <= '9'
}

func (m *Model) Name() string                 { return m.name }
func (m *Model) SupportsGrounding() bool      { return false }
func (m *Model) SupportsResponseSchema() bool { return true }

// Generate implements backend.Model.
func (m *Model) Generate(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	params := openai.ChatCompletionNewParams{
		Model:               shared.ChatModel(m.name),
		MaxCompletionTokens: openai.Int(m.maxTokens),
	}
	if req.System != "" {
		params.Messages = append(params.Messages, openai.SystemMessage(req.System))
	}
	msgs, err := toMessages(req.Messages)
	if err != nil {
		return nil, err
	}
	params.Messages = append(params.Messages, msgs...)

	for _, def := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: shared.FunctionDefinitionParam{
				Name:        def.Name,
				Description: openai.String(def.Description),
				Parameters:  shared.FunctionParameters(def.JSONSchema()),
			},
		})
	}

	if req.ResponseSchema != nil && len(req.Tools) == 0 {
		s, err := schema.ToMap(req.ResponseSchema)
		if err != nil {
			return nil, err
		}
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &shared.ResponseFormatJSONSchemaParam{
				JSONSchema: shared.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:   "response",
					Schema: s,
				},
			},
		}
	}

	completion, err := m.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, classify(err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("no choices in response")
	}
	msg := completion.Choices[0].Message

	out := &backend.Response{
		Text: msg.Content,
		Usage: backend.Usage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		},
	}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("decoding arguments of tool %s: %w", tc.Function.Name, err)
			}
		}
		out.ToolCalls = append(out.ToolCalls, toolcall.Call{ID: tc.ID, Name: tc.Function.Name, Args: args})
	}
	out.Message = backend.Message{
		Role:      backend.RoleModel,
		Text:      out.Text,
		ToolCalls: out.ToolCalls,
		Native:    msg.ToParam(),
	}

	clog.FromContext(ctx).With("model", m.name).
		With("finish_reason", completion.Choices[0].FinishReason).
		With("tool_calls", len(out.ToolCalls)).
		Debug("OpenAI response received")
	return out, nil
}

func toMessages(msgs []backend.Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	var out []openai.ChatCompletionMessageParamUnion
	for _, msg := range msgs {
		if native, ok := msg.Native.(openai.ChatCompletionMessageParamUnion); ok {
			out = append(out, native)
			continue
		}

		if msg.Role == backend.RoleModel {
			asst := openai.ChatCompletionAssistantMessageParam{}
			if msg.Text != "" {
				asst.Content.OfString = openai.String(msg.Text)
			}
			for _, call := range msg.ToolCalls {
				args, err := json.Marshal(call.Args)
				if err != nil {
					return nil, fmt.Errorf("marshal arguments of %s: %w", call.Name, err)
				}
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallParam{
					ID: call.ID,
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      call.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
			continue
		}

		// Each tool result is its own message keyed by call id.
		for _, res := range msg.ToolResults {
			payload, err := json.Marshal(res.Payload)
			if err != nil {
				return nil, fmt.Errorf("marshal result of %s: %w", res.Name, err)
			}
			out = append(out, openai.ToolMessage(string(payload), res.ID))
		}

		var parts []openai.ChatCompletionContentPartUnionParam
		if msg.Text != "" {
			parts = append(parts, openai.TextContentPart(msg.Text))
		}
		for _, a := range msg.Attachments {
			if strings.HasPrefix(a.MIMEType, "image/") {
				parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{
					URL: "data:" + a.MIMEType + ";base64," + base64.StdEncoding.EncodeToString(a.Data),
				}))
				continue
			}
			parts = append(parts, openai.TextContentPart(a.Inline()))
		}
		if len(parts) > 0 {
			out = append(out, openai.UserMessage(parts))
		}
	}
	return out, nil
}

func classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusTooManyRequests {
		return &backend.RateLimitError{Provider: "openai", Err: err}
	}
	return err
}
