/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package googlemodel implements backend.Model for Gemini models using the
// google.golang.org/genai SDK, on either Vertex AI or the Gemini API.
package googlemodel

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chainguard.dev/repopilot/agents/backend"
	"chainguard.dev/repopilot/agents/toolcall"
	"github.com/chainguard-dev/clog"
	"google.golang.org/genai"
)

// generator is the subset of *genai.Models used here.
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Model is a Gemini model.
type Model struct {
	models          generator
	name            string
	temperature     *float32
	maxOutputTokens int32
}

var _ backend.Model = (*Model)(nil)

// New returns a Model calling name through client.
func New(client *genai.Client, name string, opts ...Option) (*Model, error) {
	return newModel(client.Models, name, opts...)
}

// NewVertex creates a Vertex AI client for projectID and region.
func NewVertex(ctx context.Context, projectID, region, name string, opts ...Option) (*Model, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: region,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Google AI client: %w", err)
	}
	return New(client, name, opts...)
}

// NewAPIKey creates a Gemini API client authenticated with apiKey.
func NewAPIKey(ctx context.Context, apiKey, name string, opts ...Option) (*Model, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating Google AI client: %w", err)
	}
	return New(client, name, opts...)
}

func newModel(models generator, name string, opts ...Option) (*Model, error) {
	if err := validModel(name); err != nil {
		return nil, err
	}
	m := &Model{
		models:          models,
		name:            name,
		maxOutputTokens: 8192,
	}
	for _, opt := range opts {
		if err := opt(m); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Model) Name() string                 { return m.name }
func (m *Model) SupportsGrounding() bool      { return true }
func (m *Model) SupportsResponseSchema() bool { return true }

// Generate implements backend.Model.
func (m *Model) Generate(ctx context.Context, req *backend.Request) (*backend.Response, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     m.temperature,
		MaxOutputTokens: m.maxOutputTokens,
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	switch {
	case len(req.Tools) > 0:
		decls := make([]*genai.FunctionDeclaration, 0, len(req.Tools))
		for _, def := range req.Tools {
			decls = append(decls, functionDeclaration(def))
		}
		config.Tools = []*genai.Tool{{FunctionDeclarations: decls}}
	case req.Grounding:
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}

	// Gemini rejects a response schema combined with tools.
	if req.ResponseSchema != nil && len(config.Tools) == 0 {
		config.ResponseMIMEType = "application/json"
		config.ResponseSchema = schemaToGenai(req.ResponseSchema)
	}

	resp, err := m.models.GenerateContent(ctx, m.name, toContents(req.Messages), config)
	if err != nil {
		return nil, classify(err)
	}
	out, err := fromResponse(resp)
	if err != nil {
		return nil, err
	}
	clog.FromContext(ctx).With("model", m.name).
		With("tool_calls", len(out.ToolCalls)).
		With("citations", len(out.Citations)).
		Debug("Gemini response received")
	return out, nil
}

func functionDeclaration(def toolcall.Definition) *genai.FunctionDeclaration {
	props := make(map[string]*genai.Schema, len(def.Parameters))
	var required []string
	for _, p := range def.Parameters {
		props[p.Name] = parameterToGenai(p)
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return &genai.FunctionDeclaration{
		Name:        def.Name,
		Description: def.Description,
		Parameters: &genai.Schema{
			Type:       genai.TypeObject,
			Properties: props,
			Required:   required,
		},
	}
}

func parameterToGenai(p toolcall.Parameter) *genai.Schema {
	s := &genai.Schema{
		Type:        mapSchemaType(p.Type),
		Description: p.Description,
	}
	if p.Items != nil {
		s.Items = parameterToGenai(*p.Items)
	}
	if len(p.Properties) > 0 {
		s.Properties = make(map[string]*genai.Schema, len(p.Properties))
		for _, child := range p.Properties {
			s.Properties[child.Name] = parameterToGenai(child)
			if child.Required {
				s.Required = append(s.Required, child.Name)
			}
		}
	}
	return s
}

func toContents(msgs []backend.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, msg := range msgs {
		if native, ok := msg.Native.(*genai.Content); ok && native != nil {
			out = append(out, native)
			continue
		}

		var parts []*genai.Part
		if msg.Text != "" {
			parts = append(parts, genai.NewPartFromText(msg.Text))
		}
		for _, a := range msg.Attachments {
			if a.IsText() {
				parts = append(parts, genai.NewPartFromText(a.Inline()))
			} else {
				parts = append(parts, genai.NewPartFromBytes(a.Data, a.MIMEType))
			}
		}
		for _, call := range msg.ToolCalls {
			parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
				ID:   call.ID,
				Name: call.Name,
				Args: call.Args,
			}})
		}
		for _, res := range msg.ToolResults {
			parts = append(parts, &genai.Part{FunctionResponse: &genai.FunctionResponse{
				ID:       res.ID,
				Name:     res.Name,
				Response: res.Payload,
			}})
		}
		if len(parts) == 0 {
			continue
		}

		role := genai.RoleUser
		if msg.Role == backend.RoleModel {
			role = genai.RoleModel
		}
		out = append(out, &genai.Content{Role: role, Parts: parts})
	}
	return out
}

func fromResponse(resp *genai.GenerateContentResponse) (*backend.Response, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			return nil, fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)
		}
		return nil, errors.New("no candidates in response")
	}
	cand := resp.Candidates[0]

	out := &backend.Response{}
	var text strings.Builder
	for _, part := range cand.Content.Parts {
		switch {
		case part == nil || part.Thought:
		case part.FunctionCall != nil:
			out.ToolCalls = append(out.ToolCalls, toolcall.Call{
				ID:   part.FunctionCall.ID,
				Name: part.FunctionCall.Name,
				Args: part.FunctionCall.Args,
			})
		case part.Text != "":
			text.WriteString(part.Text)
		}
	}
	out.Text = text.String()

	if gm := cand.GroundingMetadata; gm != nil {
		for _, chunk := range gm.GroundingChunks {
			if chunk == nil || chunk.Web == nil {
				continue
			}
			out.Citations = backend.AppendCitations(out.Citations, backend.Citation{
				Title: chunk.Web.Title,
				URI:   chunk.Web.URI,
			})
		}
	}

	if u := resp.UsageMetadata; u != nil {
		out.Usage = backend.Usage{
			InputTokens:  int64(u.PromptTokenCount),
			OutputTokens: int64(u.CandidatesTokenCount),
		}
	}

	content := cand.Content
	if content.Role == "" {
		content.Role = genai.RoleModel
	}
	out.Message = backend.Message{
		Role:      backend.RoleModel,
		Text:      out.Text,
		ToolCalls: out.ToolCalls,
		Native:    content,
	}
	return out, nil
}

// classify converts quota and "too many requests" failures into
// *backend.RateLimitError and passes everything else through.
func classify(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && isRateLimit(apiErr) {
		return &backend.RateLimitError{Provider: "google", Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && isRateLimit(*apiErrPtr) {
		return &backend.RateLimitError{Provider: "google", Err: err}
	}
	msg := err.Error()
	if strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(msg, "Resource exhausted") ||
		strings.Contains(msg, "quota exceeded") ||
		strings.Contains(msg, "Error 429") {
		return &backend.RateLimitError{Provider: "google", Err: err}
	}
	return err
}

func isRateLimit(e genai.APIError) bool {
	return e.Code == http.StatusTooManyRequests || e.Status == "RESOURCE_EXHAUSTED"
}
