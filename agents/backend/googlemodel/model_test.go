/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package googlemodel

import (
	"context"
	"errors"
	"testing"

	"chainguard.dev/repopilot/agents/backend"
	"chainguard.dev/repopilot/agents/schema"
	"chainguard.dev/repopilot/agents/toolcall"
	"github.com/google/go-cmp/cmp"
	"google.golang.org/genai"
)

type fakeModels struct {
	contents []*genai.Content
	config   *genai.GenerateContentConfig
	resp     *genai.GenerateContentResponse
	err      error
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.contents = contents
	f.config = config
	return f.resp, f.err
}

func textResponse(parts ...*genai.Part) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: parts},
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{
			PromptTokenCount:     12,
			CandidatesTokenCount: 4,
		},
	}
}

func TestNewRejectsNonGemini(t *testing.T) {
	t.Parallel()
	if _, err := newModel(&fakeModels{}, "claude-sonnet-4"); err == nil {
		t.Error("newModel() = nil, wanted error")
	}
	if _, err := newModel(&fakeModels{}, "gemini-2.5-flash", WithTemperature(3)); err == nil {
		t.Error("newModel() with temperature 3 = nil, wanted error")
	}
}

func TestGenerateToolCalls(t *testing.T) {
	t.Parallel()
	fake := &fakeModels{resp: textResponse(
		&genai.Part{Text: "thinking", Thought: true},
		&genai.Part{FunctionCall: &genai.FunctionCall{ID: "c1", Name: "read_file", Args: map[string]any{"file_path": "go.mod"}}},
	)}
	m, err := newModel(fake, "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("newModel() = %v", err)
	}

	resp, err := m.Generate(context.Background(), &backend.Request{
		System: "You are helpful.",
		Messages: []backend.Message{{
			Role: backend.RoleUser,
			Text: "what module is this?",
			Attachments: []backend.Attachment{
				{Name: "notes.txt", MIMEType: "text/plain", Data: []byte("hi")},
				{Name: "logo.png", MIMEType: "image/png", Data: []byte{0x89, 0x50}},
			},
		}},
		Tools: []toolcall.Definition{{
			Name:        "read_file",
			Description: "Read a file",
			Parameters:  []toolcall.Parameter{{Name: "file_path", Type: "string", Required: true}},
		}},
		Grounding: true,
	})
	if err != nil {
		t.Fatalf("Generate() = %v", err)
	}

	want := []toolcall.Call{{ID: "c1", Name: "read_file", Args: map[string]any{"file_path": "go.mod"}}}
	if diff := cmp.Diff(want, resp.ToolCalls); diff != "" {
		t.Errorf("ToolCalls mismatch (-want +got):\n%s", diff)
	}
	if resp.Text != "" {
		t.Errorf("Text: got = %q, wanted thoughts dropped", resp.Text)
	}
	if resp.Usage != (backend.Usage{InputTokens: 12, OutputTokens: 4}) {
		t.Errorf("Usage: got = %+v", resp.Usage)
	}
	if _, ok := resp.Message.Native.(*genai.Content); !ok {
		t.Errorf("Message.Native: got = %T, wanted *genai.Content", resp.Message.Native)
	}

	// Repository tools take precedence over search grounding.
	if len(fake.config.Tools) != 1 || fake.config.Tools[0].GoogleSearch != nil {
		t.Errorf("Tools: got = %+v", fake.config.Tools)
	}
	decl := fake.config.Tools[0].FunctionDeclarations[0]
	if diff := cmp.Diff([]string{"file_path"}, decl.Parameters.Required); diff != "" {
		t.Errorf("Required mismatch (-want +got):\n%s", diff)
	}
	parts := fake.contents[0].Parts
	if len(parts) != 3 {
		t.Fatalf("parts: got = %d, wanted 3", len(parts))
	}
	if parts[2].InlineData == nil || parts[2].InlineData.MIMEType != "image/png" {
		t.Errorf("binary attachment not inlined: %+v", parts[2])
	}
}

func TestGenerateGroundingCitations(t *testing.T) {
	t.Parallel()
	resp := textResponse(genai.NewPartFromText("Go 1.25 is out."))
	resp.Candidates[0].GroundingMetadata = &genai.GroundingMetadata{
		GroundingChunks: []*genai.GroundingChunk{
			{Web: &genai.GroundingChunkWeb{Title: "Go blog", URI: "https://go.dev/blog"}},
			{Web: &genai.GroundingChunkWeb{Title: "dup", URI: "https://go.dev/blog"}},
			{},
			{Web: &genai.GroundingChunkWeb{Title: "Release notes", URI: "https://go.dev/doc/go1.25"}},
		},
	}
	fake := &fakeModels{resp: resp}
	m, err := newModel(fake, "gemini-2.5-pro")
	if err != nil {
		t.Fatalf("newModel() = %v", err)
	}

	got, err := m.Generate(context.Background(), &backend.Request{
		Messages:  []backend.Message{{Role: backend.RoleUser, Text: "latest go?"}},
		Grounding: true,
	})
	if err != nil {
		t.Fatalf("Generate() = %v", err)
	}
	want := []backend.Citation{
		{Title: "Go blog", URI: "https://go.dev/blog"},
		{Title: "Release notes", URI: "https://go.dev/doc/go1.25"},
	}
	if diff := cmp.Diff(want, got.Citations); diff != "" {
		t.Errorf("Citations mismatch (-want +got):\n%s", diff)
	}
	if got.Text != "Go 1.25 is out." {
		t.Errorf("Text: got = %q", got.Text)
	}
	if fake.config.Tools[0].GoogleSearch == nil {
		t.Error("GoogleSearch tool not configured")
	}
}

func TestGenerateResponseSchema(t *testing.T) {
	t.Parallel()
	type answer struct {
		Task    string `json:"task" jsonschema:"required"`
		Subject string `json:"subject" jsonschema:"required"`
	}
	fake := &fakeModels{resp: textResponse(genai.NewPartFromText(`{"task":"a","subject":"b"}`))}
	m, err := newModel(fake, "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("newModel() = %v", err)
	}
	if _, err := m.Generate(context.Background(), &backend.Request{
		Messages:       []backend.Message{{Role: backend.RoleUser, Text: "x"}},
		ResponseSchema: schema.ReflectType[answer](),
	}); err != nil {
		t.Fatalf("Generate() = %v", err)
	}
	if fake.config.ResponseMIMEType != "application/json" {
		t.Errorf("ResponseMIMEType: got = %q", fake.config.ResponseMIMEType)
	}
	if diff := cmp.Diff([]string{"task", "subject"}, fake.config.ResponseSchema.PropertyOrdering); diff != "" {
		t.Errorf("PropertyOrdering mismatch (-want +got):\n%s", diff)
	}
}

func TestReplaysNativeContent(t *testing.T) {
	t.Parallel()
	native := &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{ThoughtSignature: []byte("sig")}}}
	got := toContents([]backend.Message{
		{Role: backend.RoleModel, Text: "ignored", Native: native},
		{Role: backend.RoleUser, ToolResults: []toolcall.Result{{ID: "c1", Name: "get_readme", Payload: map[string]any{"content": "# x"}}}},
		{Role: backend.RoleUser},
	})
	if len(got) != 2 {
		t.Fatalf("contents: got = %d, wanted 2", len(got))
	}
	if got[0] != native {
		t.Error("native content was not replayed verbatim")
	}
	fr := got[1].Parts[0].FunctionResponse
	if fr == nil || fr.ID != "c1" || fr.Name != "get_readme" {
		t.Errorf("FunctionResponse: got = %+v", fr)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		want bool
	}{{
		name: "api error 429",
		err:  genai.APIError{Code: 429, Message: "slow down"},
		want: true,
	}, {
		name: "api error pointer resource exhausted",
		err:  &genai.APIError{Code: 400, Status: "RESOURCE_EXHAUSTED"},
		want: true,
	}, {
		name: "message quota",
		err:  errors.New("rpc error: quota exceeded for project"),
		want: true,
	}, {
		name: "permission denied",
		err:  genai.APIError{Code: 403, Status: "PERMISSION_DENIED"},
		want: false,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := backend.IsRateLimited(classify(tt.err))
			if got != tt.want {
				t.Errorf("IsRateLimited(classify(%v)) = %v, wanted %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNoCandidates(t *testing.T) {
	t.Parallel()
	m, err := newModel(&fakeModels{resp: &genai.GenerateContentResponse{}}, "gemini-2.5-flash")
	if err != nil {
		t.Fatalf("newModel() = %v", err)
	}
	if _, err := m.Generate(context.Background(), &backend.Request{}); err == nil {
		t.Error("Generate() = nil, wanted error")
	}
}
