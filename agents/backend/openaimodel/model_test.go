/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package openaimodel

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"chainguard.dev/repopilot/agents/backend"
	"chainguard.dev/repopilot/agents/toolcall"
	"github.com/google/go-cmp/cmp"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

func newTestModel(t *testing.T, handler http.HandlerFunc) *Model {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	m, err := New(openai.NewClient(
		option.WithBaseURL(srv.URL),
		option.WithAPIKey("test"),
		option.WithMaxRetries(0),
	), "gpt-4.1")
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return m
}

func TestIsModel(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]bool{
		"gpt-4.1":          true,
		"o3-mini":          true,
		"o4":               true,
		"opus":             false,
		"gemini-2.5-flash": false,
		"o":                false,
	} {
		if got := IsModel(name); got != want {
			t.Errorf("IsModel(%q) = %v, wanted %v", name, got, want)
		}
	}
}

func TestGenerateToolCalls(t *testing.T) {
	t.Parallel()
	var body map[string]any
	m := newTestModel(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(data, &body); err != nil {
			t.Errorf("request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{
			"id": "cmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4.1",
			"choices": [{
				"index": 0, "finish_reason": "tool_calls",
				"message": {
					"role": "assistant", "content": null,
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "list_directory", "arguments": "{\"directory_path\":\"src\"}"}}]
				}
			}],
			"usage": {"prompt_tokens": 7, "completion_tokens": 3, "total_tokens": 10}
		}`)
	})

	resp, err := m.Generate(context.Background(), &backend.Request{
		System: "Be brief.",
		Messages: []backend.Message{
			{Role: backend.RoleUser, Text: "what's in src?"},
			{Role: backend.RoleModel, ToolCalls: []toolcall.Call{{ID: "call_0", Name: "get_readme", Args: map[string]any{}}}},
			{Role: backend.RoleUser, ToolResults: []toolcall.Result{{ID: "call_0", Name: "get_readme", Payload: map[string]any{"success": true}}}},
		},
		Tools: []toolcall.Definition{{
			Name:       "list_directory",
			Parameters: []toolcall.Parameter{{Name: "directory_path", Type: "string", Required: true}},
		}},
	})
	if err != nil {
		t.Fatalf("Generate() = %v", err)
	}

	want := []toolcall.Call{{ID: "call_1", Name: "list_directory", Args: map[string]any{"directory_path": "src"}}}
	if diff := cmp.Diff(want, resp.ToolCalls); diff != "" {
		t.Errorf("ToolCalls mismatch (-want +got):\n%s", diff)
	}
	if resp.Usage != (backend.Usage{InputTokens: 7, OutputTokens: 3}) {
		t.Errorf("Usage: got = %+v", resp.Usage)
	}

	msgs, _ := body["messages"].([]any)
	var roles []string
	for _, raw := range msgs {
		roles = append(roles, raw.(map[string]any)["role"].(string))
	}
	if diff := cmp.Diff([]string{"system", "user", "assistant", "tool"}, roles); diff != "" {
		t.Errorf("roles mismatch (-want +got):\n%s", diff)
	}
	if id := msgs[3].(map[string]any)["tool_call_id"]; id != "call_0" {
		t.Errorf("tool_call_id: got = %v", id)
	}
}

func TestGenerateRateLimited(t *testing.T) {
	t.Parallel()
	m := newTestModel(t, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":{"message":"quota","type":"insufficient_quota","code":"insufficient_quota","param":null}}`)
	})
	_, err := m.Generate(context.Background(), &backend.Request{
		Messages: []backend.Message{{Role: backend.RoleUser, Text: "hi"}},
	})
	if !backend.IsRateLimited(err) {
		t.Errorf("IsRateLimited(%v) = false, wanted true", err)
	}
}
