/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolcall

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

type recorder struct {
	bad []string
}

func (r *recorder) BadToolCall(id, name string, _ map[string]any, _ error) {
	r.bad = append(r.bad, id+":"+name)
}

func TestDefinitionJSONSchema(t *testing.T) {
	def := Definition{
		Name:        "commit_changes",
		Description: "Commit files",
		Parameters: []Parameter{{
			Name:     "files",
			Type:     "array",
			Required: true,
			Items: &Parameter{
				Type: "object",
				Properties: []Parameter{
					{Name: "path", Type: "string", Required: true},
					{Name: "content", Type: "string", Required: true},
				},
			},
		}, {
			Name:        "message",
			Type:        "string",
			Description: "Commit message",
			Required:    true,
		}, {
			Name: "note",
			Type: "string",
		}},
	}

	want := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"files": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"path":    map[string]any{"type": "string"},
						"content": map[string]any{"type": "string"},
					},
					"required": []string{"path", "content"},
				},
			},
			"message": map[string]any{"type": "string", "description": "Commit message"},
			"note":    map[string]any{"type": "string"},
		},
		"required": []string{"files", "message"},
	}
	if diff := cmp.Diff(want, def.JSONSchema()); diff != "" {
		t.Errorf("JSONSchema() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"files", "message"}, def.Required()); diff != "" {
		t.Errorf("Required() mismatch (-want +got):\n%s", diff)
	}
}

func TestParam(t *testing.T) {
	rec := &recorder{}
	call := Call{ID: "c1", Name: "read_file", Args: map[string]any{"file_path": "README.md"}}

	got, errResp := Param[string](call, rec, "file_path")
	if errResp != nil {
		t.Fatalf("Param() error payload = %v", errResp)
	}
	if got != "README.md" {
		t.Errorf("Param() = %q", got)
	}

	if _, errResp := Param[string](call, rec, "other"); errResp == nil {
		t.Fatal("Param() missing: expected error payload")
	} else if errResp["success"] != false {
		t.Errorf("payload success: got = %v", errResp["success"])
	}
	if diff := cmp.Diff([]string{"c1:read_file"}, rec.bad); diff != "" {
		t.Errorf("bad calls mismatch (-want +got):\n%s", diff)
	}
}

func TestOptionalParam(t *testing.T) {
	call := Call{Args: map[string]any{"max_depth": float64(2)}}
	if v, errResp := OptionalParam(call, "max_depth", 1); errResp != nil || v != 2 {
		t.Errorf("OptionalParam() = %d, %v", v, errResp)
	}
	if v, errResp := OptionalParam(call, "missing", 1); errResp != nil || v != 1 {
		t.Errorf("OptionalParam() default = %d, %v", v, errResp)
	}
}
