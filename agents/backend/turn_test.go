/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package backend_test

import (
	"testing"

	"chainguard.dev/repopilot/agents/backend"
	"github.com/google/go-cmp/cmp"
)

func TestRecent(t *testing.T) {
	t.Parallel()
	history := []backend.Turn{{ID: "1"}, {ID: "2"}, {ID: "3"}, {ID: "4"}}

	tests := []struct {
		n    int
		want []string
	}{
		{n: 0, want: nil},
		{n: 3, want: []string{"2", "3", "4"}},
		{n: 10, want: []string{"1", "2", "3", "4"}},
	}
	for _, tt := range tests {
		var got []string
		for _, turn := range backend.Recent(history, tt.n) {
			got = append(got, turn.ID)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Recent(%d) mismatch (-want +got):\n%s", tt.n, diff)
		}
	}
}

func TestHistoryMessages(t *testing.T) {
	t.Parallel()
	got := backend.HistoryMessages([]backend.Turn{{
		UserMessage:   "what is this?",
		ModelResponse: "A diagram.",
		Attachments:   []backend.Attachment{{Name: "arch.png", MIMEType: "image/png"}},
	}})
	want := []backend.Message{
		{Role: backend.RoleUser, Text: "what is this?\n[attached arch.png]"},
		{Role: backend.RoleModel, Text: "A diagram."},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("HistoryMessages() mismatch (-want +got):\n%s", diff)
	}
}
