/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package assistant

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFactorsSet(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		value   string
		want    any
		wantErr bool
	}{{
		name:  "tone",
		value: "formal",
		want:  "formal",
	}, {
		name:    "tone",
		value:   "sarcastic",
		wantErr: true,
	}, {
		name:  "detail",
		value: "5",
		want:  5,
	}, {
		name:    "detail",
		value:   "9",
		wantErr: true,
	}, {
		name:    "detail",
		value:   "lots",
		wantErr: true,
	}, {
		name:  "grounding",
		value: "true",
		want:  true,
	}, {
		name:  "model",
		value: "claude-sonnet-4-5",
		want:  "claude-sonnet-4-5",
	}, {
		name:    "model",
		value:   " ",
		wantErr: true,
	}, {
		name:    "colour",
		value:   "blue",
		wantErr: true,
	}}

	for _, tt := range tests {
		t.Run(tt.name+"="+tt.value, func(t *testing.T) {
			t.Parallel()
			base := DefaultFactors()
			got, err := base.Set(tt.name, tt.value)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, f := range got {
				if f.Name == tt.name {
					assert.Equal(t, tt.want, f.Value)
				}
			}
			if diff := cmp.Diff(DefaultFactors(), base); diff != "" {
				t.Errorf("Set modified its receiver (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFactorAccessors(t *testing.T) {
	t.Parallel()
	fs := DefaultFactors()
	assert.False(t, fs.Grounding())
	assert.Equal(t, DefaultModel, fs.Model())
	if diff := cmp.Diff(map[string]any{"tone": "neutral", "detail": 3, "audience": "intermediate"}, fs.Style()); diff != "" {
		t.Errorf("Style() mismatch (-want +got):\n%s", diff)
	}

	fs, err := fs.Set(FactorGrounding, "true")
	require.NoError(t, err)
	assert.True(t, fs.Grounding())
}

func TestLoadFactors(t *testing.T) {
	t.Parallel()
	fs, err := LoadFactors(strings.NewReader(`
- name: tone
  kind: choice
  value: friendly
  options: [neutral, friendly]
- name: detail
  kind: slider
  value: 2
  min: 1
  max: 4
- name: grounding
  kind: toggle
  value: true
`))
	require.NoError(t, err)
	assert.True(t, fs.Grounding())
	assert.Equal(t, DefaultModel, fs.Model())
	if diff := cmp.Diff(map[string]any{"tone": "friendly", "detail": 2}, fs.Style()); diff != "" {
		t.Errorf("Style() mismatch (-want +got):\n%s", diff)
	}

	for _, bad := range []string{
		"- name: tone\n  kind: choice\n  value: loud\n  options: [quiet]\n",
		"- name: a\n  kind: text\n  value: x\n- name: a\n  kind: text\n  value: y\n",
		"- kind: text\n  value: x\n",
		"- name: a\n  kind: dial\n  value: 1\n",
	} {
		if _, err := LoadFactors(strings.NewReader(bad)); err == nil {
			t.Errorf("LoadFactors(%q) succeeded, wanted error", bad)
		}
	}
}
