/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package assistant

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// FactorKind is how a factor's value is chosen.
type FactorKind string

const (
	KindToggle FactorKind = "toggle"
	KindSlider FactorKind = "slider"
	KindChoice FactorKind = "choice"
	KindText   FactorKind = "text"
)

// Names of factors with a meaning beyond style.
const (
	FactorGrounding = "grounding"
	FactorModel     = "model"
)

// DefaultModel answers when no model factor is set.
const DefaultModel = "gemini-2.5-flash"

// Factor is one named setting that shapes the model's behavior.
type Factor struct {
	Name    string     `yaml:"name"`
	Kind    FactorKind `yaml:"kind"`
	Value   any        `yaml:"value"`
	Options []string   `yaml:"options,omitempty"`
	Min     int        `yaml:"min,omitempty"`
	Max     int        `yaml:"max,omitempty"`
}

// Factors is an ordered factor configuration.
type Factors []Factor

// DefaultFactors returns the built-in configuration.
func DefaultFactors() Factors {
	return Factors{
		{Name: "tone", Kind: KindChoice, Value: "neutral", Options: []string{"neutral", "friendly", "formal", "concise"}},
		{Name: "detail", Kind: KindSlider, Value: 3, Min: 1, Max: 5},
		{Name: "audience", Kind: KindChoice, Value: "intermediate", Options: []string{"beginner", "intermediate", "expert"}},
		{Name: FactorGrounding, Kind: KindToggle, Value: false},
		{Name: FactorModel, Kind: KindText, Value: DefaultModel},
	}
}

// LoadFactors reads a YAML list of factors and validates every value.
func LoadFactors(r io.Reader) (Factors, error) {
	var fs Factors
	if err := yaml.NewDecoder(r).Decode(&fs); err != nil {
		return nil, fmt.Errorf("decoding factors: %w", err)
	}
	seen := make(map[string]bool, len(fs))
	for i, f := range fs {
		if f.Name == "" {
			return nil, fmt.Errorf("factor %d has no name", i)
		}
		if seen[f.Name] {
			return nil, fmt.Errorf("factor %q is defined twice", f.Name)
		}
		seen[f.Name] = true
		v, err := f.parse(fmt.Sprint(f.Value))
		if err != nil {
			return nil, err
		}
		fs[i].Value = v
	}
	return fs, nil
}

func (f Factor) parse(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch f.Kind {
	case KindToggle:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("factor %s: %q is not on or off", f.Name, raw)
		}
		return b, nil
	case KindSlider:
		n, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("factor %s: %q is not a number", f.Name, raw)
		}
		if n < f.Min || n > f.Max {
			return nil, fmt.Errorf("factor %s: %d is outside %d..%d", f.Name, n, f.Min, f.Max)
		}
		return n, nil
	case KindChoice:
		if !slices.Contains(f.Options, raw) {
			return nil, fmt.Errorf("factor %s: %q is not one of %s", f.Name, raw, strings.Join(f.Options, ", "))
		}
		return raw, nil
	case KindText:
		if raw == "" {
			return nil, fmt.Errorf("factor %s: value is empty", f.Name)
		}
		return raw, nil
	}
	return nil, fmt.Errorf("factor %s: unknown kind %q", f.Name, f.Kind)
}

// Set returns a copy of fs with the named factor set from its string form.
func (fs Factors) Set(name, raw string) (Factors, error) {
	i := slices.IndexFunc(fs, func(f Factor) bool { return f.Name == name })
	if i < 0 {
		return nil, fmt.Errorf("unknown factor %q", name)
	}
	v, err := fs[i].parse(raw)
	if err != nil {
		return nil, err
	}
	out := slices.Clone(fs)
	out[i].Value = v
	return out, nil
}

// Grounding reports whether web search is switched on.
func (fs Factors) Grounding() bool {
	for _, f := range fs {
		if f.Name == FactorGrounding {
			b, _ := f.Value.(bool)
			return b
		}
	}
	return false
}

// Model is the chosen model variant.
func (fs Factors) Model() string {
	for _, f := range fs {
		if f.Name == FactorModel {
			if s, _ := f.Value.(string); s != "" {
				return s
			}
		}
	}
	return DefaultModel
}

// Style returns the factors that only shape tone and content.
func (fs Factors) Style() map[string]any {
	style := make(map[string]any, len(fs))
	for _, f := range fs {
		if f.Name == FactorGrounding || f.Name == FactorModel {
			continue
		}
		style[f.Name] = f.Value
	}
	return style
}
