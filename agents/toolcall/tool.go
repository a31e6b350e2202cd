/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package toolcall

import (
	"fmt"

	"chainguard.dev/repopilot/agents/toolcall/params"
)

// Call is a provider-independent tool invocation requested by a model.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Result answers exactly one Call and carries its ID.
type Result struct {
	ID      string
	Name    string
	Payload map[string]any
}

// Definition describes a tool's name, purpose and parameters.
type Definition struct {
	Name        string
	Description string
	Parameters  []Parameter
}

// Parameter describes one argument. Items describes array elements and
// Properties describes object fields.
type Parameter struct {
	Name        string
	Type        string // "string", "integer", "boolean", "number", "array", "object"
	Description string
	Required    bool
	Items       *Parameter
	Properties  []Parameter
}

// Schema renders the parameter as a JSON Schema fragment.
func (p Parameter) Schema() map[string]any {
	s := map[string]any{"type": p.Type}
	if p.Description != "" {
		s["description"] = p.Description
	}
	if p.Items != nil {
		s["items"] = p.Items.Schema()
	}
	if len(p.Properties) > 0 {
		props, required := objectSchema(p.Properties)
		s["properties"] = props
		if len(required) > 0 {
			s["required"] = required
		}
	}
	return s
}

// Properties returns the JSON Schema properties of the tool's parameters.
func (d Definition) Properties() map[string]any {
	props, _ := objectSchema(d.Parameters)
	return props
}

// Required lists the names of required parameters in declaration order.
func (d Definition) Required() []string {
	_, required := objectSchema(d.Parameters)
	return required
}

// JSONSchema renders the parameters as a JSON Schema object.
func (d Definition) JSONSchema() map[string]any {
	props, required := objectSchema(d.Parameters)
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func objectSchema(ps []Parameter) (map[string]any, []string) {
	props := make(map[string]any, len(ps))
	var required []string
	for _, p := range ps {
		props[p.Name] = p.Schema()
		if p.Required {
			required = append(required, p.Name)
		}
	}
	return props, required
}

// BadCallRecorder records calls that could not be handled.
type BadCallRecorder interface {
	BadToolCall(id, name string, params map[string]any, err error)
}

// Param extracts a required argument. On failure the bad call is recorded
// and an error payload for the model is returned.
func Param[T any](call Call, rec BadCallRecorder, name string) (T, map[string]any) {
	v, err := params.Extract[T](call.Args, name)
	if err != nil {
		rec.BadToolCall(call.ID, call.Name, call.Args, fmt.Errorf("missing %s parameter", name))
		return v, params.Error("%s", err)
	}
	return v, nil
}

// OptionalParam extracts an optional argument.
func OptionalParam[T any](call Call, name string, defaultValue T) (T, map[string]any) {
	v, err := params.ExtractOptional(call.Args, name, defaultValue)
	if err != nil {
		return v, params.Error("%s", err)
	}
	return v, nil
}
