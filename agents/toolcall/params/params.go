/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package params

import (
	"fmt"
	"maps"
)

// Extract returns the required argument name converted to T.
func Extract[T any](args map[string]any, name string) (T, error) {
	var zero T
	value, exists := args[name]
	if !exists || value == nil {
		return zero, fmt.Errorf("%s parameter is required", name)
	}
	if v, ok := convert[T](value); ok {
		return v, nil
	}
	return zero, fmt.Errorf("%s parameter must be of type %T, got %T", name, zero, value)
}

// ExtractOptional returns the argument name converted to T, or defaultValue
// when it is absent.
func ExtractOptional[T any](args map[string]any, name string, defaultValue T) (T, error) {
	value, exists := args[name]
	if !exists || value == nil {
		return defaultValue, nil
	}
	if v, ok := convert[T](value); ok {
		return v, nil
	}
	var zero T
	return zero, fmt.Errorf("%s parameter must be of type %T, got %T", name, zero, value)
}

// ExtractObjects returns a required array-of-objects argument.
func ExtractObjects(args map[string]any, name string) ([]map[string]any, error) {
	raw, err := Extract[[]any](args, name)
	if err != nil {
		return nil, err
	}
	out := make([]map[string]any, 0, len(raw))
	for i, item := range raw {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s[%d] must be an object, got %T", name, i, item)
		}
		out = append(out, obj)
	}
	return out, nil
}

func convert[T any](value any) (T, bool) {
	if v, ok := value.(T); ok {
		return v, true
	}
	return convertNumeric[T](value)
}

// convertNumeric handles JSON numbers, which decode as float64.
func convertNumeric[T any](value any) (T, bool) {
	var zero T
	f, ok := value.(float64)
	if !ok {
		return zero, false
	}
	switch any(zero).(type) {
	case int:
		return any(int(f)).(T), true
	case int32:
		return any(int32(f)).(T), true
	case int64:
		return any(int64(f)).(T), true
	}
	return zero, false
}

// Error builds a failed tool result payload.
func Error(format string, args ...any) map[string]any {
	return map[string]any{
		"success": false,
		"error":   fmt.Sprintf(format, args...),
	}
}

// ErrorWithContext builds a failed tool result payload carrying extra fields.
func ErrorWithContext(err error, context map[string]any) map[string]any {
	response := map[string]any{
		"success": false,
		"error":   err.Error(),
	}
	maps.Copy(response, context)
	return response
}
