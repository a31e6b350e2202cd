/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package googlemodel

import (
	"fmt"
	"strings"
)

// Option configures a Model.
type Option func(*Model) error

// WithTemperature sets the sampling temperature. Gemini accepts 0.0 to 2.0.
func WithTemperature(temperature float32) Option {
	return func(m *Model) error {
		if temperature < 0.0 || temperature > 2.0 {
			return fmt.Errorf("temperature must be between 0.0 and 2.0, got %f", temperature)
		}
		m.temperature = &temperature
		return nil
	}
}

// WithMaxOutputTokens bounds the length of a reply.
func WithMaxOutputTokens(tokens int32) Option {
	return func(m *Model) error {
		if tokens <= 0 {
			return fmt.Errorf("max output tokens must be positive, got %d", tokens)
		}
		m.maxOutputTokens = tokens
		return nil
	}
}

func validModel(name string) error {
	if !strings.HasPrefix(strings.ToLower(name), "gemini-") {
		return fmt.Errorf("model %q does not appear to be a Gemini model (expected gemini-* format)", name)
	}
	return nil
}
