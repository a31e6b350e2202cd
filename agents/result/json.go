/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package result

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrEmpty is returned when a response contains no JSON at all.
var ErrEmpty = errors.New("response contains no JSON")

// ExtractJSON returns the JSON payload in responseText. A ```json fenced
// block wins, then a bare ``` block, then the first balanced {...} object.
// Otherwise the trimmed text is returned unchanged.
func ExtractJSON(responseText string) string {
	if body, ok := fenced(responseText, "```json"); ok {
		return body
	}
	trimmed := strings.TrimSpace(responseText)
	if strings.HasPrefix(trimmed, "```") && strings.HasSuffix(trimmed, "```") && len(trimmed) >= 6 {
		inner := strings.TrimSuffix(strings.TrimPrefix(trimmed, "```"), "```")
		return strings.TrimSpace(inner)
	}
	if obj, ok := firstObject(trimmed); ok {
		return obj
	}
	return trimmed
}

// fenced returns the content of the first block opened by a line equal to marker.
func fenced(text, marker string) (string, bool) {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		if strings.TrimSpace(line) != marker {
			continue
		}
		var body []string
		for _, l := range lines[i+1:] {
			if strings.TrimSpace(l) == "```" {
				break
			}
			body = append(body, l)
		}
		return strings.TrimSpace(strings.Join(body, "\n")), true
	}
	return "", false
}

// firstObject finds the first brace-balanced object, honoring JSON strings.
func firstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString, escaped := false, false
	for i := start; i < len(text); i++ {
		c := text[i]
		switch {
		case escaped:
			escaped = false
		case inString && c == '\\':
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}

// Extract decodes the JSON payload of responseText into T.
func Extract[T any](responseText string) (T, error) {
	var out T
	payload := ExtractJSON(responseText)
	if payload == "" {
		return out, ErrEmpty
	}
	if err := json.Unmarshal([]byte(payload), &out); err != nil {
		return out, err
	}
	return out, nil
}
