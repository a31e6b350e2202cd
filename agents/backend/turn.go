/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package backend

import "time"

// Turn is one completed exchange of a conversation.
type Turn struct {
	ID            string       `json:"id"`
	UserMessage   string       `json:"user_message"`
	ModelResponse string       `json:"model_response"`
	Timestamp     time.Time    `json:"timestamp"`
	Attachments   []Attachment `json:"attachments,omitempty"`
	Citations     []Citation   `json:"citations,omitempty"`
}

// Recent returns the last n turns of history.
func Recent(history []Turn, n int) []Turn {
	if n <= 0 {
		return nil
	}
	if len(history) <= n {
		return history
	}
	return history[len(history)-n:]
}

// HistoryMessages replays turns as alternating user and model messages.
// Attachments of past turns are summarized rather than resent.
func HistoryMessages(turns []Turn) []Message {
	msgs := make([]Message, 0, 2*len(turns))
	for _, t := range turns {
		text := t.UserMessage
		for _, a := range t.Attachments {
			text += "\n[attached " + a.Name + "]"
		}
		msgs = append(msgs,
			Message{Role: RoleUser, Text: text},
			Message{Role: RoleModel, Text: t.ModelResponse},
		)
	}
	return msgs
}
