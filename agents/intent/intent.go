/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package intent turns a user's message into a structured Intent with a
// single schema-constrained model call.
package intent

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/repopilot/agents/backend"
	"chainguard.dev/repopilot/agents/executor/retry"
	"chainguard.dev/repopilot/agents/metrics"
	"chainguard.dev/repopilot/agents/result"
	"chainguard.dev/repopilot/agents/schema"
	"github.com/chainguard-dev/clog"
)

// Intent is what the user asked for in one turn.
type Intent struct {
	Task     string `json:"task" xml:"task" jsonschema:"required" jsonschema_description:"The action the user wants, such as explain, fix, review, write, or summarize."`
	Subject  string `json:"subject" xml:"subject" jsonschema:"required" jsonschema_description:"What the action applies to, such as a file, a feature, or a concept."`
	Details  string `json:"details,omitempty" xml:"details,omitempty" jsonschema_description:"Constraints or specifics the user gave."`
	Language string `json:"language,omitempty" xml:"language,omitempty" jsonschema_description:"Programming or natural language the request concerns, if any."`
}

// ErrInterpretation matches every *InterpretationError.
var ErrInterpretation = errors.New("could not interpret the request")

// ErrEmptyInput is returned when there is neither text nor an attachment.
var ErrEmptyInput = errors.New("utterance and attachments are both empty")

// InterpretationError reports a failed or non-conforming model call.
type InterpretationError struct {
	Err error
}

func (e *InterpretationError) Error() string {
	return fmt.Sprintf("%v: %v", ErrInterpretation, e.Err)
}

func (e *InterpretationError) Unwrap() error { return e.Err }

func (e *InterpretationError) Is(target error) bool { return target == ErrInterpretation }

const systemPrompt = `You extract the intent behind a developer's message to a coding assistant.
Identify the task the user wants performed and its subject. Record any constraints as details and the programming language if one is implied.
Use the earlier conversation to resolve references such as "it" or "that file".
Do not answer the request.`

var intentSchema = schema.ReflectType[Intent]()

// Interpreter extracts intents.
type Interpreter struct {
	model   backend.Model
	retry   retry.RetryConfig
	metrics *metrics.GenAI
}

// Option configures an Interpreter.
type Option func(*Interpreter)

// WithRetry overrides the model-call retry policy.
func WithRetry(cfg retry.RetryConfig) Option {
	return func(i *Interpreter) { i.retry = cfg }
}

// WithMetrics records token usage on m.
func WithMetrics(m *metrics.GenAI) Option {
	return func(i *Interpreter) { i.metrics = m }
}

// New returns an Interpreter calling model.
func New(model backend.Model, opts ...Option) *Interpreter {
	i := &Interpreter{
		model:   model,
		retry:   retry.DefaultRetryConfig(),
		metrics: metrics.NewGenAI("chainguard.dev/repopilot/agents/intent"),
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Interpret returns the intent of utterance given the attachments and the
// recent history. A failed call or malformed reply is an
// *InterpretationError; it is not repaired.
func (i *Interpreter) Interpret(ctx context.Context, utterance string, attachments []backend.Attachment, history []backend.Turn) (*Intent, error) {
	if strings.TrimSpace(utterance) == "" && len(attachments) == 0 {
		return nil, ErrEmptyInput
	}
	log := clog.FromContext(ctx).With("model", i.model.Name())

	msgs := backend.HistoryMessages(history)
	msgs = append(msgs, backend.Message{Role: backend.RoleUser, Text: utterance, Attachments: attachments})
	req := &backend.Request{
		System:         systemPrompt,
		Messages:       msgs,
		ResponseSchema: intentSchema,
	}

	resp, err := retry.RetryWithBackoff(ctx, i.retry, "interpret", backend.IsRateLimited, func() (*backend.Response, error) {
		resp, err := i.model.Generate(ctx, req)
		i.metrics.RecordModelCall(ctx, i.model.Name(), err)
		return resp, err
	})
	if err != nil {
		log.With("error", err.Error()).Warn("Intent call failed")
		return nil, &InterpretationError{Err: err}
	}
	i.metrics.RecordTokens(ctx, i.model.Name(), resp.Usage.InputTokens, resp.Usage.OutputTokens)

	in, err := result.Extract[Intent](resp.Text)
	if err != nil {
		return nil, &InterpretationError{Err: fmt.Errorf("decoding intent: %w", err)}
	}
	in.Task = strings.TrimSpace(in.Task)
	in.Subject = strings.TrimSpace(in.Subject)
	in.Details = strings.TrimSpace(in.Details)
	in.Language = strings.TrimSpace(in.Language)
	switch {
	case in.Task == "":
		return nil, &InterpretationError{Err: errors.New("intent has no task")}
	case in.Subject == "":
		return nil, &InterpretationError{Err: errors.New("intent has no subject")}
	}
	log.With("task", in.Task).With("subject", in.Subject).Info("Interpreted intent")
	return &in, nil
}
