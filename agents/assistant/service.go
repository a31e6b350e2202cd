/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package assistant is the session-facing entry point. A Service
// interprets user messages and generates answers, and a Session owns a
// conversation's history and factor settings and runs one turn at a time.
package assistant

import (
	"context"
	"fmt"

	"chainguard.dev/repopilot/agents/backend"
	"chainguard.dev/repopilot/agents/dispatch"
	"chainguard.dev/repopilot/agents/executor/retry"
	"chainguard.dev/repopilot/agents/intent"
	"chainguard.dev/repopilot/agents/metrics"
	"chainguard.dev/repopilot/agents/orchestrator"
)

// DefaultHistory is how many past turns are replayed.
const DefaultHistory = 3

// Models resolves a model by name. *backend.Router implements it.
type Models interface {
	Model(ctx context.Context, name string) (backend.Model, error)
}

var _ Models = (*backend.Router)(nil)

// Service answers on behalf of every session.
type Service struct {
	models      Models
	reader      dispatch.Reader
	proposer    dispatch.Proposer
	intentModel string
	history     int
	maxRounds   int
	retry       retry.RetryConfig
	metrics     *metrics.GenAI
}

// Option configures a Service.
type Option func(*Service) error

// WithRepository enables repository tools backed by reader and proposer.
func WithRepository(reader dispatch.Reader, proposer dispatch.Proposer) Option {
	return func(s *Service) error {
		s.reader, s.proposer = reader, proposer
		return nil
	}
}

// WithIntentModel sets the model used for interpretation.
func WithIntentModel(name string) Option {
	return func(s *Service) error {
		s.intentModel = name
		return nil
	}
}

// WithHistory sets how many past turns are replayed.
func WithHistory(n int) Option {
	return func(s *Service) error {
		if n < 0 {
			return fmt.Errorf("history must not be negative, got %d", n)
		}
		s.history = n
		return nil
	}
}

// WithMaxRounds caps the tool round trips of a turn.
func WithMaxRounds(n int) Option {
	return func(s *Service) error {
		if n < 1 {
			return fmt.Errorf("max rounds must be at least 1, got %d", n)
		}
		s.maxRounds = n
		return nil
	}
}

// WithRetryConfig sets the rate-limit retry policy of model calls.
func WithRetryConfig(cfg retry.RetryConfig) Option {
	return func(s *Service) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		s.retry = cfg
		return nil
	}
}

// NewService returns a Service resolving models through models.
func NewService(models Models, opts ...Option) (*Service, error) {
	s := &Service{
		models:      models,
		intentModel: DefaultModel,
		history:     DefaultHistory,
		maxRounds:   orchestrator.DefaultMaxRounds,
		retry:       retry.DefaultRetryConfig(),
		metrics:     metrics.NewGenAI("chainguard.dev/repopilot/agents/assistant"),
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Interpret extracts the intent of a message. Callers must not call it
// with neither text nor attachments.
func (s *Service) Interpret(ctx context.Context, utterance string, attachments []backend.Attachment, history []backend.Turn) (*intent.Intent, error) {
	model, err := s.models.Model(ctx, s.intentModel)
	if err != nil {
		return nil, err
	}
	in := intent.New(model, intent.WithRetry(s.retry), intent.WithMetrics(s.metrics))
	return in.Interpret(ctx, utterance, attachments, backend.Recent(history, s.history))
}

// GenerateRequest is the input of one answer.
type GenerateRequest struct {
	Intent      *intent.Intent
	Utterance   string
	Factors     Factors
	Attachments []backend.Attachment
	History     []backend.Turn
	Grounding   bool
	// Repository and Token are empty when no repository is connected.
	Repository string
	Token      string
}

// Answer is the reply to a GenerateRequest.
type Answer struct {
	Text      string
	Citations []backend.Citation
	Rounds    int
}

// Generate answers req. The error wraps orchestrator.ErrGeneration when
// the model could not be reached.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*Answer, error) {
	model, err := s.models.Model(ctx, req.Factors.Model())
	if err != nil {
		return nil, err
	}
	o, err := orchestrator.New(model,
		orchestrator.WithRetryConfig(s.retry),
		orchestrator.WithMaxRounds(s.maxRounds),
		orchestrator.WithMetrics(s.metrics),
	)
	if err != nil {
		return nil, err
	}

	in := orchestrator.Input{
		Intent:      req.Intent,
		Utterance:   req.Utterance,
		Attachments: req.Attachments,
		History:     backend.Recent(req.History, s.history),
		Style:       req.Factors.Style(),
		Grounding:   req.Grounding,
	}
	if req.Repository != "" && s.reader != nil {
		in.Repository = req.Repository
		in.Tools = dispatch.New(s.reader, s.proposer, req.Repository, req.Token)
	}

	out, err := o.Run(ctx, in)
	if err != nil {
		return nil, err
	}
	return &Answer{Text: out.Text, Citations: out.Citations, Rounds: out.Rounds}, nil
}
