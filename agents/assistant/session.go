/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package assistant

import (
	"context"
	"slices"
	"strings"
	"time"

	"chainguard.dev/repopilot/agents/agenttrace"
	"chainguard.dev/repopilot/agents/backend"
	"chainguard.dev/repopilot/agents/intent"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
)

// Reply is the outcome of one turn.
type Reply struct {
	Turn   backend.Turn
	Intent *intent.Intent
	Rounds int
}

// Session is one conversation. Turns are serialized: Send waits for the
// previous turn to finish, or for its context to end.
type Session struct {
	ID string

	service *Service
	repo    string
	token   string

	// turn holds a token while a turn is in flight.
	turn chan struct{}

	// guarded by turn
	history []backend.Turn
	factors Factors
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// ConnectRepository gives the session's turns access to repo.
func ConnectRepository(repo, token string) SessionOption {
	return func(s *Session) {
		s.repo, s.token = strings.TrimSpace(repo), token
	}
}

// WithFactors replaces the default factor configuration.
func WithFactors(fs Factors) SessionOption {
	return func(s *Session) {
		s.factors = slices.Clone(fs)
	}
}

// ResumeHistory seeds the session with earlier turns.
func ResumeHistory(turns []backend.Turn) SessionOption {
	return func(s *Session) {
		s.history = slices.Clone(turns)
	}
}

// NewSession starts a conversation.
func (s *Service) NewSession(opts ...SessionOption) *Session {
	se := &Session{
		ID:      uuid.NewString(),
		service: s,
		factors: DefaultFactors(),
		turn:    make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(se)
	}
	return se
}

// Repository is the connected owner/repo, or "".
func (se *Session) Repository() string { return se.repo }

func (se *Session) acquire(ctx context.Context) error {
	select {
	case se.turn <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (se *Session) release() { <-se.turn }

// Send runs one turn. A failed turn leaves the history unchanged.
func (se *Session) Send(ctx context.Context, utterance string, attachments []backend.Attachment) (*Reply, error) {
	if strings.TrimSpace(utterance) == "" && len(attachments) == 0 {
		return nil, intent.ErrEmptyInput
	}
	if err := se.acquire(ctx); err != nil {
		return nil, err
	}
	defer se.release()

	ctx = agenttrace.WithSession(ctx, agenttrace.Session{ID: se.ID, Repository: se.repo, Turn: len(se.history) + 1})
	log := clog.FromContext(ctx).With("session_id", se.ID).With("turn", len(se.history)+1)

	in, err := se.service.Interpret(ctx, utterance, attachments, se.history)
	if err != nil {
		log.With("error", err.Error()).Warn("Could not interpret message")
		return nil, err
	}

	answer, err := se.service.Generate(ctx, GenerateRequest{
		Intent:      in,
		Utterance:   utterance,
		Factors:     se.factors,
		Attachments: attachments,
		History:     se.history,
		Grounding:   se.factors.Grounding(),
		Repository:  se.repo,
		Token:       se.token,
	})
	if err != nil {
		log.With("error", err.Error()).Warn("Could not generate answer")
		return nil, err
	}

	t := backend.Turn{
		ID:            uuid.NewString(),
		UserMessage:   utterance,
		ModelResponse: answer.Text,
		Timestamp:     time.Now(),
		Attachments:   attachments,
		Citations:     answer.Citations,
	}
	se.history = append(se.history, t)
	return &Reply{Turn: t, Intent: in, Rounds: answer.Rounds}, nil
}

// History returns a copy of every completed turn.
func (se *Session) History(ctx context.Context) ([]backend.Turn, error) {
	if err := se.acquire(ctx); err != nil {
		return nil, err
	}
	defer se.release()
	return slices.Clone(se.history), nil
}

// SetFactor changes one factor for later turns.
func (se *Session) SetFactor(ctx context.Context, name, value string) error {
	if err := se.acquire(ctx); err != nil {
		return err
	}
	defer se.release()
	fs, err := se.factors.Set(name, value)
	if err != nil {
		return err
	}
	se.factors = fs
	return nil
}

// Factors returns a copy of the current factor configuration.
func (se *Session) Factors(ctx context.Context) (Factors, error) {
	if err := se.acquire(ctx); err != nil {
		return nil, err
	}
	defer se.release()
	return slices.Clone(se.factors), nil
}
