/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"chainguard.dev/repopilot/agents/executor/retry"
	"github.com/chainguard-dev/clog"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	// ErrNotPending is returned by Approve and Reject for actions that
	// have already left the pending status.
	ErrNotPending = errors.New("action is not pending")
	// ErrNotRetryable is returned by RetryExecution for actions whose
	// execution did not fail.
	ErrNotRetryable = errors.New("action has not failed execution")
)

// Executor performs the real repository writes.
type Executor interface {
	CreateBranch(ctx context.Context, p CreateBranchParams) (*Outcome, error)
	Commit(ctx context.Context, p CommitParams) (*Outcome, error)
	Push(ctx context.Context, p PushParams) (*Outcome, error)
	CreatePullRequest(ctx context.Context, p PullRequestParams) (*Outcome, error)
}

// ExecutionError reports that an approved action failed while executing.
// The action is left in StatusExecutionFailed.
type ExecutionError struct {
	ActionID string
	Step     string
	Err      error
}

func (e *ExecutionError) Error() string {
	if e.Step != "" {
		return fmt.Sprintf("executing action %s failed at %s: %v", e.ActionID, e.Step, e.Err)
	}
	return fmt.Sprintf("executing action %s failed: %v", e.ActionID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// stepper is implemented by executor errors that know which step failed.
type stepper interface {
	FailedStep() string
}

// Gateway is the approval queue for repository writes.
type Gateway struct {
	exec  Executor
	store Store
	now   func() time.Time
	newID func() string

	events bus
	locks  keyedMutex
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithStore replaces the default in-memory store.
func WithStore(s Store) Option {
	return func(g *Gateway) { g.store = s }
}

// WithDeliveryRetry sets how often a failing listener is retried.
func WithDeliveryRetry(cfg retry.RetryConfig) Option {
	return func(g *Gateway) { g.events.cfg = cfg }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// New returns a Gateway that runs approved actions with exec.
func New(exec Executor, opts ...Option) *Gateway {
	g := &Gateway{
		exec:  exec,
		store: NewMemoryStore(),
		now:   time.Now,
		newID: uuid.NewString,
		events: bus{cfg: retry.RetryConfig{
			MaxRetries:  3,
			BaseBackoff: 100 * time.Millisecond,
			MaxBackoff:  2 * time.Second,
		}},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Subscribe registers l for every subsequent event. Any number of
// subscribers may be registered. The returned func unsubscribes.
func (g *Gateway) Subscribe(name string, l Listener) func() {
	return g.events.subscribe(name, l)
}

func tracer() trace.Tracer {
	return otel.Tracer("chainguard.dev/repopilot/agents/gateway")
}

// Propose validates p and records it as a pending action. Invalid
// parameters fail with a *validate.Error and record nothing.
func (g *Gateway) Propose(ctx context.Context, p Params) (*Action, error) {
	if p == nil {
		return nil, errors.New("no action params")
	}
	log := clog.FromContext(ctx).With("type", string(p.Type()))

	normalized, err := p.Normalize()
	if err != nil {
		countAction(p.Type(), "invalid")
		log.With("error", err.Error()).Info("Rejected invalid proposal")
		return nil, err
	}

	now := g.now()
	a := &Action{
		ID:          g.newID(),
		Type:        normalized.Type(),
		Description: normalized.Describe(),
		Params:      normalized,
		Status:      StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := g.store.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("recording action: %w", err)
	}
	countAction(a.Type, "proposed")
	g.refreshPending(ctx)
	log.With("action_id", a.ID).Infof("Proposed: %s", a.Description)

	g.events.publish(ctx, Event{Type: EventProposed, Action: a, Time: now})
	return a.Clone(), nil
}

// Approve moves a pending action to approved and executes it. It fails with
// ErrNotFound for unknown ids and ErrNotPending for actions already
// approved or rejected. An execution failure is returned as
// *ExecutionError alongside the failed action.
func (g *Gateway) Approve(ctx context.Context, id string) (*Action, error) {
	a, err := g.store.Transition(ctx, id, StatusPending, StatusApproved, g.touch)
	if err != nil {
		return nil, g.conflict(err, ErrNotPending)
	}
	countAction(a.Type, "approved")
	g.refreshPending(ctx)
	g.events.publish(ctx, Event{Type: EventApproved, Action: a, Time: a.UpdatedAt})
	return g.execute(ctx, a)
}

// Reject discards a pending action without side effects.
func (g *Gateway) Reject(ctx context.Context, id string) (*Action, error) {
	a, err := g.store.Transition(ctx, id, StatusPending, StatusRejected, g.touch)
	if err != nil {
		return nil, g.conflict(err, ErrNotPending)
	}
	countAction(a.Type, "rejected")
	g.refreshPending(ctx)
	clog.FromContext(ctx).With("action_id", id).Info("Rejected action")
	g.events.publish(ctx, Event{Type: EventRejected, Action: a, Time: a.UpdatedAt})
	return a, nil
}

// RetryExecution re-runs an action whose execution failed, without asking
// for approval again.
func (g *Gateway) RetryExecution(ctx context.Context, id string) (*Action, error) {
	a, err := g.store.Transition(ctx, id, StatusExecutionFailed, StatusApproved, func(a *Action) {
		g.touch(a)
		a.Error = ""
	})
	if err != nil {
		return nil, g.conflict(err, ErrNotRetryable)
	}
	return g.execute(ctx, a)
}

// Get returns the action with id.
func (g *Gateway) Get(ctx context.Context, id string) (*Action, error) {
	return g.store.Get(ctx, id)
}

// List returns actions in creation order, optionally filtered by status.
func (g *Gateway) List(ctx context.Context, statuses ...Status) ([]*Action, error) {
	return g.store.List(ctx, statuses...)
}

func (g *Gateway) touch(a *Action) {
	a.UpdatedAt = g.now()
}

func (g *Gateway) conflict(err, sentinel error) error {
	if errors.Is(err, ErrStatusConflict) {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return err
}

func (g *Gateway) execute(ctx context.Context, a *Action) (*Action, error) {
	repo, branch := a.Params.Target()
	log := clog.FromContext(ctx).With("action_id", a.ID).With("type", string(a.Type))

	unlock := g.locks.lock(repo + "@" + branch)
	defer unlock()

	ctx, span := tracer().Start(ctx, "gateway.execute", trace.WithAttributes(
		attribute.String("action.id", a.ID),
		attribute.String("action.type", string(a.Type)),
		attribute.String("repository", repo),
		attribute.String("branch", branch),
	))
	defer span.End()

	log.Infof("Executing: %s", a.Description)
	outcome, err := g.run(ctx, a.Params)

	// Record the result even if the caller has gone away.
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		execErr := &ExecutionError{ActionID: a.ID, Err: err}
		var s stepper
		if errors.As(err, &s) {
			execErr.Step = s.FailedStep()
		}

		failed, terr := g.store.Transition(ctx, a.ID, StatusApproved, StatusExecutionFailed, func(a *Action) {
			g.touch(a)
			a.Attempts++
			a.Error = err.Error()
		})
		if terr != nil {
			return nil, errors.Join(execErr, terr)
		}
		countAction(a.Type, "execution_failed")
		log.With("error", err.Error()).Error("Execution failed")
		g.events.publish(ctx, Event{Type: EventExecutionFailed, Action: failed, Time: failed.UpdatedAt})
		return failed, execErr
	}

	done, err := g.store.Transition(ctx, a.ID, StatusApproved, StatusExecuted, func(a *Action) {
		g.touch(a)
		a.Attempts++
		a.Outcome = outcome
	})
	if err != nil {
		return nil, fmt.Errorf("recording execution of %s: %w", a.ID, err)
	}
	span.SetStatus(codes.Ok, "")
	countAction(a.Type, "executed")
	log.Info("Execution succeeded")
	g.events.publish(ctx, Event{Type: EventExecuted, Action: done, Time: done.UpdatedAt})
	return done, nil
}

func (g *Gateway) run(ctx context.Context, p Params) (*Outcome, error) {
	switch p := p.(type) {
	case CreateBranchParams:
		return g.exec.CreateBranch(ctx, p)
	case CommitParams:
		return g.exec.Commit(ctx, p)
	case PushParams:
		return g.exec.Push(ctx, p)
	case PullRequestParams:
		return g.exec.CreatePullRequest(ctx, p)
	default:
		return nil, fmt.Errorf("unsupported action params %T", p)
	}
}

func (g *Gateway) refreshPending(ctx context.Context) {
	pending, err := g.store.List(ctx, StatusPending)
	if err != nil {
		clog.FromContext(ctx).With("error", err.Error()).Warn("Listing pending actions")
		return
	}
	pendingGauge.Set(float64(len(pending)))
}
