/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/repopilot/agents/executor/retry"
	"chainguard.dev/repopilot/agents/validate"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepErr struct{ step string }

func (e stepErr) Error() string      { return e.step + " failed" }
func (e stepErr) FailedStep() string { return e.step }

type fakeExecutor struct {
	mu       sync.Mutex
	calls    []string
	failures int // fail this many calls before succeeding
	delay    time.Duration

	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeExecutor) do(name string) (*Outcome, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
	if f.failures > 0 {
		f.failures--
		return nil, stepErr{step: "update_ref"}
	}
	return &Outcome{SHA: "0123456789abcdef0123456789abcdef01234567"}, nil
}

func (f *fakeExecutor) CreateBranch(_ context.Context, p CreateBranchParams) (*Outcome, error) {
	return f.do("create_branch " + p.Branch)
}

func (f *fakeExecutor) Commit(_ context.Context, p CommitParams) (*Outcome, error) {
	return f.do("commit " + p.Branch)
}

func (f *fakeExecutor) Push(_ context.Context, p PushParams) (*Outcome, error) {
	return f.do("push " + p.Branch)
}

func (f *fakeExecutor) CreatePullRequest(_ context.Context, p PullRequestParams) (*Outcome, error) {
	return f.do("create_pull_request " + p.Head)
}

func (f *fakeExecutor) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func validCommit() CommitParams {
	return CommitParams{
		Repo:    "octocat/hello",
		Branch:  "feature/x",
		Message: "  Add greeting  ",
		Files:   []FileChange{{Path: "hello.txt", Content: "hi\n"}},
	}
}

type recorder struct {
	mu     sync.Mutex
	events []EventType
}

func (r *recorder) listen(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev.Type)
	return nil
}

func (r *recorder) Events() []EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]EventType(nil), r.events...)
}

func TestProposeApproveExecute(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	exec := &fakeExecutor{}
	g := New(exec)
	ui, audit := &recorder{}, &recorder{}
	g.Subscribe("ui", ui.listen)
	g.Subscribe("audit", audit.listen)

	a, err := g.Propose(ctx, validCommit())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, a.Status)
	assert.Equal(t, TypeCommit, a.Type)
	assert.Equal(t, "Add greeting", a.Params.(CommitParams).Message)
	assert.Equal(t, "Commit 1 file to feature/x in octocat/hello: Add greeting", a.Description)
	assert.Empty(t, exec.Calls(), "proposing must not execute")

	done, err := g.Approve(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, done.Status)
	assert.Equal(t, 1, done.Attempts)
	require.NotNil(t, done.Outcome)
	assert.Equal(t, []string{"commit feature/x"}, exec.Calls())

	want := []EventType{EventProposed, EventApproved, EventExecuted}
	if diff := cmp.Diff(want, ui.Events()); diff != "" {
		t.Errorf("ui events mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(want, audit.Events()); diff != "" {
		t.Errorf("audit events mismatch (-want +got):\n%s", diff)
	}

	_, err = g.Approve(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.Len(t, exec.Calls(), 1, "second approval must not execute again")
}

func TestProposeInvalidQueuesNothing(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		params   Params
		wantCode validate.Code
	}{{
		name: "path traversal",
		params: CommitParams{
			Repo:    "octocat/hello",
			Branch:  "feature/x",
			Message: "fix",
			Files:   []FileChange{{Path: "../etc/passwd", Content: "x"}},
		},
		wantCode: validate.CodePathTraversal,
	}, {
		name:     "protected branch",
		params:   CreateBranchParams{Repo: "octocat/hello", Branch: "main", From: "develop"},
		wantCode: validate.CodeProtectedBranch,
	}, {
		name: "commit to master",
		params: CommitParams{
			Repo: "octocat/hello", Branch: "master", Message: "fix it",
			Files: []FileChange{{Path: "a", Content: "b"}},
		},
		wantCode: validate.CodeProtectedBranch,
	}, {
		name: "short message",
		params: CommitParams{
			Repo: "octocat/hello", Branch: "feature/x", Message: "ok",
			Files: []FileChange{{Path: "a", Content: "b"}},
		},
		wantCode: validate.CodeTooShort,
	}, {
		name:     "no files",
		params:   CommitParams{Repo: "octocat/hello", Branch: "feature/x", Message: "fix it"},
		wantCode: validate.CodeEmpty,
	}, {
		name: "duplicate file",
		params: CommitParams{
			Repo: "octocat/hello", Branch: "feature/x", Message: "fix it",
			Files: []FileChange{{Path: "a", Content: "1"}, {Path: " a ", Content: "2"}},
		},
		wantCode: validate.CodeInvalid,
	}, {
		name:     "push to HEAD",
		params:   PushParams{Repo: "octocat/hello", Branch: "HEAD", SHA: "abcdef1"},
		wantCode: validate.CodeProtectedBranch,
	}, {
		name:     "push bad sha",
		params:   PushParams{Repo: "octocat/hello", Branch: "feature/x", SHA: "zzz"},
		wantCode: validate.CodeInvalid,
	}, {
		name:     "pull request short title",
		params:   PullRequestParams{Repo: "octocat/hello", Title: "Fix", Head: "feature/x", Base: "main"},
		wantCode: validate.CodeTooShort,
	}, {
		name:     "pull request from main",
		params:   PullRequestParams{Repo: "octocat/hello", Title: "Release it", Head: "main", Base: "develop"},
		wantCode: validate.CodeProtectedBranch,
	}, {
		name:     "pull request head equals base",
		params:   PullRequestParams{Repo: "octocat/hello", Title: "Same branch", Head: "dev", Base: "dev"},
		wantCode: validate.CodeInvalid,
	}, {
		name:     "bad repository",
		params:   CreateBranchParams{Repo: "hello", Branch: "feature/x", From: "main"},
		wantCode: validate.CodeInvalid,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ui := &recorder{}
			g := New(&fakeExecutor{})
			g.Subscribe("ui", ui.listen)

			_, err := g.Propose(context.Background(), tt.params)
			verr, ok := validate.As(err)
			require.True(t, ok, "Propose() = %v, wanted *validate.Error", err)
			assert.Equal(t, tt.wantCode, verr.Code)

			all, err := g.List(context.Background())
			require.NoError(t, err)
			assert.Empty(t, all)
			assert.Empty(t, ui.Events())
		})
	}
}

func TestPullRequestIntoMainIsAllowed(t *testing.T) {
	t.Parallel()
	a, err := New(&fakeExecutor{}).Propose(context.Background(), PullRequestParams{
		Repo: "octocat/hello", Title: "Add greeting", Body: " body ", Head: "feature/x", Base: "main",
	})
	require.NoError(t, err)
	assert.Equal(t, "body", a.Params.(PullRequestParams).Body)
}

func TestRejectThenApprove(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	exec := &fakeExecutor{}
	g := New(exec)

	a, err := g.Propose(ctx, validCommit())
	require.NoError(t, err)

	rejected, err := g.Reject(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, rejected.Status)

	_, err = g.Approve(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotPending)
	_, err = g.Reject(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotPending)
	assert.Empty(t, exec.Calls())

	_, err = g.Approve(ctx, "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExecutionFailureAndRetry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	exec := &fakeExecutor{failures: 1}
	g := New(exec)
	ui := &recorder{}
	g.Subscribe("ui", ui.listen)

	a, err := g.Propose(ctx, CreateBranchParams{Repo: "octocat/hello", Branch: "feature/x", From: "main"})
	require.NoError(t, err)

	failed, err := g.Approve(ctx, a.ID)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "update_ref", execErr.Step)
	assert.Equal(t, a.ID, execErr.ActionID)
	assert.Equal(t, StatusExecutionFailed, failed.Status)
	assert.Equal(t, "update_ref failed", failed.Error)

	// Failed executions are not re-queued for approval.
	_, err = g.Approve(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotPending)

	done, err := g.RetryExecution(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExecuted, done.Status)
	assert.Equal(t, 2, done.Attempts)
	assert.Empty(t, done.Error)

	_, err = g.RetryExecution(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotRetryable)

	want := []EventType{EventProposed, EventApproved, EventExecutionFailed, EventExecuted}
	if diff := cmp.Diff(want, ui.Events()); diff != "" {
		t.Errorf("events mismatch (-want +got):\n%s", diff)
	}
}

func TestConcurrentApprovalExecutesOnce(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	exec := &fakeExecutor{delay: 5 * time.Millisecond}
	g := New(exec)
	a, err := g.Propose(ctx, validCommit())
	require.NoError(t, err)

	var wg sync.WaitGroup
	var succeeded atomic.Int32
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Approve(ctx, a.ID); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), succeeded.Load())
	assert.Len(t, exec.Calls(), 1)
}

func TestSameBranchExecutionsAreSerialized(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	exec := &fakeExecutor{delay: 10 * time.Millisecond}
	g := New(exec)

	var ids []string
	for i := range 4 {
		p := validCommit()
		p.Message = fmt.Sprintf("change number %d", i)
		a, err := g.Propose(ctx, p)
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := g.Approve(ctx, id)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), exec.maxActive.Load())
	assert.Len(t, exec.Calls(), 4)
}

func TestListenerRedelivery(t *testing.T) {
	t.Parallel()
	g := New(&fakeExecutor{}, WithDeliveryRetry(retry.RetryConfig{MaxRetries: 3, BaseBackoff: time.Millisecond}))

	var attempts atomic.Int32
	g.Subscribe("flaky", func(context.Context, Event) error {
		if attempts.Add(1) < 3 {
			return errors.New("ui not ready")
		}
		return nil
	})
	var broken atomic.Int32
	g.Subscribe("broken", func(context.Context, Event) error {
		broken.Add(1)
		return errors.New("always down")
	})

	_, err := g.Propose(context.Background(), validCommit())
	require.NoError(t, err, "listener failures must not reach the proposer")
	assert.Equal(t, int32(3), attempts.Load())
	assert.Equal(t, int32(4), broken.Load())
}

func TestUnsubscribe(t *testing.T) {
	t.Parallel()
	g := New(&fakeExecutor{})
	r := &recorder{}
	unsubscribe := g.Subscribe("ui", r.listen)

	_, err := g.Propose(context.Background(), validCommit())
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()
	_, err = g.Propose(context.Background(), validCommit())
	require.NoError(t, err)

	assert.Equal(t, []EventType{EventProposed}, r.Events())
}

func TestActionJSON(t *testing.T) {
	t.Parallel()
	a, err := New(&fakeExecutor{}).Propose(context.Background(), validCommit())
	require.NoError(t, err)

	data, err := json.Marshal(a)
	require.NoError(t, err)
	var got Action
	require.NoError(t, json.Unmarshal(data, &got))

	if diff := cmp.Diff(a, &got); diff != "" {
		t.Errorf("Action mismatch (-want +got):\n%s", diff)
	}
}

func TestKeyedMutexForgetsKeys(t *testing.T) {
	t.Parallel()
	var k keyedMutex
	unlock := k.lock("o/r@main")
	unlock()
	assert.Empty(t, k.locks)
}
