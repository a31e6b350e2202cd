/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package dispatch routes model tool calls to the repository reader or to
// the mutation gateway.
//
// Read tools run immediately. Write tools only propose an action; the
// model is told the change awaits approval. Every failure is returned to
// the model as a {success: false} payload so it can adjust its plan.
package dispatch

import (
	"context"
	"fmt"

	"chainguard.dev/repopilot/agents/agenttrace"
	"chainguard.dev/repopilot/agents/gateway"
	"chainguard.dev/repopilot/agents/toolcall"
	"chainguard.dev/repopilot/agents/toolcall/params"
	"chainguard.dev/repopilot/agents/validate"
	"chainguard.dev/repopilot/github/repodata"
	"github.com/chainguard-dev/clog"
)

// DefaultBaseBranch is used when the model names no source or base branch.
const DefaultBaseBranch = "main"

// Reader is the read path. *repodata.Provider implements it.
type Reader interface {
	ReadFile(ctx context.Context, token, repoPath, path string) (*repodata.File, error)
	GetReadme(ctx context.Context, token, repoPath string) (*repodata.File, error)
	ListDirectory(ctx context.Context, token, repoPath, dir string) ([]repodata.Entry, error)
	SearchCode(ctx context.Context, token, repoPath, query string) (*repodata.SearchResult, error)
	ListBranches(ctx context.Context, token, repoPath string) ([]repodata.Branch, error)
	GetCommit(ctx context.Context, token, repoPath, sha string) (*repodata.Commit, error)
	GetStructure(ctx context.Context, token, repoPath string, maxDepth int) ([]repodata.Entry, error)
}

var _ Reader = (*repodata.Provider)(nil)

// Proposer queues write actions. *gateway.Gateway implements it.
type Proposer interface {
	Propose(ctx context.Context, p gateway.Params) (*gateway.Action, error)
}

var _ Proposer = (*gateway.Gateway)(nil)

// Dispatcher resolves tool calls against one repository.
type Dispatcher struct {
	reader   Reader
	proposer Proposer
	repo     string
	token    string
}

// New returns a Dispatcher for repo, reading with token.
func New(reader Reader, proposer Proposer, repo, token string) *Dispatcher {
	return &Dispatcher{reader: reader, proposer: proposer, repo: repo, token: token}
}

// Definitions returns the tools to offer the model.
func (d *Dispatcher) Definitions() []toolcall.Definition {
	return Definitions()
}

type handler func(d *Dispatcher, ctx context.Context, call toolcall.Call, trace *agenttrace.Trace) map[string]any

var handlers = [numTools]handler{
	ReadFile:               (*Dispatcher).readFile,
	ListDirectory:          (*Dispatcher).listDirectory,
	SearchCode:             (*Dispatcher).searchCode,
	GetReadme:              (*Dispatcher).getReadme,
	ListBranches:           (*Dispatcher).listBranches,
	GetCommitDetails:       (*Dispatcher).getCommitDetails,
	GetRepositoryStructure: (*Dispatcher).getRepositoryStructure,
	CreateBranch:           (*Dispatcher).createBranch,
	CommitChanges:          (*Dispatcher).commitChanges,
	CreatePullRequest:      (*Dispatcher).createPullRequest,
}

// Dispatch resolves call. The result always carries call's ID.
func (d *Dispatcher) Dispatch(ctx context.Context, call toolcall.Call, trace *agenttrace.Trace) toolcall.Result {
	res := toolcall.Result{ID: call.ID, Name: call.Name}

	tool, ok := Parse(call.Name)
	if !ok {
		err := fmt.Errorf("unknown function %q", call.Name)
		trace.BadToolCall(call.ID, call.Name, call.Args, err)
		clog.FromContext(ctx).With("tool", call.Name).Warn("Model called an unknown function")
		res.Payload = params.Error("unknown function: %s", call.Name)
		return res
	}
	if d.repo == "" {
		res.Payload = params.Error("no repository is connected")
		return res
	}

	clog.FromContext(ctx).With("tool", call.Name).With("call_id", call.ID).Info("Dispatching tool call")
	res.Payload = handlers[tool](d, ctx, call, trace)
	return res
}

// Succeeded reports whether a payload describes a successful call.
func Succeeded(payload map[string]any) bool {
	ok, _ := payload["success"].(bool)
	return ok
}

func success(fields map[string]any) map[string]any {
	fields["success"] = true
	return fields
}

// readFailure converts a read error into a payload and completes tc.
func readFailure(tc *agenttrace.ToolCall, err error) map[string]any {
	extra := map[string]any{}
	if rerr, ok := repodata.AsError(err); ok {
		extra["code"] = string(rerr.Code)
		if rerr.Suggestion != "" {
			extra["suggestion"] = rerr.Suggestion
		}
	}
	payload := params.ErrorWithContext(err, extra)
	tc.Complete(payload, err)
	return payload
}

func (d *Dispatcher) readFile(ctx context.Context, call toolcall.Call, trace *agenttrace.Trace) map[string]any {
	path, errResp := toolcall.Param[string](call, trace, "file_path")
	if errResp != nil {
		return errResp
	}
	tc := trace.StartToolCall(call.ID, call.Name, call.Args)
	f, err := d.reader.ReadFile(ctx, d.token, d.repo, path)
	if err != nil {
		return readFailure(tc, err)
	}
	result := success(map[string]any{"path": f.Path, "size": f.Size, "content": f.Content})
	tc.Complete(result, nil)
	return result
}

func (d *Dispatcher) listDirectory(ctx context.Context, call toolcall.Call, trace *agenttrace.Trace) map[string]any {
	dir, errResp := toolcall.OptionalParam(call, "directory_path", "")
	if errResp != nil {
		return errResp
	}
	tc := trace.StartToolCall(call.ID, call.Name, call.Args)
	entries, err := d.reader.ListDirectory(ctx, d.token, d.repo, dir)
	if err != nil {
		return readFailure(tc, err)
	}
	result := success(map[string]any{"path": dir, "entries": entries})
	tc.Complete(result, nil)
	return result
}

func (d *Dispatcher) searchCode(ctx context.Context, call toolcall.Call, trace *agenttrace.Trace) map[string]any {
	query, errResp := toolcall.Param[string](call, trace, "query")
	if errResp != nil {
		return errResp
	}
	tc := trace.StartToolCall(call.ID, call.Name, call.Args)
	sr, err := d.reader.SearchCode(ctx, d.token, d.repo, query)
	if err != nil {
		return readFailure(tc, err)
	}
	result := success(map[string]any{"query": query, "total": sr.Total, "matches": sr.Matches})
	tc.Complete(result, nil)
	return result
}

func (d *Dispatcher) getReadme(ctx context.Context, call toolcall.Call, trace *agenttrace.Trace) map[string]any {
	tc := trace.StartToolCall(call.ID, call.Name, call.Args)
	f, err := d.reader.GetReadme(ctx, d.token, d.repo)
	if err != nil {
		return readFailure(tc, err)
	}
	result := success(map[string]any{"path": f.Path, "content": f.Content})
	tc.Complete(result, nil)
	return result
}

func (d *Dispatcher) listBranches(ctx context.Context, call toolcall.Call, trace *agenttrace.Trace) map[string]any {
	tc := trace.StartToolCall(call.ID, call.Name, call.Args)
	branches, err := d.reader.ListBranches(ctx, d.token, d.repo)
	if err != nil {
		return readFailure(tc, err)
	}
	result := success(map[string]any{"branches": branches})
	tc.Complete(result, nil)
	return result
}

func (d *Dispatcher) getCommitDetails(ctx context.Context, call toolcall.Call, trace *agenttrace.Trace) map[string]any {
	sha, errResp := toolcall.Param[string](call, trace, "commit_sha")
	if errResp != nil {
		return errResp
	}
	tc := trace.StartToolCall(call.ID, call.Name, call.Args)
	commit, err := d.reader.GetCommit(ctx, d.token, d.repo, sha)
	if err != nil {
		return readFailure(tc, err)
	}
	result := success(map[string]any{"commit": commit})
	tc.Complete(result, nil)
	return result
}

func (d *Dispatcher) getRepositoryStructure(ctx context.Context, call toolcall.Call, trace *agenttrace.Trace) map[string]any {
	depth, errResp := toolcall.OptionalParam(call, "max_depth", 2)
	if errResp != nil {
		return errResp
	}
	depth = min(max(depth, 1), repodata.MaxDepth)
	tc := trace.StartToolCall(call.ID, call.Name, call.Args)
	entries, err := d.reader.GetStructure(ctx, d.token, d.repo, depth)
	if err != nil {
		return readFailure(tc, err)
	}
	result := success(map[string]any{"max_depth": depth, "entries": entries})
	tc.Complete(result, nil)
	return result
}

func (d *Dispatcher) createBranch(ctx context.Context, call toolcall.Call, trace *agenttrace.Trace) map[string]any {
	branch, errResp := toolcall.Param[string](call, trace, "branch_name")
	if errResp != nil {
		return errResp
	}
	from, errResp := toolcall.OptionalParam(call, "from_branch", DefaultBaseBranch)
	if errResp != nil {
		return errResp
	}
	return d.propose(ctx, call, trace, gateway.CreateBranchParams{Repo: d.repo, Branch: branch, From: from})
}

func (d *Dispatcher) commitChanges(ctx context.Context, call toolcall.Call, trace *agenttrace.Trace) map[string]any {
	objs, err := params.ExtractObjects(call.Args, "files")
	if err != nil {
		trace.BadToolCall(call.ID, call.Name, call.Args, err)
		return params.Error("%s", err)
	}
	files := make([]gateway.FileChange, 0, len(objs))
	for i, obj := range objs {
		path, err := params.Extract[string](obj, "path")
		if err != nil {
			trace.BadToolCall(call.ID, call.Name, call.Args, err)
			return params.Error("files[%d]: %s", i, err)
		}
		content, err := params.Extract[string](obj, "content")
		if err != nil {
			trace.BadToolCall(call.ID, call.Name, call.Args, err)
			return params.Error("files[%d]: %s", i, err)
		}
		files = append(files, gateway.FileChange{Path: path, Content: content})
	}
	message, errResp := toolcall.Param[string](call, trace, "message")
	if errResp != nil {
		return errResp
	}
	branch, errResp := toolcall.Param[string](call, trace, "branch")
	if errResp != nil {
		return errResp
	}
	return d.propose(ctx, call, trace, gateway.CommitParams{Repo: d.repo, Branch: branch, Message: message, Files: files})
}

func (d *Dispatcher) createPullRequest(ctx context.Context, call toolcall.Call, trace *agenttrace.Trace) map[string]any {
	title, errResp := toolcall.Param[string](call, trace, "title")
	if errResp != nil {
		return errResp
	}
	head, errResp := toolcall.Param[string](call, trace, "head_branch")
	if errResp != nil {
		return errResp
	}
	body, errResp := toolcall.OptionalParam(call, "body", "")
	if errResp != nil {
		return errResp
	}
	base, errResp := toolcall.OptionalParam(call, "base_branch", DefaultBaseBranch)
	if errResp != nil {
		return errResp
	}
	return d.propose(ctx, call, trace, gateway.PullRequestParams{Repo: d.repo, Title: title, Body: body, Head: head, Base: base})
}

// propose queues p and tells the model the change awaits approval.
func (d *Dispatcher) propose(ctx context.Context, call toolcall.Call, trace *agenttrace.Trace, p gateway.Params) map[string]any {
	log := clog.FromContext(ctx).With("tool", call.Name)
	tc := trace.StartToolCall(call.ID, call.Name, call.Args)

	action, err := d.proposer.Propose(ctx, p)
	if err != nil {
		var payload map[string]any
		if verr, ok := validate.As(err); ok {
			log.With("field", verr.Field).With("code", string(verr.Code)).Info("Rejected invalid proposal")
			payload = params.ErrorWithContext(err, map[string]any{
				"code":       string(verr.Code),
				"field":      verr.Field,
				"suggestion": verr.Suggestion,
			})
			if verr.Permission() {
				payload["permission_denied"] = true
			}
		} else {
			log.With("error", err.Error()).Error("Failed to queue proposal")
			payload = params.Error("could not queue the change: %v", err)
		}
		tc.Complete(payload, err)
		return payload
	}

	result := success(map[string]any{
		"status":    "pending_approval",
		"action_id": action.ID,
		"message":   fmt.Sprintf("%s. This change is awaiting the user's approval and has not been applied yet.", action.Description),
	})
	tc.Complete(result, nil)
	return result
}
