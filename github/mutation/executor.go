/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package mutation performs approved repository writes against the GitHub
// Git Data and Pull Request APIs.
//
// Each write is a sequence of named steps. Nothing is visible on the
// remote until the final ref update, so a failed step leaves the
// repository unchanged.
package mutation

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/repopilot/agents/gateway"
	"chainguard.dev/repopilot/agents/validate"
	"chainguard.dev/repopilot/github/ghclient"
	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/google/go-github/v75/github"
)

// Step names.
const (
	StepAuth              = "auth"
	StepGetRef            = "get_ref"
	StepCreateRef         = "create_ref"
	StepGetCommit         = "get_commit"
	StepGetTree           = "get_tree"
	StepBuildTree         = "build_tree"
	StepCreateTree        = "create_tree"
	StepCreateCommit      = "create_commit"
	StepUpdateRef         = "update_ref"
	StepResolveCommit     = "resolve_commit"
	StepCreatePullRequest = "create_pull_request"
)

// ErrNoChanges is returned when every file in a commit already has the
// requested content.
var ErrNoChanges = errors.New("no changes")

// StepError reports which step of a write failed.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string      { return fmt.Sprintf("%s: %v", e.Step, e.Err) }
func (e *StepError) Unwrap() error      { return e.Err }
func (e *StepError) FailedStep() string { return e.Step }

func fail(step string, err error) error {
	return &StepError{Step: step, Err: err}
}

// Executor implements gateway.Executor.
type Executor struct {
	clients *ghclient.Cache
	token   ghclient.TokenFunc
}

var _ gateway.Executor = (*Executor)(nil)

// New returns an Executor authenticating with token.
func New(clients *ghclient.Cache, token ghclient.TokenFunc) *Executor {
	return &Executor{clients: clients, token: token}
}

type target struct {
	gh          *github.Client
	owner, repo string
}

func (e *Executor) open(ctx context.Context, repoPath string) (*target, error) {
	owner, repo, err := validate.RepoPath(repoPath)
	if err != nil {
		return nil, fail(StepAuth, err)
	}
	tok, err := e.token(ctx)
	if err != nil {
		return nil, fail(StepAuth, err)
	}
	cl, err := e.clients.Get(ctx, tok)
	if err != nil {
		return nil, fail(StepAuth, err)
	}
	return &target{gh: cl.REST, owner: owner, repo: repo}, nil
}

func branchRef(branch string) string {
	return plumbing.NewBranchReferenceName(branch).String()
}

// CreateBranch points a new branch at the head of p.From.
func (e *Executor) CreateBranch(ctx context.Context, p gateway.CreateBranchParams) (*gateway.Outcome, error) {
	t, err := e.open(ctx, p.Repo)
	if err != nil {
		return nil, err
	}
	from, _, err := t.gh.Git.GetRef(ctx, t.owner, t.repo, branchRef(p.From))
	if err != nil {
		return nil, fail(StepGetRef, err)
	}
	sha := from.GetObject().GetSHA()

	ref, _, err := t.gh.Git.CreateRef(ctx, t.owner, t.repo, github.CreateRef{
		Ref: branchRef(p.Branch),
		SHA: sha,
	})
	if err != nil {
		return nil, fail(StepCreateRef, err)
	}
	clog.FromContext(ctx).With("branch", p.Branch).With("sha", sha).Info("Created branch")
	return &gateway.Outcome{Ref: ref.GetRef(), SHA: sha}, nil
}

// Commit layers p.Files over the tree at the head of p.Branch, creates a
// commit whose parent is that head, and fast-forwards the branch to it.
// Files whose content is unchanged are left out of the new tree.
func (e *Executor) Commit(ctx context.Context, p gateway.CommitParams) (*gateway.Outcome, error) {
	log := clog.FromContext(ctx).With("repository", p.Repo).With("branch", p.Branch)
	t, err := e.open(ctx, p.Repo)
	if err != nil {
		return nil, err
	}

	head, _, err := t.gh.Git.GetRef(ctx, t.owner, t.repo, branchRef(p.Branch))
	if err != nil {
		return nil, fail(StepGetRef, err)
	}
	headSHA := head.GetObject().GetSHA()

	parent, _, err := t.gh.Git.GetCommit(ctx, t.owner, t.repo, headSHA)
	if err != nil {
		return nil, fail(StepGetCommit, err)
	}
	baseTree := parent.GetTree().GetSHA()

	base, _, err := t.gh.Git.GetTree(ctx, t.owner, t.repo, baseTree, true)
	if err != nil {
		return nil, fail(StepGetTree, err)
	}
	existing := make(map[string]*github.TreeEntry, len(base.Entries))
	for _, entry := range base.Entries {
		existing[entry.GetPath()] = entry
	}

	entries, skipped := buildEntries(p.Files, existing)
	if len(entries) == 0 {
		return nil, fail(StepBuildTree, ErrNoChanges)
	}
	if skipped > 0 {
		log.With("unchanged", skipped).Info("Skipping unchanged files")
	}

	tree, _, err := t.gh.Git.CreateTree(ctx, t.owner, t.repo, baseTree, entries)
	if err != nil {
		return nil, fail(StepCreateTree, err)
	}

	commit, _, err := t.gh.Git.CreateCommit(ctx, t.owner, t.repo, github.Commit{
		Message: github.Ptr(p.Message),
		Tree:    &github.Tree{SHA: tree.SHA},
		Parents: []*github.Commit{{SHA: github.Ptr(headSHA)}},
	}, nil)
	if err != nil {
		return nil, fail(StepCreateCommit, err)
	}

	// Without force the API refuses anything but a fast-forward, so a
	// concurrent push to the branch fails here instead of being lost.
	ref, _, err := t.gh.Git.UpdateRef(ctx, t.owner, t.repo, branchRef(p.Branch), github.UpdateRef{
		SHA:   commit.GetSHA(),
		Force: github.Ptr(false),
	})
	if err != nil {
		return nil, fail(StepUpdateRef, err)
	}
	log.With("sha", commit.GetSHA()).With("files", len(entries)).Info("Committed changes")
	return &gateway.Outcome{SHA: commit.GetSHA(), Ref: ref.GetRef(), URL: commit.GetHTMLURL()}, nil
}

// buildEntries returns tree entries for the files whose git blob hash
// differs from the base tree, and how many were skipped.
func buildEntries(files []gateway.FileChange, existing map[string]*github.TreeEntry) ([]*github.TreeEntry, int) {
	var entries []*github.TreeEntry
	skipped := 0
	for _, f := range files {
		mode := "100644"
		if cur, ok := existing[f.Path]; ok && cur.GetType() == "blob" {
			if plumbing.ComputeHash(plumbing.BlobObject, []byte(f.Content)).String() == cur.GetSHA() {
				skipped++
				continue
			}
			if cur.GetMode() != "" {
				mode = cur.GetMode()
			}
		}
		entries = append(entries, &github.TreeEntry{
			Path:    github.Ptr(f.Path),
			Mode:    github.Ptr(mode),
			Type:    github.Ptr("blob"),
			Content: github.Ptr(f.Content),
		})
	}
	return entries, skipped
}

// Push fast-forwards p.Branch to p.SHA.
func (e *Executor) Push(ctx context.Context, p gateway.PushParams) (*gateway.Outcome, error) {
	t, err := e.open(ctx, p.Repo)
	if err != nil {
		return nil, err
	}
	// The refs API needs the full object id.
	commit, _, err := t.gh.Repositories.GetCommit(ctx, t.owner, t.repo, p.SHA, nil)
	if err != nil {
		return nil, fail(StepResolveCommit, err)
	}
	ref, _, err := t.gh.Git.UpdateRef(ctx, t.owner, t.repo, branchRef(p.Branch), github.UpdateRef{
		SHA:   commit.GetSHA(),
		Force: github.Ptr(false),
	})
	if err != nil {
		return nil, fail(StepUpdateRef, err)
	}
	clog.FromContext(ctx).With("branch", p.Branch).With("sha", commit.GetSHA()).Info("Pushed branch")
	return &gateway.Outcome{SHA: commit.GetSHA(), Ref: ref.GetRef(), URL: commit.GetHTMLURL()}, nil
}

// CreatePullRequest opens a pull request from p.Head into p.Base.
func (e *Executor) CreatePullRequest(ctx context.Context, p gateway.PullRequestParams) (*gateway.Outcome, error) {
	t, err := e.open(ctx, p.Repo)
	if err != nil {
		return nil, err
	}
	pr, _, err := t.gh.PullRequests.Create(ctx, t.owner, t.repo, &github.NewPullRequest{
		Title: github.Ptr(p.Title),
		Head:  github.Ptr(p.Head),
		Base:  github.Ptr(p.Base),
		Body:  github.Ptr(p.Body),
	})
	if err != nil {
		return nil, fail(StepCreatePullRequest, err)
	}
	clog.FromContext(ctx).With("number", pr.GetNumber()).Info("Opened pull request")
	return &gateway.Outcome{Number: pr.GetNumber(), URL: pr.GetHTMLURL(), SHA: pr.GetHead().GetSHA()}, nil
}
