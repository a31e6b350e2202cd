/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"chainguard.dev/repopilot/agents/validate"
)

// ActionType names a kind of repository write.
type ActionType string

const (
	TypeCreateBranch      ActionType = "create_branch"
	TypeCommit            ActionType = "commit"
	TypePush              ActionType = "push"
	TypeCreatePullRequest ActionType = "create_pull_request"
)

// Status is where an Action is in its lifecycle.
type Status string

const (
	StatusPending         Status = "pending"
	StatusApproved        Status = "approved"
	StatusExecuted        Status = "executed"
	StatusExecutionFailed Status = "execution_failed"
	StatusRejected        Status = "rejected"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusRejected
}

// Params are the arguments of one write. Implementations are the *Params
// types in this package.
type Params interface {
	// Type is the action type the parameters belong to.
	Type() ActionType
	// Normalize validates the parameters and returns the trimmed,
	// fully-resolved copy that will be stored.
	Normalize() (Params, error)
	// Describe is a one-line summary for the approver.
	Describe() string
	// Target is the repository and branch the write changes.
	Target() (repo, branch string)
}

// CreateBranchParams creates Branch pointing at the head of From.
type CreateBranchParams struct {
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
	From   string `json:"from"`
}

func (CreateBranchParams) Type() ActionType { return TypeCreateBranch }

func (p CreateBranchParams) Normalize() (Params, error) {
	var err error
	if _, _, err = validate.RepoPath(p.Repo); err != nil {
		return nil, err
	}
	p.Repo = strings.TrimSpace(p.Repo)
	if p.Branch, err = validate.BranchName("branch_name", p.Branch); err != nil {
		return nil, err
	}
	if p.From, err = validate.Ref("from_branch", p.From); err != nil {
		return nil, err
	}
	return p, nil
}

func (p CreateBranchParams) Describe() string {
	return fmt.Sprintf("Create branch %s from %s in %s", p.Branch, p.From, p.Repo)
}

func (p CreateBranchParams) Target() (string, string) { return p.Repo, p.Branch }

// FileChange is the full new content of one file.
type FileChange struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// CommitParams commits Files on top of the head of Branch.
type CommitParams struct {
	Repo    string       `json:"repo"`
	Branch  string       `json:"branch"`
	Message string       `json:"message"`
	Files   []FileChange `json:"files"`
}

func (CommitParams) Type() ActionType { return TypeCommit }

func (p CommitParams) Normalize() (Params, error) {
	var err error
	if _, _, err = validate.RepoPath(p.Repo); err != nil {
		return nil, err
	}
	p.Repo = strings.TrimSpace(p.Repo)
	if p.Branch, err = validate.BranchName("branch", p.Branch); err != nil {
		return nil, err
	}
	if p.Message, err = validate.CommitMessage(p.Message); err != nil {
		return nil, err
	}
	if len(p.Files) == 0 {
		return nil, &validate.Error{
			Field:      "files",
			Code:       validate.CodeEmpty,
			Message:    "at least one file is required",
			Suggestion: "Provide the path and full new content of every file to change.",
		}
	}
	files := make([]FileChange, 0, len(p.Files))
	seen := make(map[string]bool, len(p.Files))
	for _, f := range p.Files {
		path, err := validate.FilePath(f.Path)
		if err != nil {
			return nil, err
		}
		if seen[path] {
			return nil, &validate.Error{
				Field:      "files",
				Code:       validate.CodeInvalid,
				Message:    fmt.Sprintf("file %s appears more than once", path),
				Suggestion: "Merge the changes to each file into a single entry.",
			}
		}
		seen[path] = true
		if err := validate.FileContent(path, f.Content); err != nil {
			return nil, err
		}
		files = append(files, FileChange{Path: path, Content: f.Content})
	}
	p.Files = files
	return p, nil
}

func (p CommitParams) Describe() string {
	subject, _, _ := strings.Cut(p.Message, "\n")
	noun := "files"
	if len(p.Files) == 1 {
		noun = "file"
	}
	return fmt.Sprintf("Commit %d %s to %s in %s: %s", len(p.Files), noun, p.Branch, p.Repo, subject)
}

func (p CommitParams) Target() (string, string) { return p.Repo, p.Branch }

// PushParams fast-forwards Branch to the commit SHA.
type PushParams struct {
	Repo   string `json:"repo"`
	Branch string `json:"branch"`
	SHA    string `json:"sha"`
}

func (PushParams) Type() ActionType { return TypePush }

func (p PushParams) Normalize() (Params, error) {
	var err error
	if _, _, err = validate.RepoPath(p.Repo); err != nil {
		return nil, err
	}
	p.Repo = strings.TrimSpace(p.Repo)
	if p.Branch, err = validate.BranchName("branch", p.Branch); err != nil {
		return nil, err
	}
	if p.SHA, err = validate.CommitSHA("sha", p.SHA); err != nil {
		return nil, err
	}
	return p, nil
}

func (p PushParams) Describe() string {
	short := p.SHA
	if len(short) > 7 {
		short = short[:7]
	}
	return fmt.Sprintf("Push %s to %s in %s", short, p.Branch, p.Repo)
}

func (p PushParams) Target() (string, string) { return p.Repo, p.Branch }

// PullRequestParams opens a pull request from Head into Base.
type PullRequestParams struct {
	Repo  string `json:"repo"`
	Title string `json:"title"`
	Body  string `json:"body"`
	Head  string `json:"head"`
	Base  string `json:"base"`
}

func (PullRequestParams) Type() ActionType { return TypeCreatePullRequest }

func (p PullRequestParams) Normalize() (Params, error) {
	var err error
	if _, _, err = validate.RepoPath(p.Repo); err != nil {
		return nil, err
	}
	p.Repo = strings.TrimSpace(p.Repo)
	if p.Title, err = validate.Title(p.Title); err != nil {
		return nil, err
	}
	// The head branch is where the work lives and must not be protected.
	if p.Head, err = validate.BranchName("head_branch", p.Head); err != nil {
		return nil, err
	}
	if p.Base, err = validate.Ref("base_branch", p.Base); err != nil {
		return nil, err
	}
	if p.Head == p.Base {
		return nil, &validate.Error{
			Field:      "base_branch",
			Code:       validate.CodeInvalid,
			Message:    "head and base branches are the same",
			Suggestion: "Open the pull request from a feature branch into the default branch.",
		}
	}
	p.Body = strings.TrimSpace(p.Body)
	return p, nil
}

func (p PullRequestParams) Describe() string {
	return fmt.Sprintf("Open pull request %q from %s into %s in %s", p.Title, p.Head, p.Base, p.Repo)
}

func (p PullRequestParams) Target() (string, string) { return p.Repo, p.Head }

// Outcome is what an executed action produced.
type Outcome struct {
	SHA    string `json:"sha,omitempty"`
	Ref    string `json:"ref,omitempty"`
	URL    string `json:"url,omitempty"`
	Number int    `json:"number,omitempty"`
}

// Action is a proposed repository write and its lifecycle.
type Action struct {
	ID          string     `json:"id"`
	Type        ActionType `json:"type"`
	Description string     `json:"description"`
	Params      Params     `json:"params"`
	Status      Status     `json:"status"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Attempts    int        `json:"attempts"`
	Outcome     *Outcome   `json:"outcome,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// Clone returns a copy that shares no mutable state with a.
func (a *Action) Clone() *Action {
	c := *a
	if a.Outcome != nil {
		o := *a.Outcome
		c.Outcome = &o
	}
	if cp, ok := a.Params.(CommitParams); ok {
		cp.Files = append([]FileChange(nil), cp.Files...)
		c.Params = cp
	}
	return &c
}

// MarshalParams encodes p for storage.
func MarshalParams(p Params) ([]byte, error) {
	return json.Marshal(p)
}

// UnmarshalParams decodes parameters stored for an action of type t.
func UnmarshalParams(t ActionType, data []byte) (Params, error) {
	var (
		p   Params
		err error
	)
	switch t {
	case TypeCreateBranch:
		var v CreateBranchParams
		err = json.Unmarshal(data, &v)
		p = v
	case TypeCommit:
		var v CommitParams
		err = json.Unmarshal(data, &v)
		p = v
	case TypePush:
		var v PushParams
		err = json.Unmarshal(data, &v)
		p = v
	case TypeCreatePullRequest:
		var v PullRequestParams
		err = json.Unmarshal(data, &v)
		p = v
	default:
		return nil, fmt.Errorf("unknown action type %q", t)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding %s params: %w", t, err)
	}
	return p, nil
}

// UnmarshalJSON decodes an Action, resolving Params by Type.
func (a *Action) UnmarshalJSON(data []byte) error {
	type plain Action
	var raw struct {
		plain
		Params json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*a = Action(raw.plain)
	if len(raw.Params) == 0 {
		return nil
	}
	p, err := UnmarshalParams(a.Type, raw.Params)
	if err != nil {
		return err
	}
	a.Params = p
	return nil
}
