/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repodata

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"chainguard.dev/repopilot/agents/validate"
	"chainguard.dev/repopilot/github/ghclient"
	"github.com/chainguard-dev/clog"
	"github.com/google/go-github/v75/github"
	"github.com/shurcooL/githubv4"
)

const (
	// MaxDepth bounds GetStructure.
	MaxDepth = 3
	// maxEntries bounds directory listings and structure output.
	maxEntries = 1000
	// maxBranches bounds ListBranches paging.
	maxBranches = 500
	maxSearchResults = 30
	maxPatchBytes    = 4096
)

// File is a decoded text file.
type File struct {
	Path    string `json:"path"`
	SHA     string `json:"sha"`
	Size    int    `json:"size"`
	Content string `json:"content"`
}

// Entry is one directory or tree entry. Type is "file", "dir", "symlink"
// or "submodule".
type Entry struct {
	Name string `json:"name"`
	Path string `json:"path"`
	Type string `json:"type"`
	Size int    `json:"size,omitempty"`
}

// SearchMatch is one code search hit.
type SearchMatch struct {
	Name string `json:"name"`
	Path string `json:"path"`
	URL  string `json:"url"`
}

// SearchResult is the outcome of a code search.
type SearchResult struct {
	Total   int           `json:"total"`
	Matches []SearchMatch `json:"matches"`
}

// Branch is one branch head.
type Branch struct {
	Name    string `json:"name"`
	SHA     string `json:"sha"`
	Default bool   `json:"default,omitempty"`
}

// ChangedFile is one file touched by a commit.
type ChangedFile struct {
	Filename  string `json:"filename"`
	Status    string `json:"status"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Patch     string `json:"patch,omitempty"`
}

// Commit describes one commit.
type Commit struct {
	SHA       string        `json:"sha"`
	Message   string        `json:"message"`
	Author    string        `json:"author"`
	Date      string        `json:"date"`
	Additions int           `json:"additions"`
	Deletions int           `json:"deletions"`
	Files     []ChangedFile `json:"files"`
}

// Provider reads repository data through cached GitHub clients.
type Provider struct {
	clients *ghclient.Cache
}

// New returns a Provider.
func New(clients *ghclient.Cache) *Provider {
	return &Provider{clients: clients}
}

func (p *Provider) open(ctx context.Context, token, repoPath string) (*ghclient.Clients, string, string, error) {
	owner, repo, err := validate.RepoPath(repoPath)
	if err != nil {
		return nil, "", "", classify(err, repoPath)
	}
	cl, err := p.clients.Get(ctx, token)
	if err != nil {
		return nil, "", "", classify(err, repoPath)
	}
	return cl, owner, repo, nil
}

// ReadFile fetches and decodes the file at path on the default branch.
func (p *Provider) ReadFile(ctx context.Context, token, repoPath, path string) (*File, error) {
	cl, owner, repo, err := p.open(ctx, token, repoPath)
	if err != nil {
		return nil, err
	}
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		return nil, &Error{Code: CodeValidation, Message: "file path is required", Suggestion: "Provide a path such as README.md."}
	}

	file, dir, _, err := cl.REST.Repositories.GetContents(ctx, owner, repo, path, nil)
	if err != nil {
		return nil, classify(err, path)
	}
	if file == nil || dir != nil {
		return nil, &Error{
			Code:       CodeValidation,
			Message:    fmt.Sprintf("%s is a directory", path),
			Suggestion: "Use list_directory to see its contents.",
		}
	}
	return decode(file)
}

// GetReadme fetches the repository README.
func (p *Provider) GetReadme(ctx context.Context, token, repoPath string) (*File, error) {
	cl, owner, repo, err := p.open(ctx, token, repoPath)
	if err != nil {
		return nil, err
	}
	readme, _, err := cl.REST.Repositories.GetReadme(ctx, owner, repo, nil)
	if err != nil {
		return nil, classify(err, "README")
	}
	return decode(readme)
}

func decode(rc *github.RepositoryContent) (*File, error) {
	content, err := rc.GetContent()
	if err != nil {
		return nil, &Error{
			Code:       CodeValidation,
			Message:    fmt.Sprintf("%s cannot be decoded: %v", rc.GetPath(), err),
			Suggestion: "Files larger than 1 MB cannot be read through the API.",
			Err:        err,
		}
	}
	if !utf8.ValidString(content) || strings.ContainsRune(content, 0) {
		return nil, &Error{
			Code:       CodeValidation,
			Message:    fmt.Sprintf("%s is a binary file", rc.GetPath()),
			Suggestion: "Only text files can be read.",
		}
	}
	return &File{
		Path:    rc.GetPath(),
		SHA:     rc.GetSHA(),
		Size:    rc.GetSize(),
		Content: content,
	}, nil
}

// ListDirectory lists the entries of dir. An empty dir lists the root.
func (p *Provider) ListDirectory(ctx context.Context, token, repoPath, dir string) ([]Entry, error) {
	cl, owner, repo, err := p.open(ctx, token, repoPath)
	if err != nil {
		return nil, err
	}
	dir = strings.Trim(strings.TrimSpace(dir), "/")

	file, entries, _, err := cl.REST.Repositories.GetContents(ctx, owner, repo, dir, nil)
	if err != nil {
		return nil, classify(err, "directory "+displayPath(dir))
	}
	if file != nil {
		return nil, &Error{
			Code:       CodeValidation,
			Message:    fmt.Sprintf("%s is a file", dir),
			Suggestion: "Use read_file to read it.",
		}
	}

	out := make([]Entry, 0, len(entries))
	for _, e := range entries {
		out = append(out, Entry{Name: e.GetName(), Path: e.GetPath(), Type: e.GetType(), Size: e.GetSize()})
	}
	sort.Slice(out, func(i, j int) bool {
		if (out[i].Type == "dir") != (out[j].Type == "dir") {
			return out[i].Type == "dir"
		}
		return out[i].Path < out[j].Path
	})
	if len(out) > maxEntries {
		out = out[:maxEntries]
	}
	return out, nil
}

// SearchCode runs a code search scoped to the repository.
func (p *Provider) SearchCode(ctx context.Context, token, repoPath, query string) (*SearchResult, error) {
	cl, _, _, err := p.open(ctx, token, repoPath)
	if err != nil {
		return nil, err
	}
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &Error{Code: CodeValidation, Message: "search query is required", Suggestion: "Search for an identifier or phrase."}
	}

	res, _, err := cl.REST.Search.Code(ctx, fmt.Sprintf("%s repo:%s", query, repoPath), &github.SearchOptions{
		ListOptions: github.ListOptions{PerPage: maxSearchResults},
	})
	if err != nil {
		return nil, classify(err, "search results")
	}
	out := &SearchResult{Total: res.GetTotal(), Matches: make([]SearchMatch, 0, len(res.CodeResults))}
	for _, r := range res.CodeResults {
		out.Matches = append(out.Matches, SearchMatch{Name: r.GetName(), Path: r.GetPath(), URL: r.GetHTMLURL()})
	}
	return out, nil
}

// ListBranches lists branch heads through the GraphQL API.
func (p *Provider) ListBranches(ctx context.Context, token, repoPath string) ([]Branch, error) {
	cl, owner, repo, err := p.open(ctx, token, repoPath)
	if err != nil {
		return nil, err
	}

	var q struct {
		Repository struct {
			DefaultBranchRef struct {
				Name string
			}
			Refs struct {
				Nodes []struct {
					Name   string
					Target struct {
						Oid githubv4.GitObjectID
					}
				}
				PageInfo struct {
					HasNextPage bool
					EndCursor   githubv4.String
				}
			} `graphql:"refs(refPrefix: \"refs/heads/\", first: 100, after: $cursor)"`
		} `graphql:"repository(owner: $owner, name: $repo)"`
	}
	vars := map[string]any{
		"owner":  githubv4.String(owner),
		"repo":   githubv4.String(repo),
		"cursor": (*githubv4.String)(nil),
	}

	var out []Branch
	for {
		if err := cl.GraphQL.Query(ctx, &q, vars); err != nil {
			return nil, classify(err, "branches")
		}
		for _, n := range q.Repository.Refs.Nodes {
			out = append(out, Branch{
				Name:    n.Name,
				SHA:     string(n.Target.Oid),
				Default: n.Name == q.Repository.DefaultBranchRef.Name,
			})
		}
		if !q.Repository.Refs.PageInfo.HasNextPage || len(out) >= maxBranches {
			break
		}
		vars["cursor"] = githubv4.NewString(q.Repository.Refs.PageInfo.EndCursor)
	}
	clog.FromContext(ctx).With("repository", repoPath).With("branches", len(out)).Debug("Listed branches")
	return out, nil
}

// GetCommit returns the details of the commit sha, with per-file patches
// truncated.
func (p *Provider) GetCommit(ctx context.Context, token, repoPath, sha string) (*Commit, error) {
	cl, owner, repo, err := p.open(ctx, token, repoPath)
	if err != nil {
		return nil, err
	}
	sha, err = validate.CommitSHA("commit_sha", sha)
	if err != nil {
		return nil, classify(err, "commit")
	}

	rc, _, err := cl.REST.Repositories.GetCommit(ctx, owner, repo, sha, nil)
	if err != nil {
		return nil, classify(err, "commit "+sha)
	}
	c := &Commit{
		SHA:       rc.GetSHA(),
		Message:   rc.GetCommit().GetMessage(),
		Author:    rc.GetCommit().GetAuthor().GetName(),
		Additions: rc.GetStats().GetAdditions(),
		Deletions: rc.GetStats().GetDeletions(),
	}
	if d := rc.GetCommit().GetAuthor().GetDate(); !d.IsZero() {
		c.Date = d.Format("2006-01-02T15:04:05Z07:00")
	}
	for _, f := range rc.Files {
		patch := f.GetPatch()
		if len(patch) > maxPatchBytes {
			patch = patch[:maxPatchBytes] + "\n... (truncated)"
		}
		c.Files = append(c.Files, ChangedFile{
			Filename:  f.GetFilename(),
			Status:    f.GetStatus(),
			Additions: f.GetAdditions(),
			Deletions: f.GetDeletions(),
			Patch:     patch,
		})
	}
	return c, nil
}

// GetStructure returns the tree of the default branch down to maxDepth
// levels. maxDepth is clamped to [1, MaxDepth].
func (p *Provider) GetStructure(ctx context.Context, token, repoPath string, maxDepth int) ([]Entry, error) {
	cl, owner, repo, err := p.open(ctx, token, repoPath)
	if err != nil {
		return nil, err
	}
	maxDepth = max(1, min(maxDepth, MaxDepth))

	tree, _, err := cl.REST.Git.GetTree(ctx, owner, repo, "HEAD", maxDepth > 1)
	if err != nil {
		return nil, classify(err, "repository tree")
	}
	var out []Entry
	for _, e := range tree.Entries {
		path := e.GetPath()
		if strings.Count(path, "/")+1 > maxDepth {
			continue
		}
		name := path
		if i := strings.LastIndex(path, "/"); i >= 0 {
			name = path[i+1:]
		}
		out = append(out, Entry{Name: name, Path: path, Type: treeEntryType(e), Size: e.GetSize()})
		if len(out) >= maxEntries {
			break
		}
	}
	return out, nil
}

func treeEntryType(e *github.TreeEntry) string {
	switch e.GetType() {
	case "tree":
		return "dir"
	case "commit":
		return "submodule"
	}
	if e.GetMode() == "120000" {
		return "symlink"
	}
	return "file"
}

func displayPath(dir string) string {
	if dir == "" {
		return "/"
	}
	return dir
}
