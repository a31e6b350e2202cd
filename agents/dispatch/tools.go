/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package dispatch

import "chainguard.dev/repopilot/agents/toolcall"

// Tool identifies one tool offered to the model.
type Tool int

const (
	ReadFile Tool = iota
	ListDirectory
	SearchCode
	GetReadme
	ListBranches
	GetCommitDetails
	GetRepositoryStructure
	CreateBranch
	CommitChanges
	CreatePullRequest

	numTools
)

var toolNames = [numTools]string{
	ReadFile:               "read_file",
	ListDirectory:          "list_directory",
	SearchCode:             "search_code",
	GetReadme:              "get_readme",
	ListBranches:           "list_branches",
	GetCommitDetails:       "get_commit_details",
	GetRepositoryStructure: "get_repository_structure",
	CreateBranch:           "create_branch",
	CommitChanges:          "commit_changes",
	CreatePullRequest:      "create_pull_request",
}

func (t Tool) String() string {
	if t < 0 || t >= numTools {
		return "unknown"
	}
	return toolNames[t]
}

// Write reports whether the tool proposes a repository change.
func (t Tool) Write() bool {
	return t >= CreateBranch && t < numTools
}

// Parse resolves a tool name.
func Parse(name string) (Tool, bool) {
	for t, n := range toolNames {
		if n == name {
			return Tool(t), true
		}
	}
	return -1, false
}

// All lists every tool in declaration order.
func All() []Tool {
	tools := make([]Tool, numTools)
	for i := range tools {
		tools[i] = Tool(i)
	}
	return tools
}

// Definition returns the schema the model sees for t.
func (t Tool) Definition() toolcall.Definition {
	d := definitions[t]
	d.Name = t.String()
	return d
}

// Definitions returns the definitions of every tool.
func Definitions() []toolcall.Definition {
	defs := make([]toolcall.Definition, 0, numTools)
	for _, t := range All() {
		defs = append(defs, t.Definition())
	}
	return defs
}

var definitions = [numTools]toolcall.Definition{
	ReadFile: {
		Description: "Read the contents of a text file in the connected repository.",
		Parameters: []toolcall.Parameter{
			{Name: "file_path", Type: "string", Description: "Path of the file relative to the repository root, e.g. src/main.go", Required: true},
		},
	},
	ListDirectory: {
		Description: "List the files and subdirectories of a directory in the connected repository.",
		Parameters: []toolcall.Parameter{
			{Name: "directory_path", Type: "string", Description: "Directory relative to the repository root. Use an empty string for the root."},
		},
	},
	SearchCode: {
		Description: "Search the connected repository's code for a query string and return the matching files.",
		Parameters: []toolcall.Parameter{
			{Name: "query", Type: "string", Description: "Text to search for.", Required: true},
		},
	},
	GetReadme: {
		Description: "Fetch the README of the connected repository.",
	},
	ListBranches: {
		Description: "List the branches of the connected repository and the commit each points at.",
	},
	GetCommitDetails: {
		Description: "Get the message, author, and changed files of a commit.",
		Parameters: []toolcall.Parameter{
			{Name: "commit_sha", Type: "string", Description: "Full or abbreviated commit SHA.", Required: true},
		},
	},
	GetRepositoryStructure: {
		Description: "Get an overview of the repository's file tree down to a bounded depth.",
		Parameters: []toolcall.Parameter{
			{Name: "max_depth", Type: "integer", Description: "How many directory levels to include, from 1 to 3. Defaults to 2."},
		},
	},
	CreateBranch: {
		Description: "Propose creating a new branch. The branch is created only after the user approves.",
		Parameters: []toolcall.Parameter{
			{Name: "branch_name", Type: "string", Description: "Name of the new branch, e.g. feature/add-logging. Must not be main, master or HEAD.", Required: true},
			{Name: "from_branch", Type: "string", Description: "Branch to start from. Defaults to main."},
		},
	},
	CommitChanges: {
		Description: "Propose committing new contents for one or more files to a branch. The commit is made only after the user approves.",
		Parameters: []toolcall.Parameter{
			{
				Name:        "files",
				Type:        "array",
				Description: "Files to write, each with its full new content.",
				Required:    true,
				Items: &toolcall.Parameter{
					Type: "object",
					Properties: []toolcall.Parameter{
						{Name: "path", Type: "string", Description: "File path relative to the repository root.", Required: true},
						{Name: "content", Type: "string", Description: "Complete new file content.", Required: true},
					},
				},
			},
			{Name: "message", Type: "string", Description: "Commit message, 3 to 500 characters.", Required: true},
			{Name: "branch", Type: "string", Description: "Branch to commit to. Must not be main, master or HEAD.", Required: true},
		},
	},
	CreatePullRequest: {
		Description: "Propose opening a pull request. It is opened only after the user approves.",
		Parameters: []toolcall.Parameter{
			{Name: "title", Type: "string", Description: "Pull request title, 5 to 255 characters.", Required: true},
			{Name: "body", Type: "string", Description: "Pull request description in markdown."},
			{Name: "head_branch", Type: "string", Description: "Branch containing the changes.", Required: true},
			{Name: "base_branch", Type: "string", Description: "Branch to merge into. Defaults to main."},
		},
	},
}
