/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package validate checks the parameters of repository write operations
// before they are queued for approval.
//
// Every validator trims its input, returns the normalized value, and fails
// with a *Error describing what is wrong and how to fix it.
package validate

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// Code classifies a validation failure.
type Code string

const (
	CodeInvalid          Code = "invalid"
	CodeEmpty            Code = "empty"
	CodeTooShort         Code = "too_short"
	CodeTooLong          Code = "too_long"
	CodeProtectedBranch  Code = "protected_branch"
	CodePathTraversal    Code = "path_traversal"
	CodeAbsolutePath     Code = "absolute_path"
	CodeUnsafeCharacters Code = "unsafe_characters"
	CodeNotText          Code = "not_text"
)

// Error is returned by every validator in this package.
type Error struct {
	Field      string
	Code       Code
	Message    string
	Suggestion string
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Permission reports whether the failure is a policy refusal rather than a
// malformed value.
func (e *Error) Permission() bool {
	return e.Code == CodeProtectedBranch
}

// As extracts a *Error from err.
func As(err error) (*Error, bool) {
	var verr *Error
	if errors.As(err, &verr) {
		return verr, true
	}
	return nil, false
}

const (
	MinCommitMessage = 3
	MaxCommitMessage = 500
	MinTitle         = 5
	MaxTitle         = 255
	MaxPath          = 255
	MaxContentBytes  = 1 << 20
)

// ProtectedBranches can never be the target of a write.
var ProtectedBranches = []string{"HEAD", "main", "master"}

var (
	branchPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+(/[A-Za-z0-9_-]+)*$`)
	repoPattern     = regexp.MustCompile(`^[A-Za-z0-9_.-]+/[A-Za-z0-9_.-]+$`)
	shaPattern      = regexp.MustCompile(`^[0-9a-fA-F]{7,40}$`)
	blankLines      = regexp.MustCompile(`\n{3,}`)
	unsafePathChars = `<>:"\|?*`
)

// CommitMessage trims the message, collapses runs of three or more
// newlines to two, and enforces the length bounds.
func CommitMessage(msg string) (string, error) {
	msg = strings.ReplaceAll(msg, "\r\n", "\n")
	msg = blankLines.ReplaceAllString(strings.TrimSpace(msg), "\n\n")
	n := utf8.RuneCountInString(msg)
	switch {
	case n < MinCommitMessage:
		return "", &Error{
			Field:      "message",
			Code:       CodeTooShort,
			Message:    fmt.Sprintf("commit message must be at least %d characters, got %d", MinCommitMessage, n),
			Suggestion: "Describe what the change does in a short sentence.",
		}
	case n > MaxCommitMessage:
		return "", &Error{
			Field:      "message",
			Code:       CodeTooLong,
			Message:    fmt.Sprintf("commit message must be at most %d characters, got %d", MaxCommitMessage, n),
			Suggestion: "Shorten the message and move detail into the pull request body.",
		}
	}
	return msg, nil
}

// Ref checks that name is a well-formed branch name without applying the
// protected-branch policy. It is used for read-only references such as the
// base of a new branch or pull request.
func Ref(field, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", &Error{
			Field:      field,
			Code:       CodeEmpty,
			Message:    "branch name is required",
			Suggestion: "Provide a branch name such as feature/my-change.",
		}
	}
	if !branchPattern.MatchString(name) {
		return "", &Error{
			Field:      field,
			Code:       CodeInvalid,
			Message:    fmt.Sprintf("branch name %q may only contain letters, digits, '-', '_' and single '/' separators", name),
			Suggestion: "Use a name like feature/add-login without spaces, leading or trailing slashes.",
		}
	}
	return name, nil
}

// BranchName validates a branch that will be written to. Protected
// branches are refused outright.
func BranchName(field, name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if slices.Contains(ProtectedBranches, trimmed) {
		return "", &Error{
			Field:      field,
			Code:       CodeProtectedBranch,
			Message:    fmt.Sprintf("writing to protected branch %q is not permitted", trimmed),
			Suggestion: "Create a feature branch and open a pull request instead.",
		}
	}
	return Ref(field, trimmed)
}

// FilePath validates a repository-relative file path.
func FilePath(path string) (string, error) {
	path = strings.TrimSpace(path)
	switch {
	case path == "":
		return "", &Error{
			Field:      "path",
			Code:       CodeEmpty,
			Message:    "file path is required",
			Suggestion: "Provide a path relative to the repository root, such as src/main.go.",
		}
	case strings.HasPrefix(path, "/"):
		return "", &Error{
			Field:      "path",
			Code:       CodeAbsolutePath,
			Message:    fmt.Sprintf("file path %q must be relative", path),
			Suggestion: "Remove the leading '/'.",
		}
	case strings.Contains(path, ".."):
		return "", &Error{
			Field:      "path",
			Code:       CodePathTraversal,
			Message:    fmt.Sprintf("file path %q must not contain '..'", path),
			Suggestion: "Refer to files inside the repository only.",
		}
	case len(path) > MaxPath:
		return "", &Error{
			Field:      "path",
			Code:       CodeTooLong,
			Message:    fmt.Sprintf("file path must be at most %d characters, got %d", MaxPath, len(path)),
			Suggestion: "Use a shorter path.",
		}
	case strings.ContainsAny(path, unsafePathChars):
		return "", &Error{
			Field:      "path",
			Code:       CodeUnsafeCharacters,
			Message:    fmt.Sprintf("file path %q contains one of %s", path, unsafePathChars),
			Suggestion: "Use only characters that are valid on every filesystem.",
		}
	}
	return path, nil
}

// FileContent checks that content is text and at most MaxContentBytes.
func FileContent(path, content string) error {
	if len(content) > MaxContentBytes {
		return &Error{
			Field:      "content",
			Code:       CodeTooLong,
			Message:    fmt.Sprintf("content of %s is %d bytes, the limit is %d", path, len(content), MaxContentBytes),
			Suggestion: "Split the change into smaller files.",
		}
	}
	if !utf8.ValidString(content) || strings.ContainsRune(content, 0) {
		return &Error{
			Field:      "content",
			Code:       CodeNotText,
			Message:    fmt.Sprintf("content of %s is not valid text", path),
			Suggestion: "Only UTF-8 text files can be committed.",
		}
	}
	return nil
}

// Title validates an issue or pull request title.
func Title(title string) (string, error) {
	title = strings.TrimSpace(title)
	n := utf8.RuneCountInString(title)
	switch {
	case n < MinTitle:
		return "", &Error{
			Field:      "title",
			Code:       CodeTooShort,
			Message:    fmt.Sprintf("title must be at least %d characters, got %d", MinTitle, n),
			Suggestion: "Summarize the change in a few words.",
		}
	case n > MaxTitle:
		return "", &Error{
			Field:      "title",
			Code:       CodeTooLong,
			Message:    fmt.Sprintf("title must be at most %d characters, got %d", MaxTitle, n),
			Suggestion: "Move detail into the body.",
		}
	}
	return title, nil
}

// RepoPath splits an "owner/repo" path.
func RepoPath(path string) (owner, repo string, err error) {
	path = strings.TrimSpace(path)
	if !repoPattern.MatchString(path) {
		return "", "", &Error{
			Field:      "repository",
			Code:       CodeInvalid,
			Message:    fmt.Sprintf("repository %q is not of the form owner/repo", path),
			Suggestion: "Use the owner/repo form, e.g. octocat/hello-world.",
		}
	}
	owner, repo, _ = strings.Cut(path, "/")
	return owner, repo, nil
}

// CommitSHA validates an abbreviated or full hexadecimal commit id.
func CommitSHA(field, sha string) (string, error) {
	sha = strings.TrimSpace(sha)
	if !shaPattern.MatchString(sha) {
		return "", &Error{
			Field:      field,
			Code:       CodeInvalid,
			Message:    fmt.Sprintf("%q is not a commit SHA", sha),
			Suggestion: "Use the 7 to 40 character hexadecimal commit id.",
		}
	}
	return strings.ToLower(sha), nil
}
