/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package repodata

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"chainguard.dev/repopilot/agents/validate"
	"chainguard.dev/repopilot/github/ghclient"
	"github.com/google/go-github/v75/github"
)

// Code is a machine-readable failure class.
type Code string

const (
	CodeInvalidToken     Code = "INVALID_TOKEN"
	CodeRateLimit        Code = "RATE_LIMIT"
	CodePermissionDenied Code = "PERMISSION_DENIED"
	CodeNotFound         Code = "NOT_FOUND"
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeNetwork          Code = "NETWORK_ERROR"
)

// Error is returned by every Provider method.
type Error struct {
	Code       Code
	Message    string
	Suggestion string
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// classify maps a client failure onto an *Error. what names the resource
// being fetched.
func classify(err error, what string) error {
	if err == nil {
		return nil
	}
	if _, ok := AsError(err); ok {
		return err
	}

	if verr, ok := validate.As(err); ok {
		return &Error{Code: CodeValidation, Message: verr.Message, Suggestion: verr.Suggestion, Err: err}
	}
	if errors.Is(err, ghclient.ErrNoToken) {
		return &Error{
			Code:       CodeInvalidToken,
			Message:    "no GitHub token is configured",
			Suggestion: "Connect a GitHub account or set GITHUB_TOKEN.",
			Err:        err,
		}
	}

	var rle *github.RateLimitError
	var abuse *github.AbuseRateLimitError
	if errors.As(err, &rle) || errors.As(err, &abuse) {
		return &Error{
			Code:       CodeRateLimit,
			Message:    fmt.Sprintf("GitHub rate limit exceeded while fetching %s", what),
			Suggestion: "Wait a few minutes before trying again.",
			Err:        err,
		}
	}

	status := 0
	var resp *github.ErrorResponse
	if errors.As(err, &resp) && resp.Response != nil {
		status = resp.Response.StatusCode
	} else {
		// githubv4 reports HTTP failures only in the error text.
		msg := err.Error()
		for _, s := range []int{http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity} {
			if strings.Contains(msg, fmt.Sprintf("%d %s", s, http.StatusText(s))) {
				status = s
				break
			}
		}
	}

	switch status {
	case http.StatusUnauthorized:
		return &Error{
			Code:       CodeInvalidToken,
			Message:    "the GitHub token was rejected",
			Suggestion: "Check that the token is valid and has not expired.",
			Err:        err,
		}
	case http.StatusForbidden:
		return &Error{
			Code:       CodePermissionDenied,
			Message:    fmt.Sprintf("access to %s was denied", what),
			Suggestion: "Make sure the token has the repo scope and access to this repository.",
			Err:        err,
		}
	case http.StatusNotFound:
		return &Error{
			Code:       CodeNotFound,
			Message:    fmt.Sprintf("%s was not found", what),
			Suggestion: "Check the spelling of the path, and list the parent directory to see what exists.",
			Err:        err,
		}
	case http.StatusUnprocessableEntity:
		return &Error{
			Code:       CodeValidation,
			Message:    fmt.Sprintf("GitHub rejected the request for %s", what),
			Suggestion: "Simplify the request and try again.",
			Err:        err,
		}
	}
	return &Error{
		Code:       CodeNetwork,
		Message:    fmt.Sprintf("fetching %s failed: %v", what, err),
		Suggestion: "Check your network connection and try again.",
		Err:        err,
	}
}
