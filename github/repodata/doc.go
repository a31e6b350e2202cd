/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package repodata is the read path to a GitHub repository: file and
// directory contents, code search, README, branches, commits and tree
// structure.
//
// Every method takes the access token and the "owner/repo" path explicitly
// and fails with a *Error carrying a machine-readable Code and a suggested
// remediation.
package repodata
