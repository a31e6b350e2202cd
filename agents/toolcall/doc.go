/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package toolcall defines the provider-independent shapes exchanged with a
// model during tool use: tool definitions, the calls a model makes, and the
// results fed back to it.
//
// Backends convert Definitions to their SDK types, and the dispatcher turns
// each Call into a Result with the same ID.
package toolcall
