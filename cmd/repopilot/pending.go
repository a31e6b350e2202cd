/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"github.com/spf13/cobra"

	"chainguard.dev/repopilot/agents/gateway"
)

func newPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Review, approve and reject proposed repository changes",
	}
	cmd.AddCommand(
		newPendingListCmd(),
		newPendingShowCmd(),
		newPendingDecisionCmd("approve", "Approve an action and execute it", (*gateway.Gateway).Approve),
		newPendingDecisionCmd("reject", "Reject an action", (*gateway.Gateway).Reject),
		newPendingDecisionCmd("retry", "Execute a failed action again", (*gateway.Gateway).RetryExecution),
		newPendingPushCmd(),
	)
	return cmd
}

// withApp runs fn against a freshly opened app and closes it afterwards.
func withApp(ctx context.Context, fn func(*app) error) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func newPendingListCmd() *cobra.Command {
	var all bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List actions awaiting a decision",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				statuses := []gateway.Status{gateway.StatusPending, gateway.StatusExecutionFailed}
				if all {
					statuses = nil
				}
				actions, err := a.gateway.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				return renderActions(cmd.OutOrStdout(), actions)
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include approved, executed and rejected actions")
	return cmd
}

func newPendingShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show an action with its parameters",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				act, err := a.gateway.Get(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return showAction(cmd.OutOrStdout(), act)
			})
		},
	}
}

type decision func(*gateway.Gateway, context.Context, string) (*gateway.Action, error)

func newPendingDecisionCmd(use, short string, decide decision) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				act, err := decide(a.gateway, cmd.Context(), args[0])
				if act != nil {
					if serr := showAction(cmd.OutOrStdout(), act); serr != nil && err == nil {
						err = serr
					}
				}
				return err
			})
		},
	}
}

func newPendingPushCmd() *cobra.Command {
	var p gateway.PushParams
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Propose moving a branch to an existing commit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(a *app) error {
				act, err := a.gateway.Propose(cmd.Context(), p)
				if err != nil {
					return err
				}
				return showAction(cmd.OutOrStdout(), act)
			})
		},
	}
	cmd.Flags().StringVar(&p.Repo, "repo", "", "Repository, as owner/repo")
	cmd.Flags().StringVar(&p.Branch, "branch", "", "Branch to move")
	cmd.Flags().StringVar(&p.SHA, "sha", "", "Commit to move the branch to")
	return cmd
}

func renderActions(w io.Writer, actions []*gateway.Action) error {
	if len(actions) == 0 {
		_, err := fmt.Fprintln(w, "No actions.")
		return err
	}
	table := tablewriter.NewTable(w,
		tablewriter.WithConfig(tablewriter.Config{
			Header: tw.CellConfig{
				Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
				Formatting: tw.CellFormatting{AutoFormat: tw.Off},
			},
			Row: tw.CellConfig{
				Alignment: tw.CellAlignment{Global: tw.AlignLeft},
			},
			Behavior: tw.Behavior{TrimSpace: tw.Off},
		}),
		tablewriter.WithHeader([]string{"ID", "Type", "Status", "Description", "Updated"}),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
	for _, a := range actions {
		if err := table.Append([]string{
			a.ID,
			string(a.Type),
			string(a.Status),
			a.Description,
			a.UpdatedAt.UTC().Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	return table.Render()
}

func showAction(w io.Writer, a *gateway.Action) error {
	var b strings.Builder
	fmt.Fprintf(&b, "ID:          %s\n", a.ID)
	fmt.Fprintf(&b, "Type:        %s\n", a.Type)
	fmt.Fprintf(&b, "Status:      %s\n", a.Status)
	fmt.Fprintf(&b, "Description: %s\n", a.Description)
	fmt.Fprintf(&b, "Created:     %s\n", a.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Updated:     %s\n", a.UpdatedAt.UTC().Format(time.RFC3339))
	if a.Attempts > 0 {
		fmt.Fprintf(&b, "Attempts:    %d\n", a.Attempts)
	}
	if a.Outcome != nil {
		if a.Outcome.URL != "" {
			fmt.Fprintf(&b, "URL:         %s\n", a.Outcome.URL)
		}
		if a.Outcome.SHA != "" {
			fmt.Fprintf(&b, "SHA:         %s\n", a.Outcome.SHA)
		}
	}
	if a.Error != "" {
		fmt.Fprintf(&b, "Error:       %s\n", a.Error)
	}
	params, err := json.MarshalIndent(a.Params, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding params: %w", err)
	}
	fmt.Fprintf(&b, "Params:\n%s\n", params)
	_, err = io.WriteString(w, b.String())
	return err
}
