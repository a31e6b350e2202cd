/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"

	"chainguard.dev/repopilot/agents/agenttrace"
	"chainguard.dev/repopilot/agents/assistant"
	"chainguard.dev/repopilot/agents/backend"
	"chainguard.dev/repopilot/agents/evals"
	"chainguard.dev/repopilot/agents/gateway"
	"chainguard.dev/repopilot/agents/intent"
	"chainguard.dev/repopilot/agents/orchestrator"
	"chainguard.dev/repopilot/agents/validate"
)

const (
	prompt = "> "

	misunderstoodMessage = "I could not work out what you are asking. Could you rephrase it?"

	chatHelp = `Commands:
  /attach PATH     attach a file to the next message
  /set NAME=VALUE  change a response factor
  /factors         show the current factors
  /quit            leave the chat
`
)

type chatFlags struct {
	repo        string
	grounding   bool
	factors     []string
	factorsFile string
}

func newChatCmd() *cobra.Command {
	var cf chatFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive conversation, optionally about a repository",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cf)
		},
	}
	cmd.Flags().StringVar(&cf.repo, "repo", "", "Repository to connect, as owner/repo")
	cmd.Flags().BoolVar(&cf.grounding, "grounding", false, "Answer with web search grounding when no repository is connected")
	cmd.Flags().StringArrayVar(&cf.factors, "factor", nil, "Set a response factor, as name=value (repeatable)")
	cmd.Flags().StringVar(&cf.factorsFile, "factors", "", "YAML file describing the response factors")
	return cmd
}

func runChat(ctx context.Context, in io.Reader, out io.Writer, cf chatFlags) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	factors, err := initialFactors(cf, a.cfg.Model)
	if err != nil {
		return err
	}

	svc, err := assistant.NewService(a.cfg.router(),
		append(a.cfg.serviceOptions(), assistant.WithRepository(a.reader, a.gateway))...)
	if err != nil {
		return err
	}

	opts := []assistant.SessionOption{assistant.WithFactors(factors)}
	if cf.repo != "" {
		if _, _, err := validate.RepoPath(cf.repo); err != nil {
			return err
		}
		tok, err := a.githubToken(ctx)
		if err != nil {
			return err
		}
		if tok == "" {
			return fmt.Errorf("connecting %s needs GITHUB_TOKEN or GitHub App credentials", cf.repo)
		}
		opts = append(opts, assistant.ConnectRepository(cf.repo, tok))
	}
	session := svc.NewSession(opts...)
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("session_id", session.ID))
	ctx = agenttrace.WithTracer(ctx, turnChecks(ctx, a.cfg.MaxRounds))

	unsubscribe := a.gateway.Subscribe("chat", proposalNotifier(out))
	defer unsubscribe()

	if cf.repo != "" {
		fmt.Fprintf(out, "Connected to %s. Changes are queued for approval.\n", cf.repo)
	}
	fmt.Fprint(out, chatHelp)
	return (&repl{session: session, in: in, out: out}).run(ctx)
}

// initialFactors applies the factors file, the model, the --grounding flag
// and each --factor, in that order.
func initialFactors(cf chatFlags, model string) (assistant.Factors, error) {
	fs := assistant.DefaultFactors()
	if cf.factorsFile != "" {
		f, err := os.Open(cf.factorsFile)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		if fs, err = assistant.LoadFactors(f); err != nil {
			return nil, fmt.Errorf("loading %s: %w", cf.factorsFile, err)
		}
	}
	var err error
	// A factors file may leave the model out, in which case the default applies.
	if model != "" && slices.ContainsFunc(fs, func(f assistant.Factor) bool { return f.Name == assistant.FactorModel }) {
		if fs, err = fs.Set(assistant.FactorModel, model); err != nil {
			return nil, err
		}
	}
	if cf.grounding {
		if fs, err = fs.Set(assistant.FactorGrounding, "true"); err != nil {
			return nil, err
		}
	}
	for _, kv := range cf.factors {
		name, value, err := parseAssignment(kv)
		if err != nil {
			return nil, err
		}
		if fs, err = fs.Set(name, value); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

func parseAssignment(kv string) (string, string, error) {
	name, value, ok := strings.Cut(kv, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" {
		return "", "", fmt.Errorf("invalid factor %q: want name=value", kv)
	}
	return name, strings.TrimSpace(value), nil
}

// turnObserver counts check results and logs failures.
type turnObserver struct {
	*evals.MetricsObserver
	log *clog.Logger
}

func (o turnObserver) Fail(msg string) {
	o.MetricsObserver.Fail(msg)
	o.log.Warn(msg)
}

// turnChecks evaluates every completed turn.
func turnChecks(ctx context.Context, maxRounds int) agenttrace.Tracer {
	log := clog.FromContext(ctx)
	return evals.BuildTracer(func(name string) turnObserver {
		return turnObserver{MetricsObserver: evals.NewMetricsObserver(name), log: log.With("check", name)}
	}, map[string]evals.Check{
		"max-rounds":     evals.MaxRounds(maxRounds),
		"writes-pending": evals.WritesAwaitApproval(),
	})
}

// proposalNotifier tells the user where to approve each new proposal.
func proposalNotifier(out io.Writer) gateway.Listener {
	return func(_ context.Context, ev gateway.Event) error {
		if ev.Type != gateway.EventProposed {
			return nil
		}
		_, err := fmt.Fprintf(out, "[awaiting approval] %s\n  repopilot pending approve %s\n", ev.Action.Description, ev.Action.ID)
		return err
	}
}

type chatSession interface {
	Send(ctx context.Context, utterance string, attachments []backend.Attachment) (*assistant.Reply, error)
	SetFactor(ctx context.Context, name, value string) error
	Factors(ctx context.Context) (assistant.Factors, error)
}

var _ chatSession = (*assistant.Session)(nil)

type repl struct {
	session chatSession
	in      io.Reader
	out     io.Writer

	attachments []backend.Attachment
}

func (r *repl) run(ctx context.Context) error {
	sc := bufio.NewScanner(r.in)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Fprint(r.out, prompt)
		if !sc.Scan() {
			fmt.Fprintln(r.out)
			return sc.Err()
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if done := r.command(ctx, line); done {
				return nil
			}
			continue
		}
		if err := r.send(ctx, line); err != nil {
			return err
		}
	}
}

// command handles a slash command and reports whether to leave.
func (r *repl) command(ctx context.Context, line string) bool {
	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return true
	case "/attach":
		att, err := loadAttachment(arg)
		if err != nil {
			fmt.Fprintf(r.out, "Cannot attach %s: %v\n", arg, err)
			return false
		}
		r.attachments = append(r.attachments, att)
		fmt.Fprintf(r.out, "Attached %s (%s, %d bytes).\n", att.Name, att.MIMEType, len(att.Data))
	case "/set":
		k, v, err := parseAssignment(arg)
		if err == nil {
			err = r.session.SetFactor(ctx, k, v)
		}
		if err != nil {
			fmt.Fprintf(r.out, "%v\n", err)
			return false
		}
		fmt.Fprintf(r.out, "%s = %s\n", k, v)
	case "/factors":
		fs, err := r.session.Factors(ctx)
		if err != nil {
			fmt.Fprintf(r.out, "%v\n", err)
			return false
		}
		for _, f := range fs {
			fmt.Fprintf(r.out, "  %s = %v\n", f.Name, f.Value)
		}
	default:
		fmt.Fprint(r.out, chatHelp)
	}
	return false
}

// send runs one turn. Only a cancelled context ends the loop.
func (r *repl) send(ctx context.Context, line string) error {
	reply, err := r.session.Send(ctx, line, r.attachments)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, intent.ErrInterpretation):
		fmt.Fprintln(r.out, misunderstoodMessage)
		return nil
	default:
		clog.FromContext(ctx).With("error", err.Error()).Error("Turn failed")
		fmt.Fprintln(r.out, orchestrator.FailureMessage)
		return nil
	}
	r.attachments = nil

	fmt.Fprintln(r.out, reply.Turn.ModelResponse)
	if len(reply.Turn.Citations) > 0 {
		fmt.Fprintln(r.out, "\nSources:")
		for i, c := range reply.Turn.Citations {
			title := c.Title
			if title == "" {
				title = c.URI
			}
			fmt.Fprintf(r.out, "  [%d] %s <%s>\n", i+1, title, c.URI)
		}
	}
	return nil
}

func loadAttachment(path string) (backend.Attachment, error) {
	if path == "" {
		return backend.Attachment{}, errors.New("no file given")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return backend.Attachment{}, err
	}
	mt := mime.TypeByExtension(filepath.Ext(path))
	if mt == "" {
		mt = http.DetectContentType(data)
	}
	if base, _, err := mime.ParseMediaType(mt); err == nil {
		mt = base
	}
	return backend.Attachment{Name: filepath.Base(path), MIMEType: mt, Data: data}, nil
}
