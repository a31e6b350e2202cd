/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"errors"

	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"

	"chainguard.dev/repopilot/agents/gateway"
	"chainguard.dev/repopilot/agents/gateway/sqlitestore"
	"chainguard.dev/repopilot/github/ghclient"
	"chainguard.dev/repopilot/github/mutation"
	"chainguard.dev/repopilot/github/repodata"
)

// app holds what every command shares: the approval queue and the GitHub
// clients behind it.
type app struct {
	cfg     *config
	token   ghclient.TokenFunc
	reader  *repodata.Provider
	store   *sqlitestore.Store
	gateway *gateway.Gateway
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig(ctx, envconfig.OsLookuper())
	if err != nil {
		return nil, err
	}
	cfg.detectProject(ctx)

	token, err := cfg.tokenFunc()
	if err != nil {
		return nil, err
	}
	clients, err := cfg.clientCache()
	if err != nil {
		return nil, err
	}
	store, err := sqlitestore.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	gw := gateway.New(mutation.New(clients, token), gateway.WithStore(store))
	gw.Subscribe("log", logEvent)

	return &app{
		cfg:     cfg,
		token:   token,
		reader:  repodata.New(clients),
		store:   store,
		gateway: gw,
	}, nil
}

func (a *app) Close() error {
	return a.store.Close()
}

// githubToken resolves the token for a chat session. A missing token is
// not an error: the session can still answer without repository tools.
func (a *app) githubToken(ctx context.Context) (string, error) {
	tok, err := a.token(ctx)
	if errors.Is(err, ghclient.ErrNoToken) {
		return "", nil
	}
	return tok, err
}

func logEvent(ctx context.Context, ev gateway.Event) error {
	log := clog.FromContext(ctx).With("action_id", ev.Action.ID).With("type", string(ev.Action.Type))
	switch ev.Type {
	case gateway.EventExecutionFailed:
		log.Warnf("Action %s: %s", ev.Type, ev.Action.Error)
	default:
		log.Infof("Action %s: %s", ev.Type, ev.Action.Description)
	}
	return nil
}
