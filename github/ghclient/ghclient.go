/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package ghclient builds authenticated GitHub REST and GraphQL clients and
// caches them per credential.
package ghclient

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v75/github"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"
)

// ErrNoToken is returned when a client is requested without a token.
var ErrNoToken = errors.New("no GitHub token provided")

// Clients pairs the REST and GraphQL clients for one credential.
type Clients struct {
	REST    *github.Client
	GraphQL *githubv4.Client
}

// Cache hands out Clients keyed by token.
type Cache struct {
	restURL    *url.URL
	graphqlURL string

	mu      sync.Mutex
	clients map[string]*Clients
}

// Option configures a Cache.
type Option func(*Cache) error

// WithEnterpriseURLs points the clients at a GitHub Enterprise Server, or at
// a test server. restURL must end in a slash.
func WithEnterpriseURLs(restURL, graphqlURL string) Option {
	return func(c *Cache) error {
		if !strings.HasSuffix(restURL, "/") {
			restURL += "/"
		}
		u, err := url.Parse(restURL)
		if err != nil {
			return fmt.Errorf("parsing REST URL: %w", err)
		}
		c.restURL = u
		c.graphqlURL = graphqlURL
		return nil
	}
}

// NewCache returns an empty cache.
func NewCache(opts ...Option) (*Cache, error) {
	c := &Cache{clients: make(map[string]*Clients)}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Get returns the clients for token, creating them on first use.
func (c *Cache) Get(ctx context.Context, token string) (*Clients, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNoToken
	}

	// Keep raw tokens out of map keys.
	sum := sha256.Sum256([]byte(token))
	key := hex.EncodeToString(sum[:])

	c.mu.Lock()
	defer c.mu.Unlock()
	if cl, ok := c.clients[key]; ok {
		return cl, nil
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	cl := &Clients{REST: github.NewClient(httpClient)}
	if c.restURL != nil {
		cl.REST.BaseURL = c.restURL
	}
	if c.graphqlURL != "" {
		cl.GraphQL = githubv4.NewEnterpriseClient(c.graphqlURL, httpClient)
	} else {
		cl.GraphQL = githubv4.NewClient(httpClient)
	}
	c.clients[key] = cl
	return cl, nil
}

// TokenFunc yields the token for the current request.
type TokenFunc func(ctx context.Context) (string, error)

// StaticToken always returns token.
func StaticToken(token string) TokenFunc {
	return func(context.Context) (string, error) {
		if token == "" {
			return "", ErrNoToken
		}
		return token, nil
	}
}

// AppInstallationToken mints installation tokens for a GitHub App from its
// private key file. Tokens are refreshed shortly before they expire.
func AppInstallationToken(appID, installationID int64, privateKeyPath string) (TokenFunc, error) {
	tr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, appID, installationID, privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("loading GitHub App key: %w", err)
	}
	return func(ctx context.Context) (string, error) {
		tok, err := tr.Token(ctx)
		if err != nil {
			return "", fmt.Errorf("minting installation token: %w", err)
		}
		return tok, nil
	}, nil
}
