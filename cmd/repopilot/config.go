/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/compute/metadata"
	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"

	"chainguard.dev/repopilot/agents/assistant"
	"chainguard.dev/repopilot/agents/backend"
	"chainguard.dev/repopilot/agents/backend/claudemodel"
	"chainguard.dev/repopilot/agents/backend/googlemodel"
	"chainguard.dev/repopilot/agents/backend/openaimodel"
	"chainguard.dev/repopilot/agents/executor/retry"
	"chainguard.dev/repopilot/github/ghclient"
)

type config struct {
	Model string `env:"REPOPILOT_MODEL,default=gemini-2.5-flash"`

	// Vertex AI. Detected from the metadata server when unset on GCP.
	Project string `env:"GOOGLE_CLOUD_PROJECT"`
	Region  string `env:"GOOGLE_CLOUD_LOCATION,default=us-central1"`

	GeminiAPIKey    string `env:"GEMINI_API_KEY"`
	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `env:"OPENAI_API_KEY"`

	GitHubToken             string `env:"GITHUB_TOKEN"`
	GitHubAppID             int64  `env:"GITHUB_APP_ID"`
	GitHubAppInstallationID int64  `env:"GITHUB_APP_INSTALLATION_ID"`
	GitHubAppPrivateKeyPath string `env:"GITHUB_APP_PRIVATE_KEY_PATH"`
	GitHubAPIURL            string `env:"GITHUB_API_URL"`
	GitHubGraphQLURL        string `env:"GITHUB_GRAPHQL_URL"`

	Database    string        `env:"REPOPILOT_DB,default=repopilot.db"`
	History     int           `env:"REPOPILOT_HISTORY,default=3"`
	MaxRounds   int           `env:"REPOPILOT_MAX_ROUNDS,default=10"`
	Retries     int           `env:"REPOPILOT_RETRIES,default=3"`
	BaseBackoff time.Duration `env:"REPOPILOT_BASE_BACKOFF,default=1s"`
}

func loadConfig(ctx context.Context, lookuper envconfig.Lookuper) (*config, error) {
	var cfg config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}
	return &cfg, nil
}

// retryConfig is the model-call policy built from the environment.
func (c *config) retryConfig() retry.RetryConfig {
	rc := retry.DefaultRetryConfig()
	rc.MaxRetries = c.Retries
	rc.BaseBackoff = c.BaseBackoff
	if rc.MaxBackoff < rc.BaseBackoff {
		rc.MaxBackoff = rc.BaseBackoff
	}
	return rc
}

// detectProject fills Project from the metadata server when running on GCP.
func (c *config) detectProject(ctx context.Context) {
	if c.Project != "" || !metadata.OnGCE() {
		return
	}
	log := clog.FromContext(ctx)
	projectID, err := metadata.ProjectIDWithContext(ctx)
	if err != nil {
		log.Warnf("Failed to detect project ID: %v", err)
		return
	}
	c.Project = projectID
	zone, err := metadata.ZoneWithContext(ctx)
	if err != nil {
		log.Warnf("Failed to detect zone, keeping region %s: %v", c.Region, err)
		return
	}
	// Region is the zone minus its final "-x" suffix.
	if i := strings.LastIndex(zone, "-"); i > 0 {
		c.Region = zone[:i]
	}
	log.Infof("Detected project %s in region %s", c.Project, c.Region)
}

// router registers a constructor per provider. Credentials are checked
// when a model is first requested, so an unused provider needs none.
func (c *config) router() *backend.Router {
	return backend.NewRouter().
		Register(c.googleModel, "gemini-").
		Register(c.claudeModel, "claude-").
		Register(c.openAIModel, "gpt-", "o1", "o3", "o4")
}

func (c *config) googleModel(ctx context.Context, name string) (backend.Model, error) {
	var (
		m   *googlemodel.Model
		err error
	)
	switch {
	case c.GeminiAPIKey != "":
		m, err = googlemodel.NewAPIKey(ctx, c.GeminiAPIKey, name)
	case c.Project != "":
		m, err = googlemodel.NewVertex(ctx, c.Project, c.Region, name)
	default:
		return nil, fmt.Errorf("set GEMINI_API_KEY or GOOGLE_CLOUD_PROJECT to use %s", name)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (c *config) claudeModel(ctx context.Context, name string) (backend.Model, error) {
	var (
		m   *claudemodel.Model
		err error
	)
	switch {
	case c.AnthropicAPIKey != "":
		m, err = claudemodel.NewAPIKey(c.AnthropicAPIKey, name)
	case c.Project != "":
		m, err = claudemodel.NewVertex(ctx, c.Project, c.Region, name)
	default:
		return nil, fmt.Errorf("set ANTHROPIC_API_KEY or GOOGLE_CLOUD_PROJECT to use %s", name)
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (c *config) openAIModel(_ context.Context, name string) (backend.Model, error) {
	if c.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("set OPENAI_API_KEY to use %s", name)
	}
	m, err := openaimodel.NewAPIKey(c.OpenAIAPIKey, name)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// tokenFunc prefers GitHub App credentials over a static token.
func (c *config) tokenFunc() (ghclient.TokenFunc, error) {
	if c.GitHubAppID != 0 || c.GitHubAppInstallationID != 0 || c.GitHubAppPrivateKeyPath != "" {
		if c.GitHubAppID == 0 || c.GitHubAppInstallationID == 0 || c.GitHubAppPrivateKeyPath == "" {
			return nil, fmt.Errorf("GITHUB_APP_ID, GITHUB_APP_INSTALLATION_ID and GITHUB_APP_PRIVATE_KEY_PATH must be set together")
		}
		return ghclient.AppInstallationToken(c.GitHubAppID, c.GitHubAppInstallationID, c.GitHubAppPrivateKeyPath)
	}
	return ghclient.StaticToken(c.GitHubToken), nil
}

func (c *config) clientCache() (*ghclient.Cache, error) {
	var opts []ghclient.Option
	if c.GitHubAPIURL != "" {
		graphql := c.GitHubGraphQLURL
		if graphql == "" {
			graphql = strings.TrimSuffix(c.GitHubAPIURL, "/") + "/graphql"
		}
		opts = append(opts, ghclient.WithEnterpriseURLs(c.GitHubAPIURL, graphql))
	}
	return ghclient.NewCache(opts...)
}

// serviceOptions are the assistant options derived from the environment.
func (c *config) serviceOptions() []assistant.Option {
	return []assistant.Option{
		assistant.WithIntentModel(c.Model),
		assistant.WithHistory(c.History),
		assistant.WithMaxRounds(c.MaxRounds),
		assistant.WithRetryConfig(c.retryConfig()),
	}
}
