/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads process settings from the environment and
// per-repository settings from .prrefine.toml.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"chainguard.dev/prrefine/regen/buildrepair"
	"chainguard.dev/prrefine/regen/orchestrator"
	"chainguard.dev/prrefine/regen/scope"
	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v84/github"
	"github.com/sethvargo/go-envconfig"
	"golang.org/x/oauth2"
)

// Providers accepted by PROVIDER and FALLBACK_PROVIDER.
const (
	ProviderClaude = "claude"
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// Config is the process configuration.
type Config struct {
	// GitHub access. Either a token or a GitHub App installation.
	GitHubToken    string `env:"GITHUB_TOKEN"`
	AppID          int64  `env:"GITHUB_APP_ID"`
	InstallationID int64  `env:"GITHUB_INSTALLATION_ID"`
	PrivateKeyPath string `env:"GITHUB_APP_PRIVATE_KEY_PATH"`
	// GitHubAPIURL points at a GitHub Enterprise API, e.g.
	// https://ghe.example.com/api/v3/.
	GitHubAPIURL string `env:"GITHUB_API_URL"`

	WebhookSecret string        `env:"WEBHOOK_SECRET"`
	TriggerTag    string        `env:"TRIGGER_TAG,default=ai-refine"`
	Port          int           `env:"PORT,default=8080"`
	MetricsPort   int           `env:"METRICS_PORT,default=2112"`
	Concurrency   int           `env:"CONCURRENCY,default=4"`
	PollInterval  time.Duration `env:"POLL_INTERVAL,default=5m"`
	WorkspaceRoot string        `env:"WORKSPACE_ROOT,default=/tmp/prrefine"`
	Publish       bool          `env:"PUBLISH,default=false"`

	Provider         string  `env:"PROVIDER,default=claude"`
	FallbackProvider string  `env:"FALLBACK_PROVIDER"`
	Model            string  `env:"MODEL"`
	FallbackModel    string  `env:"FALLBACK_MODEL"`
	Temperature      float64 `env:"TEMPERATURE,default=0.2"`
	// Search enables provider-side web search where supported.
	Search bool `env:"SEARCH,default=false"`
	// GCPProjectID routes Claude through Vertex AI and is required for Gemini.
	GCPProjectID string `env:"GCP_PROJECT_ID"`
	GCPRegion    string `env:"GCP_REGION,default=us-east5"`

	RequestTimeout    time.Duration `env:"REQUEST_TIMEOUT,default=300s"`
	CorrectionTimeout time.Duration `env:"CORRECTION_TIMEOUT,default=120s"`
	ContextBudget     int           `env:"CONTEXT_BUDGET,default=4000000"`
	MaxBuildAttempts  int           `env:"MAX_BUILD_ATTEMPTS,default=5"`
	MaxSourceFixes    int           `env:"MAX_SOURCE_FIX_ATTEMPTS,default=8"`
	InstallTimeout    time.Duration `env:"INSTALL_TIMEOUT,default=300s"`

	AuditDB     string `env:"AUDIT_DB,default=prrefine-audit.db"`
	AuditLog    string `env:"AUDIT_LOG"`
	AuditBucket string `env:"AUDIT_BUCKET"`
	AuditPrefix string `env:"AUDIT_PREFIX,default=runs"`
}

// Load reads the configuration from the process environment.
func Load(ctx context.Context) (*Config, error) {
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads the configuration from l.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (*Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return nil, fmt.Errorf("processing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validProvider(p string) bool {
	switch p {
	case ProviderClaude, ProviderGemini, ProviderOpenAI:
		return true
	}
	return false
}

// Validate rejects inconsistent settings.
func (c *Config) Validate() error {
	app := c.AppID != 0 || c.InstallationID != 0 || c.PrivateKeyPath != ""
	switch {
	case c.GitHubToken == "" && !app:
		return errors.New("either GITHUB_TOKEN or GitHub App credentials are required")
	case app && (c.AppID == 0 || c.InstallationID == 0 || c.PrivateKeyPath == ""):
		return errors.New("GITHUB_APP_ID, GITHUB_INSTALLATION_ID and GITHUB_APP_PRIVATE_KEY_PATH must be set together")
	case !validProvider(c.Provider):
		return fmt.Errorf("unknown provider %q", c.Provider)
	case c.FallbackProvider != "" && !validProvider(c.FallbackProvider):
		return fmt.Errorf("unknown fallback provider %q", c.FallbackProvider)
	case (c.Provider == ProviderGemini || c.FallbackProvider == ProviderGemini) && c.GCPProjectID == "":
		return errors.New("GCP_PROJECT_ID is required for the gemini provider")
	case c.Concurrency <= 0:
		return errors.New("CONCURRENCY must be positive")
	case c.PollInterval <= 0:
		return errors.New("POLL_INTERVAL must be positive")
	case c.RequestTimeout <= 0, c.CorrectionTimeout <= 0, c.InstallTimeout <= 0:
		return errors.New("timeouts must be positive")
	case c.ContextBudget <= 0:
		return errors.New("CONTEXT_BUDGET must be positive")
	case c.MaxBuildAttempts < 0:
		return errors.New("MAX_BUILD_ATTEMPTS cannot be negative")
	case c.MaxSourceFixes < 0:
		return errors.New("MAX_SOURCE_FIX_ATTEMPTS cannot be negative")
	}
	return nil
}

// installationTokenSource exposes a GitHub App installation transport as
// an oauth2.TokenSource for git operations. The transport caches and
// refreshes the token itself.
type installationTokenSource struct {
	tr *ghinstallation.Transport
}

func (s installationTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.tr.Token(context.Background())
	if err != nil {
		return nil, fmt.Errorf("minting installation token: %w", err)
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "token"}, nil
}

// GitHub returns an authenticated REST client and the token source git
// operations should use.
func (c *Config) GitHub(ctx context.Context) (*github.Client, oauth2.TokenSource, error) {
	var (
		httpClient *http.Client
		ts         oauth2.TokenSource
	)
	if c.GitHubToken != "" {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: c.GitHubToken})
		httpClient = oauth2.NewClient(ctx, ts)
	} else {
		tr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, c.AppID, c.InstallationID, c.PrivateKeyPath)
		if err != nil {
			return nil, nil, fmt.Errorf("creating installation transport: %w", err)
		}
		if c.GitHubAPIURL != "" {
			tr.BaseURL = strings.TrimSuffix(c.GitHubAPIURL, "/")
		}
		ts = installationTokenSource{tr: tr}
		httpClient = &http.Client{Transport: tr}
	}

	client := github.NewClient(httpClient)
	if c.GitHubAPIURL != "" {
		var err error
		if client, err = client.WithEnterpriseURLs(c.GitHubAPIURL, c.GitHubAPIURL); err != nil {
			return nil, nil, fmt.Errorf("configuring enterprise URLs: %w", err)
		}
	}
	return client, ts, nil
}

// ScopeOptions returns the scoper options implied by c.
func (c *Config) ScopeOptions() []scope.Option {
	return []scope.Option{scope.WithBudget(c.ContextBudget)}
}

// OrchestratorOptions returns the orchestrator options implied by c.
func (c *Config) OrchestratorOptions() []orchestrator.Option {
	return []orchestrator.Option{orchestrator.WithRequestTimeout(c.RequestTimeout)}
}

// BuildOptions returns the build-repair options implied by c.
func (c *Config) BuildOptions() []buildrepair.Option {
	return []buildrepair.Option{
		buildrepair.WithMaxAttempts(c.MaxBuildAttempts),
		buildrepair.WithMaxBuildAttempts(c.MaxSourceFixes),
		buildrepair.WithInstallTimeout(c.InstallTimeout),
	}
}
