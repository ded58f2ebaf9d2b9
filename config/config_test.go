/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chainguard.dev/prrefine/regen/buildrepair"
	"github.com/google/go-cmp/cmp"
	"github.com/sethvargo/go-envconfig"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadWith(t.Context(), envconfig.MapLookuper(map[string]string{
		"GITHUB_TOKEN": "ghp_x",
	}))
	if err != nil {
		t.Fatalf("LoadWith: %v", err)
	}
	if cfg.Provider != ProviderClaude {
		t.Errorf("Provider: got = %q, wanted = %q", cfg.Provider, ProviderClaude)
	}
	if cfg.PollInterval != 5*time.Minute {
		t.Errorf("PollInterval: got = %v, wanted = 5m", cfg.PollInterval)
	}
	if cfg.RequestTimeout != 300*time.Second || cfg.InstallTimeout != 300*time.Second || cfg.CorrectionTimeout != 120*time.Second {
		t.Errorf("timeouts: got = %v/%v/%v", cfg.RequestTimeout, cfg.InstallTimeout, cfg.CorrectionTimeout)
	}
	if cfg.MaxBuildAttempts != buildrepair.DefaultMaxAttempts {
		t.Errorf("MaxBuildAttempts: got = %d, wanted = %d", cfg.MaxBuildAttempts, buildrepair.DefaultMaxAttempts)
	}
	if cfg.MaxSourceFixes != buildrepair.DefaultMaxBuildAttempts {
		t.Errorf("MaxSourceFixes: got = %d, wanted = %d", cfg.MaxSourceFixes, buildrepair.DefaultMaxBuildAttempts)
	}
	if cfg.TriggerTag != "ai-refine" || cfg.MetricsPort != 2112 {
		t.Errorf("got tag %q and metrics port %d", cfg.TriggerTag, cfg.MetricsPort)
	}
	if got := len(cfg.BuildOptions()) + len(cfg.ScopeOptions()) + len(cfg.OrchestratorOptions()); got != 5 {
		t.Errorf("option count: got = %d, wanted = 5", got)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{name: "no credentials", env: map[string]string{}, wantErr: true},
		{name: "partial app", env: map[string]string{"GITHUB_APP_ID": "1"}, wantErr: true},
		{name: "full app", env: map[string]string{
			"GITHUB_APP_ID": "1", "GITHUB_INSTALLATION_ID": "2", "GITHUB_APP_PRIVATE_KEY_PATH": "/k.pem",
		}},
		{name: "unknown provider", env: map[string]string{"GITHUB_TOKEN": "x", "PROVIDER": "llama"}, wantErr: true},
		{name: "gemini needs project", env: map[string]string{"GITHUB_TOKEN": "x", "PROVIDER": "gemini"}, wantErr: true},
		{name: "gemini fallback needs project", env: map[string]string{"GITHUB_TOKEN": "x", "FALLBACK_PROVIDER": "gemini"}, wantErr: true},
		{name: "gemini with project", env: map[string]string{"GITHUB_TOKEN": "x", "PROVIDER": "gemini", "GCP_PROJECT_ID": "p"}},
		{name: "openai fallback", env: map[string]string{"GITHUB_TOKEN": "x", "FALLBACK_PROVIDER": "openai"}},
		{name: "zero concurrency", env: map[string]string{"GITHUB_TOKEN": "x", "CONCURRENCY": "0"}, wantErr: true},
		{name: "negative attempts", env: map[string]string{"GITHUB_TOKEN": "x", "MAX_BUILD_ATTEMPTS": "-1"}, wantErr: true},
		{name: "zero attempts", env: map[string]string{"GITHUB_TOKEN": "x", "MAX_BUILD_ATTEMPTS": "0"}},
		{name: "negative source fixes", env: map[string]string{"GITHUB_TOKEN": "x", "MAX_SOURCE_FIX_ATTEMPTS": "-1"}, wantErr: true},
		{name: "bad duration", env: map[string]string{"GITHUB_TOKEN": "x", "POLL_INTERVAL": "soon"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadWith(t.Context(), envconfig.MapLookuper(tt.env))
			if (err != nil) != tt.wantErr {
				t.Errorf("LoadWith: got err = %v, wanted error = %v", err, tt.wantErr)
			}
		})
	}
}

func TestGitHubToken(t *testing.T) {
	cfg := &Config{GitHubToken: "ghp_x", GitHubAPIURL: "https://ghe.example.com/api/v3/"}
	client, ts, err := cfg.GitHub(t.Context())
	if err != nil {
		t.Fatalf("GitHub: %v", err)
	}
	tok, err := ts.Token()
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if tok.AccessToken != "ghp_x" {
		t.Errorf("token: got = %q, wanted = %q", tok.AccessToken, "ghp_x")
	}
	if got := client.BaseURL.String(); got != "https://ghe.example.com/api/v3/" {
		t.Errorf("BaseURL: got = %q", got)
	}
}

func TestGitHubApp(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	path := filepath.Join(t.TempDir(), "app.pem")
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	if err := os.WriteFile(path, pemBytes, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg := &Config{AppID: 1, InstallationID: 2, PrivateKeyPath: path}
	client, ts, err := cfg.GitHub(t.Context())
	if err != nil {
		t.Fatalf("GitHub: %v", err)
	}
	if client == nil || ts == nil {
		t.Fatal("GitHub: got nil client or token source")
	}

	cfg.PrivateKeyPath = filepath.Join(t.TempDir(), "missing.pem")
	if _, _, err := cfg.GitHub(t.Context()); err == nil {
		t.Error("GitHub with missing key: got nil error, wanted failure")
	}
}

func TestParseRepo(t *testing.T) {
	r, err := ParseRepo(`
skip = ["generated/", "*.pb.go"]
standards_file = "CONTRIBUTING.md"

[install."package.json"]
command = ["pnpm", "install"]
build = ["pnpm", "run", "compile"]
timeout = "10m"
`)
	if err != nil {
		t.Fatalf("ParseRepo: %v", err)
	}
	if diff := cmp.Diff([]string{"generated/", "*.pb.go"}, r.Skip); diff != "" {
		t.Errorf("Skip (-want +got):\n%s", diff)
	}
	if got := r.Standards("README.md"); got != "CONTRIBUTING.md" {
		t.Errorf("Standards: got = %q, wanted = %q", got, "CONTRIBUTING.md")
	}
	want := buildrepair.Override{
		Command: []string{"pnpm", "install"},
		Build:   []string{"pnpm", "run", "compile"},
		Timeout: 10 * time.Minute,
	}
	if diff := cmp.Diff(want, r.Override("web/package.json")); diff != "" {
		t.Errorf("Override (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(buildrepair.Override{}, r.Override("go.mod")); diff != "" {
		t.Errorf("Override(go.mod) (-want +got):\n%s", diff)
	}
	if got := (Repo{}).Standards("README.md"); got != "README.md" {
		t.Errorf("default Standards: got = %q, wanted = README.md", got)
	}
}

func TestParseRepoRejects(t *testing.T) {
	for name, doc := range map[string]string{
		"syntax":           `skip = [`,
		"unknown key":      `skipp = ["x"]`,
		"unknown manifest": "[install.\"Gemfile\"]\ncommand = [\"bundle\"]",
		"negative timeout": "[install.\"go.mod\"]\ntimeout = \"-1m\"",
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseRepo(doc); err == nil {
				t.Error("ParseRepo: got nil error, wanted failure")
			}
		})
	}
}
