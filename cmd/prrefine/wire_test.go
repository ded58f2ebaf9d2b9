/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"testing"

	"chainguard.dev/prrefine/config"
	"github.com/google/go-cmp/cmp"
)

func TestBackends(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.Config
		want []string
	}{{
		name: "single provider",
		cfg:  config.Config{Provider: config.ProviderGemini, Model: "gemini-2.5-pro"},
		want: []string{"gemini/gemini-2.5-pro"},
	}, {
		name: "search falls back to the same model",
		cfg:  config.Config{Provider: config.ProviderGemini, Model: "gemini-2.5-pro", Search: true},
		want: []string{"gemini/gemini-2.5-pro+search", "gemini/gemini-2.5-pro"},
	}, {
		name: "search then fallback provider",
		cfg: config.Config{
			Provider:         config.ProviderOpenAI,
			Search:           true,
			FallbackProvider: config.ProviderClaude,
			FallbackModel:    "claude-opus-4-1",
		},
		want: []string{"openai+search", "openai", "claude/claude-opus-4-1"},
	}, {
		name: "claude has no search",
		cfg:  config.Config{Provider: config.ProviderClaude, Search: true},
		want: []string{"claude"},
	}, {
		name: "fallback provider without search",
		cfg:  config.Config{Provider: config.ProviderClaude, FallbackProvider: config.ProviderGemini},
		want: []string{"claude", "gemini"},
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []string
			for _, b := range backends(&tt.cfg) {
				got = append(got, b.String())
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("backends (-want +got):\n%s", diff)
			}
		})
	}
}
