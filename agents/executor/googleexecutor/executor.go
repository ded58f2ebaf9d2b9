/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package googleexecutor implements codegen.Generator on Gemini through
// google.golang.org/genai. With WithGoogleSearch the model may ground its
// reply in search results, which the pipeline uses for manifest corrections.
package googleexecutor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/prrefine/agents/codegen"
	"chainguard.dev/prrefine/agents/executor/retry"
	"chainguard.dev/prrefine/regen/record"
	"github.com/chainguard-dev/clog"
	"google.golang.org/genai"
)

// Executor sends single-turn requests to Gemini.
type Executor struct {
	client          *genai.Client
	model           string
	temperature     float32
	maxOutputTokens int32
	googleSearch    bool
	retryConfig     retry.Config
}

var _ codegen.Generator = (*Executor)(nil)

// New creates an Executor for client.
func New(client *genai.Client, opts ...Option) (*Executor, error) {
	if client == nil {
		return nil, errors.New("client cannot be nil")
	}
	e := &Executor{
		client:          client,
		model:           "gemini-2.5-flash",
		temperature:     0.1,
		maxOutputTokens: 8192,
		retryConfig:     retry.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return e, nil
}

// Model returns the configured model name.
func (e *Executor) Model() string { return e.model }

// Generate returns the concatenated non-thought text parts of the first
// candidate.
func (e *Executor) Generate(ctx context.Context, req codegen.Request) (codegen.Response, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     ptr(e.temperature),
		MaxOutputTokens: e.maxOutputTokens,
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}
	if e.googleSearch {
		config.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	contents := []*genai.Content{{
		Role:  "user",
		Parts: []*genai.Part{{Text: req.Prompt}},
	}}

	clog.FromContext(ctx).With("model", e.model).
		With("prompt_length", len(req.Prompt)).
		With("google_search", e.googleSearch).
		Info("Sending Gemini request")

	resp, err := retry.Do(ctx, e.retryConfig, "generate_content", isRetryableVertexError, func() (*genai.GenerateContentResponse, error) {
		return e.client.Models.GenerateContent(ctx, e.model, contents, config)
	})
	if err != nil {
		return codegen.Response{}, fmt.Errorf("failed to generate Gemini content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return codegen.Response{}, errors.New("no candidates in Gemini response")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil || part.Thought {
			continue
		}
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return codegen.Response{}, errors.New("no text content in Gemini response")
	}

	out := codegen.Response{Text: text.String(), Model: e.model}
	if resp.UsageMetadata != nil {
		out.Usage = record.Usage{
			PromptTokens:     int64(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
		}
	}
	return out, nil
}

func ptr[T any](v T) *T {
	return &v
}
