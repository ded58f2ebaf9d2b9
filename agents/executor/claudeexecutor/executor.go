/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package claudeexecutor implements codegen.Generator on the Anthropic
// Messages API, either directly or through Vertex AI.
//
//	client := anthropic.NewClient(vertex.WithGoogleAuth(ctx, region, project))
//	gen, err := claudeexecutor.New(client, claudeexecutor.WithModel("claude-sonnet-4@20250514"))
package claudeexecutor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/prrefine/agents/codegen"
	"chainguard.dev/prrefine/agents/executor/retry"
	"chainguard.dev/prrefine/regen/record"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/chainguard-dev/clog"
)

// Executor sends single-turn requests to Claude and returns the text reply.
type Executor struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
	retryConfig retry.Config
}

var _ codegen.Generator = (*Executor)(nil)

// New creates an Executor with the defaults below, adjusted by opts.
func New(client anthropic.Client, opts ...Option) (*Executor, error) {
	e := &Executor{
		client:      client,
		model:       "claude-sonnet-4@20250514",
		maxTokens:   8192,
		temperature: 0.1,
		retryConfig: retry.Default(),
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

// Generate streams one reply. Transient API errors are retried according
// to the retry configuration.
func (e *Executor) Generate(ctx context.Context, req codegen.Request) (codegen.Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(e.model),
		MaxTokens: e.maxTokens,
		Messages: []anthropic.MessageParam{{
			Role: anthropic.MessageParamRoleUser,
			Content: []anthropic.ContentBlockParamUnion{
				anthropic.NewTextBlock(req.Prompt),
			},
		}},
	}
	params.Temperature = anthropic.Float(e.temperature)
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	clog.FromContext(ctx).With("model", e.model).
		With("prompt_length", len(req.Prompt)).
		Info("Sending Claude request")

	message, err := retry.Do(ctx, e.retryConfig, "stream_message", isRetryableClaudeError, func() (anthropic.Message, error) {
		stream := e.client.Messages.NewStreaming(ctx, params)
		defer stream.Close()
		var msg anthropic.Message
		for stream.Next() {
			if err := msg.Accumulate(stream.Current()); err != nil {
				return msg, fmt.Errorf("failed to accumulate event: %w", err)
			}
		}
		return msg, stream.Err()
	})
	if err != nil {
		return codegen.Response{}, fmt.Errorf("failed to stream Claude response: %w", err)
	}

	var text strings.Builder
	for _, content := range message.Content {
		if content.Type == "text" {
			text.WriteString(content.Text)
		}
	}
	if text.Len() == 0 {
		return codegen.Response{}, errors.New("no text content in Claude's response")
	}
	return codegen.Response{
		Text:  text.String(),
		Model: e.model,
		Usage: record.Usage{
			PromptTokens:     message.Usage.InputTokens,
			CompletionTokens: message.Usage.OutputTokens,
		},
	}, nil
}
