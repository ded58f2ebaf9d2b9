/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package openaiexecutor implements codegen.Generator on OpenAI chat
// completions, optionally with web search.
package openaiexecutor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/prrefine/agents/codegen"
	"chainguard.dev/prrefine/agents/executor/retry"
	"chainguard.dev/prrefine/regen/record"
	"github.com/chainguard-dev/clog"
	"github.com/openai/openai-go"
)

// Executor sends single-turn chat completion requests.
type Executor struct {
	client      openai.Client
	model       string
	temperature float64
	webSearch   bool
	retryConfig retry.Config
}

var _ codegen.Generator = (*Executor)(nil)

// New creates an Executor for client.
func New(client openai.Client, opts ...Option) (*Executor, error) {
	e := &Executor{
		client:      client,
		model:       "gpt-4.1-mini",
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

// Generate returns the first choice's message content.
func (e *Executor) Generate(ctx context.Context, req codegen.Request) (codegen.Response, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(e.model),
		Messages: messages,
	}
	if e.webSearch {
		// Search models reject sampling parameters.
		params.WebSearchOptions = openai.ChatCompletionNewParamsWebSearchOptions{
			SearchContextSize: "medium",
		}
	} else {
		params.Temperature = openai.Float(e.temperature)
	}

	clog.FromContext(ctx).With("model", e.model).
		With("prompt_length", len(req.Prompt)).
		With("web_search", e.webSearch).
		Info("Sending OpenAI request")

	resp, err := retry.Do(ctx, e.retryConfig, "chat_completion", isRetryableOpenAIError, func() (*openai.ChatCompletion, error) {
		return e.client.Chat.Completions.New(ctx, params)
	})
	if err != nil {
		return codegen.Response{}, fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return codegen.Response{}, errors.New("no choices in OpenAI response")
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return codegen.Response{}, errors.New("empty OpenAI response")
	}
	return codegen.Response{
		Text:  text,
		Model: e.model,
		Usage: record.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.Error
	return errors.As(err, &apiErr) && retry.TransientStatus(apiErr.StatusCode)
}
