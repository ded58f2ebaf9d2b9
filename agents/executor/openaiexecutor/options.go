/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package openaiexecutor

import (
	"errors"
	"fmt"

	"chainguard.dev/prrefine/agents/executor/retry"
)

// Option configures an Executor.
type Option func(*Executor) error

// WithModel sets the chat model.
func WithModel(model string) Option {
	return func(e *Executor) error {
		if model == "" {
			return errors.New("model cannot be empty")
		}
		e.model = model
		return nil
	}
}

// WithTemperature sets the temperature, between 0.0 and 2.0. It is ignored
// when web search is enabled.
func WithTemperature(temp float64) Option {
	return func(e *Executor) error {
		if temp < 0.0 || temp > 2.0 {
			return fmt.Errorf("temperature must be between 0.0 and 2.0, got %f", temp)
		}
		e.temperature = temp
		return nil
	}
}

// WithWebSearch lets the model search the web before answering.
func WithWebSearch() Option {
	return func(e *Executor) error {
		e.webSearch = true
		return nil
	}
}

// WithRetryConfig sets the retry schedule for rate limits and 5xx errors.
func WithRetryConfig(cfg retry.Config) Option {
	return func(e *Executor) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		e.retryConfig = cfg
		return nil
	}
}
