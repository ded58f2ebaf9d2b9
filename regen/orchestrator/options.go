/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"errors"
	"fmt"
	"time"

	"chainguard.dev/prrefine/regen/scope"
)

// Option configures an Orchestrator.
type Option func(*Orchestrator) error

// WithRequestTimeout bounds each generation request.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *Orchestrator) error {
		if d <= 0 {
			return fmt.Errorf("request timeout must be positive, got %s", d)
		}
		o.timeout = d
		return nil
	}
}

// WithScoper replaces the default context scoper.
func WithScoper(s *scope.Scoper) Option {
	return func(o *Orchestrator) error {
		if s == nil {
			return errors.New("scoper cannot be nil")
		}
		o.scoper = s
		return nil
	}
}

// WithStandards sets where coding standards come from.
func WithStandards(s StandardsSource) Option {
	return func(o *Orchestrator) error {
		if s == nil {
			return errors.New("standards source cannot be nil")
		}
		o.standards = s
		return nil
	}
}

// WithAuditor sets the receiver of per-file outcomes.
func WithAuditor(a Auditor) Option {
	return func(o *Orchestrator) error {
		if a == nil {
			return errors.New("auditor cannot be nil")
		}
		o.auditor = a
		return nil
	}
}
