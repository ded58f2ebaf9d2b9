/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"errors"

	"chainguard.dev/prrefine/audit"
	"chainguard.dev/prrefine/regen/buildrepair"
	"chainguard.dev/prrefine/regen/orchestrator"
	"chainguard.dev/prrefine/regen/scope"
)

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPublisher publishes gated changes after each run. Without it runs
// stop after the change gate.
func WithPublisher(pub Publisher) Option {
	return func(p *Pipeline) error {
		if pub == nil {
			return errors.New("publisher cannot be nil")
		}
		p.publisher = pub
		return nil
	}
}

// WithAuditSinks adds sinks every run's audit entries are written to.
func WithAuditSinks(sinks ...audit.Sink) Option {
	return func(p *Pipeline) error {
		for _, s := range sinks {
			if s == nil {
				return errors.New("audit sink cannot be nil")
			}
		}
		p.sinks = append(p.sinks, sinks...)
		return nil
	}
}

// WithArchiver archives each run's summary when it finishes.
func WithArchiver(a audit.Archiver) Option {
	return func(p *Pipeline) error {
		if a == nil {
			return errors.New("archiver cannot be nil")
		}
		p.archiver = a
		return nil
	}
}

// WithOrchestratorOptions passes opts to every run's orchestrator.
func WithOrchestratorOptions(opts ...orchestrator.Option) Option {
	return func(p *Pipeline) error {
		p.orchOpts = append(p.orchOpts, opts...)
		return nil
	}
}

// WithScopeOptions passes opts to every run's scoper.
func WithScopeOptions(opts ...scope.Option) Option {
	return func(p *Pipeline) error {
		p.scopeOpts = append(p.scopeOpts, opts...)
		return nil
	}
}

// WithBuildOptions passes opts to every run's build-repair loop.
func WithBuildOptions(opts ...buildrepair.Option) Option {
	return func(p *Pipeline) error {
		p.buildOpts = append(p.buildOpts, opts...)
		return nil
	}
}

// WithStandardsPath reads coding standards from path unless the repository
// settings name another file.
func WithStandardsPath(path string) Option {
	return func(p *Pipeline) error {
		if path == "" {
			return errors.New("standards path cannot be empty")
		}
		p.standards = path
		return nil
	}
}

// WithSkipPatterns excludes paths matching the gitignore-style patterns in
// every repository.
func WithSkipPatterns(patterns ...string) Option {
	return func(p *Pipeline) error {
		p.skipExtras = append(p.skipExtras, patterns...)
		return nil
	}
}
