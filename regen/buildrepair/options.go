/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildrepair

import (
	"errors"
	"time"
)

// Option configures a Loop.
type Option func(*Loop) error

// WithRunner replaces the os/exec runner.
func WithRunner(r Runner) Option {
	return func(l *Loop) error {
		if r == nil {
			return errors.New("runner cannot be nil")
		}
		l.runner = r
		return nil
	}
}

// WithAuditor records attempts and failures.
func WithAuditor(a Auditor) Option {
	return func(l *Loop) error {
		if a == nil {
			return errors.New("auditor cannot be nil")
		}
		l.auditor = a
		return nil
	}
}

// WithMaxAttempts bounds the number of correction attempts.
func WithMaxAttempts(n int) Option {
	return func(l *Loop) error {
		if n < 0 {
			return errors.New("max attempts cannot be negative")
		}
		l.maxAttempts = n
		return nil
	}
}

// WithInstallTimeout bounds each install invocation.
func WithInstallTimeout(d time.Duration) Option {
	return func(l *Loop) error {
		if d <= 0 {
			return errors.New("install timeout must be positive")
		}
		l.installTimeout = d
		return nil
	}
}

// WithDiagnosticLimit bounds the diagnostic sent to the corrector.
func WithDiagnosticLimit(n int) Option {
	return func(l *Loop) error {
		if n <= 0 {
			return errors.New("diagnostic limit must be positive")
		}
		l.diagnosticLimit = n
		return nil
	}
}

// WithSourceCorrector enables the build stage that follows a successful
// install, repairing the sources the build reports with sc.
func WithSourceCorrector(sc SourceCorrector) Option {
	return func(l *Loop) error {
		if sc == nil {
			return errors.New("source corrector cannot be nil")
		}
		l.sourceCorrector = sc
		return nil
	}
}

// WithMaxBuildAttempts bounds the source repair rounds of the build stage.
func WithMaxBuildAttempts(n int) Option {
	return func(l *Loop) error {
		if n < 0 {
			return errors.New("max build attempts cannot be negative")
		}
		l.maxBuildAttempts = n
		return nil
	}
}
