/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package workspace

import (
	"errors"

	"golang.org/x/oauth2"
)

// Option configures a Registry.
type Option func(*Registry) error

// WithTokenSource authenticates clones and fetches with ts.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(r *Registry) error {
		if ts == nil {
			return errors.New("token source cannot be nil")
		}
		r.tokenSource = ts
		return nil
	}
}

// WithRemoteURL overrides how a key maps to its remote. Tests point it at
// local repositories.
func WithRemoteURL(fn func(Key) string) Option {
	return func(r *Registry) error {
		if fn == nil {
			return errors.New("remote URL function cannot be nil")
		}
		r.remoteURL = fn
		return nil
	}
}
