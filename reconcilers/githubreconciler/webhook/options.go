/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package webhook

import "errors"

// Option configures a Handler.
type Option func(*Handler) error

// WithTag sets the comment text that requests a run. Matching is case
// insensitive.
func WithTag(tag string) Option {
	return func(h *Handler) error {
		if tag == "" {
			return errors.New("tag cannot be empty")
		}
		h.tag = tag
		return nil
	}
}

// WithResolver looks up pull requests named by issue comments.
func WithResolver(r Resolver) Option {
	return func(h *Handler) error {
		if r == nil {
			return errors.New("resolver cannot be nil")
		}
		h.resolver = r
		return nil
	}
}
