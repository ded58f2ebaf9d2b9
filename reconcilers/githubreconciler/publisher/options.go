/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package publisher

import (
	"errors"
	"text/template"
)

// Option configures a Publisher.
type Option func(*Publisher) error

// WithBodyTemplate renders pull request bodies with t. The template is
// executed with a Request.
func WithBodyTemplate(t *template.Template) Option {
	return func(p *Publisher) error {
		if t == nil {
			return errors.New("body template cannot be nil")
		}
		p.body = t
		return nil
	}
}
