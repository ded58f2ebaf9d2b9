/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package prsource

import (
	"errors"

	"chainguard.dev/prrefine/regen/record"
	"github.com/shurcooL/githubv4"
)

// Option configures a Source.
type Option func(*Source) error

// WithGraphQLClient replaces the GraphQL client used by SelectTagged.
func WithGraphQLClient(c *githubv4.Client) Option {
	return func(s *Source) error {
		if c == nil {
			return errors.New("graphql client cannot be nil")
		}
		s.gql = c
		return nil
	}
}

// WithSkipper replaces the default skip filter applied by Fetch.
func WithSkipper(sk *record.Skipper) Option {
	return func(s *Source) error {
		if sk == nil {
			return errors.New("skipper cannot be nil")
		}
		s.skipper = sk
		return nil
	}
}

// WithStandardsPath reads coding standards from p instead of README.md.
func WithStandardsPath(p string) Option {
	return func(s *Source) error {
		if p == "" {
			return errors.New("standards path cannot be empty")
		}
		s.standardsPath = p
		return nil
	}
}
