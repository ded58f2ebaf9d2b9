/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package failure defines the structured error values produced by the
// regeneration pipeline. Every failure carries a Kind that decides how the
// pipeline reacts to it.
package failure

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Kind classifies a failure.
type Kind string

const (
	// Collaborator covers code-generation timeouts and malformed replies.
	// The affected file keeps its original content and the pass continues.
	Collaborator Kind = "collaborator"
	// HostingAPI covers network, auth and rate-limit failures talking to the
	// source-control host. Only the affected operation is aborted.
	HostingAPI Kind = "hosting_api"
	// Workspace covers clone, sync and disk failures. Fatal for the run.
	Workspace Kind = "workspace"
	// Build covers install failures that survived every repair attempt.
	// Advisory only.
	Build Kind = "build"
)

// Fatal reports whether a failure of this kind should stop the run.
func (k Kind) Fatal() bool {
	return k == Workspace
}

// Error is a structured failure value.
type Error struct {
	Kind    Kind
	Message string
	Context map[string]string
	Err     error
}

// New constructs an Error. The optional kv list is read as alternating
// key/value pairs; a trailing key without a value is dropped.
func New(kind Kind, message string, err error, kv ...string) *Error {
	e := &Error{
		Kind:    kind,
		Message: message,
		Err:     err,
	}
	if len(kv) > 1 {
		e.Context = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Context[kv[i]] = kv[i+1]
		}
	}
	return e
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Kind))
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if len(e.Context) > 0 {
		sb.WriteString(" [")
		for i, k := range slices.Sorted(maps.Keys(e.Context)) {
			if i > 0 {
				sb.WriteString(" ")
			}
			fmt.Fprintf(&sb, "%s=%s", k, e.Context[k])
		}
		sb.WriteString("]")
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when the
// chain holds none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// As returns the first *Error in err's chain. Errors outside the taxonomy are
// wrapped with the supplied fallback kind so callers always get a structured
// value to record.
func As(err error, fallback Kind) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	return New(fallback, err.Error(), err)
}
