/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// Phases of a regeneration run.
const (
	PhaseSource     = "source"
	PhaseManifest   = "manifest"
	PhaseCorrection = "correction"
)

// RunContext identifies the work a generation request belongs to.
type RunContext struct {
	RunID       string `json:"run_id,omitempty"`
	Repository  string `json:"repository,omitempty"`
	PullRequest int    `json:"pull_request,omitempty"`
	HeadSHA     string `json:"head_sha,omitempty"`
	File        string `json:"file,omitempty"`
	Phase       string `json:"phase,omitempty"`
}

// spanAttributes are the attributes put on every span. Spans tolerate
// high cardinality, so identifiers are included.
func (r RunContext) spanAttributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	add := func(k, v string) {
		if v != "" {
			attrs = append(attrs, attribute.String(k, v))
		}
	}
	add("run_id", r.RunID)
	add("repository", r.Repository)
	add("head_sha", r.HeadSHA)
	add("file", r.File)
	add("phase", r.Phase)
	if r.PullRequest != 0 {
		attrs = append(attrs, attribute.Int("pull_request", r.PullRequest))
	}
	return attrs
}

// EnrichAttributes appends the bounded subset of the run context, the
// repository and phase, to base. Run IDs, PR numbers and paths are left
// to traces.
func (r RunContext) EnrichAttributes(base []attribute.KeyValue) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, len(base), len(base)+2)
	copy(attrs, base)
	if r.Repository != "" {
		attrs = append(attrs, attribute.String("repository", r.Repository))
	}
	if r.Phase != "" {
		attrs = append(attrs, attribute.String("phase", r.Phase))
	}
	return attrs
}

type runContextKey struct{}

// WithRunContext stores rc in ctx.
func WithRunContext(ctx context.Context, rc RunContext) context.Context {
	return context.WithValue(ctx, runContextKey{}, rc)
}

// RunContextFrom returns the RunContext stored in ctx, or the zero value.
func RunContextFrom(ctx context.Context) RunContext {
	rc, _ := ctx.Value(runContextKey{}).(RunContext)
	return rc
}

// WithFile returns ctx with the run context's File and Phase replaced.
func WithFile(ctx context.Context, file, phase string) context.Context {
	rc := RunContextFrom(ctx)
	rc.File, rc.Phase = file, phase
	return WithRunContext(ctx, rc)
}
