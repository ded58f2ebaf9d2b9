/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package orchestrator runs the progressive regeneration pass over the files
// of a pull request. Files are regenerated one at a time, sources before
// manifests, and each result is folded forward so that later requests see
// the refined content of earlier files.
package orchestrator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"chainguard.dev/prrefine/agents/agenttrace"
	"chainguard.dev/prrefine/agents/codegen"
	"chainguard.dev/prrefine/agents/response"
	"chainguard.dev/prrefine/regen/depextract"
	"chainguard.dev/prrefine/regen/failure"
	"chainguard.dev/prrefine/regen/record"
	"chainguard.dev/prrefine/regen/scope"
	"chainguard.dev/prrefine/regen/telemetry"
	"github.com/chainguard-dev/clog"
)

// DefaultRequestTimeout bounds a single generation request.
const DefaultRequestTimeout = 300 * time.Second

// FallbackStandards is used when the repository has no README.
const FallbackStandards = "# No README found\n\nPlease provide coding standards and requirements."

// StandardsSource provides the coding standards a pull request is held to.
type StandardsSource interface {
	Standards(ctx context.Context, pr record.PRInfo) (string, error)
}

// StaticStandards is a StandardsSource that always returns its value.
type StaticStandards string

func (s StaticStandards) Standards(context.Context, record.PRInfo) (string, error) {
	return string(s), nil
}

// Auditor receives per-file outcomes. *audit.Recorder implements it.
type Auditor interface {
	RecordFeedback(ctx context.Context, f record.RegeneratedFile)
	RecordError(ctx context.Context, path string, err error)
}

type nopAuditor struct{}

func (nopAuditor) RecordFeedback(context.Context, record.RegeneratedFile) {}
func (nopAuditor) RecordError(context.Context, string, error)             {}

// Orchestrator regenerates the files of a pull request.
type Orchestrator struct {
	gen       codegen.Generator
	scoper    *scope.Scoper
	standards StandardsSource
	auditor   Auditor
	timeout   time.Duration
}

// New creates an Orchestrator that sends requests to gen.
func New(gen codegen.Generator, opts ...Option) (*Orchestrator, error) {
	if gen == nil {
		return nil, errors.New("generator cannot be nil")
	}
	sc, err := scope.New()
	if err != nil {
		return nil, err
	}
	o := &Orchestrator{
		gen:       gen,
		scoper:    sc,
		standards: StaticStandards(FallbackStandards),
		auditor:   nopAuditor{},
		timeout:   DefaultRequestTimeout,
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return o, nil
}

// Order returns paths in processing order: non-manifest files sorted by
// path, then manifests sorted by path.
func Order(paths []string) []string {
	out := slices.Clone(paths)
	slices.SortFunc(out, func(a, b string) int {
		am, bm := record.Classify(a) == record.KindManifest, record.Classify(b) == record.KindManifest
		switch {
		case am && !bm:
			return 1
		case !am && bm:
			return -1
		}
		return cmp.Compare(a, b)
	})
	return out
}

// Records extracts the dependencies of every file and returns the records
// keyed by path together with the dependency summary.
func Records(ctx context.Context, files map[string]string) (map[string]record.FileRecord, depextract.Summary) {
	recs, results := extract(ctx, files)
	return recs, depextract.Summarize(results)
}

func extract(ctx context.Context, files map[string]string) (map[string]record.FileRecord, map[string]depextract.Result) {
	recs := make(map[string]record.FileRecord, len(files))
	results := make(map[string]depextract.Result, len(files))
	for p, content := range files {
		res := depextract.Extract(p, content)
		if res.Err != nil {
			clog.FromContext(ctx).With("path", p).
				With("method", res.Method).
				Warn("Dependency extraction failed", "error", res.Err)
		}
		results[p] = res
		recs[p] = record.FileRecord{
			Path:     p,
			Kind:     record.Classify(p),
			Original: content,
			Deps:     res.Deps,
			Local:    res.Local,
			DepsErr:  res.Err,
		}
	}
	return recs, results
}

func extractionError(p string, err error) error {
	return failure.New(failure.Collaborator, "dependency extraction failed", err, "path", p)
}

// Run regenerates files, a map from path to original content. It returns
// every result produced so far and one FileRecord per processed file, in
// processing order. Per-file failures are soft: the file keeps its content
// and the pass continues. Cancellation is honored between files, in which
// case the partial results are returned with ctx.Err().
func (o *Orchestrator) Run(ctx context.Context, pr record.PRInfo, files map[string]string) (*record.FileSet, []record.FileRecord, error) {
	log := clog.FromContext(ctx).With("pr", pr.String())
	recs, results := extract(ctx, files)
	summary := depextract.Summarize(results)
	order := Order(slices.Collect(maps.Keys(files)))
	for _, p := range order {
		if err := recs[p].DepsErr; err != nil {
			o.auditor.RecordError(ctx, p, extractionError(p, err))
		}
	}

	standards, err := o.standards.Standards(ctx, pr)
	if err != nil || standards == "" {
		log.Warn("Coding standards unavailable, using fallback", "error", err)
		standards = FallbackStandards
	}

	regenerated := record.NewFileSet()
	processed := make([]record.FileRecord, 0, len(files))
	stale := false
	for _, p := range order {
		if err := ctx.Err(); err != nil {
			log.With("processed", len(processed)).
				With("remaining", len(files)-len(processed)).
				Warn("Regeneration pass cancelled")
			return regenerated, processed, err
		}

		if stale {
			summary, stale = depextract.Summarize(results), false
		}
		rec := recs[p]
		c, err := o.scoper.Scope(p, scope.Inputs{Files: recs, Regenerated: regenerated, Summary: summary})
		if err != nil {
			return regenerated, processed, fmt.Errorf("scoping %s: %w", p, err)
		}
		rec.ContextChars, rec.Truncated = c.Chars, c.Truncated
		processed = append(processed, rec)

		f := o.regenerate(ctx, rec, standards, c)
		regenerated.Put(f)
		if !f.Failed && o.refresh(ctx, recs, results, f) {
			stale = true
		}
	}
	log.With("files", regenerated.Len()).Info("Regeneration pass complete")
	return regenerated, processed, nil
}

// refresh re-extracts the dependencies of f from its regenerated content so
// that later files are matched and summarized against the refined surface.
// On extraction failure the original dependencies stay in place. It reports
// whether the dependencies changed.
func (o *Orchestrator) refresh(ctx context.Context, recs map[string]record.FileRecord, results map[string]depextract.Result, f record.RegeneratedFile) bool {
	res := depextract.Extract(f.Path, f.UpdatedCode)
	if res.Err != nil {
		clog.FromContext(ctx).With("path", f.Path).Warn("Dependency extraction of regenerated content failed", "error", res.Err)
		o.auditor.RecordError(ctx, f.Path, extractionError(f.Path, res.Err))
		return false
	}
	rec := recs[f.Path]
	if slices.Equal(rec.Deps, res.Deps) && slices.Equal(rec.Local, res.Local) {
		return false
	}
	rec.Deps, rec.Local, rec.DepsErr = res.Deps, res.Local, nil
	recs[f.Path] = rec
	results[f.Path] = res
	return true
}

func (o *Orchestrator) regenerate(ctx context.Context, rec record.FileRecord, standards string, c scope.Context) record.RegeneratedFile {
	phase := agenttrace.PhaseSource
	if rec.Kind == record.KindManifest {
		phase = agenttrace.PhaseManifest
	}
	ctx = agenttrace.WithFile(ctx, rec.Path, phase)
	log := clog.FromContext(ctx).With("path", rec.Path).
		With("context_chars", c.Chars).
		With("truncated", c.Truncated)
	if c.Truncated {
		log.With("dropped", len(c.Dropped)).Warn("Context truncated to budget")
	}

	out := record.RegeneratedFile{Path: rec.Path, OldCode: rec.Original}
	soft := func(reason string, err error) record.RegeneratedFile {
		out.UpdatedCode = rec.Original
		out.Changes = "Regeneration failed, original content kept: " + reason
		out.Failed = true
		ferr := failure.New(failure.Collaborator, reason, err, "path", rec.Path)
		log.Warn("Regeneration failed, keeping original", "error", ferr)
		o.auditor.RecordError(ctx, rec.Path, ferr)
		telemetry.FileProcessed(rec.Kind.String(), telemetry.OutcomeSoftFailure)
		return out
	}

	prompt, err := buildPrompt(rec, standards, c.Render())
	if err != nil {
		return soft("building prompt", err)
	}

	rctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	resp, err := o.gen.Generate(rctx, codegen.Request{
		Operation: "regenerate",
		System:    systemInstructions,
		Prompt:    prompt,
	})
	out.Usage = resp.Usage
	switch {
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return soft(fmt.Sprintf("request timed out after %s", o.timeout), err)
	case err != nil:
		return soft("generation request failed", err)
	}

	parsed, err := response.Parse(resp.Text)
	if err != nil {
		return soft("reply did not follow the expected format", err)
	}
	out.Changes, out.UpdatedCode = parsed.Changes, parsed.Code
	log.With("prompt_tokens", resp.Usage.PromptTokens).
		With("completion_tokens", resp.Usage.CompletionTokens).
		Info("File regenerated")
	o.auditor.RecordFeedback(ctx, out)
	telemetry.FileProcessed(rec.Kind.String(), telemetry.OutcomeRegenerated)
	return out
}
