/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package pipeline composes the regeneration stages into one run per pull
// request: fetch, regenerate, materialize, repair the build, gate the
// changes and optionally publish them. Every stage reports to the run's
// audit recorder.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"chainguard.dev/prrefine/agents/codegen"
	"chainguard.dev/prrefine/audit"
	"chainguard.dev/prrefine/config"
	"chainguard.dev/prrefine/reconcilers/githubreconciler/prsource"
	"chainguard.dev/prrefine/reconcilers/githubreconciler/publisher"
	"chainguard.dev/prrefine/reconcilers/githubreconciler/workspace"
	"chainguard.dev/prrefine/regen/buildrepair"
	"chainguard.dev/prrefine/regen/changegate"
	"chainguard.dev/prrefine/regen/failure"
	"chainguard.dev/prrefine/regen/orchestrator"
	"chainguard.dev/prrefine/regen/record"
	"chainguard.dev/prrefine/regen/scope"
	"chainguard.dev/prrefine/regen/telemetry"
	"github.com/chainguard-dev/clog"
)

// Source reads pull request files. *prsource.Source implements it.
type Source interface {
	Fetch(ctx context.Context, pr record.PRInfo) (map[string]string, error)
	Content(ctx context.Context, pr record.PRInfo, path, ref string) (string, error)
}

// Workspaces hands out working trees. *workspace.Registry implements it.
type Workspaces interface {
	Acquire(ctx context.Context, key workspace.Key) (*workspace.Handle, error)
}

// Publisher pushes gated changes. *publisher.Publisher implements it.
type Publisher interface {
	Publish(ctx context.Context, req publisher.Request) (publisher.Result, error)
}

// Result is everything one run produced.
type Result struct {
	RunID       string
	PR          record.PRInfo
	Records     []record.FileRecord
	Regenerated *record.FileSet
	Builds      []buildrepair.Outcome
	Changes     []changegate.Change
	Published   *publisher.Result
}

// Pipeline runs the stages for one pull request at a time. It is safe for
// concurrent use on distinct workspace keys.
type Pipeline struct {
	gen        codegen.Generator
	corrector  buildrepair.Corrector
	source     Source
	workspaces Workspaces

	publisher  Publisher
	sinks      []audit.Sink
	archiver   audit.Archiver
	orchOpts   []orchestrator.Option
	scopeOpts  []scope.Option
	buildOpts  []buildrepair.Option
	standards  string
	skipExtras []string
}

// New returns a Pipeline. gen regenerates files, corrector repairs
// manifests, src reads the pull request and ws provides working trees.
func New(gen codegen.Generator, corrector buildrepair.Corrector, src Source, ws Workspaces, opts ...Option) (*Pipeline, error) {
	switch {
	case gen == nil:
		return nil, errors.New("generator cannot be nil")
	case corrector == nil:
		return nil, errors.New("corrector cannot be nil")
	case src == nil:
		return nil, errors.New("source cannot be nil")
	case ws == nil:
		return nil, errors.New("workspaces cannot be nil")
	}
	p := &Pipeline{
		gen:        gen,
		corrector:  corrector,
		source:     src,
		workspaces: ws,
		standards:  prsource.DefaultStandardsPath,
	}
	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}
	return p, nil
}

// standardsFile reads the coding standards from the head branch.
type standardsFile struct {
	src  Source
	path string
}

func (s standardsFile) Standards(ctx context.Context, pr record.PRInfo) (string, error) {
	return s.src.Content(ctx, pr, s.path, pr.HeadBranch)
}

// repoSettings reads .prrefine.toml from the head branch. A missing or
// invalid file yields the defaults.
func (p *Pipeline) repoSettings(ctx context.Context, pr record.PRInfo, rec *audit.Recorder) config.Repo {
	log := clog.FromContext(ctx)
	data, err := p.source.Content(ctx, pr, config.RepoFile, pr.HeadBranch)
	switch {
	case err == nil:
	case prsource.IsNotFound(err):
		return config.Repo{}
	default:
		log.Warn("Reading repository settings failed, using defaults", "error", err)
		rec.RecordError(ctx, config.RepoFile, err)
		return config.Repo{}
	}
	settings, err := config.ParseRepo(data)
	if err != nil {
		log.Warn("Invalid repository settings, using defaults", "error", err)
		rec.RecordError(ctx, config.RepoFile, failure.New(failure.Collaborator, "invalid repository settings", err))
		return config.Repo{}
	}
	log.With("skip", len(settings.Skip)).With("overrides", len(settings.Install)).Info("Loaded repository settings")
	return settings
}

// Run processes pr end to end. Soft failures are recorded and the run
// continues; the returned error is the first fatal or surfaced failure.
func (p *Pipeline) Run(ctx context.Context, pr record.PRInfo) (res Result, err error) {
	rec := audit.NewRecorder(pr, p.sinks...)
	if p.archiver != nil {
		rec = rec.WithArchiver(p.archiver)
	}
	res = Result{RunID: rec.RunID(), PR: pr}
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("run_id", res.RunID).With("pr", pr.String()))
	log := clog.FromContext(ctx)

	start := time.Now()
	rec.Begin(ctx)
	defer func() {
		telemetry.RunFinished(start, err)
		if ferr := rec.Finish(ctx, err); ferr != nil {
			log.Warn("Finishing audit record", "error", ferr)
		}
	}()

	settings := p.repoSettings(ctx, pr, rec)

	files, err := p.source.Fetch(ctx, pr)
	if err != nil {
		rec.RecordError(ctx, "", err)
		return res, fmt.Errorf("fetching files: %w", err)
	}
	if len(settings.Skip) > 0 || len(p.skipExtras) > 0 {
		sk := record.NewSkipper(slices.Concat(p.skipExtras, settings.Skip)...)
		maps.DeleteFunc(files, func(path, _ string) bool { return sk.Skip(path) })
	}
	if len(files) == 0 {
		log.Info("No eligible files in pull request")
		return res, nil
	}

	scoper, err := scope.New(append(slices.Clone(p.scopeOpts),
		scope.WithSkipper(record.NewSkipper(slices.Concat(p.skipExtras, settings.Skip)...)))...)
	if err != nil {
		return res, fmt.Errorf("creating scoper: %w", err)
	}
	orch, err := orchestrator.New(p.gen, append(slices.Clone(p.orchOpts),
		orchestrator.WithScoper(scoper),
		orchestrator.WithStandards(standardsFile{src: p.source, path: settings.Standards(p.standards)}),
		orchestrator.WithAuditor(rec),
	)...)
	if err != nil {
		return res, fmt.Errorf("creating orchestrator: %w", err)
	}
	set, records, err := orch.Run(ctx, pr, files)
	res.Regenerated, res.Records = set, records
	if err != nil {
		rec.RecordError(ctx, "", err)
		return res, fmt.Errorf("regenerating: %w", err)
	}

	builds, err := p.build(ctx, pr, set, settings, rec)
	res.Builds = builds
	if err != nil {
		return res, err
	}

	res.Changes = changegate.Filter(set.Files())
	log.With("changes", len(res.Changes)).Info("Change gate applied")
	if p.publisher == nil || len(res.Changes) == 0 {
		return res, nil
	}

	pub, err := p.publisher.Publish(ctx, publisher.Request{PR: pr, Changes: res.Changes, Builds: builds})
	res.Published = &pub
	for _, fp := range slices.Sorted(maps.Keys(pub.Failed)) {
		rec.RecordError(ctx, fp, pub.Failed[fp])
	}
	if err != nil {
		rec.RecordError(ctx, "", err)
		return res, fmt.Errorf("publishing: %w", err)
	}
	return res, nil
}

// build materializes the regenerated files and runs the build-repair loop
// for every manifest that has a known toolchain. A corrector that also
// repairs sources enables the build stage. Only workspace failures are
// returned.
func (p *Pipeline) build(ctx context.Context, pr record.PRInfo, set *record.FileSet, settings config.Repo, rec *audit.Recorder) ([]buildrepair.Outcome, error) {
	var manifests []string
	for _, fp := range set.Paths() {
		if _, ok := buildrepair.Lookup(fp); ok {
			manifests = append(manifests, fp)
		}
	}
	if len(manifests) == 0 {
		return nil, nil
	}

	h, err := p.workspaces.Acquire(ctx, workspace.Key{
		Owner:  pr.Owner,
		Repo:   pr.Repo,
		Branch: pr.HeadBranch,
		PR:     pr.Number,
	})
	if err != nil {
		rec.RecordError(ctx, "", err)
		return nil, fmt.Errorf("acquiring workspace: %w", err)
	}
	defer h.Release()

	if err := h.Materialize(ctx, set.Files()); err != nil {
		rec.RecordError(ctx, "", err)
		return nil, fmt.Errorf("materializing: %w", err)
	}

	opts := append(slices.Clone(p.buildOpts), buildrepair.WithAuditor(rec))
	if sc, ok := p.corrector.(buildrepair.SourceCorrector); ok {
		opts = append(opts, buildrepair.WithSourceCorrector(sc))
	}
	loop, err := buildrepair.New(p.corrector, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating build loop: %w", err)
	}

	var outcomes []buildrepair.Outcome
	for _, m := range manifests {
		log := clog.FromContext(ctx).With("manifest", m)
		out, err := loop.WithOverride(settings.Override(m)).Run(ctx, h, m, set)
		if err != nil {
			rec.RecordError(ctx, m, err)
			if failure.KindOf(err).Fatal() || ctx.Err() != nil {
				return outcomes, fmt.Errorf("repairing %s: %w", m, err)
			}
			log.Warn("Build repair aborted", "error", err)
			continue
		}
		log.With("state", out.State.String()).
			With("attempts", len(out.Attempts)).
			Info(out.Description)
		outcomes = append(outcomes, out)
	}
	return outcomes, nil
}
