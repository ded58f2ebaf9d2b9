/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"chainguard.dev/prrefine/agents/codegen"
	"chainguard.dev/prrefine/agents/executor/claudeexecutor"
	"chainguard.dev/prrefine/agents/executor/googleexecutor"
	"chainguard.dev/prrefine/agents/executor/openaiexecutor"
	"chainguard.dev/prrefine/agents/metrics"
	"chainguard.dev/prrefine/audit"
	"chainguard.dev/prrefine/config"
	"chainguard.dev/prrefine/reconcilers/githubreconciler/prsource"
	"chainguard.dev/prrefine/reconcilers/githubreconciler/publisher"
	"chainguard.dev/prrefine/reconcilers/githubreconciler/workspace"
	"chainguard.dev/prrefine/regen/buildrepair"
	"chainguard.dev/prrefine/regen/pipeline"
	"cloud.google.com/go/storage"
	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/vertex"
	"github.com/chainguard-dev/clog"
	"github.com/openai/openai-go"
	"google.golang.org/genai"
)

// directClaudeModel is used when Claude is reached without Vertex AI and
// no model is configured.
const directClaudeModel = "claude-sonnet-4-20250514"

// app holds the components shared by the subcommands.
type app struct {
	cfg      *config.Config
	source   *prsource.Source
	store    *audit.SQLiteStore
	pipeline *pipeline.Pipeline
	closers  []io.Closer
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i].Close())
	}
	return errors.Join(errs...)
}

// newApp builds every component from cfg. publish enables the publisher.
func newApp(ctx context.Context, cfg *config.Config, publish bool) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	client, ts, err := cfg.GitHub(ctx)
	if err != nil {
		return nil, err
	}
	if a.source, err = prsource.New(client); err != nil {
		return nil, fmt.Errorf("creating pull request source: %w", err)
	}
	registry, err := workspace.NewRegistry(cfg.WorkspaceRoot, workspace.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("creating workspace registry: %w", err)
	}

	if a.store, err = audit.OpenSQLite(ctx, cfg.AuditDB); err != nil {
		return nil, err
	}
	a.closers = append(a.closers, a.store)
	sinks := []audit.Sink{a.store}
	if cfg.AuditLog != "" {
		jl, err := audit.NewJSONLSink(cfg.AuditLog, 100, 5)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, jl)
		sinks = append(sinks, jl)
	}

	gen, corrector, err := generators(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{
		pipeline.WithAuditSinks(sinks...),
		pipeline.WithOrchestratorOptions(cfg.OrchestratorOptions()...),
		pipeline.WithScopeOptions(cfg.ScopeOptions()...),
		pipeline.WithBuildOptions(cfg.BuildOptions()...),
	}
	if cfg.AuditBucket != "" {
		gcs, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("creating storage client: %w", err)
		}
		a.closers = append(a.closers, gcs)
		arch, err := audit.NewGCSArchiver(gcs, cfg.AuditBucket, cfg.AuditPrefix)
		if err != nil {
			return nil, err
		}
		opts = append(opts, pipeline.WithArchiver(arch))
	}
	if publish || cfg.Publish {
		pub, err := publisher.New(client)
		if err != nil {
			return nil, fmt.Errorf("creating publisher: %w", err)
		}
		opts = append(opts, pipeline.WithPublisher(pub))
	}

	if a.pipeline, err = pipeline.New(gen, corrector, a.source, registry, opts...); err != nil {
		return nil, fmt.Errorf("creating pipeline: %w", err)
	}
	return a, nil
}

// backend is one model the generators may call.
type backend struct {
	provider string
	model    string
	search   bool
}

func (b backend) String() string {
	name := b.provider
	if b.model != "" {
		name += "/" + b.model
	}
	if b.search {
		name += "+search"
	}
	return name
}

// backends returns the models to try, in order: the configured model, the
// same model without search when SEARCH is on and the provider supports
// it, then FALLBACK_PROVIDER without search.
func backends(cfg *config.Config) []backend {
	search := cfg.Search && cfg.Provider != config.ProviderClaude
	out := []backend{{provider: cfg.Provider, model: cfg.Model, search: search}}
	if search {
		out = append(out, backend{provider: cfg.Provider, model: cfg.Model})
	}
	if cfg.FallbackProvider != "" {
		out = append(out, backend{provider: cfg.FallbackProvider, model: cfg.FallbackModel})
	}
	return out
}

// generators returns the instrumented code generator and the corrector,
// each trying the backends in order.
func generators(ctx context.Context, cfg *config.Config) (codegen.Generator, buildrepair.Corrector, error) {
	m := metrics.NewGenAI(metrics.MeterName)
	bs := backends(cfg)

	var (
		gen  codegen.Generator
		corr buildrepair.Corrector
	)
	for i := len(bs) - 1; i >= 0; i-- {
		g, err := newGenerator(ctx, cfg, bs[i])
		if err != nil {
			return nil, nil, fmt.Errorf("creating %s generator: %w", bs[i], err)
		}
		g = codegen.Instrument(g, m)
		c, err := buildrepair.NewCorrector(g, cfg.CorrectionTimeout)
		if err != nil {
			return nil, nil, err
		}
		if gen == nil {
			gen, corr = g, c
			continue
		}
		gen = codegen.WithFallback(g, gen)
		corr = &buildrepair.FallbackCorrector{Primary: c, Fallback: corr}
	}
	if len(bs) > 1 {
		clog.InfoContextf(ctx, "Generating with %v", bs)
	}
	return gen, corr, nil
}

func newGenerator(ctx context.Context, cfg *config.Config, b backend) (codegen.Generator, error) {
	model := b.model
	switch b.provider {
	case config.ProviderClaude:
		var reqOpts []option.RequestOption
		opts := []claudeexecutor.Option{claudeexecutor.WithTemperature(cfg.Temperature)}
		if cfg.GCPProjectID != "" {
			reqOpts = append(reqOpts, vertex.WithGoogleAuth(ctx, cfg.GCPRegion, cfg.GCPProjectID))
		} else if model == "" {
			model = directClaudeModel
		}
		if model != "" {
			opts = append(opts, claudeexecutor.WithModel(model))
		}
		return claudeexecutor.New(anthropic.NewClient(reqOpts...), opts...)

	case config.ProviderGemini:
		client, err := genai.NewClient(ctx, &genai.ClientConfig{
			Project:  cfg.GCPProjectID,
			Location: cfg.GCPRegion,
			Backend:  genai.BackendVertexAI,
		})
		if err != nil {
			return nil, fmt.Errorf("creating genai client: %w", err)
		}
		opts := []googleexecutor.Option{googleexecutor.WithTemperature(float32(cfg.Temperature))}
		if model != "" {
			opts = append(opts, googleexecutor.WithModel(model))
		}
		if b.search {
			opts = append(opts, googleexecutor.WithGoogleSearch())
		}
		return googleexecutor.New(client, opts...)

	case config.ProviderOpenAI:
		opts := []openaiexecutor.Option{openaiexecutor.WithTemperature(cfg.Temperature)}
		if model != "" {
			opts = append(opts, openaiexecutor.WithModel(model))
		}
		if b.search {
			opts = append(opts, openaiexecutor.WithWebSearch())
		}
		return openaiexecutor.New(openai.NewClient(), opts...)
	}
	return nil, fmt.Errorf("unknown provider %q", b.provider)
}
