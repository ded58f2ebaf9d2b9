/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package codegen defines the contract between the regeneration pipeline and
// the code-generation services. Implementations live under agents/executor.
package codegen

import (
	"context"
	"errors"
	"time"

	"chainguard.dev/prrefine/agents/agenttrace"
	"chainguard.dev/prrefine/agents/metrics"
	"chainguard.dev/prrefine/regen/record"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"
)

// Request is a single-shot generation request.
type Request struct {
	// Operation names the request for traces and metrics, for example
	// "regenerate" or "correct".
	Operation string
	System    string
	Prompt    string
}

// Response is the model's text reply.
type Response struct {
	Text  string
	Model string
	Usage record.Usage
}

// Generator produces a reply for a request.
type Generator interface {
	Generate(ctx context.Context, req Request) (Response, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (Response, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

type fallback struct {
	primary, secondary Generator
}

// WithFallback returns a Generator that sends requests to primary and, when
// primary fails for any reason other than ctx ending, retries once on
// secondary. Callers see the same contract either way.
func WithFallback(primary, secondary Generator) Generator {
	return &fallback{primary: primary, secondary: secondary}
}

func (f *fallback) Generate(ctx context.Context, req Request) (Response, error) {
	resp, err := f.primary.Generate(ctx, req)
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return Response{}, err
	}
	clog.FromContext(ctx).With("operation", req.Operation).
		Warn("Primary generator failed, using fallback", "error", err)

	resp, ferr := f.secondary.Generate(ctx, req)
	if ferr != nil {
		return Response{}, errors.Join(err, ferr)
	}
	return resp, nil
}

type instrumented struct {
	inner   Generator
	metrics *metrics.GenAI
}

// Instrument wraps g so that every request opens an agenttrace span and
// records token and latency metrics.
func Instrument(g Generator, m *metrics.GenAI) Generator {
	if m == nil {
		m = metrics.NewGenAI(metrics.MeterName)
	}
	m.SetAttributeEnricher(func(ctx context.Context, base []attribute.KeyValue) []attribute.KeyValue {
		return agenttrace.RunContextFrom(ctx).EnrichAttributes(base)
	})
	return &instrumented{inner: g, metrics: m}
}

func (i *instrumented) Generate(ctx context.Context, req Request) (resp Response, err error) {
	trace := agenttrace.StartTrace[string](ctx, req.Operation, req.System+req.Prompt)
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		i.metrics.RecordRequest(ctx, resp.Model, outcome, time.Since(start))
		trace.Complete(resp.Text, err)
	}()

	resp, err = i.inner.Generate(ctx, req)
	if err != nil {
		return Response{}, err
	}
	trace.RecordTokenUsage(resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	i.metrics.RecordTokens(ctx, resp.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}
