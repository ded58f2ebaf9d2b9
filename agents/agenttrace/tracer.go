/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/errgroup"
)

// Tracer receives completed traces.
type Tracer[T any] interface {
	RecordTrace(*Trace[T])
}

// Callback handles a completed trace.
type Callback[T any] func(*Trace[T])

type byCode[T any] struct {
	callbacks []Callback[T]
}

// ByCode returns a Tracer that runs every callback concurrently and waits
// for them before returning.
func ByCode[T any](callbacks ...Callback[T]) Tracer[T] {
	return &byCode[T]{callbacks: callbacks}
}

func (b *byCode[T]) RecordTrace(t *Trace[T]) {
	var g errgroup.Group
	for _, cb := range b.callbacks {
		g.Go(func() error {
			cb(t)
			return nil
		})
	}
	_ = g.Wait()
}

// NewLogTracer returns a Tracer that logs a one-line summary of each trace
// to the logger in ctx.
func NewLogTracer[T any](ctx context.Context) Tracer[T] {
	log := clog.FromContext(ctx)
	return ByCode(func(t *Trace[T]) {
		l := log.With(
			"trace_id", t.ID,
			"operation", t.Operation,
			"file", t.Run.File,
			"model", t.Model,
			"prompt_tokens", t.PromptTokens,
			"completion_tokens", t.CompletionTokens,
			"duration_ms", t.Duration().Milliseconds(),
		)
		if t.Err != nil {
			l.Warn("Generation failed", "error", t.Err)
			return
		}
		l.Info("Generation completed")
	})
}

type tracerKey struct{}

// WithTracer stores tr in ctx for traces of result type T.
func WithTracer[T any](ctx context.Context, tr Tracer[T]) context.Context {
	return context.WithValue(ctx, tracerKey{}, tr)
}

// TracerFromContext returns the Tracer stored in ctx, falling back to a
// log tracer.
func TracerFromContext[T any](ctx context.Context) Tracer[T] {
	if tr, ok := ctx.Value(tracerKey{}).(Tracer[T]); ok {
		return tr
	}
	return NewLogTracer[T](ctx)
}
