/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

const instrumentation = "chainguard.dev/prrefine/agents/agenttrace"

// Trace is one generation request from prompt to result.
type Trace[T any] struct {
	ID               string
	Operation        string
	Run              RunContext
	PromptChars      int
	Model            string
	PromptTokens     int64
	CompletionTokens int64
	Result           T
	Err              error
	Start, End       time.Time

	mu     sync.Mutex
	span   oteltrace.Span
	tracer Tracer[T]
}

// StartTrace opens a span named "codegen.<operation>" and returns the
// trace. The tracer is taken from ctx.
func StartTrace[T any](ctx context.Context, operation, prompt string) *Trace[T] {
	rc := RunContextFrom(ctx)
	attrs := append(rc.spanAttributes(), attribute.Int("prompt.chars", len(prompt)))
	_, span := otel.Tracer(instrumentation, oteltrace.WithInstrumentationVersion("1.0.0")).
		Start(ctx, "codegen."+operation, oteltrace.WithAttributes(attrs...))

	return &Trace[T]{
		ID:          newTraceID(),
		Operation:   operation,
		Run:         rc,
		PromptChars: len(prompt),
		Start:       time.Now(),
		span:        span,
		tracer:      TracerFromContext[T](ctx),
	}
}

// RecordTokenUsage notes the model and its token counts on the trace and
// span.
func (t *Trace[T]) RecordTokenUsage(model string, prompt, completion int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Model = model
	t.PromptTokens += prompt
	t.CompletionTokens += completion
	t.span.SetAttributes(
		attribute.String("model", model),
		attribute.Int64("tokens.input", t.PromptTokens),
		attribute.Int64("tokens.output", t.CompletionTokens),
	)
}

// Complete ends the span and records the trace. It must be called once.
func (t *Trace[T]) Complete(result T, err error) {
	t.mu.Lock()
	t.Result, t.Err, t.End = result, err, time.Now()
	t.mu.Unlock()

	if err != nil {
		t.span.RecordError(err)
		t.span.SetStatus(codes.Error, err.Error())
	} else {
		t.span.SetStatus(codes.Ok, "")
	}
	t.span.End()
	t.tracer.RecordTrace(t)
}

// Duration is the elapsed time, up to now for an open trace.
func (t *Trace[T]) Duration() time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.End.IsZero() {
		return time.Since(t.Start)
	}
	return t.End.Sub(t.Start)
}

func newTraceID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102-150405.000000")
	}
	return fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405"), hex.EncodeToString(b))
}
