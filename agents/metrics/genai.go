/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package metrics records OpenTelemetry instruments for code-generation
// requests: token consumption, request counts by outcome, and latency.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// MeterName is shared by every generator; the model is a dimension.
const MeterName = "chainguard.dev/prrefine/codegen"

// AttributeEnricher adds request-scoped attributes, such as the repository,
// to the base set before a measurement is recorded.
type AttributeEnricher func(ctx context.Context, base []attribute.KeyValue) []attribute.KeyValue

// GenAI holds the generation instruments. Instruments that fail to
// initialize degrade to no-ops.
type GenAI struct {
	promptTokens     metric.Int64Counter
	completionTokens metric.Int64Counter
	requests         metric.Int64Counter
	latency          metric.Float64Histogram
	enrich           AttributeEnricher
}

// NewGenAI creates the instruments on the global meter provider.
func NewGenAI(meterName string) *GenAI {
	meter := otel.Meter(meterName, metric.WithInstrumentationVersion("1.0.0"))
	warn := func(name string, err error) {
		slog.Warn("Failed to create instrument, using no-op", "instrument", name, "meter", meterName, "error", err)
	}

	m := &GenAI{}
	var err error
	if m.promptTokens, err = meter.Int64Counter("genai.token.prompt",
		metric.WithDescription("Prompt tokens consumed"),
		metric.WithUnit("{tokens}")); err != nil {
		warn("genai.token.prompt", err)
		m.promptTokens = noop.Int64Counter{}
	}
	if m.completionTokens, err = meter.Int64Counter("genai.token.completion",
		metric.WithDescription("Completion tokens produced"),
		metric.WithUnit("{tokens}")); err != nil {
		warn("genai.token.completion", err)
		m.completionTokens = noop.Int64Counter{}
	}
	if m.requests, err = meter.Int64Counter("genai.requests",
		metric.WithDescription("Generation requests by outcome"),
		metric.WithUnit("{requests}")); err != nil {
		warn("genai.requests", err)
		m.requests = noop.Int64Counter{}
	}
	if m.latency, err = meter.Float64Histogram("genai.request.duration",
		metric.WithDescription("Generation request latency"),
		metric.WithUnit("s")); err != nil {
		warn("genai.request.duration", err)
		m.latency = noop.Float64Histogram{}
	}
	return m
}

// SetAttributeEnricher installs e for subsequent measurements.
func (m *GenAI) SetAttributeEnricher(e AttributeEnricher) {
	m.enrich = e
}

func (m *GenAI) attrs(ctx context.Context, base ...attribute.KeyValue) metric.MeasurementOption {
	if m.enrich != nil {
		base = m.enrich(ctx, base)
	}
	return metric.WithAttributes(base...)
}

// RecordTokens adds one request's token usage.
func (m *GenAI) RecordTokens(ctx context.Context, model string, prompt, completion int64) {
	opt := m.attrs(ctx, attribute.String("model", model))
	m.promptTokens.Add(ctx, prompt, opt)
	m.completionTokens.Add(ctx, completion, opt)
}

// RecordRequest counts one request and its latency. outcome is "ok",
// "error" or "fallback".
func (m *GenAI) RecordRequest(ctx context.Context, model, outcome string, d time.Duration) {
	opt := m.attrs(ctx, attribute.String("model", model), attribute.String("outcome", outcome))
	m.requests.Add(ctx, 1, opt)
	m.latency.Record(ctx, d.Seconds(), opt)
}
