/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package telemetry holds the Prometheus instruments of the regeneration
// pipeline. They register on the default registry, which the serve and
// watch commands expose on the metrics port.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// File outcomes.
const (
	OutcomeRegenerated = "regenerated"
	OutcomeSoftFailure = "soft_failure"
)

var (
	filesCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prrefine_files_total",
			Help: "Files processed by the regeneration pass",
		},
		[]string{"kind", "outcome"},
	)

	buildAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prrefine_build_attempts_total",
			Help: "Install invocations made by the build-repair loop",
		},
		[]string{"toolchain", "result"},
	)

	buildOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prrefine_build_outcomes_total",
			Help: "Terminal states reached by the build-repair loop",
		},
		[]string{"toolchain", "state"},
	)

	gatedChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "prrefine_gated_files_total",
			Help: "Files seen by the change gate, by decision",
		},
		[]string{"decision"},
	)

	runDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "prrefine_run_duration_seconds",
			Help:    "Wall time of a pipeline run",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		},
		[]string{"result"},
	)
)

// FileProcessed counts one file leaving the orchestrator.
func FileProcessed(kind, outcome string) {
	filesCounter.WithLabelValues(kind, outcome).Inc()
}

// BuildAttempt counts one install invocation.
func BuildAttempt(toolchain string, succeeded bool) {
	result := "failed"
	if succeeded {
		result = "succeeded"
	}
	buildAttempts.WithLabelValues(toolchain, result).Inc()
}

// BuildOutcome counts a terminal build-repair state.
func BuildOutcome(toolchain, state string) {
	buildOutcomes.WithLabelValues(toolchain, state).Inc()
}

// Gated counts change-gate decisions: "kept", "unchanged" or "no_changes".
func Gated(decision string, n int) {
	gatedChanges.WithLabelValues(decision).Add(float64(n))
}

// RunFinished observes the duration of a run that started at start.
func RunFinished(start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	runDuration.WithLabelValues(result).Observe(time.Since(start).Seconds())
}
