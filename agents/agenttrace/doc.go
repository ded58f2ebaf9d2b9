/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package agenttrace records one trace per code-generation request.
//
// A Trace opens an OpenTelemetry span, collects token usage and the
// outcome, and on completion hands itself to the Tracer found in the
// context. RunContext carries the pull request being processed so that
// spans and metrics can be attributed to it.
//
//	ctx = agenttrace.WithRunContext(ctx, agenttrace.RunContext{
//		RunID:      runID,
//		Repository: "octo/app",
//		PullRequest: 42,
//		Phase:      agenttrace.PhaseSource,
//	})
//	tr := agenttrace.StartTrace[string](ctx, "regenerate", prompt)
//	defer func() { tr.Complete(out, err) }()
package agenttrace
