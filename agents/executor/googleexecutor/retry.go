/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package googleexecutor

import (
	"errors"

	"chainguard.dev/prrefine/agents/executor/retry"
	"google.golang.org/genai"
)

// quotaText matches quota failures that reach us without a typed status,
// such as errors surfaced while reading a response.
var quotaText = retry.MessageContains("RESOURCE_EXHAUSTED", "UNAVAILABLE")

// isRetryableVertexError classifies the error of one GenerateContent call.
func isRetryableVertexError(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return retry.TransientStatus(apiErr.Code)
	}
	return quotaText(err)
}
