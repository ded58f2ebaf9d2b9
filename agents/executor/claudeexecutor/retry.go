/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package claudeexecutor

import (
	"errors"
	"io"

	"chainguard.dev/prrefine/agents/executor/retry"
	"github.com/anthropics/anthropic-sdk-go"
)

// statusOverloaded is the non-standard status Anthropic returns when the
// API is saturated.
const statusOverloaded = 529

// streamOverloaded matches an overload reported as a stream error event,
// after the response headers were already accepted.
var streamOverloaded = retry.MessageContains("overloaded_error")

// isRetryableClaudeError classifies the error of one streamed Messages call.
// Streams that drop mid-response are retried along with transient statuses.
func isRetryableClaudeError(err error) bool {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == statusOverloaded || retry.TransientStatus(apiErr.StatusCode)
	}
	return errors.Is(err, io.ErrUnexpectedEOF) || streamOverloaded(err)
}
