/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package googleexecutor

import (
	"errors"
	"fmt"
	"testing"

	"google.golang.org/genai"
)

func TestIsRetryableVertexError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{{
		name: "quota exhausted",
		err:  genai.APIError{Code: 429, Status: "RESOURCE_EXHAUSTED"},
		want: true,
	}, {
		name: "model unavailable",
		err:  genai.APIError{Code: 503, Status: "UNAVAILABLE"},
		want: true,
	}, {
		name: "internal error wrapped by the executor",
		err:  fmt.Errorf("failed to generate content: %w", genai.APIError{Code: 500, Status: "INTERNAL"}),
		want: true,
	}, {
		name: "deadline at the gateway",
		err:  genai.APIError{Code: 504, Status: "DEADLINE_EXCEEDED"},
		want: true,
	}, {
		name: "untyped quota failure",
		err:  errors.New("reading response: RESOURCE_EXHAUSTED"),
		want: true,
	}, {
		name: "search grounding not enabled",
		err:  genai.APIError{Code: 400, Status: "INVALID_ARGUMENT", Message: "google_search is not supported"},
		want: false,
	}, {
		name: "missing Vertex permission",
		err:  genai.APIError{Code: 403, Status: "PERMISSION_DENIED"},
		want: false,
	}, {
		name: "typed status wins over message text",
		err:  genai.APIError{Code: 400, Message: "RESOURCE_EXHAUSTED is not a valid field"},
		want: false,
	}, {
		name: "unknown model",
		err:  genai.APIError{Code: 404, Status: "NOT_FOUND"},
		want: false,
	}, {
		name: "no error",
		want: false,
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isRetryableVertexError(tt.err); got != tt.want {
				t.Errorf("isRetryableVertexError(%v): got = %v, wanted = %v", tt.err, got, tt.want)
			}
		})
	}
}
