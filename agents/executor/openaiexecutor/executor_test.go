/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package openaiexecutor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"chainguard.dev/prrefine/agents/codegen"
	"chainguard.dev/prrefine/agents/executor/retry"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

func completion(text string) string {
	b, _ := json.Marshal(text)
	return fmt.Sprintf(`{
  "id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-4.1-mini",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": %s}}],
  "usage": {"prompt_tokens": 40, "completion_tokens": 9, "total_tokens": 49}
}`, b)
}

func testClient(url string) openai.Client {
	return openai.NewClient(
		option.WithBaseURL(url),
		option.WithAPIKey("test"),
		option.WithMaxRetries(0),
	)
}

var fastRetry = retry.Config{MaxRetries: 2, BaseBackoff: time.Millisecond, MaxBackoff: time.Millisecond}

func TestGenerate(t *testing.T) {
	tests := []struct {
		name         string
		opts         []Option
		wantSearch   bool
		wantSampling bool
	}{
		{name: "plain", wantSampling: true},
		{name: "web search", opts: []Option{WithWebSearch()}, wantSearch: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
					t.Errorf("decoding request: %v", err)
				}
				w.Header().Set("Content-Type", "application/json")
				io.WriteString(w, completion("{\"name\": \"app\"}"))
			}))
			defer srv.Close()

			e, err := New(testClient(srv.URL), append(tt.opts, WithRetryConfig(fastRetry))...)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			got, err := e.Generate(context.Background(), codegen.Request{System: "sys", Prompt: "fix"})
			if err != nil {
				t.Fatalf("Generate: %v", err)
			}
			if got.Text != `{"name": "app"}` {
				t.Errorf("Text: got = %q", got.Text)
			}
			if got.Usage.PromptTokens != 40 || got.Usage.CompletionTokens != 9 {
				t.Errorf("Usage: got = %+v, wanted = {40 9}", got.Usage)
			}
			if _, ok := body["web_search_options"]; ok != tt.wantSearch {
				t.Errorf("web_search_options present: got = %v, wanted = %v", ok, tt.wantSearch)
			}
			if _, ok := body["temperature"]; ok != tt.wantSampling {
				t.Errorf("temperature present: got = %v, wanted = %v", ok, tt.wantSampling)
			}
			if msgs, _ := body["messages"].([]any); len(msgs) != 2 {
				t.Errorf("messages: got = %d, wanted = 2", len(msgs))
			}
		})
	}
}

func TestGenerateRetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit_error"}}`)
			return
		}
		io.WriteString(w, completion("ok"))
	}))
	defer srv.Close()

	e, err := New(testClient(srv.URL), WithRetryConfig(fastRetry))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := e.Generate(context.Background(), codegen.Request{Prompt: "p"}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls: got = %d, wanted = 2", calls.Load())
	}
}

func TestIsRetryableOpenAIError(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{fmt.Errorf("dial tcp: refused"), false},
		{&openai.Error{StatusCode: 429}, true},
		{&openai.Error{StatusCode: 503}, true},
		{&openai.Error{StatusCode: 401}, false},
		{fmt.Errorf("wrapped: %w", &openai.Error{StatusCode: 502}), true},
	}
	for _, tt := range tests {
		if got := isRetryableOpenAIError(tt.err); got != tt.want {
			t.Errorf("isRetryableOpenAIError(%v): got = %v, wanted = %v", tt.err, got, tt.want)
		}
	}
}
