/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package orchestrator

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"chainguard.dev/prrefine/agents/codegen"
	"chainguard.dev/prrefine/regen/failure"
	"chainguard.dev/prrefine/regen/record"
	"github.com/google/go-cmp/cmp"
)

var targetPath = regexp.MustCompile(`Current code \(([^,]+),`)

// fakeGen answers each request with reply(path, prompt).
type fakeGen struct {
	mu      sync.Mutex
	prompts map[string]string
	order   []string
	reply   func(ctx context.Context, path string) (string, error)
}

func (f *fakeGen) Generate(ctx context.Context, req codegen.Request) (codegen.Response, error) {
	m := targetPath.FindStringSubmatch(req.Prompt)
	if m == nil {
		return codegen.Response{}, errors.New("prompt has no target")
	}
	f.mu.Lock()
	if f.prompts == nil {
		f.prompts = make(map[string]string)
	}
	f.prompts[m[1]] = req.Prompt
	f.order = append(f.order, m[1])
	f.mu.Unlock()

	text, err := f.reply(ctx, m[1])
	return codegen.Response{Text: text, Model: "fake", Usage: record.Usage{PromptTokens: 3, CompletionTokens: 1}}, err
}

func wellFormed(code string) string {
	return "### Changes:\n- Refined\n\n### Updated Code:\n```\n" + code + "\n```\n"
}

type auditLog struct {
	mu       sync.Mutex
	feedback []string
	errs     map[string]error
}

func (a *auditLog) RecordFeedback(_ context.Context, f record.RegeneratedFile) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.feedback = append(a.feedback, f.Path)
}

func (a *auditLog) RecordError(_ context.Context, path string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.errs == nil {
		a.errs = make(map[string]error)
	}
	a.errs[path] = err
}

var pr = record.PRInfo{Owner: "octo", Repo: "app", Number: 7, HeadBranch: "feature"}

func TestOrder(t *testing.T) {
	got := Order([]string{"package.json", "src/b.ts", "go.mod", "README.md", "src/a.ts"})
	want := []string{"README.md", "src/a.ts", "src/b.ts", "go.mod", "package.json"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Order (-want +got):\n%s", diff)
	}
}

func TestRunProgressive(t *testing.T) {
	files := map[string]string{
		"package.json": `{"dependencies": {"react": "^18.0.0"}}`,
		"src/b.ts":     "import React from 'react';\nexport const b = 2;\n",
		"src/a.ts":     "import React from 'react';\nexport const a = 1;\n",
	}
	gen := &fakeGen{reply: func(_ context.Context, p string) (string, error) {
		if p == "package.json" {
			return wellFormed(`{"dependencies": {"react": "^18.2.0"}}`), nil
		}
		return wellFormed("import React from 'react';\n// refined " + p), nil
	}}
	audit := &auditLog{}
	o, err := New(gen, WithStandards(StaticStandards("Use const.")), WithAuditor(audit))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	set, recs, err := o.Run(context.Background(), pr, files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	wantOrder := []string{"src/a.ts", "src/b.ts", "package.json"}
	if diff := cmp.Diff(wantOrder, gen.order); diff != "" {
		t.Errorf("request order (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(wantOrder, set.Paths()); diff != "" {
		t.Errorf("result order (-want +got):\n%s", diff)
	}
	var recPaths []string
	for _, r := range recs {
		recPaths = append(recPaths, r.Path)
	}
	if diff := cmp.Diff(wantOrder, recPaths); diff != "" {
		t.Errorf("record order (-want +got):\n%s", diff)
	}

	// b.ts shares react with a.ts, which was regenerated first.
	bPrompt := gen.prompts["src/b.ts"]
	if !strings.Contains(bPrompt, "// File: src/a.ts") || !strings.Contains(bPrompt, "[REFINED]") ||
		!strings.Contains(bPrompt, "// refined src/a.ts") {
		t.Errorf("b.ts prompt does not carry refined a.ts:\n%s", bPrompt)
	}
	if !strings.Contains(bPrompt, "Use const.") {
		t.Error("b.ts prompt is missing the coding standards")
	}

	// The manifest sees the summary, not source bodies.
	mPrompt := gen.prompts["package.json"]
	if !strings.Contains(mPrompt, "dependency-summary.yaml") || strings.Contains(mPrompt, "export const a") {
		t.Errorf("manifest prompt: got = %s", mPrompt)
	}

	a, _ := set.Get("src/a.ts")
	if a.UpdatedCode != "import React from 'react';\n// refined src/a.ts\n" || a.Changes != "- Refined" || a.Failed {
		t.Errorf("a.ts: got = %+v", a)
	}
	if a.Usage.Total() != 4 {
		t.Errorf("a.ts usage: got = %d, wanted = 4", a.Usage.Total())
	}
	if recs[1].ContextChars == 0 {
		t.Error("b.ts record: ContextChars not set")
	}
	if diff := cmp.Diff(wantOrder, audit.feedback); diff != "" {
		t.Errorf("audited feedback (-want +got):\n%s", diff)
	}
	if len(audit.errs) != 0 {
		t.Errorf("audited errors: got = %v, wanted none", audit.errs)
	}
}

func TestRunMatchesRegeneratedDeps(t *testing.T) {
	files := map[string]string{
		"package.json": `{"dependencies": {"react": "^18.0.0"}}`,
		"src/a.ts":     "import React from 'react';\nexport const a = 1;\n",
		"src/d.ts":     "import axios from 'axios';\nexport const d = axios;\n",
	}
	gen := &fakeGen{reply: func(_ context.Context, p string) (string, error) {
		if p == "src/a.ts" {
			// The refined file swaps react for axios.
			return wellFormed("import axios from 'axios';\nexport const a = axios.get;"), nil
		}
		return wellFormed(strings.TrimSuffix(files[p], "\n")), nil
	}}
	o, err := New(gen)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := o.Run(context.Background(), pr, files); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// d.ts shares axios only with the refined a.ts.
	if dPrompt := gen.prompts["src/d.ts"]; !strings.Contains(dPrompt, "// File: src/a.ts") {
		t.Errorf("d.ts prompt does not carry a.ts:\n%s", dPrompt)
	}
	// package.json never mentions axios; only the refreshed summary does.
	if mPrompt := gen.prompts["package.json"]; !strings.Contains(mPrompt, "axios") {
		t.Errorf("manifest prompt is missing the dependency added by src/a.ts:\n%s", mPrompt)
	}
}

func TestRunRecordsExtractionFailures(t *testing.T) {
	files := map[string]string{
		"package.json": "{ this is not json",
		"src/a.ts":     "export const a = 1;\n",
	}
	gen := &fakeGen{reply: func(_ context.Context, p string) (string, error) {
		if p == "package.json" {
			return wellFormed(`{"dependencies": {}}`), nil
		}
		return wellFormed("export const a = 1;"), nil
	}}
	audit := &auditLog{}
	o, err := New(gen, WithAuditor(audit))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, recs, err := o.Run(context.Background(), pr, files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	err = audit.errs["package.json"]
	if err == nil {
		t.Fatal("no audit entry for the unparseable manifest")
	}
	if kind := failure.KindOf(err); kind != failure.Collaborator {
		t.Errorf("audit kind: got = %q, wanted = %q", kind, failure.Collaborator)
	}
	if !strings.Contains(err.Error(), "dependency extraction failed") {
		t.Errorf("audit error: got = %v", err)
	}
	if _, ok := audit.errs["src/a.ts"]; ok {
		t.Errorf("src/a.ts: got audit error %v, wanted none", audit.errs["src/a.ts"])
	}
	if recs[1].DepsErr == nil {
		t.Error("package.json record: DepsErr not set")
	}
}

func TestRunSoftFailures(t *testing.T) {
	files := map[string]string{
		"a.py": "import flask\n",
		"b.py": "import flask\n",
		"c.py": "import flask\n",
	}
	gen := &fakeGen{reply: func(_ context.Context, p string) (string, error) {
		switch p {
		case "a.py":
			return "I refactored it but forgot the format.", nil
		case "b.py":
			return "", errors.New("service unavailable")
		}
		return wellFormed("import flask\nprint('c')"), nil
	}}
	audit := &auditLog{}
	o, err := New(gen, WithAuditor(audit))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	set, _, err := o.Run(context.Background(), pr, files)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if set.Len() != 3 {
		t.Fatalf("results: got = %d, wanted = 3", set.Len())
	}
	for _, p := range []string{"a.py", "b.py"} {
		f, _ := set.Get(p)
		if !f.Failed || f.UpdatedCode != f.OldCode || f.Changes == "" {
			t.Errorf("%s: got = %+v, wanted soft failure", p, f)
		}
		if kind := failure.KindOf(audit.errs[p]); kind != failure.Collaborator {
			t.Errorf("%s audit kind: got = %q, wanted = %q", p, kind, failure.Collaborator)
		}
	}
	if c, _ := set.Get("c.py"); c.Failed {
		t.Errorf("c.py: got soft failure, wanted success: %+v", c)
	}

	// The failed a.py is offered to later files with its original content.
	if strings.Contains(gen.prompts["c.py"], "[REFINED]") {
		t.Error("c.py prompt: failed files must not be marked refined")
	}
}

func TestRunTimeout(t *testing.T) {
	gen := &fakeGen{reply: func(ctx context.Context, _ string) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	o, err := New(gen, WithRequestTimeout(10*time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	set, _, err := o.Run(context.Background(), pr, map[string]string{"main.go": "package main\n"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	f, _ := set.Get("main.go")
	if !f.Failed || !strings.Contains(f.Changes, "timed out") {
		t.Errorf("main.go: got = %+v, wanted timeout soft failure", f)
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	gen := &fakeGen{reply: func(context.Context, string) (string, error) {
		cancel()
		return wellFormed("x"), nil
	}}
	o, err := New(gen)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	set, recs, err := o.Run(ctx, pr, map[string]string{"a.go": "package a\n", "b.go": "package b\n"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run: got = %v, wanted context.Canceled", err)
	}
	if diff := cmp.Diff([]string{"a.go"}, set.Paths()); diff != "" {
		t.Errorf("partial results (-want +got):\n%s", diff)
	}
	if len(recs) != 1 {
		t.Errorf("records: got = %d, wanted = 1", len(recs))
	}
}

type brokenStandards struct{}

func (brokenStandards) Standards(context.Context, record.PRInfo) (string, error) {
	return "", errors.New("404")
}

func TestRunStandardsFallback(t *testing.T) {
	gen := &fakeGen{reply: func(context.Context, string) (string, error) { return wellFormed("x"), nil }}
	o, err := New(gen, WithStandards(brokenStandards{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, _, err := o.Run(context.Background(), pr, map[string]string{"a.go": "package a\n"}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(gen.prompts["a.go"], FallbackStandards) {
		t.Error("prompt does not carry the fallback standards")
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(nil); err == nil {
		t.Error("New(nil): got nil error, wanted failure")
	}
	gen := &fakeGen{}
	for name, opt := range map[string]Option{
		"zero timeout": WithRequestTimeout(0),
		"nil scoper":   WithScoper(nil),
		"nil source":   WithStandards(nil),
		"nil auditor":  WithAuditor(nil),
	} {
		if _, err := New(gen, opt); err == nil {
			t.Errorf("%s: got nil error, wanted failure", name)
		}
	}
}
