/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package buildrepair

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"chainguard.dev/prrefine/agents/codegen"
)

const fixedReply = "### Analysis:\n- react@^19.2.0 does not exist, lowered to ^18.0.0\n\n" +
	"### Fixed package.json:\n```json\n{\n  \"name\": \"app\",\n  \"dependencies\": {\"react\": \"^18.0.0\"}\n}\n```\n"

func TestGeneratorCorrector(t *testing.T) {
	tc, _ := Lookup("package.json")
	var seen codegen.Request
	gen := codegen.GeneratorFunc(func(_ context.Context, req codegen.Request) (codegen.Response, error) {
		seen = req
		return codegen.Response{Text: fixedReply}, nil
	})
	c, err := NewCorrector(gen, 0)
	if err != nil {
		t.Fatalf("NewCorrector: %v", err)
	}
	got, err := c.Correct(context.Background(), CorrectionRequest{
		Manifest:   "package.json",
		Toolchain:  tc,
		Current:    "{\"name\": \"app\", \"dependencies\": {\"react\": \"^19.2.0\"}}",
		Diagnostic: "npm ERR! notarget No matching version found for react@^19.2.0",
		History:    []string{"lowered eslint"},
	})
	if err != nil {
		t.Fatalf("Correct: %v", err)
	}
	if want := "{\n  \"name\": \"app\",\n  \"dependencies\": {\"react\": \"^18.0.0\"}\n}\n"; got.Content != want {
		t.Errorf("Content: got = %q, wanted = %q", got.Content, want)
	}
	if want := "- react@^19.2.0 does not exist, lowered to ^18.0.0"; got.Analysis != want {
		t.Errorf("Analysis: got = %q, wanted = %q", got.Analysis, want)
	}

	if seen.Operation != "correct" {
		t.Errorf("Operation: got = %q, wanted = correct", seen.Operation)
	}
	for _, want := range []string{
		"npm install --legacy-peer-deps failed for package.json",
		"No matching version found for react@^19.2.0",
		"Attempt 1: lowered eslint",
		`"devDependencies"`,
		"```json\n{\"name\": \"app\"",
		"### Fixed package.json:",
	} {
		if !strings.Contains(seen.Prompt, want) {
			t.Errorf("prompt is missing %q:\n%s", want, seen.Prompt)
		}
	}
}

func TestGeneratorCorrectorRejects(t *testing.T) {
	tc, _ := Lookup("package.json")
	tests := []struct {
		name  string
		reply string
		err   error
	}{
		{name: "invalid json", reply: "### Fixed package.json:\n```json\n{\"name\": \n```\n"},
		{name: "dropped key", reply: "```json\n{\"name\": \"app\"}\n```"},
		{name: "empty", reply: "### Analysis:\n- nothing to do\n"},
		{name: "generator error", err: errors.New("quota")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := codegen.GeneratorFunc(func(context.Context, codegen.Request) (codegen.Response, error) {
				return codegen.Response{Text: tt.reply}, tt.err
			})
			c, err := NewCorrector(gen, time.Second)
			if err != nil {
				t.Fatalf("NewCorrector: %v", err)
			}
			if _, err := c.Correct(context.Background(), CorrectionRequest{
				Manifest:  "package.json",
				Toolchain: tc,
				Current:   `{"name": "app", "dependencies": {}}`,
			}); err == nil {
				t.Error("Correct: got nil error, wanted failure")
			}
		})
	}
}

func TestGeneratorCorrectorTimeout(t *testing.T) {
	tc, _ := Lookup("package.json")
	gen := codegen.GeneratorFunc(func(ctx context.Context, _ codegen.Request) (codegen.Response, error) {
		<-ctx.Done()
		return codegen.Response{}, ctx.Err()
	})
	c, err := NewCorrector(gen, 10*time.Millisecond)
	if err != nil {
		t.Fatalf("NewCorrector: %v", err)
	}
	_, err = c.Correct(context.Background(), CorrectionRequest{Manifest: "package.json", Toolchain: tc})
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("Correct: got = %v, wanted timeout", err)
	}
}

type stubCorrector struct {
	c     Correction
	err   error
	calls int
}

func (s *stubCorrector) Correct(context.Context, CorrectionRequest) (Correction, error) {
	s.calls++
	return s.c, s.err
}

func TestFallbackCorrector(t *testing.T) {
	ok := Correction{Content: "{}\n"}
	tests := []struct {
		name          string
		primary       *stubCorrector
		fallback      *stubCorrector
		want          Correction
		wantErr       bool
		fallbackCalls int
	}{{
		name:     "primary succeeds",
		primary:  &stubCorrector{c: ok},
		fallback: &stubCorrector{},
		want:     ok,
	}, {
		name:          "primary fails",
		primary:       &stubCorrector{err: errors.New("search unavailable")},
		fallback:      &stubCorrector{c: ok},
		want:          ok,
		fallbackCalls: 1,
	}, {
		name:          "both fail",
		primary:       &stubCorrector{err: errors.New("search unavailable")},
		fallback:      &stubCorrector{err: errors.New("quota")},
		wantErr:       true,
		fallbackCalls: 1,
	}}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FallbackCorrector{Primary: tt.primary, Fallback: tt.fallback}.Correct(context.Background(), CorrectionRequest{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("Correct: got error %v, wanted error = %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Correct: got = %+v, wanted = %+v", got, tt.want)
			}
			if tt.fallback.calls != tt.fallbackCalls {
				t.Errorf("fallback calls: got = %d, wanted = %d", tt.fallback.calls, tt.fallbackCalls)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		manifest string
		current  string
		next     string
		wantErr  bool
	}{
		{manifest: "package.json", current: `{"name":"a"}`, next: `{"name":"a","dependencies":{}}`},
		{manifest: "package.json", current: `{"name":"a","scripts":{}}`, next: `{"name":"a"}`, wantErr: true},
		{manifest: "package.json", current: `not json`, next: `{"name":"a"}`},
		{manifest: "package.json", current: `{}`, next: `[1, 2]`, wantErr: true},
		{manifest: "Cargo.toml", current: "[package]\nname = \"a\"\n", next: "[package]\nname = \"a\"\n[dependencies]\nserde = \"1\"\n"},
		{manifest: "Cargo.toml", current: "[package]\nname = \"a\"\n", next: "[dependencies\n", wantErr: true},
		{manifest: "go.mod", next: "module example.com/a\n\ngo 1.22\n"},
		{manifest: "go.mod", next: "go 1.22\n", wantErr: true},
		{manifest: "pom.xml", next: "<project><modelVersion>4.0.0</modelVersion></project>"},
		{manifest: "pom.xml", next: "<settings/>", wantErr: true},
		{manifest: "requirements.txt", next: "requests==2.31.0\n"},
		{manifest: "requirements.txt", next: "  \n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.manifest+"/"+tt.next, func(t *testing.T) {
			tc, ok := Lookup(tt.manifest)
			if !ok {
				t.Fatalf("Lookup(%s): not found", tt.manifest)
			}
			if err := tc.Validate(tt.current, tt.next); (err != nil) != tt.wantErr {
				t.Errorf("Validate: got = %v, wanted error = %v", err, tt.wantErr)
			}
		})
	}
}
