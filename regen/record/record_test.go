/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package record

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want FileKind
	}{
		{"package.json", KindManifest},
		{"web/package.json", KindManifest},
		{"backend/pom.xml", KindManifest},
		{"go.mod", KindManifest},
		{"Cargo.toml", KindManifest},
		{"src/App.tsx", KindSource},
		{"src/main/java/com/auth/AuthService.java", KindSource},
		{"cmd/main.go", KindSource},
		{"README.md", KindOther},
		{"go.sum", KindOther},
	}
	for _, tt := range tests {
		if got := Classify(tt.path); got != tt.want {
			t.Errorf("Classify(%q): got = %v, wanted = %v", tt.path, got, tt.want)
		}
	}
}

func TestFileSetPathUniqueness(t *testing.T) {
	s := NewFileSet()
	s.Put(RegeneratedFile{Path: "b.ts", UpdatedCode: "1"})
	s.Put(RegeneratedFile{Path: "a.ts", UpdatedCode: "2"})
	s.Put(RegeneratedFile{Path: "b.ts", UpdatedCode: "3"})

	if got := s.Len(); got != 2 {
		t.Fatalf("Len: got = %d, wanted = 2", got)
	}
	if diff := cmp.Diff([]string{"b.ts", "a.ts"}, s.Paths()); diff != "" {
		t.Errorf("Paths (-want +got):\n%s", diff)
	}
	f, ok := s.Get("b.ts")
	if !ok || f.UpdatedCode != "3" {
		t.Errorf("Get(b.ts): got = %+v, wanted replaced entry", f)
	}

	var nilSet *FileSet
	if nilSet.Len() != 0 || nilSet.Files() != nil {
		t.Error("nil FileSet should behave as empty")
	}
}

func TestSkipper(t *testing.T) {
	s := NewSkipper("generated/")

	skipped := []string{
		"package-lock.json",
		"web/package-lock.json",
		".github/workflows/ci.yml",
		"public/logo.SVG",
		"assets/font.woff2",
		"dist/app.tar.gz",
		"generated/api.ts",
	}
	for _, p := range skipped {
		if !s.Skip(p) {
			t.Errorf("Skip(%q): got = false, wanted = true", p)
		}
	}

	kept := []string{"src/index.ts", "package.json", "docs/github.md", "pom.xml"}
	for _, p := range kept {
		if s.Skip(p) {
			t.Errorf("Skip(%q): got = true, wanted = false", p)
		}
	}
}

func TestUsage(t *testing.T) {
	u := Usage{PromptTokens: 10, CompletionTokens: 5}.Add(Usage{PromptTokens: 1, CompletionTokens: 2})
	if u.Total() != 18 {
		t.Errorf("Total: got = %d, wanted = 18", u.Total())
	}
}
