/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package record holds the immutable per-run and per-file values that flow
// between the regeneration stages.
package record

import (
	"fmt"
	"path"
	"strings"
	"time"
)

// PRInfo describes the pull request a run operates on.
type PRInfo struct {
	Owner      string
	Repo       string
	Number     int
	Title      string
	HeadBranch string
	BaseBranch string
	HeadSHA    string
}

// Identity returns "owner/repo".
func (p PRInfo) Identity() string {
	return p.Owner + "/" + p.Repo
}

// String returns "owner/repo#n".
func (p PRInfo) String() string {
	return fmt.Sprintf("%s/%s#%d", p.Owner, p.Repo, p.Number)
}

// FileKind classifies a path for extraction and ordering.
type FileKind int

const (
	KindOther FileKind = iota
	KindSource
	KindManifest
)

func (k FileKind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindManifest:
		return "manifest"
	default:
		return "other"
	}
}

var manifestNames = map[string]struct{}{
	"package.json":     {},
	"tsconfig.json":    {},
	"pom.xml":          {},
	"build.gradle":     {},
	"build.gradle.kts": {},
	"go.mod":           {},
	"Cargo.toml":       {},
	"requirements.txt": {},
	"pyproject.toml":   {},
	"Gemfile":          {},
}

var sourceExts = map[string]struct{}{
	".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {}, ".mjs": {}, ".cjs": {},
	".java": {}, ".kt": {},
	".go": {},
	".py": {},
	".rb": {},
	".rs": {},
}

// Classify returns the kind of the slash-separated path p.
func Classify(p string) FileKind {
	base := path.Base(p)
	if _, ok := manifestNames[base]; ok {
		return KindManifest
	}
	if _, ok := sourceExts[strings.ToLower(path.Ext(base))]; ok {
		return KindSource
	}
	return KindOther
}

// FileRecord is one file touched in a pass.
type FileRecord struct {
	Path     string
	Kind     FileKind
	Original string
	// Deps is sorted and free of duplicates.
	Deps []string
	// Local holds unresolved references to other files in the repository.
	Local []string
	// DepsErr is set when dependency extraction failed for this file.
	DepsErr error

	ContextChars int
	Truncated    bool
}

// Usage is the token consumption of one generation request.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// Total returns prompt plus completion tokens.
func (u Usage) Total() int64 {
	return u.PromptTokens + u.CompletionTokens
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + o.PromptTokens,
		CompletionTokens: u.CompletionTokens + o.CompletionTokens,
	}
}

// RegeneratedFile is the regeneration outcome for one path.
type RegeneratedFile struct {
	Path        string
	OldCode     string
	Changes     string
	UpdatedCode string
	// Failed marks a soft failure: UpdatedCode equals OldCode and Changes
	// carries the diagnostic.
	Failed bool
	Usage  Usage
}

// BuildAttempt is one INSTALL invocation of the build-repair loop.
type BuildAttempt struct {
	Number     int
	Command    string
	ExitCode   int
	Stdout     string
	Stderr     string
	Diagnostic string
	Duration   time.Duration
}

// Succeeded reports whether the attempt exited cleanly.
func (b BuildAttempt) Succeeded() bool {
	return b.ExitCode == 0
}
