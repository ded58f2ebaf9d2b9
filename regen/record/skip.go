/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package record

import (
	"slices"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
)

// DefaultSkipPatterns are gitignore-style patterns for paths that are never
// regenerated or offered as context: lockfiles, CI configuration, and
// assets or binaries.
var DefaultSkipPatterns = []string{
	"package-lock.json",
	".github/",
	// Images
	"*.svg", "*.png", "*.jpg", "*.jpeg", "*.gif", "*.webp", "*.ico", "*.bmp", "*.tiff",
	// Video
	"*.mp4", "*.avi", "*.mov", "*.wmv", "*.flv", "*.webm",
	// Audio
	"*.mp3", "*.wav", "*.flac", "*.aac", "*.ogg",
	// Fonts
	"*.ttf", "*.otf", "*.woff", "*.woff2", "*.eot",
	// Documents
	"*.pdf", "*.doc", "*.docx", "*.xls", "*.xlsx", "*.ppt", "*.pptx",
	// Archives
	"*.zip", "*.rar", "*.7z", "*.tar", "*.gz",
	// Binaries
	"*.exe", "*.dll", "*.so", "*.dylib",
}

// Skipper decides which paths are excluded from a pass.
type Skipper struct {
	matcher *ignore.GitIgnore
}

// NewSkipper compiles DefaultSkipPatterns plus any extra patterns, typically
// taken from the repository's .prrefine.toml.
func NewSkipper(extra ...string) *Skipper {
	lines := slices.Concat(DefaultSkipPatterns, extra)
	return &Skipper{matcher: ignore.CompileIgnoreLines(lines...)}
}

// Skip reports whether p is excluded. Extension matching ignores case.
func (s *Skipper) Skip(p string) bool {
	if s == nil || s.matcher == nil {
		return false
	}
	return s.matcher.MatchesPath(p) || s.matcher.MatchesPath(strings.ToLower(p))
}
