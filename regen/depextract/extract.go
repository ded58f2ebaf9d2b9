/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package depextract derives the symbolic external dependencies a file
// references. Source files are scanned for import statements; manifest files
// are parsed structurally with a pattern-based fallback. Extraction never
// fails a pass: problems are reported on the Result and the dependency set
// is left empty.
package depextract

import (
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"chainguard.dev/prrefine/regen/record"
)

// Method records how a Result was produced.
type Method string

const (
	MethodScan       Method = "scan"
	MethodStructural Method = "structural"
	MethodPattern    Method = "pattern"
	MethodNone       Method = "none"
)

// ErrUnparseable is wrapped by Result.Err when neither the structural parse
// nor the pattern fallback could read a manifest.
var ErrUnparseable = errors.New("manifest could not be parsed")

// Result is the outcome of extracting one file.
type Result struct {
	// Deps holds external dependency identifiers, sorted and unique.
	Deps []string
	// Local holds references to other files in the same repository:
	// relative specifiers ("./util", "..models") or slash-separated class
	// paths ("com/auth/dto/LoginResponse").
	Local  []string
	Method Method
	Err    error
}

// Extract returns the dependencies referenced by content, which is the body
// of the file at the slash-separated path p.
func Extract(p, content string) Result {
	switch record.Classify(p) {
	case record.KindManifest:
		return extractManifest(p, content)
	case record.KindSource:
		return extractSource(p, content)
	default:
		return Result{Method: MethodNone}
	}
}

func extractSource(p, content string) Result {
	var deps, local []string
	switch strings.ToLower(path.Ext(p)) {
	case ".js", ".jsx", ".ts", ".tsx", ".mjs", ".cjs":
		deps, local = scanJavaScript(content)
	case ".java", ".kt":
		deps, local = scanJVM(content)
	case ".go":
		deps = scanGo(content)
	case ".py":
		deps, local = scanPython(content)
	case ".rb":
		deps, local = scanRuby(content)
	case ".rs":
		deps = scanRust(content)
	}
	return Result{
		Deps:   normalizeSet(deps),
		Local:  normalizeSet(local),
		Method: MethodScan,
	}
}

// manifestParser reads one manifest format. structural may be nil for
// formats that only have a pattern grammar.
type manifestParser struct {
	structural func(content string) ([]string, error)
	pattern    func(content string) []string
}

var manifestParsers = map[string]manifestParser{
	"package.json":     {structural: parsePackageJSON, pattern: scanPackageJSON},
	"tsconfig.json":    {structural: parseTSConfig, pattern: scanTSConfig},
	"pom.xml":          {structural: parsePOM, pattern: scanPOM},
	"build.gradle":     {pattern: scanGradle},
	"build.gradle.kts": {pattern: scanGradle},
	"go.mod":           {structural: parseGoMod, pattern: scanGoMod},
	"Cargo.toml":       {structural: parseCargo, pattern: scanTOMLTables("dependencies", "dev-dependencies", "build-dependencies")},
	"pyproject.toml":   {structural: parsePyProject, pattern: scanTOMLTables("tool.poetry.dependencies")},
	"requirements.txt": {structural: parseRequirements},
	"Gemfile":          {pattern: scanGemfile},
}

func extractManifest(p, content string) Result {
	parser, ok := manifestParsers[path.Base(p)]
	if !ok {
		return Result{Method: MethodNone}
	}

	var structErr error
	if parser.structural != nil {
		deps, err := parser.structural(content)
		if err == nil {
			return Result{Deps: normalizeSet(deps), Method: MethodStructural}
		}
		structErr = err
	}

	if parser.pattern != nil {
		if deps := parser.pattern(content); len(deps) > 0 || structErr == nil {
			return Result{Deps: normalizeSet(deps), Method: MethodPattern}
		}
	}

	return Result{
		Method: MethodNone,
		Err:    fmt.Errorf("%s: %w: %w", p, ErrUnparseable, structErr),
	}
}

// normalizeSet trims, drops empties, sorts and de-duplicates.
func normalizeSet(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
