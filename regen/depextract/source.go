/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package depextract

import (
	"regexp"
	"strings"
)

var (
	jsImportFrom  = regexp.MustCompile(`(?m)^\s*import\s+(?:type\s+)?(?:[\w*\s{},$]+\s+from\s+)?['"]([^'"]+)['"]`)
	jsRequire     = regexp.MustCompile(`\brequire\(\s*['"]([^'"]+)['"]\s*\)`)
	jsDynamic     = regexp.MustCompile(`\bimport\(\s*['"]([^'"]+)['"]\s*\)`)
	jsExportFrom  = regexp.MustCompile(`(?m)^\s*export\s+(?:type\s+)?(?:\*(?:\s+as\s+\w+)?|\{[^}]*\})\s+from\s+['"]([^'"]+)['"]`)
	jvmImport     = regexp.MustCompile(`(?m)^\s*import\s+(?:static\s+)?([\w.]+?)(?:\.\*)?\s*;?\s*$`)
	goImportLine  = regexp.MustCompile(`(?m)^\s*import\s+(?:[\w.]+\s+)?"([^"]+)"`)
	goImportBlock = regexp.MustCompile(`(?s)import\s*\((.*?)\)`)
	goBlockEntry  = regexp.MustCompile(`(?m)^\s*(?:[\w.]+\s+)?"([^"]+)"`)
	pyImport      = regexp.MustCompile(`(?m)^\s*import\s+([\w., ]+)`)
	pyFromImport  = regexp.MustCompile(`(?m)^\s*from\s+(\.*[\w.]*)\s+import\b`)
	rbRequire     = regexp.MustCompile(`(?m)^\s*require\s*\(?\s*['"]([^'"]+)['"]`)
	rbRelative    = regexp.MustCompile(`(?m)^\s*require_relative\s*\(?\s*['"]([^'"]+)['"]`)
	rsUse         = regexp.MustCompile(`(?m)^\s*(?:pub\s+)?use\s+(\w+)::`)
	rsExternCrate = regexp.MustCompile(`(?m)^\s*extern\s+crate\s+(\w+)`)
)

var nodeBuiltins = setOf(
	"assert", "async_hooks", "buffer", "child_process", "cluster", "console",
	"crypto", "dgram", "dns", "events", "fs", "http", "http2", "https", "module",
	"net", "os", "path", "perf_hooks", "process", "querystring", "readline",
	"repl", "stream", "string_decoder", "timers", "tls", "tty", "url", "util",
	"v8", "vm", "worker_threads", "zlib",
)

func scanJavaScript(content string) (deps, local []string) {
	for _, re := range []*regexp.Regexp{jsImportFrom, jsRequire, jsDynamic, jsExportFrom} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			specifier := m[1]
			switch {
			case strings.HasPrefix(specifier, "."):
				local = append(local, specifier)
			case strings.HasPrefix(specifier, "/"), strings.HasPrefix(specifier, "node:"):
			default:
				if name := jsPackageName(specifier); name != "" {
					deps = append(deps, name)
				}
			}
		}
	}
	return deps, local
}

// jsPackageName reduces a bare specifier to its package: "@scope/name" for
// scoped packages, the first segment otherwise.
func jsPackageName(specifier string) string {
	parts := strings.Split(specifier, "/")
	if strings.HasPrefix(specifier, "@") {
		if len(parts) < 2 {
			return ""
		}
		return parts[0] + "/" + parts[1]
	}
	if _, ok := nodeBuiltins[parts[0]]; ok {
		return ""
	}
	return parts[0]
}

var jvmDenied = []string{"java.", "javax.", "kotlin."}

var jvmLongPrefixes = setOf("org", "com", "io", "net")

func scanJVM(content string) (deps, local []string) {
	for _, m := range jvmImport.FindAllStringSubmatch(content, -1) {
		name := m[1]
		if hasAnyPrefix(name, jvmDenied) {
			continue
		}
		parts := strings.Split(name, ".")
		keep := 2
		if _, ok := jvmLongPrefixes[parts[0]]; ok {
			keep = 3
		}
		if len(parts) < keep {
			keep = len(parts)
		}
		deps = append(deps, strings.Join(parts[:keep], "."))
		local = append(local, strings.Join(parts, "/"))
	}
	return deps, local
}

var goHosts = setOf("github.com", "gitlab.com", "bitbucket.org", "golang.org", "chainguard.dev")

func scanGo(content string) []string {
	var paths []string
	for _, m := range goImportLine.FindAllStringSubmatch(content, -1) {
		paths = append(paths, m[1])
	}
	for _, block := range goImportBlock.FindAllStringSubmatch(content, -1) {
		for _, m := range goBlockEntry.FindAllStringSubmatch(block[1], -1) {
			paths = append(paths, m[1])
		}
	}

	var deps []string
	for _, p := range paths {
		parts := strings.Split(p, "/")
		if !strings.Contains(parts[0], ".") {
			continue
		}
		keep := 2
		if _, ok := goHosts[parts[0]]; ok {
			keep = 3
		}
		if len(parts) < keep {
			keep = len(parts)
		}
		deps = append(deps, strings.Join(parts[:keep], "/"))
	}
	return deps
}

var pythonStdlib = setOf(
	"__future__", "abc", "argparse", "asyncio", "base64", "collections",
	"contextlib", "copy", "csv", "dataclasses", "datetime", "decimal", "enum",
	"functools", "glob", "hashlib", "hmac", "http", "importlib", "inspect", "io",
	"itertools", "json", "logging", "math", "multiprocessing", "os", "pathlib",
	"pickle", "random", "re", "shutil", "signal", "socket", "sqlite3", "string",
	"subprocess", "sys", "tempfile", "threading", "time", "traceback", "typing",
	"unittest", "urllib", "uuid", "warnings", "xml", "zipfile",
)

func scanPython(content string) (deps, local []string) {
	add := func(mod string) {
		if strings.HasPrefix(mod, ".") {
			local = append(local, mod)
			return
		}
		top, _, _ := strings.Cut(mod, ".")
		if _, ok := pythonStdlib[top]; ok || top == "" {
			return
		}
		deps = append(deps, top)
	}
	for _, m := range pyImport.FindAllStringSubmatch(content, -1) {
		for _, mod := range strings.Split(m[1], ",") {
			mod, _, _ = strings.Cut(strings.TrimSpace(mod), " ")
			add(mod)
		}
	}
	for _, m := range pyFromImport.FindAllStringSubmatch(content, -1) {
		add(m[1])
	}
	return deps, local
}

var rubyStdlib = setOf("json", "set", "time", "date", "yaml", "fileutils", "net/http", "open3", "securerandom", "logger")

func scanRuby(content string) (deps, local []string) {
	for _, m := range rbRequire.FindAllStringSubmatch(content, -1) {
		if _, ok := rubyStdlib[m[1]]; ok {
			continue
		}
		name, _, _ := strings.Cut(m[1], "/")
		deps = append(deps, name)
	}
	for _, m := range rbRelative.FindAllStringSubmatch(content, -1) {
		local = append(local, "./"+strings.TrimPrefix(m[1], "./"))
	}
	return deps, local
}

var rustDenied = setOf("std", "core", "alloc", "crate", "self", "super")

func scanRust(content string) []string {
	var deps []string
	for _, re := range []*regexp.Regexp{rsUse, rsExternCrate} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			if _, ok := rustDenied[m[1]]; !ok {
				deps = append(deps, m[1])
			}
		}
	}
	return deps
}

func setOf(items ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(items))
	for _, it := range items {
		m[it] = struct{}{}
	}
	return m
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
